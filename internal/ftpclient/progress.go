package ftpclient

import (
	"io"
	"time"
)

// Progress — состояние передачи после очередного блока.
type Progress struct {
	// Bytes — передано байт с начала файла.
	Bytes int64

	// BytesPerSec — мгновенная скорость на последнем блоке.
	BytesPerSec float64
}

// ProgressFunc получает Progress после каждого прочитанного блока.
type ProgressFunc func(Progress)

// progressReader считает байты и скорость между соседними блоками.
type progressReader struct {
	r   io.Reader
	fn  ProgressFunc
	now func() time.Time

	total    int64
	lastSize int64
	lastTime time.Time
}

func newProgressReader(r io.Reader, fn ProgressFunc) *progressReader {
	return &progressReader{r: r, fn: fn, now: time.Now, lastTime: time.Now()}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.total += int64(n)
		if p.fn != nil {
			now := p.now()
			var rate float64
			if elapsed := now.Sub(p.lastTime).Seconds(); elapsed > 0 {
				rate = float64(p.total-p.lastSize) / elapsed
			}
			p.lastSize, p.lastTime = p.total, now
			p.fn(Progress{Bytes: p.total, BytesPerSec: rate})
		}
	}
	return n, err
}
