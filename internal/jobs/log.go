package jobs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Статусы задачи в нижнем регистре. Сравнение статусов регистронезависимо.
const (
	StatusNew        = "new job"
	StatusSubmitted  = "submitted to queue"
	StatusProcessing = "processing in progress"
	StatusSuccessful = "processing successful"
	StatusFailed     = "processing failed"
	StatusUploaded   = "upload successful"
	StatusDeleted    = "deleted"
)

// statusTitles — написание статусов при записи в журнал.
var statusTitles = map[string]string{
	StatusNew:        "New job",
	StatusSubmitted:  "Submitted to queue",
	StatusProcessing: "Processing in progress",
	StatusSuccessful: "Processing successful",
	StatusFailed:     "Processing failed",
	StatusUploaded:   "Upload successful",
	StatusDeleted:    "Deleted",
}

const timeLayout = "2006-01-02 15:04:05.000000"

var (
	lineRe      = regexp.MustCompile(`^(.*?) -- (.*?) -- (.*?) --(?: (.*))?$`)
	parseLayout = []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05"}
	fieldSep    = strings.NewReplacer("\r\n", " | ", "\n", " | ", "\r", " ", "#", "", " -- ", " - ")
)

// LogEntry — запись журнала задачи.
type LogEntry struct {
	Time   time.Time
	Status string
	Host   string
	Info   string
}

// NewEntry создаёт запись со статусом в каноническом написании.
func NewEntry(t time.Time, status, host, info string) LogEntry {
	if title, ok := statusTitles[strings.ToLower(status)]; ok {
		status = title
	}
	return LogEntry{Time: t, Status: status, Host: host, Info: info}
}

// String возвращает строку журнала без перевода строки.
// Поля очищаются от символов, ломающих грамматику.
func (e LogEntry) String() string {
	return fmt.Sprintf("%s -- %s -- %s -- %s",
		e.Time.Format(timeLayout),
		fieldSep.Replace(e.Status),
		fieldSep.Replace(e.Host),
		fieldSep.Replace(e.Info),
	)
}

// Is сообщает, что запись имеет статус status (без учёта регистра).
func (e LogEntry) Is(status string) bool {
	return strings.EqualFold(strings.TrimSpace(e.Status), status)
}

// ParseEntry разбирает одну строку журнала (без комментария).
func ParseEntry(line string) (LogEntry, error) {
	m := lineRe.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return LogEntry{}, fmt.Errorf("%w: %q", ErrMalformedLog, line)
	}

	date := strings.TrimSpace(m[1])
	var (
		ts  time.Time
		err error
	)
	for _, layout := range parseLayout {
		ts, err = time.ParseInLocation(layout, date, time.Local)
		if err == nil {
			break
		}
	}
	if err != nil {
		return LogEntry{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformedLog, date)
	}

	status := strings.TrimSpace(m[2])
	if status == "" {
		return LogEntry{}, fmt.Errorf("%w: empty status in %q", ErrMalformedLog, line)
	}

	return LogEntry{
		Time:   ts,
		Status: status,
		Host:   strings.TrimSpace(m[3]),
		Info:   strings.TrimSpace(m[4]),
	}, nil
}

// ReadEntries читает и разбирает журнал целиком.
func ReadEntries(path string) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []LogEntry
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line, _, _ := strings.Cut(sc.Text(), "#")
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, err := ParseEntry(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s has no entries", ErrMalformedLog, path)
	}
	return entries, nil
}

// Log — журнал задачи в файле. Не потокобезопасен.
type Log struct {
	path    string
	entries []LogEntry
	mtime   time.Time
	size    int64
}

// OpenLog читает существующий журнал или создаёт новый с записью first.
func OpenLog(path string, first LogEntry) (*Log, error) {
	l := &Log{path: path}

	_, err := os.Stat(path)
	switch {
	case err == nil:
		if err := l.reload(); err != nil {
			return nil, err
		}
		return l, nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := l.Append(first); err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, err
	}
}

// Path возвращает путь к файлу журнала.
func (l *Log) Path() string { return l.path }

// Entries возвращает копию записей.
func (l *Log) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Last возвращает последнюю запись.
func (l *Log) Last() LogEntry {
	return l.entries[len(l.entries)-1]
}

// Count возвращает число записей со статусом status.
func (l *Log) Count(status string) int {
	n := 0
	for _, e := range l.entries {
		if e.Is(status) {
			n++
		}
	}
	return n
}

// Append дописывает запись в файл и перечитывает журнал, чтобы не потерять
// записи, добавленные другими процессами после последнего Refresh.
func (l *Log) Append(e LogEntry) error {
	// Запись проходит через ту же грамматику, что и при чтении.
	if _, err := ParseEntry(e.String()); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, e.String()); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("append %s: %w", l.path, err)
	}
	return l.reload()
}

// Refresh перечитывает журнал, если у файла изменились mtime или размер.
func (l *Log) Refresh() error {
	info, err := os.Stat(l.path)
	if err != nil {
		return err
	}
	if info.ModTime().Equal(l.mtime) && info.Size() == l.size {
		return nil
	}
	return l.reload()
}

func (l *Log) reload() error {
	info, err := os.Stat(l.path)
	if err != nil {
		return err
	}
	entries, err := ReadEntries(l.path)
	if err != nil {
		return err
	}
	l.entries = entries
	l.mtime = info.ModTime()
	l.size = info.Size()
	return nil
}
