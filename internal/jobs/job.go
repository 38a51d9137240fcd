package jobs

import (
	"fmt"
	"path/filepath"
	"strings"
)

const jobIDPrefix = "Job ID: "

// Job — вычислительная задача над набором входных файлов.
type Job struct {
	Name      string
	Datafiles []string

	log *Log
}

// JobName возвращает имя задачи: имя первого файла без ".fits".
func JobName(datafiles []string) (string, error) {
	if len(datafiles) == 0 {
		return "", fmt.Errorf("%w: no datafiles", ErrNotFITS)
	}
	base := filepath.Base(datafiles[0])
	name, ok := strings.CutSuffix(base, ".fits")
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFITS, datafiles[0])
	}
	return name, nil
}

// Status возвращает статус последней записи в нижнем регистре.
func (j *Job) Status() string {
	return strings.ToLower(strings.TrimSpace(j.log.Last().Status))
}

// CountStatus возвращает, сколько раз задача имела статус status.
func (j *Job) CountStatus(status string) int {
	return j.log.Count(status)
}

// Log возвращает журнал задачи.
func (j *Job) Log() *Log { return j.log }

// QueueID возвращает id задачи в очереди из последней записи о постановке.
func (j *Job) QueueID() string {
	entries := j.log.entries
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].Is(StatusSubmitted) {
			continue
		}
		if id, ok := strings.CutPrefix(entries[i].Info, jobIDPrefix); ok {
			return strings.TrimSpace(id)
		}
		return ""
	}
	return ""
}

// datafilesInfo — info первой записи новой задачи.
func datafilesInfo(datafiles []string) string {
	return "Datafiles: [" + strings.Join(datafiles, ", ") + "]"
}
