package orchestrator

import (
	"sync"

	"github.com/shaiso/Surveyor/internal/domain"
	"github.com/shaiso/Surveyor/internal/worker"
)

// RestoreState — restore в рабочем наборе оркестратора.
//
// Создаётся при допуске нового restore или при восстановлении после рестарта,
// удаляется, когда restore становится finished или failed.
// handles изменяется только управляющим циклом; mu защищает чтение из Status.
type RestoreState struct {
	guid string

	mu      sync.RWMutex
	req     domain.Request
	handles map[string]*worker.Handle // remote filename → воркер
}

// NewRestoreState создаёт состояние для restore.
func NewRestoreState(req domain.Request) *RestoreState {
	return &RestoreState{
		guid:    req.GUID,
		req:     req,
		handles: make(map[string]*worker.Handle),
	}
}

// GUID возвращает guid restore.
func (s *RestoreState) GUID() string {
	return s.guid
}

// Request возвращает последнюю прочитанную из хранилища копию restore.
func (s *RestoreState) Request() domain.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.req
}

func (s *RestoreState) setRequest(req domain.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.req = req
}

func (s *RestoreState) handle(name string) (*worker.Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[name]
	return h, ok
}

func (s *RestoreState) addHandle(name string, h *worker.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[name] = h
}

func (s *RestoreState) removeHandle(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, name)
}

// liveHandles возвращает копию ручек воркеров.
func (s *RestoreState) liveHandles() map[string]*worker.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*worker.Handle, len(s.handles))
	for name, h := range s.handles {
		out[name] = h
	}
	return out
}

// Stats возвращает сводку по restore.
func (s *RestoreState) Stats() RestoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RestoreStats{
		GUID:        s.guid,
		Status:      s.req.Status,
		Size:        s.req.KnownSize(),
		LiveWorkers: len(s.handles),
	}
	for _, h := range s.handles {
		stats.InFlightBytes += h.Progress().Bytes
	}
	return stats
}

// RestoreStats — сводка по restore для логов и статуса.
type RestoreStats struct {
	GUID          string               `json:"guid"`
	Status        domain.RequestStatus `json:"status"`
	Size          int64                `json:"size"`
	LiveWorkers   int                  `json:"live_workers"`
	InFlightBytes int64                `json:"in_flight_bytes"`
}
