package api

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/shaiso/Surveyor/internal/domain"
	"github.com/shaiso/Surveyor/internal/orchestrator"
	"github.com/shaiso/Surveyor/internal/repo"
)

// RequestResponse — ответ с restore.
type RequestResponse struct {
	ID        int64                `json:"id"`
	GUID      string               `json:"guid"`
	Status    domain.RequestStatus `json:"status"`
	Size      *int64               `json:"size,omitempty"`
	SizeHuman string               `json:"size_human,omitempty"`
	Details   string               `json:"details"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// RequestFromDomain конвертирует domain.Request в RequestResponse.
func RequestFromDomain(r domain.Request) RequestResponse {
	resp := RequestResponse{
		ID:        r.ID,
		GUID:      r.GUID,
		Status:    r.Status,
		Size:      r.Size,
		Details:   r.Details,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Size != nil {
		resp.SizeHuman = humanize.IBytes(uint64(*r.Size))
	}
	return resp
}

// DownloadResponse — ответ со скачиванием.
type DownloadResponse struct {
	ID             int64                 `json:"id"`
	RemoteFilename string                `json:"remote_filename"`
	LocalPath      string                `json:"local_path"`
	Status         domain.DownloadStatus `json:"status"`
	Size           int64                 `json:"size"`
	SizeHuman      string                `json:"size_human"`
	Attempts       int                   `json:"attempts"`
	Details        string                `json:"details"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// DownloadFromRepo конвертирует repo.DownloadSummary в DownloadResponse.
func DownloadFromRepo(d repo.DownloadSummary) DownloadResponse {
	return DownloadResponse{
		ID:             d.ID,
		RemoteFilename: d.RemoteFilename,
		LocalPath:      d.LocalPath,
		Status:         d.Status,
		Size:           d.Size,
		SizeHuman:      humanize.IBytes(uint64(d.Size)),
		Attempts:       d.Attempts,
		Details:        d.Details,
		UpdatedAt:      d.UpdatedAt,
	}
}

// StatsResponse — число записей по статусам.
type StatsResponse struct {
	Requests  map[string]int64 `json:"requests"`
	Downloads map[string]int64 `json:"downloads"`
}

// ActiveResponse — restore в работе у orchestrator.
type ActiveResponse struct {
	GUID          string               `json:"guid"`
	Status        domain.RequestStatus `json:"status"`
	Size          int64                `json:"size"`
	LiveWorkers   int                  `json:"live_workers"`
	InFlightBytes int64                `json:"in_flight_bytes"`
	InFlight      string               `json:"in_flight"`
}

// ActiveFromStats конвертирует orchestrator.RestoreStats в ActiveResponse.
func ActiveFromStats(s orchestrator.RestoreStats) ActiveResponse {
	return ActiveResponse{
		GUID:          s.GUID,
		Status:        s.Status,
		Size:          s.Size,
		LiveWorkers:   s.LiveWorkers,
		InFlightBytes: s.InFlightBytes,
		InFlight:      humanize.IBytes(uint64(s.InFlightBytes)),
	}
}
