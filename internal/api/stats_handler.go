package api

import (
	"net/http"
)

// GetStats возвращает число restore и скачиваний по статусам.
// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	requests, err := h.requestRepo.CountByStatus(r.Context())
	if failed(w, h.logger, err, "request counts") {
		return
	}
	downloads, err := h.downloadRepo.CountByStatus(r.Context())
	if failed(w, h.logger, err, "download counts") {
		return
	}

	writeOne(w, StatsResponse{Requests: requests, Downloads: downloads})
}

// ListActive возвращает restore в работе. Доступно только в процессе orchestrator.
// GET /api/v1/active
func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	if h.active == nil {
		writeError(w, http.StatusNotFound, "active restores are served by surveyor-downloader")
		return
	}

	stats := h.active.Status()
	result := make([]ActiveResponse, len(stats))
	for i, s := range stats {
		result[i] = ActiveFromStats(s)
	}

	writeList(w, result)
}
