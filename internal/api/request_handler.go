package api

import (
	"net/http"
	"strconv"

	"github.com/shaiso/Surveyor/internal/domain"
	"github.com/shaiso/Surveyor/internal/repo"
)

// ListRequests возвращает список restore с фильтрацией.
// GET /api/v1/requests?status=...&limit=...&offset=...
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	filter := repo.RequestFilter{Limit: 50}

	if status := r.URL.Query().Get("status"); status != "" {
		s := domain.RequestStatus(status)
		if !s.IsValid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = s
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	reqs, err := h.requestRepo.List(r.Context(), filter)
	if failed(w, h.logger, err, "request") {
		return
	}

	result := make([]RequestResponse, len(reqs))
	for i, req := range reqs {
		result[i] = RequestFromDomain(req)
	}

	writeList(w, result)
}

// GetRequest возвращает restore по guid.
// GET /api/v1/requests/{guid}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.requestRepo.GetByGUID(r.Context(), r.PathValue("guid"))
	if failed(w, h.logger, err, "request") {
		return
	}

	writeOne(w, RequestFromDomain(*req))
}

// ListRequestDownloads возвращает скачивания restore с числом попыток.
// GET /api/v1/requests/{guid}/downloads
func (h *Handler) ListRequestDownloads(w http.ResponseWriter, r *http.Request) {
	req, err := h.requestRepo.GetByGUID(r.Context(), r.PathValue("guid"))
	if failed(w, h.logger, err, "request") {
		return
	}

	downloads, err := h.downloadRepo.ListByRequest(r.Context(), req.ID)
	if failed(w, h.logger, err, "downloads") {
		return
	}

	result := make([]DownloadResponse, len(downloads))
	for i, d := range downloads {
		result[i] = DownloadFromRepo(d)
	}

	writeList(w, result)
}
