package api

import (
	"net/http"
)

// RegisterRoutes регистрирует маршруты API в mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /api/v1/requests", h.ListRequests},
		{"GET /api/v1/requests/{guid}", h.GetRequest},
		{"GET /api/v1/requests/{guid}/downloads", h.ListRequestDownloads},
		{"GET /api/v1/stats", h.GetStats},
		{"GET /api/v1/active", h.ListActive},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, instrument(h.logger, rt.pattern, rt.handler))
	}
}
