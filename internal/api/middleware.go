package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/shaiso/Surveyor/internal/telemetry"
)

// statusRecorder запоминает код ответа для лога и метрик.
type statusRecorder struct {
	http.ResponseWriter
	code    int
	written bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.written {
		s.code = code
		s.written = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.written = true
	return s.ResponseWriter.Write(b)
}

// instrument оборачивает обработчик маршрута route: паника превращается в 500,
// каждый запрос логируется и попадает в гистограмму surveyor_api_request_duration_seconds.
func instrument(logger *slog.Logger, route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				logger.Error("panic in api handler", "route", route, "panic", p, "stack", string(debug.Stack()))
				if !rec.written {
					writeError(rec, http.StatusInternalServerError, "internal server error")
				} else {
					rec.code = http.StatusInternalServerError
				}
			}

			elapsed := time.Since(start)
			telemetry.APIRequestDuration.
				WithLabelValues(route, strconv.Itoa(rec.code)).
				Observe(elapsed.Seconds())
			logger.Debug("api request",
				"route", route,
				"path", r.URL.Path,
				"status", rec.code,
				"duration", elapsed,
				"remote_addr", r.RemoteAddr,
			)
		}()

		h(rec, r)
	})
}
