package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shaiso/Surveyor/internal/repo"
)

// envelope — общая форма ответов API. Заполнено либо Data, либо Error.
type envelope struct {
	Data  any        `json:"data,omitempty"`
	Total *int       `json:"total,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

// errorBody — описание ошибки. Code выводится из HTTP-статуса: NOT_FOUND, BAD_REQUEST и т.д.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeOne отдаёт один объект.
func writeOne(w http.ResponseWriter, v any) {
	writeEnvelope(w, http.StatusOK, envelope{Data: v})
}

// writeList отдаёт список. Пустой список сериализуется как [], не null.
func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	writeEnvelope(w, http.StatusOK, envelope{Data: items, Total: &n})
}

func writeError(w http.ResponseWriter, status int, message string) {
	code := strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	writeEnvelope(w, status, envelope{Error: &errorBody{Code: code, Message: message}})
}

// failed пишет ответ на ошибку чтения из tracker store и возвращает true, если err != nil.
// repo.ErrNotFound становится 404 с сообщением "<what> not found", остальное — 500.
func failed(w http.ResponseWriter, logger *slog.Logger, err error, what string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	default:
		logger.Error("tracker store read failed", "what", what, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
	return true
}
