package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/playerid/pkg/api"
)

// maxBodySize ограничивает размер JSON тела запроса
const maxBodySize = 64 << 10

// decodeJSON читает тело запроса в v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
}

// sendJSON отправляет JSON ответ
func sendJSON(logger *slog.Logger, w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func sendError(logger *slog.Logger, w http.ResponseWriter, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	sendJSON(logger, w, resp, statusCode)
}

// sendAuthError отправляет ошибку аутентификации с кодом 100-106 и уведомлениями
func sendAuthError(logger *slog.Logger, w http.ResponseWriter, statusCode, code int, message string, notifications ...api.Notification) {
	resp := api.ErrorResponse{
		Error:         http.StatusText(statusCode),
		Message:       message,
		Code:          code,
		Notifications: notifications,
	}
	sendJSON(logger, w, resp, statusCode)
}
