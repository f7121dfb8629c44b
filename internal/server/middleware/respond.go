package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/iudanet/playerid/pkg/api"
)

// writeError отправляет ошибку в формате api.ErrorResponse.
// Коды аутентификации (100-106) здесь не выставляются: их выдают только auth handlers.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: http.StatusText(status), Message: message})
}
