package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/obenan/reviewbridge/internal/models"
)

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode JSON response", "error", err, "status", statusCode)
	}
}
