package utils

import (
	"encoding/json"
	"net/http"

	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
	"go.uber.org/zap"
)

// WriteJSONResponse writes a JSON response with the given status code
// Sets Content-Type header and handles JSON encoding
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.Warn("failed to encode JSON response", zap.Error(err))
	}
}
