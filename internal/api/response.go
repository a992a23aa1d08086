// Package api exposes the service's HTTP surface: task acceptance, health
// and metrics. Handlers write the standard JSON envelopes and never block on
// crawl work.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, r *http.Request, data interface{}, status int) {
	requestID := GetRequestID(r)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("Failed to encode JSON response")
	}
}

// CrawlAccepted acknowledges an accepted task. The crawl itself continues on
// its own goroutine after this response is written.
type CrawlAccepted struct {
	Status    string `json:"status"`
	TaskID    string `json:"task_id"`
	ParentID  string `json:"parent_id"`
	TargetURL string `json:"target_url"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Service     string `json:"service"`
	Version     string `json:"version,omitempty"`
	ActiveTasks int    `json:"active_tasks"`
}
