package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shield4u/pagescope/internal/tasks"
)

// Version is the current API version (can be set via ldflags at build time)
var Version = "0.1.0"

// TaskService accepts tasks and reports how many are in flight.
type TaskService interface {
	Start(task *tasks.Task)
	ActiveCount() int
}

// Handler holds dependencies for API handlers
type Handler struct {
	Tasks       TaskService
	ServiceName string

	metrics http.Handler
}

// NewHandler creates a new API handler. A nil metrics handler falls back to
// the default Prometheus registry.
func NewHandler(taskService TaskService, metricsHandler http.Handler, serviceName string) *Handler {
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	if serviceName == "" {
		serviceName = "crawler"
	}
	return &Handler{
		Tasks:       taskService,
		ServiceName: serviceName,
		metrics:     metricsHandler,
	}
}

// SetupRoutes configures all API routes
func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/crawl", h.CrawlHandler)
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/metrics", h.MetricsHandler)

	// Everything else is an unknown route.
	mux.HandleFunc("/", h.NotFoundHandler)
}

// CrawlHandler accepts a crawl task and acknowledges it immediately; the
// outcome is reported through the callback endpoints, never on this
// connection.
func (h *Handler) CrawlHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r)
		return
	}

	var req tasks.CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "Invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		ValidationError(w, r, err.Error())
		return
	}

	task := req.Task()
	h.Tasks.Start(task)

	WriteJSON(w, r, CrawlAccepted{
		Status:    "accepted",
		TaskID:    task.ID,
		ParentID:  task.ParentID,
		TargetURL: task.TargetURL,
	}, http.StatusOK)
}

// HealthCheck handles basic health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	WriteJSON(w, r, HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().Format(time.RFC3339),
		Service:     h.ServiceName,
		Version:     Version,
		ActiveTasks: h.Tasks.ActiveCount(),
	}, http.StatusOK)
}

// MetricsHandler serves the Prometheus registry
func (h *Handler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}
	h.metrics.ServeHTTP(w, r)
}

// NotFoundHandler rejects unknown routes with the standard envelope
func (h *Handler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	NotFound(w, r, "Route not found")
}
