package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	// Check the store
	storeStart := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("health check: store ping failed")
		checks["store"] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks["store"] = Check{Status: "pass", Latency: time.Since(storeStart).String()}
	}

	if h.sweeper != nil {
		checks["sweeper"] = sweeperCheck(h.sweeper, time.Now())
		if checks["sweeper"].Status == "fail" {
			allHealthy = false
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    status,
		Version:   version,
		Instance:  hostname(),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	h.JSON(w, statusCode, resp)
}

// sweeperCheck fails once three passes in a row have been missed.
func sweeperCheck(s SweepReporter, now time.Time) Check {
	last := s.LastPass()
	if last.IsZero() {
		return Check{Status: "pass", Message: "no pass yet"}
	}
	since := now.Sub(last)
	if since > 3*s.Interval() {
		return Check{Status: "fail", Message: "last pass " + since.Round(time.Second).String() + " ago"}
	}
	return Check{Status: "pass", Message: "last pass " + since.Round(time.Second).String() + " ago"}
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Docs      string   `json:"docs"`
	Endpoints []string `json:"endpoints"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "batepapo",
		Version: version,
		Docs:    "/api",
		Endpoints: []string{
			"POST /participants",
			"GET /participants",
			"POST /status",
			"POST /messages",
			"GET /messages",
			"GET /messages/search",
			"GET /messages/stream",
			"PUT /messages/{id}",
			"DELETE /messages/{id}",
			"GET /health",
			"GET /stats",
		},
	})
}

func hostname() string {
	name, _ := os.Hostname()
	return name
}
