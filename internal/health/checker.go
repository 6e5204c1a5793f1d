// Package health provides health check functionality for the service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Checker interface defines a component that can be health checked.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Severity decides how a failing check affects the overall status. The
// monitor keeps running through field-bus outages (cycles record
// invalid markers), so the field bus registers as Degrading while the
// database registers as Critical.
type Severity int

const (
	// Critical marks checks whose failure makes the service unhealthy.
	Critical Severity = iota
	// Degrading marks checks whose failure only degrades the service.
	Degrading
)

type check struct {
	checker  Checker
	severity Severity
}

// CheckStatus represents the status of a single health check.
type CheckStatus struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "healthy", "unhealthy"
	Error     string    `json:"error,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

// HealthResponse represents the full health response.
type HealthResponse struct {
	Status    string                  `json:"status"` // "healthy", "degraded", "unhealthy"
	Service   string                  `json:"service"`
	Version   string                  `json:"version"`
	Timestamp time.Time               `json:"timestamp"`
	Uptime    string                  `json:"uptime,omitempty"`
	Checks    map[string]*CheckStatus `json:"checks,omitempty"`
}

// Config holds health checker configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	CheckTimeout   time.Duration
}

// HealthChecker manages health checks for the service.
type HealthChecker struct {
	config  Config
	started time.Time

	mu       sync.RWMutex
	checks   map[string]check
	statuses map[string]*CheckStatus
}

// NewChecker creates a new health checker.
func NewChecker(config Config) *HealthChecker {
	if config.CheckTimeout == 0 {
		config.CheckTimeout = 5 * time.Second
	}
	return &HealthChecker{
		config:   config,
		started:  time.Now(),
		checks:   make(map[string]check),
		statuses: make(map[string]*CheckStatus),
	}
}

// AddCheck registers a health check.
func (h *HealthChecker) AddCheck(name string, checker Checker, severity Severity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check{checker: checker, severity: severity}
	h.statuses[name] = &CheckStatus{Name: name, Status: "unknown"}
}

// Check performs all health checks and returns the overall status.
func (h *HealthChecker) Check(ctx context.Context) *HealthResponse {
	h.mu.RLock()
	checks := make(map[string]check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	response := &HealthResponse{
		Status:    "healthy",
		Service:   h.config.ServiceName,
		Version:   h.config.ServiceVersion,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Checks:    make(map[string]*CheckStatus, len(checks)),
	}

	for name, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, h.config.CheckTimeout)

		status := &CheckStatus{
			Name:      name,
			Status:    "healthy",
			LastCheck: time.Now(),
		}
		if err := c.checker.HealthCheck(checkCtx); err != nil {
			status.Status = "unhealthy"
			status.Error = err.Error()
			switch c.severity {
			case Critical:
				response.Status = "unhealthy"
			case Degrading:
				if response.Status == "healthy" {
					response.Status = "degraded"
				}
			}
		}
		cancel()

		response.Checks[name] = status
	}

	h.mu.Lock()
	for name, status := range response.Checks {
		h.statuses[name] = status
	}
	h.mu.Unlock()

	return response
}

// GetStatus returns the current cached status of a check.
func (h *HealthChecker) GetStatus(name string) *CheckStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.statuses[name]
}

// HealthHandler handles HTTP health check requests.
func (h *HealthChecker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	response := h.Check(r.Context())
	writeHealth(w, response, response.Status == "unhealthy")
}

// LivenessHandler handles Kubernetes liveness probe.
// Returns 200 if the service is running.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, &HealthResponse{
		Status:    "healthy",
		Service:   h.config.ServiceName,
		Version:   h.config.ServiceVersion,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	}, false)
}

// ReadinessHandler handles Kubernetes readiness probe.
// Returns 200 unless a critical dependency is down; a degraded service
// still accepts traffic.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	response := h.Check(r.Context())
	writeHealth(w, response, response.Status == "unhealthy")
}

func writeHealth(w http.ResponseWriter, response *HealthResponse, unavailable bool) {
	w.Header().Set("Content-Type", "application/json")
	if unavailable {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(response)
}
