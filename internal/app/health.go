package app

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/streamware/wsbridge/internal"
)

// HealthChecker reports whether the upstream SSE backend is reachable.
type HealthChecker interface {
	HealthCheck() error
}

// HealthManager manages the health status of the bridge
type HealthManager struct {
	healthy int64 // Use atomic for thread-safe access
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{healthy: 0}
}

// UpdateHealthStatus probes the backend and updates metrics
func (h *HealthManager) UpdateHealthStatus(backend HealthChecker) {
	var healthStatus int64 = 1
	if err := backend.HealthCheck(); err != nil {
		healthStatus = 0
	}

	atomic.StoreInt64(&h.healthy, healthStatus)
	HealthMetric.Set(float64(healthStatus))
	ReadyMetric.Set(float64(healthStatus))
}

// StartHealthMonitoring starts a background goroutine to monitor health
func (h *HealthManager) StartHealthMonitoring(backend HealthChecker) {
	// Initial health check
	h.UpdateHealthStatus(backend)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		h.UpdateHealthStatus(backend)
	}
}

// HealthHandler returns HTTP handler for health endpoints
func (h *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Build-Commit", internal.BridgeVersionRevision)

	healthy := atomic.LoadInt64(&h.healthy)
	if healthy == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, err := fmt.Fprintf(w, `{"status":"unhealthy"}`+"\n")
		if err != nil {
			log.Errorf("health response write error: %v", err)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	_, err := fmt.Fprintf(w, `{"status":"ok"}`+"\n")
	if err != nil {
		log.Errorf("health response write error: %v", err)
	}
}

// VersionHandler returns HTTP handler for version endpoint
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Build-Commit", internal.BridgeVersionRevision)

	w.WriteHeader(http.StatusOK)
	response := fmt.Sprintf(`{"version":"%s"}`, internal.BridgeVersionRevision)
	_, err := fmt.Fprintf(w, "%s", response+"\n")
	if err != nil {
		log.Errorf("version response write error: %v", err)
	}
}
