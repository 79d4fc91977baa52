package health

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/gluwa/creditcoin-pow-consensus/consensus"
	"github.com/gluwa/creditcoin-pow-consensus/database"
	"github.com/gluwa/creditcoin-pow-consensus/logger"
	"github.com/gluwa/creditcoin-pow-consensus/metrics"
	"github.com/gluwa/creditcoin-pow-consensus/utils"
)

type HealthStatus struct {
	Status     string                 `json:"status"`
	Timestamp  int64                  `json:"timestamp"`
	Uptime     string                 `json:"uptime"`
	Version    string                 `json:"version"`
	Services   map[string]ServiceInfo `json:"services"`
	Metrics    map[string]interface{} `json:"metrics"`
	SystemInfo SystemInfo             `json:"system_info"`
}

type ServiceInfo struct {
	Status      string `json:"status"`
	LastChecked int64  `json:"last_checked"`
	Message     string `json:"message,omitempty"`
}

type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemoryMB     uint64 `json:"memory_mb"`
}

// HealthChecker reports on the database and the block publisher's
// remaining publish time.
type HealthChecker struct {
	publisher *consensus.BlockPublisher
	database  database.Database
	startTime time.Time
}

func NewHealthChecker(publisher *consensus.BlockPublisher, db database.Database) *HealthChecker {
	return &HealthChecker{
		publisher: publisher,
		database:  db,
		startTime: time.Now(),
	}
}

func (hc *HealthChecker) CheckHealth() *HealthStatus {
	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().Unix(),
		Uptime:    time.Since(hc.startTime).String(),
		Version:   "1.0.0",
		Services:  make(map[string]ServiceInfo),
		Metrics:   metrics.GetMetrics().ToMap(),
	}

	dbStatus := hc.checkDatabase()
	status.Services["database"] = dbStatus
	if dbStatus.Status != "healthy" {
		status.Status = "degraded"
	}

	publisherStatus := hc.checkPublisher()
	status.Services["publisher"] = publisherStatus
	if publisherStatus.Status != "healthy" {
		status.Status = "degraded"
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	status.SystemInfo = SystemInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemoryMB:     m.Alloc / 1024 / 1024,
	}

	return status
}

func (hc *HealthChecker) checkDatabase() ServiceInfo {
	now := time.Now().Unix()

	if hc.database == nil {
		return ServiceInfo{
			Status:      "unhealthy",
			LastChecked: now,
			Message:     "database not initialized",
		}
	}

	if _, err := hc.database.Get([]byte("health_check")); err != nil {
		return ServiceInfo{
			Status:      "unhealthy",
			LastChecked: now,
			Message:     "database connection failed: " + err.Error(),
		}
	}

	return ServiceInfo{
		Status:      "healthy",
		LastChecked: now,
	}
}

func (hc *HealthChecker) checkPublisher() ServiceInfo {
	now := time.Now().Unix()

	if hc.publisher == nil {
		return ServiceInfo{
			Status:      "unhealthy",
			LastChecked: now,
			Message:     "publisher not initialized",
		}
	}

	remaining := time.Duration(hc.publisher.GetRemainingTime() * float64(time.Second))
	return ServiceInfo{
		Status:      "healthy",
		LastChecked: now,
		Message:     "remaining time: " + utils.FormatDuration(remaining),
	}
}

func (hc *HealthChecker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	health := hc.CheckHealth()

	w.Header().Set("Content-Type", "application/json")

	switch health.Status {
	case "healthy":
		w.WriteHeader(http.StatusOK)
	case "degraded":
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(health); err != nil {
		logger.Errorf("failed to encode health response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready := map[string]interface{}{
		"ready":     true,
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(ready); err != nil {
		logger.Errorf("failed to encode readiness response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
