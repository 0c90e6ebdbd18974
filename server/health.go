package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check response
type HealthCheck struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	Metrics    SystemMetrics              `json:"metrics"`
}

// ComponentHealth represents the health of a specific component
type ComponentHealth struct {
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	LastCheck time.Time    `json:"last_check"`
}

// SystemMetrics represents system performance metrics
type SystemMetrics struct {
	MemoryUsage    float64 `json:"memory_usage_mb"`
	Goroutines     int     `json:"goroutines"`
	ActiveUsers    int     `json:"active_users"`
	ActiveSessions int     `json:"active_sessions"`
	StoreStatus    string  `json:"store_status"`
}

// HealthChecker reports on the file store, the session listener and memory.
type HealthChecker struct {
	startTime  time.Time
	directory  *Directory
	store      FileStore
	sessions   func() int
	version    string
	components map[string]*ComponentHealth
	mutex      sync.RWMutex
}

// NewHealthChecker creates a new health checker. sessions reports the
// number of live connections and may be nil.
func NewHealthChecker(directory *Directory, store FileStore, sessions func() int, version string) *HealthChecker {
	hc := &HealthChecker{
		startTime:  time.Now(),
		directory:  directory,
		store:      store,
		sessions:   sessions,
		version:    version,
		components: make(map[string]*ComponentHealth),
	}

	for _, name := range []string{"store", "sessions", "memory"} {
		hc.components[name] = &ComponentHealth{
			Status:    HealthStatusHealthy,
			LastCheck: time.Now(),
		}
	}

	return hc
}

// CheckHealth performs a comprehensive health check
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthCheck {
	now := time.Now()
	uptime := now.Sub(hc.startTime)

	storeHealth := hc.checkStoreHealth(ctx)
	sessionHealth := hc.checkSessionHealth()
	memHealth := hc.checkMemoryHealth()

	hc.mutex.Lock()
	hc.components["store"] = storeHealth
	hc.components["sessions"] = sessionHealth
	hc.components["memory"] = memHealth
	hc.mutex.Unlock()

	return &HealthCheck{
		Status:     hc.determineOverallStatus(),
		Timestamp:  now,
		Version:    hc.version,
		Uptime:     uptime.Round(time.Second).String(),
		Components: hc.getComponentsMap(),
		Metrics:    hc.getSystemMetrics(),
	}
}

func (hc *HealthChecker) checkStoreHealth(ctx context.Context) *ComponentHealth {
	health := &ComponentHealth{LastCheck: time.Now()}

	if hc.store == nil {
		health.Status = HealthStatusDegraded
		health.Message = "File staging disabled"
		return health
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.store.Ping(ctx)
	responseTime := time.Since(start)

	switch {
	case err != nil:
		health.Status = HealthStatusUnhealthy
		health.Message = fmt.Sprintf("Store error: %v", err)
		StoreLogger.Error("Store health check failed", err)
	case responseTime > 2*time.Second:
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("Slow response: %v", responseTime)
	default:
		health.Status = HealthStatusHealthy
		health.Message = fmt.Sprintf("Response time: %v", responseTime)
	}

	return health
}

func (hc *HealthChecker) checkSessionHealth() *ComponentHealth {
	health := &ComponentHealth{LastCheck: time.Now()}

	if hc.directory == nil {
		health.Status = HealthStatusUnhealthy
		health.Message = "User directory not initialized"
		return health
	}

	sessions := hc.sessionCount()
	if sessions >= 1000 {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("High session count: %d", sessions)
	} else {
		health.Status = HealthStatusHealthy
		health.Message = fmt.Sprintf("Active sessions: %d", sessions)
	}

	return health
}

func (hc *HealthChecker) checkMemoryHealth() *ComponentHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	health := &ComponentHealth{LastCheck: time.Now()}

	memoryMB := float64(m.Alloc) / 1024 / 1024

	if memoryMB > 500 {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("High memory usage: %.1f MB", memoryMB)
	} else {
		health.Status = HealthStatusHealthy
		health.Message = fmt.Sprintf("Memory usage: %.1f MB", memoryMB)
	}

	return health
}

func (hc *HealthChecker) determineOverallStatus() HealthStatus {
	hasUnhealthy := false
	hasDegraded := false

	hc.mutex.RLock()
	defer hc.mutex.RUnlock()

	for _, component := range hc.components {
		switch component.Status {
		case HealthStatusUnhealthy:
			hasUnhealthy = true
		case HealthStatusDegraded:
			hasDegraded = true
		}
	}

	if hasUnhealthy {
		return HealthStatusUnhealthy
	} else if hasDegraded {
		return HealthStatusDegraded
	}

	return HealthStatusHealthy
}

func (hc *HealthChecker) sessionCount() int {
	if hc.sessions == nil {
		return 0
	}
	return hc.sessions()
}

func (hc *HealthChecker) getSystemMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	activeUsers := 0
	if hc.directory != nil {
		activeUsers = hc.directory.Count()
	}

	hc.mutex.RLock()
	storeStatus := hc.components["store"].Status.String()
	hc.mutex.RUnlock()

	return SystemMetrics{
		MemoryUsage:    float64(m.Alloc) / 1024 / 1024,
		Goroutines:     runtime.NumGoroutine(),
		ActiveUsers:    activeUsers,
		ActiveSessions: hc.sessionCount(),
		StoreStatus:    storeStatus,
	}
}

func (hc *HealthChecker) getComponentsMap() map[string]ComponentHealth {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()

	components := make(map[string]ComponentHealth)
	for name, health := range hc.components {
		components[name] = *health
	}
	return components
}

// String returns the string representation of HealthStatus
func (hs HealthStatus) String() string {
	return string(hs)
}

// HealthCheckHandler handles HTTP health check requests
func (hc *HealthChecker) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := hc.CheckHealth(r.Context())

	w.Header().Set("Content-Type", "application/json")
	switch health.Status {
	case HealthStatusHealthy, HealthStatusDegraded:
		w.WriteHeader(http.StatusOK)
	case HealthStatusUnhealthy:
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(health); err != nil {
		ServerLogger.Error("Failed to encode health check response", err)
	}
}

// SimpleHealthHandler provides a simple health check endpoint for load
// balancers
func (hc *HealthChecker) SimpleHealthHandler(w http.ResponseWriter, r *http.Request) {
	health := hc.CheckHealth(r.Context())

	if health.Status == HealthStatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("UNHEALTHY"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
