package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// HealthCheckFunc performs a single check. A nil error means healthy.
type HealthCheckFunc func(ctx context.Context) error

// Pinger is anything with a connectivity probe (store, cache).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger.
func PingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}

// HealthStatus is the aggregated status of the service.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the result of one check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`

	// Critical checks make the service unready when they fail.
	Critical bool `json:"critical"`
}

type registeredCheck struct {
	fn       HealthCheckFunc
	critical bool
}

// HealthChecker runs named checks in parallel.
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]registeredCheck
	startTime time.Time
	version   string
	timeout   time.Duration
}

// NewHealthChecker creates a checker with a 5s per-check timeout.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		checks:    make(map[string]registeredCheck),
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// SetTimeout sets the timeout for individual checks.
func (h *HealthChecker) SetTimeout(timeout time.Duration) {
	h.timeout = timeout
}

// AddCheck registers a check. Non-critical failures are reported but keep the service ready.
func (h *HealthChecker) AddCheck(name string, fn HealthCheckFunc, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registeredCheck{fn: fn, critical: critical}
}

// Check runs every registered check.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := make(map[string]registeredCheck, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := c.fn(checkCtx)
			res := CheckResult{
				Healthy:  err == nil,
				Message:  "OK",
				Duration: time.Since(start).Round(time.Millisecond).String(),
				Critical: c.critical,
			}
			if err != nil {
				res.Message = err.Error()
			}
			mu.Lock()
			status.Checks[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	var failed []string
	for name, res := range status.Checks {
		if !res.Healthy && res.Critical {
			status.Healthy = false
			failed = append(failed, name)
		}
	}
	if status.Healthy {
		status.Message = "All critical checks passed"
	} else {
		sort.Strings(failed)
		status.Message = "Checks failed: " + strings.Join(failed, ", ")
	}
	return status
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// Health handles GET /health.
func (h *HealthChecker) Health(c *gin.Context) {
	status := h.Check(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// Ready handles GET /ready.
func (h *HealthChecker) Ready(c *gin.Context) {
	status := h.Check(c.Request.Context())
	if !status.Healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "message": status.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Live handles GET /live.
func (h *HealthChecker) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "uptime": time.Since(h.startTime).Round(time.Second).String()})
}
