// Package health runs dependency probes for the liveness and readiness
// endpoints. A required component that is down makes the service unready;
// an optional one only degrades it.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// severity orders statuses from best to worst.
func (s Status) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	}
	return 2
}

// Check probes one component.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
}

// Checker holds the registered probes. Each probe gets CheckTimeout.
type Checker struct {
	CheckTimeout time.Duration

	mu      sync.RWMutex
	checks  map[string]Check
	started time.Time
	logger  *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		CheckTimeout: 2 * time.Second,
		checks:       make(map[string]Check),
		started:      time.Now(),
		logger:       slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the probe for name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run probes every component in parallel. The report carries the worst
// component status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]ComponentHealth, len(checks))
	var mu sync.Mutex
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, c.CheckTimeout)
			defer cancel()
			start := time.Now()
			res := check(checkCtx)
			res.Latency = time.Since(start).Round(time.Microsecond).String()
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: results,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for name, res := range results {
		if res.Status.severity() > report.Status.severity() {
			report.Status = res.Status
		}
		if res.Status != StatusUp {
			c.logger.Debug("component unhealthy", "name", name, "status", res.Status, "message", res.Message)
		}
	}
	return report
}

// Ping turns an error-returning probe into a Check. A failing probe is
// down, or degraded when the component is optional.
func Ping(ping func(ctx context.Context) error, optional bool) Check {
	return func(ctx context.Context) ComponentHealth {
		err := ping(ctx)
		switch {
		case err == nil:
			return ComponentHealth{Status: StatusUp}
		case optional:
			return ComponentHealth{Status: StatusDegraded, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusDown, Message: err.Error()}
	}
}

// LiveHandler answers 200 while the process is serving.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.write(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 200 when up or degraded and 503 when down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		c.write(w, status, report)
	}
}

func (c *Checker) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		c.logger.Error("failed to write health response", "error", err)
	}
}
