// Package health reports the reachability of presencehub's dependencies.
package health

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Pinger is a dependency that can report whether it is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ServiceHealth represents health of a dependency
type ServiceHealth struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report is the result of one check run
type Report struct {
	Status   string                   `json:"status"`
	Services map[string]ServiceHealth `json:"services"`
	Uptime   string                   `json:"uptime"`
}

// Checker pings registered dependencies. Unreachable dependencies degrade
// the report; presencehub keeps serving connections regardless.
type Checker struct {
	deps      map[string]Pinger
	timeout   time.Duration
	startTime time.Time
}

// NewChecker creates a checker that bounds each ping by timeout
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{
		deps:      make(map[string]Pinger),
		timeout:   timeout,
		startTime: time.Now(),
	}
}

// Register adds a dependency under name. Call before serving requests.
func (c *Checker) Register(name string, p Pinger) {
	c.deps[name] = p
}

// Check pings every dependency
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{
		Status:   "healthy",
		Services: make(map[string]ServiceHealth, len(c.deps)),
		Uptime:   c.uptime(),
	}

	names := make([]string, 0, len(c.deps))
	for name := range c.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sh := c.ping(ctx, c.deps[name])
		if sh.Status != "healthy" {
			report.Status = "degraded"
		}
		report.Services[name] = sh
	}
	return report
}

func (c *Checker) ping(ctx context.Context, p Pinger) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return ServiceHealth{Status: "unhealthy", Message: err.Error(), LatencyMs: latency}
	}
	return ServiceHealth{Status: "healthy", LatencyMs: latency}
}

// uptime formats time since start as a human-readable string
func (c *Checker) uptime() string {
	elapsed := time.Since(c.startTime)

	days := int(elapsed.Hours()) / 24
	hours := int(elapsed.Hours()) % 24
	minutes := int(elapsed.Minutes()) % 60
	seconds := int(elapsed.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
