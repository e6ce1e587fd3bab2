package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckHealthy(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("store", PingFunc(func(ctx context.Context) error { return nil }))

	report := c.Check(context.Background())
	assert.Equal(t, "healthy", report.Status)
	assert.Equal(t, "healthy", report.Services["store"].Status)
	assert.NotEmpty(t, report.Uptime)
}

func TestCheckDegraded(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("store", PingFunc(func(ctx context.Context) error { return nil }))
	c.Register("nats", PingFunc(func(ctx context.Context) error { return errors.New("connection closed") }))

	report := c.Check(context.Background())
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "unhealthy", report.Services["nats"].Status)
	assert.Equal(t, "connection closed", report.Services["nats"].Message)
}

func TestCheckRespectsTimeout(t *testing.T) {
	c := NewChecker(20 * time.Millisecond)
	c.Register("slow", PingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	report := c.Check(context.Background())
	assert.Equal(t, "degraded", report.Status)
}

func TestCheckNoDependencies(t *testing.T) {
	report := NewChecker(0).Check(context.Background())
	assert.Equal(t, "healthy", report.Status)
	assert.Empty(t, report.Services)
}
