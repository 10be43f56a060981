package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} }

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"no checks", nil, StatusUp},
		{"all up", map[string]Check{"a": up, "b": up}, StatusUp},
		{"optional failing", map[string]Check{
			"index": up,
			"redis": Ping(func(context.Context) error { return errors.New("refused") }, true),
		}, StatusDegraded},
		{"required failing", map[string]Check{
			"index": Ping(func(context.Context) error { return errors.New("not built") }, false),
			"redis": Ping(func(context.Context) error { return errors.New("refused") }, true),
		}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.checks))
			for _, comp := range report.Components {
				assert.NotEmpty(t, comp.Latency)
			}
		})
	}
}

func TestPing(t *testing.T) {
	ok := Ping(func(context.Context) error { return nil }, false)(context.Background())
	assert.Equal(t, StatusUp, ok.Status)

	down := Ping(func(context.Context) error { return errors.New("boom") }, false)(context.Background())
	assert.Equal(t, StatusDown, down.Status)
	assert.Equal(t, "boom", down.Message)
}

func TestHandlers(t *testing.T) {
	c := NewChecker()
	c.Register("redis", Ping(func(context.Context) error { return errors.New("refused") }, true))

	rec := httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "degraded is still ready")
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "refused", report.Components["redis"].Message)

	c.Register("index", Ping(func(context.Context) error { return errors.New("not built") }, false))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunAppliesCheckTimeout(t *testing.T) {
	c := NewChecker()
	c.CheckTimeout = 10 * time.Millisecond
	c.Register("postgres", Ping(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, true))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Components["postgres"].Message)
	assert.NotEmpty(t, report.Uptime)
}
