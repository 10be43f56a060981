package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sorted := make([]time.Duration, 100)
	for i := range sorted {
		sorted[i] = time.Duration(i+1) * time.Millisecond
	}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, time.Millisecond},
		{50, 50 * time.Millisecond},
		{99, 99 * time.Millisecond},
		{100, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, percentile(sorted, tt.p), "p%v", tt.p)
	}
	assert.Zero(t, percentile(nil, 50))
}

func TestRunLoad(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		if calls.Add(1)%2 == 0 {
			w.Header().Set("X-Cache", "HIT")
		}
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	cfg := loadConfig{
		BaseURL:     srv.URL,
		Concurrency: 2,
		Duration:    100 * time.Millisecond,
		Limit:       5,
		Queries:     []string{"cat", `"the hair"`},
	}
	s, err := runLoad(context.Background(), srv.Client(), cfg)
	require.NoError(t, err)
	assert.Positive(t, s.total)
	assert.Zero(t, s.errors)
	assert.Equal(t, s.total, s.statusCodes[http.StatusOK])

	var out bytes.Buffer
	require.NoError(t, report(&out, s, cfg.Duration))
	assert.Contains(t, out.String(), "=== Latency ===")
	assert.Contains(t, out.String(), "  200: ")
}

func TestReportWithoutRequests(t *testing.T) {
	var out bytes.Buffer
	err := report(&out, newStats(), time.Second)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "Total Requests:  0")
}

func TestRecordCountsFailures(t *testing.T) {
	s := newStats()
	s.record(time.Millisecond, http.StatusOK, true, nil)
	s.record(time.Millisecond, http.StatusTooManyRequests, false, nil)
	s.record(time.Millisecond, 0, false, assert.AnError)

	assert.Equal(t, int64(3), s.total)
	assert.Equal(t, int64(2), s.errors)
	assert.Equal(t, int64(1), s.cacheHits)
	assert.Len(t, s.latencies, 2)
}

func TestReadQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.txt")
	require.NoError(t, os.WriteFile(path, []byte("cat\n\n  \"the hair\"  \n"), 0o644))

	queries, err := readQueries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", `"the hair"`}, queries)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = readQueries(empty)
	assert.Error(t, err)
}
