package main

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAbortStopsStartedWork(t *testing.T) {
	g, gctx := newGroup(context.Background())
	m := metrics.New(prometheus.NewRegistry())
	g.Go(func() error { return m.Serve(gctx, "127.0.0.1:0") })
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	boom := errors.New("initial index build failed")
	assert.ErrorIs(t, g.abort(boom), boom)
	assert.ErrorIs(t, gctx.Err(), context.Canceled)
}
