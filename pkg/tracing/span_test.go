package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := Start(context.Background(), "search", "req-1")
	parseCtx, parse := Child(ctx, "parse")
	assert.Same(t, parse, FromContext(parseCtx))
	parse.End()
	_, exec := Child(ctx, "execute")
	time.Sleep(time.Millisecond)
	exec.End()
	root.End()

	children := root.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "parse", children[0].Name())
	assert.Equal(t, "execute", children[1].Name())
	assert.GreaterOrEqual(t, root.Duration(), exec.Duration())
	assert.Positive(t, exec.Duration())

	d := root.Duration()
	root.End()
	assert.Equal(t, d, root.Duration())
}

func TestChildWithoutParent(t *testing.T) {
	ctx := context.Background()
	got, s := Child(ctx, "orphan")
	assert.Nil(t, s)
	assert.Equal(t, ctx, got)

	s.End()
	s.SetAttr("k", "v")
	s.Log(ctx, slog.Default())
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := Start(context.Background(), "search", "req-2")
	root.SetAttr("query", "cat")
	_, child := Child(ctx, "execute")
	child.End()
	root.End()
	root.Log(ctx, logger)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "search", first["span"])
	assert.Equal(t, "cat", first["query"])
	assert.Equal(t, "req-2", second["trace_id"])
	assert.Equal(t, float64(1), second["depth"])
}

func TestLogSkippedAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, root := Start(context.Background(), "search", "req-3")
	root.End()
	root.Log(ctx, logger)
	assert.Empty(t, buf.String())
}
