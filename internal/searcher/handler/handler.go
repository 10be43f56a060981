package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

// Index is the live index as seen by the HTTP layer.
type Index interface {
	Engine() (*indexer.Engine, error)
	Rebuild(ctx context.Context) (*indexer.Engine, error)
}

type Handler struct {
	index        Index
	cache        *cache.QueryCache
	collector    *analytics.Collector
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New wires the search routes. queryCache, collector and m may be nil.
func New(index Index, queryCache *cache.QueryCache, collector *analytics.Collector, m *metrics.Metrics, defaultLimit, maxResults int) *Handler {
	return &Handler{
		index:        index,
		cache:        queryCache,
		collector:    collector,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type searchResponse struct {
	*executor.SearchResult
	TookMs float64 `json:"took_ms"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.maxResults)
	}

	eng, err := h.index.Engine()
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	ctx, span := tracing.Start(ctx, "search", middleware.GetRequestID(ctx))
	defer func() {
		span.End()
		span.Log(ctx, log)
	}()
	span.SetAttr("query", query)

	_, parseSpan := tracing.Child(ctx, "parse")
	plan := eng.Parse(query)
	parseSpan.End()

	key := cache.Key(plan, limit, eng.Generation())
	result, cacheHit, err := h.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*executor.SearchResult, error) {
		execCtx, execSpan := tracing.Child(ctx, "execute")
		defer execSpan.End()
		return eng.Query(execCtx, plan, limit)
	})
	span.SetAttr("cache_hit", cacheHit)
	if err != nil {
		log.Warn("search failed", "query", query, "error", err)
		h.writeAppError(w, err)
		return
	}

	took := time.Since(start)
	resultType := "success"
	eventType := analytics.EventSearch
	if result.TotalHits == 0 {
		resultType = "zero_result"
		eventType = analytics.EventZeroResult
	}
	cacheStatus := "miss"
	switch {
	case h.cache == nil:
		cacheStatus = "disabled"
	case cacheHit:
		cacheStatus = "hit"
	}
	h.metrics.ObserveSearch(resultType, cacheStatus, result.TotalHits, took.Seconds())

	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_us", took.Microseconds(),
	)
	h.collector.Track(analytics.SearchEvent{
		Type:       eventType,
		Query:      query,
		Tokens:     result.Tokens,
		TotalHits:  result.TotalHits,
		Returned:   len(result.Results),
		LatencyUs:  took.Microseconds(),
		CacheHit:   cacheHit,
		Generation: eng.Generation(),
		Timestamp:  time.Now().UTC(),
		RequestID:  middleware.GetRequestID(ctx),
	})

	w.Header().Set("X-Cache", strings.ToUpper(cacheStatus))
	h.writeJSON(w, http.StatusOK, searchResponse{
		SearchResult: result,
		TookMs:       float64(took.Microseconds()) / 1000,
	})
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	eng, err := h.index.Engine()
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, eng.Stats())
}

// Rebuild re-crawls the corpus synchronously and answers with the stats of
// the new engine. On failure the old engine keeps serving.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	eng, err := h.index.Rebuild(r.Context())
	if err != nil {
		log.Error("rebuild requested over http failed", "error", err)
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, eng.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError answers with the status mapped from err. Messages of
// internal errors are not exposed.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := http.StatusText(status)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && status != http.StatusInternalServerError {
		message = appErr.Message
	}
	h.writeError(w, status, message)
}
