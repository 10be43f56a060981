package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventRebuild    EventType = "index_rebuild"
)

// SearchEvent is emitted once per query served over HTTP.
type SearchEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Tokens     []string  `json:"tokens"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyUs  int64     `json:"latency_us"`
	CacheHit   bool      `json:"cache_hit"`
	Generation uint64    `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

// RebuildEvent is emitted after every index rebuild attempt. Error is empty
// on success.
type RebuildEvent struct {
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation"`
	Documents  int       `json:"documents"`
	Terms      int       `json:"terms"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// envelope peeks at the type of an encoded event.
type envelope struct {
	Type EventType `json:"type"`
}

// key returns the partition key of an event. Search events for the same
// query land on the same partition.
func key(event any) string {
	switch e := event.(type) {
	case SearchEvent:
		return "search:" + e.Query
	case RebuildEvent:
		return "rebuild"
	default:
		return "analytics"
	}
}
