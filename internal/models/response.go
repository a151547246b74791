package models

import "time"

// HealthResponse is returned by GET /api/health
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// AnswerMetadata describes how an answer was produced
type AnswerMetadata struct {
	QueryType  string  `json:"queryType"`
	Confidence float64 `json:"confidence"`
	DataSource string  `json:"dataSource"`
	Cached     bool    `json:"cached"`
}

// QueryResponse is returned by POST /api/query
type QueryResponse struct {
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Data      *ResultSet     `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  AnswerMetadata `json:"metadata"`
}

// NewQueryResponse maps a pipeline Answer onto the HTTP response body.
func NewQueryResponse(question string, a Answer) QueryResponse {
	return QueryResponse{
		Question:  question,
		Answer:    a.Text,
		Data:      a.Data,
		Timestamp: a.Timestamp,
		Metadata: AnswerMetadata{
			QueryType:  a.QueryType,
			Confidence: a.Confidence,
			DataSource: a.DataSource,
			Cached:     a.Cached,
		},
	}
}

// CacheStats is a snapshot of the answer cache counters
type CacheStats struct {
	Entries   int     `json:"entries"`
	Capacity  int     `json:"capacity"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
	TTL       string  `json:"ttl"`
}

// PipelineStats counts answers by outcome
type PipelineStats struct {
	Questions     int64            `json:"questions"`
	DegradedRuns  int64            `json:"degraded_runs"`
	ByQueryType   map[string]int64 `json:"by_query_type"`
	InFlightDedup int64            `json:"in_flight_dedup"`
}

// StatusResponse is returned by GET /api/status
type StatusResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	StoreDriver   string            `json:"store_driver"`
	LLMProvider   string            `json:"llm_provider"`
	DefaultSource string            `json:"default_source"`
	Cache         CacheStats        `json:"cache"`
	Pipeline      PipelineStats     `json:"pipeline"`
	Breakers      map[string]string `json:"breakers"`
	HistoryCount  *int64            `json:"history_count,omitempty"`
}

// DataResponse is returned by GET /api/data/{source}/{resource}
type DataResponse struct {
	Source   string           `json:"source"`
	Provider string           `json:"provider"`
	Resource string           `json:"resource"`
	RowCount int              `json:"row_count"`
	Rows     []map[string]any `json:"rows"`
}
