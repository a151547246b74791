package models

import "time"

// Query type tags for answers produced on a degraded path.
const (
	AnswerTypeDatabaseOnly = "database_only"
	AnswerTypeFallback     = "fallback"
	AnswerTypeError        = "error"
)

// Answer is what the pipeline returns and what the cache stores.
type Answer struct {
	Text       string     `json:"text"`
	Data       *ResultSet `json:"data"`
	QueryType  string     `json:"queryType"`
	Confidence float64    `json:"confidence"`
	DataSource string     `json:"dataSource"`
	Cached     bool       `json:"cached"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Degraded reports whether the answer came from a fallback path.
func (a Answer) Degraded() bool {
	switch a.QueryType {
	case AnswerTypeDatabaseOnly, AnswerTypeFallback, AnswerTypeError:
		return true
	}
	return false
}
