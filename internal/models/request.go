package models

import "strings"

// QueryRequest for POST /api/query
type QueryRequest struct {
	Question string `json:"question"`
	UserID   string `json:"userId,omitempty"`
}

func (r *QueryRequest) SetDefaults() {
	r.Question = strings.TrimSpace(r.Question)
	r.UserID = strings.TrimSpace(r.UserID)
}

// DataRequest carries the query-string parameters of GET /api/data/{source}/{resource}
type DataRequest struct {
	Source   string
	Resource string
	Params   map[string]string
}
