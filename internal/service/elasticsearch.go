package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// HistoryEntry is one answered question as stored in the history index.
type HistoryEntry struct {
	QuestionHash string    `json:"question_hash"`
	Question     string    `json:"question"`
	QueryType    string    `json:"query_type"`
	DataSource   string    `json:"data_source"`
	Confidence   float64   `json:"confidence"`
	Cached       bool      `json:"cached"`
	RowCount     int       `json:"row_count"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"@timestamp"`
}

// QuestionHistory indexes answered questions into Elasticsearch.
type QuestionHistory struct {
	client *elasticsearch.Client
	index  string
}

// NewQuestionHistory creates an ES client using go-elasticsearch/v8
func NewQuestionHistory(url, user, password, index string) (*QuestionHistory, error) {
	cfg := elasticsearch.Config{
		Addresses:  []string{url},
		MaxRetries: 2,
	}
	if user != "" {
		cfg.Username = user
		cfg.Password = password
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch.NewClient: %w", err)
	}
	return &QuestionHistory{client: client, index: index}, nil
}

// Index returns the name of the history index.
func (h *QuestionHistory) Index() string { return h.index }

// Ping checks the cluster is reachable.
func (h *QuestionHistory) Ping(ctx context.Context) error {
	res, err := h.client.Ping(h.client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping error: %s", res.Status())
	}
	return nil
}

// Record stores one entry.
func (h *QuestionHistory) Record(ctx context.Context, e HistoryEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	res, err := h.client.Index(
		h.index,
		bytes.NewReader(body),
		h.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index history entry: %w", err)
	}
	defer res.Body.Close()

	_, err = decodeBody(res.Body, res.Status())
	return err
}

// Count returns the number of entries, optionally restricted to one query type.
func (h *QuestionHistory) Count(ctx context.Context, queryType string) (int64, error) {
	opts := []func(*esapi.CountRequest){
		h.client.Count.WithContext(ctx),
		h.client.Count.WithIndex(h.index),
	}
	if queryType != "" {
		body, err := json.Marshal(map[string]any{
			"query": map[string]any{"term": map[string]any{"query_type": queryType}},
		})
		if err != nil {
			return 0, err
		}
		opts = append(opts, h.client.Count.WithBody(bytes.NewReader(body)))
	}

	res, err := h.client.Count(opts...)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	raw, err := decodeBody(res.Body, res.Status())
	if err != nil {
		return 0, err
	}
	if count, ok := raw["count"].(float64); ok {
		return int64(count), nil
	}
	return 0, nil
}

func decodeBody(r io.Reader, status string) (map[string]interface{}, error) {
	var result map[string]interface{}
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if strings.HasPrefix(status, "4") || strings.HasPrefix(status, "5") {
		if errObj, ok := result["error"]; ok {
			return nil, fmt.Errorf("elasticsearch error [%s]: %v", status, errObj)
		}
		return nil, fmt.Errorf("elasticsearch error: %s", status)
	}
	return result, nil
}
