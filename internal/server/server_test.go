package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/asktennis/asktennis/internal/config"
	"github.com/asktennis/asktennis/internal/models"
)

type memStore struct {
	closed bool
}

func (m *memStore) Query(_ context.Context, _ string, _ []any) (*models.ResultSet, error) {
	rs := models.NewResultSet(models.SourceLive)
	rs.Columns = []string{"name", "ranking", "points"}
	rs.Rows = []models.Row{{
		"name":    models.StringValue("Jannik Sinner"),
		"ranking": models.NumberValue(1),
		"points":  models.NumberValue(11830),
	}}
	return rs, nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Host:               "127.0.0.1",
		Port:               8000,
		Environment:        "test",
		APIPrefix:          "/api",
		APIKeyHeader:       "X-API-Key",
		StoreDriver:        "postgres",
		DefaultDataSource:  "historical",
		CacheCapacity:      10,
		CacheTTLSeconds:    60,
		BreakerMaxFailures: 3,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (http.Handler, *memStore) {
	t.Helper()
	store := &memStore{}
	s := &Server{cfg: cfg, store: store}
	h, err := s.setupRoutes()
	if err != nil {
		t.Fatalf("setupRoutes: %v", err)
	}
	t.Cleanup(s.close)
	return h, store
}

func TestRoutesAnswerQuestion(t *testing.T) {
	h, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question": "Who is ranked number 1?"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	var body struct {
		Answer   string                `json:"answer"`
		Metadata models.AnswerMetadata `json:"metadata"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body.Answer, "Jannik Sinner") {
		t.Errorf("answer = %q", body.Answer)
	}
	// No language model is configured, so the answer is tagged as database-only.
	if body.Metadata.QueryType != models.AnswerTypeDatabaseOnly || body.Metadata.Confidence > 0.6 {
		t.Errorf("metadata = %+v", body.Metadata)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestRoutesHealthAndStatus(t *testing.T) {
	h, _ := newTestServer(t, testConfig())

	for _, path := range []string{"/api/health", "/api/status", "/api/data/live"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("GET %s = %d: %s", path, rr.Code, rr.Body)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var status models.StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.LLMProvider != "none" || status.StoreDriver != "postgres" {
		t.Errorf("status = %+v", status)
	}
	if status.Breakers["store"] != "closed" || status.Breakers["llm"] != "closed" {
		t.Errorf("breakers = %v", status.Breakers)
	}
}

func TestRoutesAuth(t *testing.T) {
	cfg := testConfig()
	cfg.EnableAuth = true
	cfg.APIKeys = []string{"secret"}
	h, _ := newTestServer(t, cfg)

	tests := []struct {
		path string
		key  string
		want int
	}{
		{"/api/health", "", http.StatusOK},
		{"/api/status", "", http.StatusUnauthorized},
		{"/api/status", "wrong", http.StatusForbidden},
		{"/api/status", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.key != "" {
			req.Header.Set("X-API-Key", tt.key)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tt.want {
			t.Errorf("GET %s key=%q = %d, want %d", tt.path, tt.key, rr.Code, tt.want)
		}
	}
}

func TestCloseReleasesStore(t *testing.T) {
	store := &memStore{}
	s := &Server{cfg: testConfig(), store: store}
	if _, err := s.setupRoutes(); err != nil {
		t.Fatal(err)
	}
	s.close()
	if !store.closed {
		t.Error("store not closed")
	}
}
