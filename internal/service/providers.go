package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/asktennis/asktennis/internal/models"
)

// ErrUnknownResource is returned for a resource a provider does not serve.
var ErrUnknownResource = errors.New("unknown resource")

// ErrBadParameter means a required parameter is missing or malformed.
var ErrBadParameter = errors.New("bad parameter")

const (
	defaultProviderRows = 100
	maxProviderRows     = 1000
)

// DataProvider fetches raw rows from an upstream source. These rows are
// what populates the relational store.
type DataProvider interface {
	Source() models.DataSource
	Resources() []string
	Fetch(ctx context.Context, resource string, params map[string]string) ([]map[string]any, error)
	Ping(ctx context.Context) error
}

// ─── Live (JSON API) ─────────────────────────────────────────────────────────

var liveResources = map[string]string{
	"rankings":      "rankings.json",
	"race_rankings": "race_rankings.json",
	"competitions":  "competitions.json",
	"player":        "competitors/%s/profile.json",
}

// LiveProvider reads the live rankings JSON API.
type LiveProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewLiveProvider(baseURL, apiKey string, timeout time.Duration) *LiveProvider {
	return &LiveProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *LiveProvider) Source() models.DataSource { return models.SourceLive }

func (p *LiveProvider) Resources() []string { return slices.Sorted(maps.Keys(liveResources)) }

func (p *LiveProvider) Fetch(ctx context.Context, resource string, params map[string]string) ([]map[string]any, error) {
	path, ok := liveResources[resource]
	if !ok {
		return nil, fmt.Errorf("%w: live/%s", ErrUnknownResource, resource)
	}
	if strings.Contains(path, "%s") {
		id := params["id"]
		if id == "" {
			return nil, fmt.Errorf("%w: live/%s requires an id", ErrBadParameter, resource)
		}
		path = fmt.Sprintf(path, url.PathEscape(id))
	}

	u := p.baseURL + "/" + path
	if p.apiKey != "" {
		u += "?api_key=" + url.QueryEscape(p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("live provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("live provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode live response: %w", err)
	}
	return limitRows(jsonRows(doc), params), nil
}

func (p *LiveProvider) Ping(ctx context.Context) error {
	return checkReachable(ctx, p.client, p.baseURL+"/"+liveResources["competitions"])
}

// jsonRows returns the first list of objects in doc, searching depth first.
// A bare object becomes a single row.
func jsonRows(doc any) []map[string]any {
	switch x := doc.(type) {
	case []any:
		rows := make([]map[string]any, 0, len(x))
		for _, item := range x {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, m)
			}
		}
		return rows
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(x)) {
			if list, ok := x[k].([]any); ok && len(list) > 0 {
				if _, isObj := list[0].(map[string]any); isObj {
					return jsonRows(list)
				}
			}
		}
		return []map[string]any{x}
	}
	return []map[string]any{}
}

// ─── Historical (CSV corpus) ─────────────────────────────────────────────────

var historicalResources = map[string]string{
	"rankings": "%s_rankings_current.csv",
	"players":  "%s_players.csv",
	"matches":  "%s_matches_%s.csv",
}

// HistoricalProvider reads the CSV corpus hosted on GitHub. The ATP and
// WTA corpora live in sibling repositories.
type HistoricalProvider struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewHistoricalProvider(baseURL string, timeout time.Duration) *HistoricalProvider {
	return &HistoricalProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

func (p *HistoricalProvider) Source() models.DataSource { return models.SourceHistorical }

func (p *HistoricalProvider) Resources() []string { return slices.Sorted(maps.Keys(historicalResources)) }

func (p *HistoricalProvider) Fetch(ctx context.Context, resource string, params map[string]string) ([]map[string]any, error) {
	pattern, ok := historicalResources[resource]
	if !ok {
		return nil, fmt.Errorf("%w: historical/%s", ErrUnknownResource, resource)
	}

	tour := strings.ToLower(params["tour"])
	if tour != "wta" {
		tour = "atp"
	}
	file := fmt.Sprintf(pattern, tour)
	if resource == "matches" {
		year := params["year"]
		if year == "" {
			year = strconv.Itoa(p.now().Year() - 1)
		}
		if _, err := strconv.Atoi(year); err != nil {
			return nil, fmt.Errorf("%w: invalid year %q", ErrBadParameter, year)
		}
		file = fmt.Sprintf(pattern, tour, year)
	}

	base := p.baseURL
	if tour == "wta" {
		base = strings.Replace(base, "tennis_atp", "tennis_wta", 1)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+file, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("historical provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("historical provider returned %d for %s", resp.StatusCode, file)
	}
	return readCSV(resp.Body, rowLimit(params))
}

func (p *HistoricalProvider) Ping(ctx context.Context) error {
	return checkReachable(ctx, p.client, p.baseURL+"/"+fmt.Sprintf(historicalResources["players"], "atp"))
}

// readCSV maps each record onto the header row, stopping after limit rows.
func readCSV(r io.Reader, limit int) ([]map[string]any, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return []map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	header = append([]string(nil), header...)

	rows := make([]map[string]any, 0, limit)
	for len(rows) < limit {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// checkReachable treats any response below 500 as reachable; auth failures still
// prove the upstream is up.
func checkReachable(ctx context.Context, client *http.Client, u string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	return nil
}

func rowLimit(params map[string]string) int {
	n, err := strconv.Atoi(params["limit"])
	if err != nil || n <= 0 {
		return defaultProviderRows
	}
	if n > maxProviderRows {
		return maxProviderRows
	}
	return n
}

func limitRows(rows []map[string]any, params map[string]string) []map[string]any {
	if n := rowLimit(params); len(rows) > n {
		return rows[:n]
	}
	return rows
}
