package models

// QueryType is the classified kind of a question.
type QueryType string

const (
	QueryTypeLive       QueryType = "live_data"
	QueryTypeHistorical QueryType = "historical_data"
	QueryTypeCombined   QueryType = "combined_data"
	QueryTypeGeneral    QueryType = "general"
)

// DataSource tags which provider populated (or should populate) a set of rows.
type DataSource string

const (
	SourceLive       DataSource = "live"
	SourceHistorical DataSource = "historical"
)

// Provider tags as they appear on result sets and answers.
const (
	ProviderLive       = "sportsradar"
	ProviderHistorical = "github"
)

// Provider returns the upstream provider tag for the source.
func (s DataSource) Provider() string {
	if s == SourceLive {
		return ProviderLive
	}
	return ProviderHistorical
}

// ParseDataSource maps a config or URL value onto a DataSource.
func ParseDataSource(s string) (DataSource, bool) {
	switch DataSource(s) {
	case SourceLive:
		return SourceLive, true
	case SourceHistorical:
		return SourceHistorical, true
	}
	return "", false
}

// Entities are the named things pulled out of a question.
type Entities struct {
	Players     []string `json:"players"`
	Tournaments []string `json:"tournaments"`
	Metrics     []string `json:"metrics"`
	Timeframe   *string  `json:"timeframe"`
	Surface     *string  `json:"surface"`
}

// EmptyEntities returns Entities with non-nil empty lists.
func EmptyEntities() Entities {
	return Entities{
		Players:     []string{},
		Tournaments: []string{},
		Metrics:     []string{},
	}
}

// IntentAnalysis is produced once per question and not modified afterwards.
type IntentAnalysis struct {
	Type        QueryType    `json:"type"`
	DataSources []DataSource `json:"dataSources"`
	Entities    Entities     `json:"entities"`
	Confidence  float64      `json:"confidence"`
	Intent      string       `json:"intent"`
}

// PrimarySource is the first data source, historical when none is set.
func (a IntentAnalysis) PrimarySource() DataSource {
	if len(a.DataSources) == 0 {
		return SourceHistorical
	}
	return a.DataSources[0]
}

// SourceTag joins the provider tags of every data source, e.g. "sportsradar+github".
func (a IntentAnalysis) SourceTag() string {
	tag := ""
	for i, s := range a.DataSources {
		if i > 0 {
			tag += "+"
		}
		tag += s.Provider()
	}
	if tag == "" {
		return ProviderHistorical
	}
	return tag
}
