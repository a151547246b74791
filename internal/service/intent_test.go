package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/asktennis/asktennis/internal/llm"
	"github.com/asktennis/asktennis/internal/models"
	"github.com/asktennis/asktennis/internal/service"
)

type scriptedLLM struct {
	reply string
	err   error
	calls atomic.Int32
}

func (s *scriptedLLM) Complete(context.Context, string, string, llm.Options) (string, error) {
	s.calls.Add(1)
	return s.reply, s.err
}

func newClassifier(t *testing.T, c llm.Completer, def models.DataSource) *service.IntentClassifier {
	t.Helper()
	ic, err := service.NewIntentClassifier(c, def, nil)
	if err != nil {
		t.Fatalf("NewIntentClassifier: %v", err)
	}
	t.Cleanup(ic.Close)
	return ic
}

func mustQuestion(t *testing.T, text string) models.Question {
	t.Helper()
	q, err := models.NewQuestion(text, "")
	if err != nil {
		t.Fatalf("NewQuestion(%q): %v", text, err)
	}
	return q
}

func TestRulesDecisionTable(t *testing.T) {
	ic := newClassifier(t, nil, models.SourceHistorical)

	tests := []struct {
		question string
		want     models.QueryType
		sources  []models.DataSource
	}{
		{"Who is ranked number 1?", models.QueryTypeLive, []models.DataSource{models.SourceLive}},
		{"Top 10 players right now", models.QueryTypeLive, []models.DataSource{models.SourceLive}},
		{"Head to head between Djokovic and Nadal", models.QueryTypeHistorical, []models.DataSource{models.SourceHistorical}},
		{"Who won Wimbledon 2023?", models.QueryTypeHistorical, []models.DataSource{models.SourceHistorical}},
		{"How many titles has Federer won in his career", models.QueryTypeHistorical, []models.DataSource{models.SourceHistorical}},
		{"Tell me about Carlos Alcaraz", models.QueryTypeCombined, []models.DataSource{models.SourceLive, models.SourceHistorical}},
		{"Current ranking compared with career high for Murray", models.QueryTypeCombined, []models.DataSource{models.SourceLive, models.SourceHistorical}},
		{"Is tennis fun?", models.QueryTypeGeneral, []models.DataSource{models.SourceHistorical}},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			a := ic.Rules(tt.question)
			if a.Type != tt.want {
				t.Errorf("Type = %q, want %q (%s)", a.Type, tt.want, a.Intent)
			}
			if len(a.DataSources) != len(tt.sources) {
				t.Fatalf("DataSources = %v, want %v", a.DataSources, tt.sources)
			}
			for i := range tt.sources {
				if a.DataSources[i] != tt.sources[i] {
					t.Errorf("DataSources = %v, want %v", a.DataSources, tt.sources)
				}
			}
			if a.Confidence != service.RuleConfidence {
				t.Errorf("Confidence = %v, want %v", a.Confidence, service.RuleConfidence)
			}
		})
	}
}

func TestRulesDefaultSourceIsConfigurable(t *testing.T) {
	ic := newClassifier(t, nil, models.SourceLive)
	a := ic.Rules("Is tennis fun?")
	if a.Type != models.QueryTypeGeneral {
		t.Fatalf("Type = %q, want general", a.Type)
	}
	if a.PrimarySource() != models.SourceLive {
		t.Errorf("PrimarySource = %q, want live", a.PrimarySource())
	}
}

func TestClassifyAlwaysPopulated(t *testing.T) {
	failing := &scriptedLLM{err: errors.New("rate limited")}
	garbage := &scriptedLLM{reply: "Sorry, I can't help with that."}

	questions := []string{
		"x",
		"?",
		"🎾🎾🎾",
		"SELECT * FROM players; DROP TABLE rankings",
		"number number number 99999999999999999999",
		"head to head between and",
		"who won  in ?",
		"' OR 1=1 --",
	}
	for _, c := range []llm.Completer{nil, failing, garbage} {
		ic := newClassifier(t, c, models.SourceHistorical)
		for _, text := range questions {
			a := ic.Classify(context.Background(), mustQuestion(t, text))
			switch a.Type {
			case models.QueryTypeLive, models.QueryTypeHistorical, models.QueryTypeCombined, models.QueryTypeGeneral:
			default:
				t.Errorf("%q: unexpected type %q", text, a.Type)
			}
			if len(a.DataSources) == 0 {
				t.Errorf("%q: no data sources", text)
			}
			if a.Entities.Players == nil || a.Entities.Tournaments == nil || a.Entities.Metrics == nil {
				t.Errorf("%q: nil entity list in %+v", text, a.Entities)
			}
			if a.Confidence < 0 || a.Confidence > 1 {
				t.Errorf("%q: confidence %v out of range", text, a.Confidence)
			}
			if a.Intent == "" {
				t.Errorf("%q: empty intent", text)
			}
		}
	}
}

func TestClassifyMergesExtraction(t *testing.T) {
	stub := &scriptedLLM{reply: "```json\n" +
		`{"players": ["Novak Djokovic", "Rafael Nadal"], "tournaments": [], "metrics": ["wins"],` +
		` "timeframe": null, "surface": "clay", "confidence": 0.85, "intent": "head-to-head record"}` +
		"\n```"}
	ic := newClassifier(t, stub, models.SourceHistorical)

	a := ic.Classify(context.Background(), mustQuestion(t, "Head to head between Djokovic and Nadal"))

	if a.Type != models.QueryTypeHistorical {
		t.Errorf("rule-based type must win, got %q", a.Type)
	}
	if len(a.Entities.Players) != 2 || a.Entities.Players[1] != "Rafael Nadal" {
		t.Errorf("Players = %v", a.Entities.Players)
	}
	if a.Entities.Surface == nil || *a.Entities.Surface != "clay" {
		t.Errorf("Surface = %v", a.Entities.Surface)
	}
	if a.Entities.Timeframe != nil {
		t.Errorf("Timeframe = %v, want nil", *a.Entities.Timeframe)
	}
	if a.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", a.Confidence)
	}
	if a.Intent != "head-to-head record" {
		t.Errorf("Intent = %q", a.Intent)
	}
}

func TestClassifyRepairsMalformedJSON(t *testing.T) {
	stub := &scriptedLLM{reply: `{'players': ['Rafael Nadal'], 'confidence': 0.8,}`}
	ic := newClassifier(t, stub, models.SourceHistorical)

	a := ic.Classify(context.Background(), mustQuestion(t, "How many titles has Nadal won?"))
	if len(a.Entities.Players) != 1 || a.Entities.Players[0] != "Rafael Nadal" {
		t.Errorf("Players = %v, want [Rafael Nadal]", a.Entities.Players)
	}
}

func TestClassifyClampsConfidence(t *testing.T) {
	stub := &scriptedLLM{reply: `{"players": [], "confidence": 7}`}
	ic := newClassifier(t, stub, models.SourceHistorical)

	a := ic.Classify(context.Background(), mustQuestion(t, "Who is ranked number 1?"))
	if a.Confidence != 1 {
		t.Errorf("Confidence = %v, want 1", a.Confidence)
	}
}

func TestClassifyFallsBackOnLLMError(t *testing.T) {
	stub := &scriptedLLM{err: llm.ErrEmptyCompletion}
	ic := newClassifier(t, stub, models.SourceHistorical)

	a := ic.Classify(context.Background(), mustQuestion(t, "Who is ranked number 1?"))
	if a.Confidence != service.RuleConfidence {
		t.Errorf("Confidence = %v, want rule default", a.Confidence)
	}
	if len(a.Entities.Players) != 0 {
		t.Errorf("Players = %v, want empty", a.Entities.Players)
	}
	if a.Type != models.QueryTypeLive {
		t.Errorf("Type = %q, want live_data", a.Type)
	}
}

func TestClassifyMemoizesExtraction(t *testing.T) {
	stub := &scriptedLLM{reply: `{"players": ["Jannik Sinner"], "confidence": 0.7}`}
	ic := newClassifier(t, stub, models.SourceHistorical)

	ctx := context.Background()
	ic.Classify(ctx, mustQuestion(t, "Where is Sinner ranked?"))
	a := ic.Classify(ctx, mustQuestion(t, "where is sinner   ranked"))

	if got := stub.calls.Load(); got != 1 {
		t.Errorf("LLM called %d times, want 1", got)
	}
	if len(a.Entities.Players) != 1 {
		t.Errorf("memoized Players = %v", a.Entities.Players)
	}
}
