package agent_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/asktennis/asktennis/internal/agent"
	"github.com/asktennis/asktennis/internal/llm"
	"github.com/asktennis/asktennis/internal/models"
	"github.com/asktennis/asktennis/internal/security"
)

// routedLLM answers by looking at the system prompt, so one double can
// serve the classifier, the builder and the composer.
type routedLLM struct {
	extract string
	sql     string
	summary string
	err     error
	calls   atomic.Int32
}

func (r *routedLLM) Complete(_ context.Context, system, _ string, _ llm.Options) (string, error) {
	r.calls.Add(1)
	if r.err != nil {
		return "", r.err
	}
	switch {
	case strings.Contains(system, "SELECT statement"):
		return r.sql, nil
	case strings.Contains(system, "conversational"):
		return r.summary, nil
	default:
		return r.extract, nil
	}
}

func question(t *testing.T, text string) models.Question {
	t.Helper()
	q, err := models.NewQuestion(text, "")
	if err != nil {
		t.Fatalf("NewQuestion(%q): %v", text, err)
	}
	return q
}

func intentFor(sources ...models.DataSource) models.IntentAnalysis {
	return models.IntentAnalysis{
		Type:        models.QueryTypeGeneral,
		DataSources: sources,
		Entities:    models.EmptyEntities(),
		Confidence:  0.5,
	}
}

func TestTemplatesPassValidator(t *testing.T) {
	b := agent.NewQueryBuilder(nil, nil)
	v := security.NewSQLValidator()

	questions := []string{
		"Who is ranked number 1?",
		"Who is the women's number one?",
		"Who is ranked #7?",
		"What is Sinner's ranking?",
		"What was Djokovic ranked in 2015?",
		"Top 10 players",
		"Show me the top five WTA players",
		"Head to head between Djokovic and Nadal",
		"Federer vs Nadal record",
		"How many titles has Alcaraz won?",
		"How many Grand Slams has Serena won?",
		"How many Wimbledon titles did Federer win in 2017?",
		"Who won the US Open?",
		"Who won the French Open 2010?",
		"Tell me about Iga Swiatek",
		"Coco Gauff",
	}
	sources := []models.DataSource{models.SourceLive, models.SourceHistorical}

	matched := 0
	for _, text := range questions {
		for _, src := range sources {
			spec, ok := b.Template(question(t, text), intentFor(src), src)
			if !ok {
				continue
			}
			matched++
			out := v.Validate(spec.Statement)
			if !out.OK {
				t.Errorf("%q (%s, %s): template rejected: %s\n%s", text, src, spec.Shape, out.Reason, spec.Statement)
				continue
			}
			if out.Cleaned != spec.Statement {
				t.Errorf("%q (%s): validator changed template\n got %q\nwant %q", text, src, out.Cleaned, spec.Statement)
			}
			if spec.Source != src {
				t.Errorf("%q: spec source = %s, want %s", text, spec.Source, src)
			}
			if n := strings.Count(spec.Statement, "$"); n < len(spec.Params) {
				t.Errorf("%q: %d params for %d placeholders", text, len(spec.Params), n)
			}
		}
	}
	if matched < len(questions) {
		t.Errorf("only %d template matches for %d questions", matched, len(questions))
	}
}

func TestTemplateShapes(t *testing.T) {
	b := agent.NewQueryBuilder(nil, nil)

	tests := []struct {
		question string
		source   models.DataSource
		shape    string
		params   []any
		contains string
	}{
		{"Who is ranked number 1?", models.SourceLive, agent.ShapeNumberOne, []any{1, "ATP"}, "r.ranking = $1"},
		{"Who is the WTA number one?", models.SourceLive, agent.ShapeNumberOne, []any{1, "WTA"}, "FROM rankings r"},
		{"Who was number 1 in 2008?", models.SourceHistorical, agent.ShapeNumberOne, []any{1, "ATP", 2008}, "FROM historical_rankings r"},
		{"Who is ranked #12?", models.SourceLive, agent.ShapeRankingByNumber, []any{12, "ATP"}, "r.ranking = $1"},
		{"Who was ranked 5th?", models.SourceLive, agent.ShapeRankingByNumber, []any{5, "ATP"}, "r.ranking = $1"},
		{"Who was ranked 23rd in 2019?", models.SourceHistorical, agent.ShapeRankingByNumber, []any{23, "ATP", 2019}, "FROM historical_rankings r"},
		{"Top 5 players", models.SourceLive, agent.ShapeTopN, []any{"ATP", 5}, "r.ranking <= $2"},
		{"top three women", models.SourceLive, agent.ShapeTopN, []any{"WTA", 3}, "MAX(ranking_date)"},
		{"Head to head between Djokovic and Nadal", models.SourceHistorical, agent.ShapeHeadToHead, []any{"Novak Djokovic", "Rafael Nadal"}, "loser_name = $2"},
		{"Who won Wimbledon?", models.SourceHistorical, agent.ShapeTournamentWinner, []any{"%wimbledon%", "ATP"}, "round = 'F'"},
		{"Who won the French Open in 2012?", models.SourceHistorical, agent.ShapeTournamentWinner, []any{"%roland garros%", "ATP", 2012}, "EXTRACT(YEAR FROM tourney_date) = $3"},
		{"How many titles has Sinner won?", models.SourceHistorical, agent.ShapePlayerTitles, []any{"Jannik Sinner"}, "COUNT(*) AS titles"},
		{"What is Alcaraz's ranking?", models.SourceLive, agent.ShapePlayerRanking, []any{"Carlos Alcaraz"}, "p.name = $1"},
		{"Tell me about Rybakina", models.SourceLive, agent.ShapePlayerProfile, []any{"Elena Rybakina"}, "LEFT JOIN rankings"},
		{"Tell me about Rybakina", models.SourceHistorical, agent.ShapePlayerTitles, []any{"Elena Rybakina"}, "historical_matches"},
	}
	for _, tt := range tests {
		t.Run(tt.question+"/"+string(tt.source), func(t *testing.T) {
			spec, ok := b.Template(question(t, tt.question), intentFor(tt.source), tt.source)
			if !ok {
				t.Fatal("no template matched")
			}
			if spec.Shape != tt.shape {
				t.Errorf("shape = %s, want %s", spec.Shape, tt.shape)
			}
			if len(spec.Params) != len(tt.params) {
				t.Fatalf("params = %v, want %v", spec.Params, tt.params)
			}
			for i := range tt.params {
				if spec.Params[i] != tt.params[i] {
					t.Errorf("param %d = %v, want %v", i, spec.Params[i], tt.params[i])
				}
			}
			if !strings.Contains(spec.Statement, tt.contains) {
				t.Errorf("statement missing %q:\n%s", tt.contains, spec.Statement)
			}
		})
	}
}

func TestTemplatesNeverInterpolate(t *testing.T) {
	b := agent.NewQueryBuilder(nil, nil)
	for _, text := range []string{
		"Head to head between Djokovic and Nadal",
		"How many titles has Alcaraz won at Wimbledon?",
		"Tell me about Swiatek",
	} {
		spec, ok := b.Template(question(t, text), intentFor(models.SourceHistorical), models.SourceHistorical)
		if !ok {
			t.Fatalf("%q: no template", text)
		}
		for _, p := range spec.Params {
			if s, ok := p.(string); ok && strings.Contains(spec.Statement, s) {
				t.Errorf("%q: param %q appears in statement", text, s)
			}
		}
	}
}

func TestTemplateAdversarialInput(t *testing.T) {
	b := agent.NewQueryBuilder(nil, nil)
	v := security.NewSQLValidator()

	inputs := []string{
		"'; DROP TABLE players; --",
		"Who is ranked number 99999999999999999999?",
		"top 0 players",
		"top 100000 players",
		"Djokovic' OR 1=1 vs Nadal",
		"who won 🎾 in 2023 at wimbledon wimbledon wimbledon",
		strings.Repeat("number one ", 200),
		"#",
		"rank",
	}
	for _, text := range inputs {
		for _, src := range []models.DataSource{models.SourceLive, models.SourceHistorical} {
			spec, ok := b.Template(models.Question{Text: text}, intentFor(src), src)
			if !ok {
				continue
			}
			if out := v.Validate(spec.Statement); !out.OK {
				t.Errorf("%q: template rejected: %s", text, out.Reason)
			}
		}
	}
}

func TestKnownChampions(t *testing.T) {
	b := agent.NewQueryBuilder(nil, nil)

	tests := []struct {
		question string
		want     string
		ok       bool
	}{
		{"Who won Wimbledon 2023?", "Carlos Alcaraz won the 2023 Wimbledon men's singles title.", true},
		{"who won the women's US Open in 2024", "Aryna Sabalenka won the 2024 US Open women's singles title.", true},
		{"Who won Roland Garros 2021?", "Novak Djokovic won the 2021 French Open men's singles title.", true},
		{"Who won Wimbledon 2020?", "Wimbledon was not held in 2020.", true},
		{"Who won Wimbledon 1975?", "", false},
		{"Who won Wimbledon?", "", false},
		{"How many times has Djokovic won Wimbledon 2023?", "", false},
		{"Did Djokovic beat Alcaraz at Wimbledon 2023?", "", false},
	}
	for _, tt := range tests {
		got, ok := b.Known(question(t, tt.question), intentFor(models.SourceHistorical))
		if ok != tt.ok || got != tt.want {
			t.Errorf("Known(%q) = %q, %v; want %q, %v", tt.question, got, ok, tt.want, tt.ok)
		}
	}
}

func TestBuildFallsBackToModel(t *testing.T) {
	model := &routedLLM{sql: "Here you go:\n```sql\nSELECT name FROM players WHERE hand = 'L'\n```"}
	b := agent.NewQueryBuilder(model, nil)
	q := question(t, "Which left-handed players have reached a final on grass?")

	spec, err := b.Build(context.Background(), intentFor(models.SourceHistorical), q, models.SourceHistorical, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if spec.Shape != models.ShapeGenerated {
		t.Errorf("shape = %s, want %s", spec.Shape, models.ShapeGenerated)
	}
	if spec.Statement != "SELECT name FROM players WHERE hand = 'L'" {
		t.Errorf("statement = %q", spec.Statement)
	}
	if model.calls.Load() != 1 {
		t.Errorf("model calls = %d, want 1", model.calls.Load())
	}

	_, err = b.Build(context.Background(), intentFor(models.SourceHistorical), q, models.SourceHistorical, true)
	var bf *agent.BuildFailure
	if !errors.As(err, &bf) {
		t.Fatalf("template-only build error = %v, want *BuildFailure", err)
	}
	if model.calls.Load() != 1 {
		t.Error("template-only build called the model")
	}
}

func TestBuildKeepsWholeModelReply(t *testing.T) {
	q := question(t, "Which left-handed players have reached a final on grass?")
	intent := intentFor(models.SourceHistorical)
	v := security.NewSQLValidator()

	tests := []struct {
		name  string
		reply string
		want  string
		ok    bool
	}{
		{"plain", "SELECT name FROM players WHERE hand = 'L'", "SELECT name FROM players WHERE hand = 'L'", true},
		{"leading prose", "Sure. SELECT name FROM players WHERE hand = 'L';", "SELECT name FROM players WHERE hand = 'L';", true},
		{"stacked drop", "SELECT name FROM players; DROP TABLE players;", "SELECT name FROM players; DROP TABLE players;", false},
		{"stacked delete", "Here it is:\nSELECT name FROM players;\nDELETE FROM rankings", "SELECT name FROM players;\nDELETE FROM rankings", false},
		{"fenced stacked drop", "```sql\nSELECT name FROM players; DROP TABLE players;\n```", "SELECT name FROM players; DROP TABLE players;", false},
		{"generic fence", "```postgres\nSELECT name FROM players; DELETE FROM players\n```", "SELECT name FROM players; DELETE FROM players", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := agent.NewQueryBuilder(&routedLLM{sql: tt.reply}, nil)
			spec, err := b.Build(context.Background(), intent, q, models.SourceHistorical, false)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if spec.Statement != tt.want {
				t.Errorf("statement = %q, want %q", spec.Statement, tt.want)
			}
			if out := v.Validate(spec.Statement); out.OK != tt.ok {
				t.Errorf("Validate(%q).OK = %v, want %v (%s)", spec.Statement, out.OK, tt.ok, out.Reason)
			}
		})
	}
}

func TestBuildFailures(t *testing.T) {
	q := question(t, "Which left-handed players have reached a final on grass?")
	intent := intentFor(models.SourceHistorical)

	tests := []struct {
		name      string
		completer llm.Completer
		cause     bool
	}{
		{"no model", nil, false},
		{"model error", &routedLLM{err: errors.New("overloaded")}, true},
		{"no statement", &routedLLM{sql: "I can't help with that."}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := agent.NewQueryBuilder(tt.completer, nil)
			_, err := b.Build(context.Background(), intent, q, models.SourceHistorical, false)
			var bf *agent.BuildFailure
			if !errors.As(err, &bf) {
				t.Fatalf("err = %v, want *BuildFailure", err)
			}
			if (bf.Cause != nil) != tt.cause {
				t.Errorf("cause = %v", bf.Cause)
			}
		})
	}
}
