package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/asktennis/asktennis/internal/agent"
	"github.com/asktennis/asktennis/internal/models"
)

func rows(source models.DataSource, rs ...models.Row) *models.ResultSet {
	out := models.NewResultSet(source)
	for _, r := range rs {
		for col := range r {
			if !contains(out.Columns, col) {
				out.Columns = append(out.Columns, col)
			}
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func str(s string) models.Value  { return models.StringValue(s) }
func num(f float64) models.Value { return models.NumberValue(f) }

func date(y, m, d int) models.Value {
	return models.DateValue(time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC))
}

func TestComposeTemplates(t *testing.T) {
	c := agent.NewAnswerComposer(nil, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		question string
		source   models.DataSource
		rs       *models.ResultSet
		want     []string
	}{
		{
			name:     "number one",
			question: "Who is ranked number 1?",
			source:   models.SourceLive,
			rs: rows(models.SourceLive, models.Row{
				"name": str("Jannik Sinner"), "ranking": num(1), "points": num(11830), "ranking_date": date(2025, 1, 6),
			}),
			want: []string{"Jannik Sinner is ranked #1 with 11,830 points (as of 2025-01-06)."},
		},
		{
			name:     "number one empty",
			question: "Who is ranked number 1?",
			source:   models.SourceLive,
			rs:       rows(models.SourceLive),
			want:     []string{"I couldn't find a player ranked #1 in the ATP rankings."},
		},
		{
			name:     "historical ranking",
			question: "Who was number 1 in 2008?",
			source:   models.SourceHistorical,
			rs:       rows(models.SourceHistorical, models.Row{"name": str("Roger Federer"), "ranking": num(1)}),
			want:     []string{"In 2008, Roger Federer was ranked #1."},
		},
		{
			name:     "top n",
			question: "Top 3 players",
			source:   models.SourceLive,
			rs: rows(models.SourceLive,
				models.Row{"ranking": num(1), "name": str("Jannik Sinner"), "points": num(11830)},
				models.Row{"ranking": num(2), "name": str("Alexander Zverev"), "points": num(7915)},
				models.Row{"ranking": num(3), "name": str("Carlos Alcaraz"), "points": num(7010)},
			),
			want: []string{"The top 3 ATP players are: 1. Jannik Sinner (11,830 points), 2. Alexander Zverev (7,915 points), 3. Carlos Alcaraz (7,010 points)."},
		},
		{
			name:     "head to head empty",
			question: "Head to head between Djokovic and Nadal",
			source:   models.SourceHistorical,
			rs:       rows(models.SourceHistorical),
			want:     []string{"No head-to-head record found between Novak Djokovic and Rafael Nadal."},
		},
		{
			name:     "head to head",
			question: "Djokovic vs Nadal",
			source:   models.SourceHistorical,
			rs: rows(models.SourceHistorical,
				models.Row{"tourney_name": str("Roland Garros"), "tourney_date": date(2022, 5, 22), "winner_name": str("Rafael Nadal"), "loser_name": str("Novak Djokovic"), "score": str("6-2 4-6 6-2 7-6(4)")},
				models.Row{"tourney_name": str("Roland Garros"), "tourney_date": date(2021, 5, 30), "winner_name": str("Novak Djokovic"), "loser_name": str("Rafael Nadal"), "score": str("3-6 6-3 7-6(4) 6-2")},
				models.Row{"tourney_name": str("Rome Masters"), "tourney_date": date(2021, 5, 9), "winner_name": str("Rafael Nadal"), "loser_name": str("Novak Djokovic"), "score": str("7-5 1-6 6-3")},
			),
			want: []string{
				"Rafael Nadal leads Novak Djokovic 2-1 in their head-to-head.",
				"Their most recent meeting was at Roland Garros (2022-05-22), won by Rafael Nadal 6-2 4-6 6-2 7-6(4).",
			},
		},
		{
			name:     "tournament winner missing",
			question: "Who won the Madrid Open in 2016?",
			source:   models.SourceHistorical,
			rs:       rows(models.SourceHistorical),
			want:     []string{"I don't have a verified result for Madrid Open 2016 yet", "incomplete"},
		},
		{
			name:     "tournament winner",
			question: "Who won the Madrid Open in 2016?",
			source:   models.SourceHistorical,
			rs: rows(models.SourceHistorical, models.Row{
				"tourney_name": str("Madrid Masters"), "tourney_date": date(2016, 5, 1), "winner_name": str("Novak Djokovic"), "loser_name": str("Andy Murray"), "score": str("6-2 3-6 6-3"),
			}),
			want: []string{"Novak Djokovic won Madrid Open 2016, defeating Andy Murray 6-2 3-6 6-3 in the final."},
		},
		{
			name:     "titles",
			question: "How many Grand Slams has Serena won?",
			source:   models.SourceHistorical,
			rs:       rows(models.SourceHistorical, models.Row{"winner_name": str("Serena Williams"), "titles": num(23)}),
			want:     []string{"Serena Williams has won 23 Grand Slam titles."},
		},
		{
			name:     "profile",
			question: "Tell me about Alcaraz",
			source:   models.SourceLive,
			rs: rows(models.SourceLive, models.Row{
				"name": str("Carlos Alcaraz"), "country": str("ESP"), "hand": str("R"), "height": num(183),
				"birth_date": date(2003, 5, 5), "ranking": num(3), "points": num(7010),
			}),
			want: []string{"Carlos Alcaraz (ESP): right-handed, 183 cm, born 2003-05-05, currently ranked #3 with 7,010 points."},
		},
	}

	b := agent.NewQueryBuilder(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := question(t, tt.question)
			intent := intentFor(tt.source)
			spec, ok := b.Template(q, intent, tt.source)
			if !ok {
				t.Fatalf("no template for %q", tt.question)
			}
			got := c.Compose(ctx, q, intent, spec, tt.rs, true)
			if got.Method != agent.ComposedTemplate {
				t.Errorf("method = %s, want template", got.Method)
			}
			for _, want := range tt.want {
				if !strings.Contains(got.Text, want) {
					t.Errorf("text = %q\nwant it to contain %q", got.Text, want)
				}
			}
		})
	}
}

func TestComposeModelSummary(t *testing.T) {
	model := &routedLLM{summary: "Based on the data, rafael Nadal and Denis Shapovalov are both left-handed."}
	c := agent.NewAnswerComposer(model, nil)
	q := question(t, "Which left-handed players have reached a final on grass?")
	spec := models.QuerySpec{Statement: "SELECT name FROM players WHERE hand = 'L'", Source: models.SourceHistorical, Shape: models.ShapeGenerated}
	rs := rows(models.SourceHistorical, models.Row{"name": str("Rafael Nadal")}, models.Row{"name": str("Denis Shapovalov")})

	got := c.Compose(context.Background(), q, intentFor(models.SourceHistorical), spec, rs, true)
	if got.Method != agent.ComposedModel {
		t.Fatalf("method = %s, want model", got.Method)
	}
	if got.Text != "Rafael Nadal and Denis Shapovalov are both left-handed." {
		t.Errorf("text = %q", got.Text)
	}

	got = c.Compose(context.Background(), q, intentFor(models.SourceHistorical), spec, rs, false)
	if got.Method != agent.ComposedCanned || got.Text == "" {
		t.Errorf("model disallowed: got %+v", got)
	}
	if model.calls.Load() != 1 {
		t.Errorf("model calls = %d, want 1", model.calls.Load())
	}
}

func TestComposeFallsBackToCanned(t *testing.T) {
	q := question(t, "Which tournaments did Shapovalov reach the final of?")
	spec := models.QuerySpec{Statement: "SELECT tourney_name FROM historical_matches", Source: models.SourceHistorical, Shape: models.ShapeGenerated}
	full := rows(models.SourceHistorical, models.Row{"tourney_name": str("Vienna")})

	tests := []struct {
		name        string
		model       *routedLLM
		rs          *models.ResultSet
		modelFailed bool
	}{
		{"model error", &routedLLM{err: errors.New("timeout")}, full, true},
		{"empty reply", &routedLLM{summary: "  "}, full, true},
		{"no rows", &routedLLM{summary: "unused"}, rows(models.SourceHistorical), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := agent.NewAnswerComposer(tt.model, nil)
			got := c.Compose(context.Background(), q, intentFor(models.SourceHistorical), spec, tt.rs, true)
			if got.Method != agent.ComposedCanned {
				t.Errorf("method = %s, want canned", got.Method)
			}
			if got.ModelFailed != tt.modelFailed {
				t.Errorf("ModelFailed = %v, want %v", got.ModelFailed, tt.modelFailed)
			}
			if got.Text != c.Canned(q) {
				t.Errorf("text = %q, want the canned answer", got.Text)
			}
		})
	}
}

func TestCannedIsStableAndOnTopic(t *testing.T) {
	c := agent.NewAnswerComposer(nil, nil)

	tests := []struct {
		question string
		anyOf    []string
	}{
		{"Who won the Davis Cup?", []string{"tournament"}},
		{"What are the stats for aces this season?", []string{"statistics", "numbers"}},
		{"Is tennis fun?", []string{"rankings", "ranked"}},
	}
	for _, tt := range tests {
		a := c.Canned(question(t, tt.question))
		if b := c.Canned(question(t, "  "+strings.ToUpper(tt.question)+"  ")); a != b {
			t.Errorf("%q: canned answer not stable: %q vs %q", tt.question, a, b)
		}
		onTopic := false
		for _, w := range tt.anyOf {
			onTopic = onTopic || strings.Contains(a, w)
		}
		if !onTopic {
			t.Errorf("%q: canned answer %q mentions none of %v", tt.question, a, tt.anyOf)
		}
		if !strings.HasSuffix(a, ".") && !strings.HasSuffix(a, "?\"") {
			t.Errorf("%q: canned answer is not a complete sentence: %q", tt.question, a)
		}
	}
}
