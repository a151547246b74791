package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/asktennis/asktennis/internal/llm"
	"github.com/asktennis/asktennis/internal/models"
	"github.com/asktennis/asktennis/internal/telemetry"
)

// BuildFailure means no template matched and the language model could not
// supply a usable statement either.
type BuildFailure struct {
	Source models.DataSource
	Reason string
	Cause  error
}

func (e *BuildFailure) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("build %s query: %s: %v", e.Source, e.Reason, e.Cause)
	}
	return fmt.Sprintf("build %s query: %s", e.Source, e.Reason)
}

func (e *BuildFailure) Unwrap() error { return e.Cause }

// ValidationRejected means a candidate statement failed the SQL validator.
// It is never executed.
type ValidationRejected struct {
	Statement string
	Reason    string
}

func (e *ValidationRejected) Error() string {
	return "statement rejected: " + e.Reason
}

const schemaDescription = `Tables (PostgreSQL):
players(id, name, first_name, last_name, country, birth_date, hand, height, tour)
rankings(id, player_id, ranking, points, ranking_date, tour, movement)  -- live rankings
historical_rankings(ranking_date, ranking, player_id, points, tour)
historical_matches(id, tourney_id, tourney_name, surface, tourney_level, tourney_date, round,
  winner_id, winner_name, loser_id, loser_name, score, best_of, minutes, tour)
tournaments(id, name, surface, level, location, start_date, end_date, tour)
matches(id, tournament_id, player1_id, player2_id, winner_id, score, round, match_date, status)
Notes: tour is 'ATP' or 'WTA'. round = 'F' is a final. tourney_level = 'G' is a Grand Slam.`

const buildSystemPrompt = `You translate tennis questions into a single read-only PostgreSQL SELECT statement.
Use only the tables and columns listed. Never modify data. Do not use UNION, comments or CTEs.
Reply with the statement only, no commentary.

`

// QueryBuilder turns an intent into a QuerySpec, trying the template
// registry first and the language model second.
type QueryBuilder struct {
	llm     llm.Completer
	metrics *telemetry.Metrics
}

// NewQueryBuilder returns a builder. With a nil completer only templates
// are available.
func NewQueryBuilder(completer llm.Completer, metrics *telemetry.Metrics) *QueryBuilder {
	return &QueryBuilder{llm: completer, metrics: metrics}
}

// Known returns a verified answer for the question when one exists.
func (b *QueryBuilder) Known(q models.Question, intent models.IntentAnalysis) (string, bool) {
	k, ok := lookupKnownChampion(scanQuestion(q, intent))
	return k.text, ok
}

// Template runs the template strategy alone. It never calls the model.
func (b *QueryBuilder) Template(q models.Question, intent models.IntentAnalysis, source models.DataSource) (models.QuerySpec, bool) {
	return matchTemplate(scanQuestion(q, intent), source)
}

// Build returns a QuerySpec for source. With templateOnly set the model is
// not consulted.
func (b *QueryBuilder) Build(ctx context.Context, intent models.IntentAnalysis, q models.Question, source models.DataSource, templateOnly bool) (models.QuerySpec, error) {
	if spec, ok := b.Template(q, intent, source); ok {
		return spec, nil
	}
	if templateOnly || b.llm == nil {
		return models.QuerySpec{}, &BuildFailure{Source: source, Reason: "no template matched"}
	}

	intentJSON, err := json.Marshal(intent)
	if err != nil {
		return models.QuerySpec{}, &BuildFailure{Source: source, Reason: "encode intent", Cause: err}
	}
	prompt := fmt.Sprintf("Question: %s\nIntent: %s\nData source: %s\nRanking table for this source: %s",
		q.Text, intentJSON, source, rankingsTable(source))

	out, err := b.llm.Complete(ctx, buildSystemPrompt+schemaDescription, prompt, llm.Options{
		Temperature: 0.1,
		MaxTokens:   500,
	})
	b.metrics.RecordLLMCall(ctx, "build", err)
	if err != nil {
		return models.QuerySpec{}, &BuildFailure{Source: source, Reason: "model call failed", Cause: err}
	}

	stmt := extractSQL(out)
	if stmt == "" {
		return models.QuerySpec{}, &BuildFailure{Source: source, Reason: "model returned no statement"}
	}
	return models.QuerySpec{Statement: stmt, Source: source, Shape: models.ShapeGenerated}, nil
}

var reSelectStart = regexp.MustCompile(`(?i)\bSELECT\b`)

// extractSQL isolates the candidate statement in model output: the body of
// a fenced sql block, else of any fenced block starting with SELECT, else
// the text from the first SELECT to the end. Only fences and leading prose
// are removed, so the validator sees every statement the model wrote.
func extractSQL(text string) string {
	lower := strings.ToLower(text)
	if idx := strings.Index(lower, "```sql"); idx != -1 {
		body := text[idx+len("```sql"):]
		if end := strings.Index(body, "```"); end != -1 {
			if sql := strings.TrimSpace(body[:end]); sql != "" {
				return sql
			}
		}
	}

	parts := strings.Split(text, "```")
	for i := 1; i < len(parts)-1; i += 2 {
		candidate := strings.TrimSpace(parts[i])
		// drop a language tag line such as "postgres"
		if nl := strings.Index(candidate, "\n"); nl != -1 {
			if !reSelectStart.MatchString(candidate[:nl]) {
				candidate = strings.TrimSpace(candidate[nl:])
			}
		}
		if strings.HasPrefix(strings.ToUpper(candidate), "SELECT") {
			return candidate
		}
	}

	if loc := reSelectStart.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(text[loc[0]:])
	}
	return ""
}
