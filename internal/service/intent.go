package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/asktennis/asktennis/internal/llm"
	"github.com/asktennis/asktennis/internal/models"
	"github.com/asktennis/asktennis/internal/security"
	"github.com/asktennis/asktennis/internal/telemetry"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

// RuleConfidence is the confidence of a purely rule-based classification.
const RuleConfidence = 0.5

const (
	extractionMemoTTL   = 30 * time.Minute
	extractionMaxTokens = 400
)

// sourceFlags are OR-ed across every rule that matches.
type sourceFlags struct {
	live, historical, combined bool
}

// intentRule is one (predicate, effect) pair. Rules are not mutually
// exclusive: all of them run and their flags are combined with OR.
type intentRule struct {
	name   string
	match  *regexp.Regexp
	effect sourceFlags
}

var intentRules = []intentRule{
	{
		name:   "current_state",
		match:  regexp.MustCompile(`(?i)\b(current(ly)?|right now|today|this week|latest|live|at the moment)\b`),
		effect: sourceFlags{live: true},
	},
	{
		name:   "ranking_lookup",
		match:  regexp.MustCompile(`(?i)\b(rank(ed|ing|ings)?|world\s+no|number\s+(one|1)|no\.?\s*1|top\s+\d+|points)\b|#\s*\d+`),
		effect: sourceFlags{live: true},
	},
	{
		name:   "head_to_head",
		match:  regexp.MustCompile(`(?i)\b(head[\s-]*to[\s-]*head|h2h|versus|vs\.?|against)\b`),
		effect: sourceFlags{historical: true},
	},
	{
		name:   "history",
		match:  regexp.MustCompile(`(?i)\b(historical|history|career|all[\s-]*time|ever|past|record|titles?|won|wins?|winner|champions?|final)\b`),
		effect: sourceFlags{historical: true},
	},
	{
		name:   "season",
		match:  regexp.MustCompile(`\b(19[6-9]\d|20[0-4]\d)\b`),
		effect: sourceFlags{historical: true},
	},
	{
		name:   "player_profile",
		match:  regexp.MustCompile(`(?i)\b(tell me about|profile( of)?|info(rmation)? (about|on))\b`),
		effect: sourceFlags{combined: true},
	},
}

// extraction is the language model's contribution to an IntentAnalysis.
type extraction struct {
	Entities   models.Entities
	Confidence float64
	Intent     string
}

// IntentClassifier turns a question into an IntentAnalysis. Rule matching
// decides type and data sources; the language model only adds entities,
// confidence and an intent description.
type IntentClassifier struct {
	llm           llm.Completer
	defaultSource models.DataSource
	memo          *ristretto.Cache[string, extraction]
	metrics       *telemetry.Metrics
}

// NewIntentClassifier builds a classifier. completer may be nil, in which
// case classification is rule-only. defaultSource routes questions no rule
// matches.
func NewIntentClassifier(completer llm.Completer, defaultSource models.DataSource, metrics *telemetry.Metrics) (*IntentClassifier, error) {
	if defaultSource == "" {
		defaultSource = models.SourceHistorical
	}
	memo, err := ristretto.NewCache(&ristretto.Config[string, extraction]{
		NumCounters:        10_000,
		MaxCost:            1_000,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction memo: %w", err)
	}
	return &IntentClassifier{
		llm:           completer,
		defaultSource: defaultSource,
		memo:          memo,
		metrics:       metrics,
	}, nil
}

// Close releases the extraction memo.
func (c *IntentClassifier) Close() {
	c.memo.Close()
}

// DefaultSource is the source used for questions no rule matches.
func (c *IntentClassifier) DefaultSource() models.DataSource {
	return c.defaultSource
}

// Rules classifies text with the rule table alone. It is pure and cheap,
// and is what the answer cache keys on.
func (c *IntentClassifier) Rules(text string) models.IntentAnalysis {
	var flags sourceFlags
	var matched []string
	for _, r := range intentRules {
		if r.match.MatchString(text) {
			matched = append(matched, r.name)
			flags.live = flags.live || r.effect.live
			flags.historical = flags.historical || r.effect.historical
			flags.combined = flags.combined || r.effect.combined
		}
	}

	a := models.IntentAnalysis{
		Entities:   models.EmptyEntities(),
		Confidence: RuleConfidence,
	}
	switch {
	case flags.combined || (flags.live && flags.historical):
		a.Type = models.QueryTypeCombined
		a.DataSources = []models.DataSource{models.SourceLive, models.SourceHistorical}
	case flags.live:
		a.Type = models.QueryTypeLive
		a.DataSources = []models.DataSource{models.SourceLive}
	case flags.historical:
		a.Type = models.QueryTypeHistorical
		a.DataSources = []models.DataSource{models.SourceHistorical}
	default:
		a.Type = models.QueryTypeGeneral
		a.DataSources = []models.DataSource{c.defaultSource}
	}

	if len(matched) == 0 {
		a.Intent = "general tennis question"
	} else {
		a.Intent = "matched " + strings.Join(matched, ", ")
	}
	return a
}

// Classify never fails. When the language model is missing or its answer
// is unusable the rule-based analysis is returned as is.
func (c *IntentClassifier) Classify(ctx context.Context, q models.Question) models.IntentAnalysis {
	a, _ := c.Analyze(ctx, q)
	return a
}

// Analyze is Classify plus whether the language model contributed.
func (c *IntentClassifier) Analyze(ctx context.Context, q models.Question) (models.IntentAnalysis, bool) {
	a := c.Rules(q.Text)
	if c.llm == nil {
		return a, false
	}

	key := q.Normalized()
	if ex, ok := c.memo.Get(key); ok {
		return merge(a, ex), true
	}

	ex, err := c.extract(ctx, q.Text, a)
	c.metrics.RecordLLMCall(ctx, "classify", err)
	if err != nil {
		log.Warn().Err(err).Str("question", q.Text).Msg("entity extraction failed, using rule-based intent")
		return a, false
	}
	c.memo.SetWithTTL(key, ex, 1, extractionMemoTTL)
	c.memo.Wait()
	return merge(a, ex), true
}

const extractionSystemPrompt = `You extract structured information from tennis questions.
Respond with a single JSON object and nothing else, using exactly these keys:
{"players": [string], "tournaments": [string], "metrics": [string],
 "timeframe": string or null, "surface": string or null,
 "confidence": number between 0 and 1, "intent": short description}
Use full player names when you are sure of them. Use null when a field is not mentioned.`

type extractionPayload struct {
	Players     []string `json:"players"`
	Tournaments []string `json:"tournaments"`
	Metrics     []string `json:"metrics"`
	Timeframe   *string  `json:"timeframe"`
	Surface     *string  `json:"surface"`
	Confidence  *float64 `json:"confidence"`
	Intent      string   `json:"intent"`
}

func (c *IntentClassifier) extract(ctx context.Context, text string, rules models.IntentAnalysis) (extraction, error) {
	prompt := fmt.Sprintf("Question: %s\nRule-based type: %s", text, rules.Type)
	raw, err := c.llm.Complete(ctx, extractionSystemPrompt, prompt, llm.Options{
		Temperature: 0,
		MaxTokens:   extractionMaxTokens,
	})
	if err != nil {
		return extraction{}, err
	}
	return parseExtraction(raw)
}

// parseExtraction decodes the model's JSON, repairing it first when it is
// not valid as returned.
func parseExtraction(raw string) (extraction, error) {
	body := security.StripCodeFence(raw)
	if i := strings.Index(body, "{"); i > 0 {
		body = body[i:]
	}
	if !json.Valid([]byte(body)) {
		repaired, err := jsonrepair.JSONRepair(body)
		if err != nil {
			return extraction{}, fmt.Errorf("repair extraction json: %w", err)
		}
		body = repaired
	}

	var p extractionPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return extraction{}, fmt.Errorf("decode extraction: %w", err)
	}

	ex := extraction{
		Entities: models.Entities{
			Players:     nonNil(p.Players),
			Tournaments: nonNil(p.Tournaments),
			Metrics:     nonNil(p.Metrics),
			Timeframe:   blankToNil(p.Timeframe),
			Surface:     blankToNil(p.Surface),
		},
		Confidence: RuleConfidence,
		Intent:     strings.TrimSpace(p.Intent),
	}
	if p.Confidence != nil {
		ex.Confidence = clamp(*p.Confidence, 0, 1)
	}
	return ex, nil
}

// merge keeps the rule-based type and sources.
func merge(a models.IntentAnalysis, ex extraction) models.IntentAnalysis {
	a.Entities = ex.Entities
	a.Confidence = ex.Confidence
	if ex.Intent != "" {
		a.Intent = ex.Intent
	}
	return a
}

func nonNil(s []string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}

func clamp(f, lo, hi float64) float64 {
	if f != f {
		return lo
	}
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}
