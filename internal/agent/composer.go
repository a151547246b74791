package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/asktennis/asktennis/internal/llm"
	"github.com/asktennis/asktennis/internal/models"
	"github.com/asktennis/asktennis/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// ComposeMethod records how an answer's text was produced.
type ComposeMethod int

const (
	ComposedTemplate ComposeMethod = iota
	ComposedModel
	ComposedCanned
)

func (m ComposeMethod) String() string {
	switch m {
	case ComposedTemplate:
		return "template"
	case ComposedModel:
		return "model"
	default:
		return "canned"
	}
}

// Composition is the composer's output. ModelFailed is set when the model
// was asked and its answer could not be used.
type Composition struct {
	Text        string
	Method      ComposeMethod
	ModelFailed bool
}

const maxRowsForModel = 50

const summarySystemPrompt = `You answer tennis questions in one to three short conversational sentences.
Use only the rows you are given. Do not mention data, rows, databases or queries.
Never open with phrases such as "Based on the data" or "According to the results".`

var reHedge = regexp.MustCompile(`(?i)^\s*(based on (the|this|the provided|the available) (data|information|results|rows)|according to the (data|results|rows))[,:]?\s*`)

var (
	reTournamentTalk = regexp.MustCompile(`(?i)\b(tournament|open|wimbledon|garros|slams?|finals?|champions?|won|winner|titles?|cup|masters)\b`)
	reStatsTalk      = regexp.MustCompile(`(?i)\b(rank|ranked|ranking|rankings|points|stats?|statistics|record|how many|percentage|aces|wins|losses|head[\s-]*to[\s-]*head)\b`)
)

var (
	cannedTournament = []string{
		"I couldn't find verified tournament results for that question right now. Try naming the event and year, for example \"Who won Wimbledon 2023?\"",
		"I don't have reliable results for that tournament at the moment. Asking about a specific Grand Slam and year usually works best.",
	}
	cannedStatistics = []string{
		"I don't have the statistics needed to answer that right now. Try asking about the current rankings or a head-to-head record.",
		"I couldn't pull those numbers at the moment. Questions about rankings, titles or head-to-head records are the best bet.",
	}
	cannedGeneric = []string{
		"I'm not able to answer that tennis question right now. Try asking about rankings, head-to-head records or tournament winners.",
		"Sorry, I couldn't find an answer to that one. Ask me who is ranked number 1 or who won a particular Grand Slam.",
	}
)

// AnswerComposer renders result sets as natural-language answers. It never
// fails: every path ends in a complete sentence.
type AnswerComposer struct {
	llm     llm.Completer
	metrics *telemetry.Metrics
}

func NewAnswerComposer(completer llm.Completer, metrics *telemetry.Metrics) *AnswerComposer {
	return &AnswerComposer{llm: completer, metrics: metrics}
}

// Compose renders rs. Known shapes get a fixed sentence; other non-empty
// results go to the model when allowModel is set; everything else gets a
// canned sentence.
func (c *AnswerComposer) Compose(ctx context.Context, q models.Question, intent models.IntentAnalysis, spec models.QuerySpec, rs *models.ResultSet, allowModel bool) Composition {
	s := scanQuestion(q, intent)
	if text, ok := renderTemplate(s, spec, rs); ok {
		return Composition{Text: text, Method: ComposedTemplate}
	}

	if rs.Empty() || !allowModel || c.llm == nil {
		return Composition{Text: c.Canned(q), Method: ComposedCanned}
	}

	text, err := c.summarize(ctx, q, intent, rs)
	c.metrics.RecordLLMCall(ctx, "compose", err)
	if err != nil {
		log.Warn().Err(err).Str("question", q.Text).Msg("answer summary failed, using canned answer")
		return Composition{Text: c.Canned(q), Method: ComposedCanned, ModelFailed: true}
	}
	return Composition{Text: text, Method: ComposedModel}
}

func (c *AnswerComposer) summarize(ctx context.Context, q models.Question, intent models.IntentAnalysis, rs *models.ResultSet) (string, error) {
	rows := rs.Rows
	if len(rows) > maxRowsForModel {
		rows = rows[:maxRowsForModel]
	}
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode rows: %w", err)
	}
	intentJSON, err := json.Marshal(intent)
	if err != nil {
		return "", fmt.Errorf("encode intent: %w", err)
	}

	prompt := fmt.Sprintf("Question: %s\nIntent: %s\nRows: %s", q.Text, intentJSON, rowsJSON)
	out, err := c.llm.Complete(ctx, summarySystemPrompt, prompt, llm.Options{Temperature: 0.3, MaxTokens: 300})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(reHedge.ReplaceAllString(strings.TrimSpace(out), ""))
	if text == "" {
		return "", llm.ErrEmptyCompletion
	}
	return upperFirst(text), nil
}

// Canned picks a fixed sentence matching the topic of the question. The
// choice is stable for a given question.
func (c *AnswerComposer) Canned(q models.Question) string {
	corpus := cannedGeneric
	switch {
	case reTournamentTalk.MatchString(q.Text):
		corpus = cannedTournament
	case reStatsTalk.MatchString(q.Text):
		corpus = cannedStatistics
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(q.Normalized()))
	return corpus[int(h.Sum32()%uint32(len(corpus)))]
}

// ─── deterministic templates ─────────────────────────────────────────────────

func renderTemplate(s questionScan, spec models.QuerySpec, rs *models.ResultSet) (string, bool) {
	switch spec.Shape {
	case ShapeNumberOne, ShapeRankingByNumber:
		if rs.Empty() {
			return fmt.Sprintf("I couldn't find a player ranked #%v in the %v rankings.", param(spec, 0), param(spec, 1)), true
		}
		return rankingSentence(s, spec, rs.Rows[0]), true

	case ShapePlayerRanking:
		if rs.Empty() {
			return fmt.Sprintf("I couldn't find a ranking for %v.", param(spec, 0)), true
		}
		return rankingSentence(s, spec, rs.Rows[0]), true

	case ShapeTopN:
		if rs.Empty() {
			return fmt.Sprintf("I couldn't find the latest %v rankings.", param(spec, 0)), true
		}
		return topNSentence(spec, rs), true

	case ShapeHeadToHead:
		return headToHeadSentence(spec, rs), true

	case ShapeTournamentWinner:
		return tournamentWinnerSentence(s, rs), true

	case ShapePlayerTitles:
		if rs.Empty() {
			return fmt.Sprintf("I couldn't find any titles for %v in the historical records.", param(spec, 0)), true
		}
		return titlesSentence(s, rs.Rows[0]), true

	case ShapePlayerProfile:
		if rs.Empty() {
			return fmt.Sprintf("I couldn't find a profile for %v.", param(spec, 0)), true
		}
		return profileSentence(rs.Rows[0]), true
	}

	// Generated statements still get a fixed sentence when the result has
	// the shape of a single ranking row.
	if rs.Len() == 1 && rs.Rows[0].Has("name") && rs.Rows[0].Has("ranking") {
		return rankingSentence(s, spec, rs.Rows[0]), true
	}
	return "", false
}

func param(spec models.QuerySpec, i int) any {
	if i < len(spec.Params) {
		return spec.Params[i]
	}
	return ""
}

func rankingSentence(s questionScan, spec models.QuerySpec, row models.Row) string {
	var b strings.Builder
	if s.hasYear && spec.Source == models.SourceHistorical {
		fmt.Fprintf(&b, "In %d, %s was ranked #%s", s.year, row.Str("name"), row.Str("ranking"))
	} else {
		fmt.Fprintf(&b, "%s is ranked #%s", row.Str("name"), row.Str("ranking"))
	}
	if row.Has("points") {
		fmt.Fprintf(&b, " with %s points", formatPoints(row["points"]))
	}
	if row.Has("ranking_date") {
		fmt.Fprintf(&b, " (as of %s)", row.Str("ranking_date"))
	}
	b.WriteString(".")
	return b.String()
}

func topNSentence(spec models.QuerySpec, rs *models.ResultSet) string {
	parts := make([]string, 0, rs.Len())
	for _, row := range rs.Rows {
		entry := fmt.Sprintf("%s. %s", row.Str("ranking"), row.Str("name"))
		if row.Has("points") {
			entry += fmt.Sprintf(" (%s points)", formatPoints(row["points"]))
		}
		parts = append(parts, entry)
	}
	return fmt.Sprintf("The top %d %v players are: %s.", rs.Len(), param(spec, 0), strings.Join(parts, ", "))
}

func headToHeadSentence(spec models.QuerySpec, rs *models.ResultSet) string {
	p1, _ := param(spec, 0).(string)
	p2, _ := param(spec, 1).(string)
	if rs.Empty() {
		return fmt.Sprintf("No head-to-head record found between %s and %s.", p1, p2)
	}

	var w1, w2 int
	for _, row := range rs.Rows {
		switch row.Str("winner_name") {
		case p1:
			w1++
		case p2:
			w2++
		}
	}

	var b strings.Builder
	switch {
	case w1 > w2:
		fmt.Fprintf(&b, "%s leads %s %d-%d in their head-to-head.", p1, p2, w1, w2)
	case w2 > w1:
		fmt.Fprintf(&b, "%s leads %s %d-%d in their head-to-head.", p2, p1, w2, w1)
	default:
		fmt.Fprintf(&b, "%s and %s are level at %d-%d in their head-to-head.", p1, p2, w1, w2)
	}

	last := rs.Rows[0]
	if last.Has("tourney_name") && last.Has("winner_name") {
		fmt.Fprintf(&b, " Their most recent meeting was at %s", last.Str("tourney_name"))
		if last.Has("tourney_date") {
			fmt.Fprintf(&b, " (%s)", last.Str("tourney_date"))
		}
		fmt.Fprintf(&b, ", won by %s", last.Str("winner_name"))
		if last.Has("score") {
			fmt.Fprintf(&b, " %s", last.Str("score"))
		}
		b.WriteString(".")
	}
	return b.String()
}

func tournamentWinnerSentence(s questionScan, rs *models.ResultSet) string {
	event := s.tournament.name
	if event == "" {
		event = "that tournament"
	}
	if rs.Empty() {
		if s.hasYear {
			return fmt.Sprintf("I don't have a verified result for %s %d yet; the historical data integration for that tournament is incomplete.", event, s.year)
		}
		return fmt.Sprintf("I don't have a verified result for %s yet; the historical data integration for that tournament is incomplete.", event)
	}

	row := rs.Rows[0]
	var b strings.Builder
	fmt.Fprintf(&b, "%s won %s", row.Str("winner_name"), event)
	if v, ok := row["tourney_date"]; ok && v.Kind == models.KindDate {
		fmt.Fprintf(&b, " %d", v.Time.Year())
	} else if s.hasYear {
		fmt.Fprintf(&b, " %d", s.year)
	}
	if row.Has("loser_name") {
		fmt.Fprintf(&b, ", defeating %s", row.Str("loser_name"))
		if row.Has("score") {
			fmt.Fprintf(&b, " %s", row.Str("score"))
		}
		b.WriteString(" in the final")
	}
	b.WriteString(".")
	return b.String()
}

func titlesSentence(s questionScan, row models.Row) string {
	n, _ := row.Num("titles")
	noun := "titles"
	if n == 1 {
		noun = "title"
	}
	if s.slam {
		noun = "Grand Slam " + noun
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s has won %s %s", row.Str("winner_name"), strconv.FormatFloat(n, 'f', 0, 64), noun)
	if s.hasTourn {
		fmt.Fprintf(&b, " at the %s", s.tournament.name)
	}
	if s.hasYear {
		fmt.Fprintf(&b, " in %d", s.year)
	}
	b.WriteString(".")
	return b.String()
}

func profileSentence(row models.Row) string {
	var b strings.Builder
	b.WriteString(row.Str("name"))
	if row.Has("country") {
		fmt.Fprintf(&b, " (%s)", row.Str("country"))
	}

	var details []string
	switch strings.ToUpper(row.Str("hand")) {
	case "R":
		details = append(details, "right-handed")
	case "L":
		details = append(details, "left-handed")
	}
	if row.Has("height") {
		details = append(details, row.Str("height")+" cm")
	}
	if row.Has("birth_date") {
		details = append(details, "born "+row.Str("birth_date"))
	}
	if row.Has("ranking") {
		r := "currently ranked #" + row.Str("ranking")
		if row.Has("points") {
			r += " with " + formatPoints(row["points"]) + " points"
		}
		details = append(details, r)
	}

	if len(details) == 0 {
		b.WriteString(" is in the player database, but no further details are available.")
		return b.String()
	}
	b.WriteString(": ")
	b.WriteString(strings.Join(details, ", "))
	b.WriteString(".")
	return b.String()
}

// formatPoints renders whole numbers with thousands separators.
func formatPoints(v models.Value) string {
	s := v.String()
	if v.Kind != models.KindNumber || strings.ContainsAny(s, ".-") || len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
