package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/asktennis/asktennis/internal/models"
)

// Template shapes. The composer renders each one with a fixed sentence.
const (
	ShapeHeadToHead       = "head_to_head"
	ShapePlayerTitles     = "player_titles"
	ShapeTournamentWinner = "tournament_winner"
	ShapePlayerRanking    = "player_ranking"
	ShapePlayerProfile    = "player_profile"
	ShapeTopN             = "top_n"
	ShapeNumberOne        = "number_one"
	ShapeRankingByNumber  = "ranking_by_number"
)

const maxTopN = 100

var (
	reHeadToHead = regexp.MustCompile(`(?i)\b(head[\s-]*to[\s-]*head|h2h|vs\.?|versus|against|between|record)\b`)
	reWinner     = regexp.MustCompile(`(?i)\b(won|win|wins|winner|winners|champions?|title)\b`)
	reTitles     = regexp.MustCompile(`(?i)\btitles?\b|\btrophies\b|\bslams\b|\bhow many\b.*\b(won|win)\b`)
	reRanking    = regexp.MustCompile(`(?i)\b(rank|ranked|ranking|rankings|position|number|world\s+no)\b`)
	reProfile    = regexp.MustCompile(`(?i)\b(tell me about|profile|who is|info(rmation)? (about|on)|bio(graphy)?)\b`)
	reTopN       = regexp.MustCompile(`(?i)\btop\s+(\d{1,3}|one|two|three|four|five|six|seven|eight|nine|ten|twenty|fifty|hundred)\b`)
	reNumberOne  = regexp.MustCompile(`(?i)\bnumber\s*(one|1)\b|\bno\.?\s*1\b|#\s*1\b|\branked\s+first\b|\btop[\s-]+ranked\b|\bbest\s+player\b`)
	reRankNumber = regexp.MustCompile(`(?i)(?:\bnumber|\bno\.?|#|\branked|\brank)\s*(\d{1,4})(?:st|nd|rd|th)?\b`)
	reWomen      = regexp.MustCompile(`(?i)\b(wta|women'?s?|woman|ladies|female)\b`)
	reGrandSlam  = regexp.MustCompile(`(?i)\b(grand\s*slams?|majors?|slams)\b`)
	reHowMany    = regexp.MustCompile(`(?i)\bhow many\b`)
)

// questionScan is everything the templates read from a question.
type questionScan struct {
	text       string
	players    []player
	tournament tournament
	hasTourn   bool
	year       int
	hasYear    bool
	tour       string
	slam       bool
}

// scanQuestion reads the closed vocabulary from the question text, then
// adds any entity the classifier found that also resolves against it.
func scanQuestion(q models.Question, intent models.IntentAnalysis) questionScan {
	s := questionScan{text: q.Text}

	s.players = findPlayers(q.Text)
	for _, name := range intent.Entities.Players {
		p, ok := lookupPlayer(name)
		if !ok || containsPlayer(s.players, p.name) {
			continue
		}
		s.players = append(s.players, p)
	}

	s.tournament, s.hasTourn = findTournament(q.Text)
	if !s.hasTourn {
		for _, name := range intent.Entities.Tournaments {
			if s.tournament, s.hasTourn = findTournament(name); s.hasTourn {
				break
			}
		}
	}

	s.year, s.hasYear = findYear(q.Text)
	if !s.hasYear && intent.Entities.Timeframe != nil {
		s.year, s.hasYear = findYear(*intent.Entities.Timeframe)
	}

	s.tour = tourATP
	if reWomen.MatchString(q.Text) {
		s.tour = tourWTA
	} else if len(s.players) > 0 {
		allWTA := true
		for _, p := range s.players {
			allWTA = allWTA && p.tour == tourWTA
		}
		if allWTA {
			s.tour = tourWTA
		}
	}

	s.slam = reGrandSlam.MatchString(q.Text)
	return s
}

func containsPlayer(ps []player, name string) bool {
	for _, p := range ps {
		if p.name == name {
			return true
		}
	}
	return false
}

// queryTemplate recognises one question shape and fills its skeleton.
type queryTemplate struct {
	name    string
	sources []models.DataSource // nil means any source
	build   func(s questionScan, src models.DataSource) (string, []any, bool)
}

func (t queryTemplate) supports(src models.DataSource) bool {
	if t.sources == nil {
		return true
	}
	for _, s := range t.sources {
		if s == src {
			return true
		}
	}
	return false
}

var historicalOnly = []models.DataSource{models.SourceHistorical}

// templateRegistry is tried in order; the first match wins.
var templateRegistry = []queryTemplate{
	{name: ShapeHeadToHead, sources: historicalOnly, build: buildHeadToHead},
	{name: ShapePlayerTitles, sources: historicalOnly, build: buildPlayerTitles},
	{name: ShapeTournamentWinner, sources: historicalOnly, build: buildTournamentWinner},
	{name: ShapePlayerRanking, build: buildPlayerRanking},
	{name: ShapePlayerProfile, build: buildPlayerProfile},
	{name: ShapeTopN, build: buildTopN},
	{name: ShapeNumberOne, build: buildNumberOne},
	{name: ShapeRankingByNumber, build: buildRankingByNumber},
}

// matchTemplate returns the first template that fits the question for src.
func matchTemplate(s questionScan, src models.DataSource) (models.QuerySpec, bool) {
	for _, t := range templateRegistry {
		if !t.supports(src) {
			continue
		}
		stmt, params, ok := t.build(s, src)
		if !ok {
			continue
		}
		shape := t.name
		// A historical profile is a title count.
		if shape == ShapePlayerProfile && src == models.SourceHistorical {
			shape = ShapePlayerTitles
		}
		return models.QuerySpec{Statement: stmt, Params: params, Source: src, Shape: shape}, true
	}
	return models.QuerySpec{}, false
}

func rankingsTable(src models.DataSource) string {
	if src == models.SourceLive {
		return "rankings"
	}
	return "historical_rankings"
}

func likePattern(stored string) string {
	return "%" + strings.ToLower(stored) + "%"
}

func buildHeadToHead(s questionScan, _ models.DataSource) (string, []any, bool) {
	if len(s.players) < 2 || !reHeadToHead.MatchString(s.text) {
		return "", nil, false
	}
	stmt := `SELECT tourney_name, tourney_date, surface, round, winner_name, loser_name, score
FROM historical_matches
WHERE (winner_name = $1 AND loser_name = $2)
   OR (winner_name = $2 AND loser_name = $1)
ORDER BY tourney_date DESC`
	return stmt, []any{s.players[0].name, s.players[1].name}, true
}

func buildPlayerTitles(s questionScan, _ models.DataSource) (string, []any, bool) {
	if len(s.players) != 1 || !reTitles.MatchString(s.text) {
		return "", nil, false
	}
	var b strings.Builder
	b.WriteString("SELECT winner_name, COUNT(*) AS titles\nFROM historical_matches\nWHERE winner_name = $1 AND round = 'F'")
	params := []any{s.players[0].name}
	if s.slam {
		b.WriteString(" AND tourney_level = 'G'")
	}
	if s.hasTourn {
		params = append(params, likePattern(s.tournament.stored))
		fmt.Fprintf(&b, " AND LOWER(tourney_name) LIKE $%d", len(params))
	}
	if s.hasYear {
		params = append(params, s.year)
		fmt.Fprintf(&b, " AND EXTRACT(YEAR FROM tourney_date) = $%d", len(params))
	}
	b.WriteString("\nGROUP BY winner_name")
	return b.String(), params, true
}

func buildTournamentWinner(s questionScan, _ models.DataSource) (string, []any, bool) {
	if !s.hasTourn || !reWinner.MatchString(s.text) {
		return "", nil, false
	}
	var b strings.Builder
	b.WriteString("SELECT tourney_name, tourney_date, winner_name, loser_name, score\nFROM historical_matches\nWHERE LOWER(tourney_name) LIKE $1 AND round = 'F' AND tour = $2")
	params := []any{likePattern(s.tournament.stored), s.tour}
	if s.hasYear {
		params = append(params, s.year)
		b.WriteString(" AND EXTRACT(YEAR FROM tourney_date) = $3")
	}
	b.WriteString("\nORDER BY tourney_date DESC\nLIMIT 1")
	return b.String(), params, true
}

func buildPlayerRanking(s questionScan, src models.DataSource) (string, []any, bool) {
	if len(s.players) == 0 || !reRanking.MatchString(s.text) || reTopN.MatchString(s.text) {
		return "", nil, false
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT p.name, p.country, r.ranking, r.points, r.ranking_date\nFROM %s r\nJOIN players p ON p.id = r.player_id\nWHERE p.name = $1", rankingsTable(src))
	params := []any{s.players[0].name}
	if s.hasYear && src == models.SourceHistorical {
		params = append(params, s.year)
		b.WriteString(" AND EXTRACT(YEAR FROM r.ranking_date) = $2")
	}
	b.WriteString("\nORDER BY r.ranking_date DESC\nLIMIT 1")
	return b.String(), params, true
}

// buildPlayerProfile also catches any question that names exactly one
// known player and fits no narrower template.
func buildPlayerProfile(s questionScan, src models.DataSource) (string, []any, bool) {
	if len(s.players) == 0 || (len(s.players) > 1 && !reProfile.MatchString(s.text)) {
		return "", nil, false
	}
	name := s.players[0].name
	if src == models.SourceHistorical {
		stmt := `SELECT winner_name, COUNT(*) AS titles
FROM historical_matches
WHERE winner_name = $1 AND round = 'F'
GROUP BY winner_name`
		return stmt, []any{name}, true
	}
	stmt := `SELECT p.name, p.country, p.birth_date, p.hand, p.height, r.ranking, r.points
FROM players p
LEFT JOIN rankings r ON r.player_id = p.id
WHERE p.name = $1
ORDER BY r.ranking_date DESC
LIMIT 1`
	return stmt, []any{name}, true
}

func buildTopN(s questionScan, src models.DataSource) (string, []any, bool) {
	m := reTopN.FindStringSubmatch(s.text)
	if m == nil {
		return "", nil, false
	}
	n, ok := parseCount(m[1])
	if !ok || n < 1 {
		return "", nil, false
	}
	if n > maxTopN {
		n = maxTopN
	}
	table := rankingsTable(src)
	latest := fmt.Sprintf("SELECT MAX(ranking_date) FROM %s WHERE tour = $1", table)
	params := []any{s.tour, n}
	if s.hasYear && src == models.SourceHistorical {
		params = append(params, s.year)
		latest += " AND EXTRACT(YEAR FROM ranking_date) = $3"
	}
	stmt := fmt.Sprintf(`SELECT r.ranking, p.name, p.country, r.points
FROM %s r
JOIN players p ON p.id = r.player_id
WHERE r.tour = $1
  AND r.ranking <= $2
  AND r.ranking_date = (%s)
ORDER BY r.ranking`, table, latest)
	return stmt, params, true
}

func rankedAt(src models.DataSource, s questionScan, rank int) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT p.name, p.country, r.ranking, r.points, r.ranking_date\nFROM %s r\nJOIN players p ON p.id = r.player_id\nWHERE r.ranking = $1 AND r.tour = $2", rankingsTable(src))
	params := []any{rank, s.tour}
	if s.hasYear && src == models.SourceHistorical {
		params = append(params, s.year)
		b.WriteString(" AND EXTRACT(YEAR FROM r.ranking_date) = $3")
	}
	b.WriteString("\nORDER BY r.ranking_date DESC\nLIMIT 1")
	return b.String(), params
}

func buildNumberOne(s questionScan, src models.DataSource) (string, []any, bool) {
	if !reNumberOne.MatchString(s.text) {
		return "", nil, false
	}
	stmt, params := rankedAt(src, s, 1)
	return stmt, params, true
}

func buildRankingByNumber(s questionScan, src models.DataSource) (string, []any, bool) {
	m := reRankNumber.FindStringSubmatch(s.text)
	if m == nil {
		return "", nil, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || (s.hasYear && n == s.year) {
		return "", nil, false
	}
	stmt, params := rankedAt(src, s, n)
	return stmt, params, true
}

// knownAnswer is a verified result served without querying the store.
type knownAnswer struct {
	text string
}

func lookupKnownChampion(s questionScan) (knownAnswer, bool) {
	if !s.hasTourn || !s.hasYear || len(s.players) > 1 || !reWinner.MatchString(s.text) || reHowMany.MatchString(s.text) {
		return knownAnswer{}, false
	}
	champion, ok := knownChampions[championKey{s.tournament.name, s.year, s.tour}]
	if !ok {
		return knownAnswer{}, false
	}
	if champion == notHeld {
		return knownAnswer{text: fmt.Sprintf("%s was not held in %d.", s.tournament.name, s.year)}, true
	}
	event := "men's"
	if s.tour == tourWTA {
		event = "women's"
	}
	return knownAnswer{
		text: fmt.Sprintf("%s won the %d %s %s singles title.", champion, s.year, s.tournament.name, event),
	}, true
}
