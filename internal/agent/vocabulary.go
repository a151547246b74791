package agent

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	tourATP = "ATP"
	tourWTA = "WTA"
)

type player struct {
	name    string
	tour    string
	aliases []string
}

// roster is the closed vocabulary of players the templates recognise.
// Aliases are lowercase and matched on word boundaries.
var roster = []player{
	{"Novak Djokovic", tourATP, []string{"novak djokovic", "djokovic", "novak", "nole"}},
	{"Rafael Nadal", tourATP, []string{"rafael nadal", "rafa nadal", "nadal", "rafa"}},
	{"Roger Federer", tourATP, []string{"roger federer", "federer"}},
	{"Carlos Alcaraz", tourATP, []string{"carlos alcaraz", "alcaraz", "carlitos"}},
	{"Jannik Sinner", tourATP, []string{"jannik sinner", "sinner"}},
	{"Daniil Medvedev", tourATP, []string{"daniil medvedev", "medvedev"}},
	{"Alexander Zverev", tourATP, []string{"alexander zverev", "sascha zverev", "zverev"}},
	{"Andy Murray", tourATP, []string{"andy murray", "murray"}},
	{"Stefanos Tsitsipas", tourATP, []string{"stefanos tsitsipas", "tsitsipas"}},
	{"Casper Ruud", tourATP, []string{"casper ruud", "ruud"}},
	{"Holger Rune", tourATP, []string{"holger rune", "rune"}},
	{"Taylor Fritz", tourATP, []string{"taylor fritz", "fritz"}},
	{"Andrey Rublev", tourATP, []string{"andrey rublev", "rublev"}},
	{"Hubert Hurkacz", tourATP, []string{"hubert hurkacz", "hurkacz"}},
	{"Grigor Dimitrov", tourATP, []string{"grigor dimitrov", "dimitrov"}},
	{"Alex de Minaur", tourATP, []string{"alex de minaur", "de minaur", "demon"}},
	{"Dominic Thiem", tourATP, []string{"dominic thiem", "thiem"}},
	{"Stan Wawrinka", tourATP, []string{"stan wawrinka", "stanislas wawrinka", "wawrinka"}},
	{"Pete Sampras", tourATP, []string{"pete sampras", "sampras"}},
	{"Andre Agassi", tourATP, []string{"andre agassi", "agassi"}},
	{"Iga Swiatek", tourWTA, []string{"iga swiatek", "iga świątek", "swiatek", "świątek"}},
	{"Aryna Sabalenka", tourWTA, []string{"aryna sabalenka", "sabalenka"}},
	{"Coco Gauff", tourWTA, []string{"coco gauff", "cori gauff", "gauff"}},
	{"Elena Rybakina", tourWTA, []string{"elena rybakina", "rybakina"}},
	{"Jessica Pegula", tourWTA, []string{"jessica pegula", "pegula"}},
	{"Qinwen Zheng", tourWTA, []string{"qinwen zheng", "zheng qinwen"}},
	{"Ons Jabeur", tourWTA, []string{"ons jabeur", "jabeur"}},
	{"Naomi Osaka", tourWTA, []string{"naomi osaka", "osaka"}},
	{"Serena Williams", tourWTA, []string{"serena williams", "serena"}},
	{"Venus Williams", tourWTA, []string{"venus williams", "venus"}},
	{"Simona Halep", tourWTA, []string{"simona halep", "halep"}},
	{"Ashleigh Barty", tourWTA, []string{"ashleigh barty", "ash barty", "barty"}},
	{"Maria Sharapova", tourWTA, []string{"maria sharapova", "sharapova"}},
	{"Marketa Vondrousova", tourWTA, []string{"marketa vondrousova", "vondrousova"}},
	{"Barbora Krejcikova", tourWTA, []string{"barbora krejcikova", "krejcikova"}},
	{"Madison Keys", tourWTA, []string{"madison keys"}},
	{"Emma Raducanu", tourWTA, []string{"emma raducanu", "raducanu"}},
	{"Sofia Kenin", tourWTA, []string{"sofia kenin", "kenin"}},
	{"Bianca Andreescu", tourWTA, []string{"bianca andreescu", "andreescu"}},
}

type tournament struct {
	name    string   // display name
	stored  string   // how the historical corpus spells it
	slam    bool
	aliases []string // lowercase
}

var tournaments = []tournament{
	{"Australian Open", "Australian Open", true, []string{"australian open", "aus open", "ao"}},
	{"French Open", "Roland Garros", true, []string{"french open", "roland garros", "roland-garros", "rg"}},
	{"Wimbledon", "Wimbledon", true, []string{"wimbledon", "the championships"}},
	{"US Open", "US Open", true, []string{"us open", "u.s. open", "uso"}},
	{"Indian Wells", "Indian Wells Masters", false, []string{"indian wells", "bnp paribas open"}},
	{"Miami Open", "Miami Masters", false, []string{"miami open", "miami"}},
	{"Monte Carlo Masters", "Monte Carlo Masters", false, []string{"monte carlo", "monte-carlo"}},
	{"Madrid Open", "Madrid Masters", false, []string{"madrid open", "madrid"}},
	{"Italian Open", "Rome Masters", false, []string{"italian open", "internazionali", "rome"}},
	{"Canadian Open", "Canada Masters", false, []string{"canadian open", "rogers cup", "national bank open"}},
	{"Cincinnati Open", "Cincinnati Masters", false, []string{"cincinnati", "western & southern open"}},
	{"Shanghai Masters", "Shanghai Masters", false, []string{"shanghai"}},
	{"Paris Masters", "Paris Masters", false, []string{"paris masters", "rolex paris masters", "bercy"}},
	{"Tour Finals", "Tour Finals", false, []string{"atp finals", "wta finals", "tour finals", "nitto atp finals"}},
}

type aliasRef struct {
	alias string
	index int
	re    *regexp.Regexp
}

// Longest aliases first so "rafael nadal" wins over "nadal".
var (
	playerAliases     = buildAliases(len(roster), func(i int) []string { return roster[i].aliases })
	tournamentAliases = buildAliases(len(tournaments), func(i int) []string { return tournaments[i].aliases })
)

func buildAliases(n int, aliases func(int) []string) []aliasRef {
	var refs []aliasRef
	for i := 0; i < n; i++ {
		for _, a := range aliases(i) {
			refs = append(refs, aliasRef{
				alias: a,
				index: i,
				re:    regexp.MustCompile(`(^|[^\p{L}\p{N}])` + regexp.QuoteMeta(a) + `($|[^\p{L}\p{N}])`),
			})
		}
	}
	sort.SliceStable(refs, func(a, b int) bool { return len(refs[a].alias) > len(refs[b].alias) })
	return refs
}

// findPlayers returns roster entries in the order they appear in text.
func findPlayers(text string) []player {
	lower := strings.ToLower(text)
	pos := make(map[int]int) // roster index -> first offset
	for _, ref := range playerAliases {
		if _, seen := pos[ref.index]; seen {
			continue
		}
		if loc := ref.re.FindStringIndex(lower); loc != nil {
			pos[ref.index] = loc[0]
		}
	}
	idx := make([]int, 0, len(pos))
	for i := range pos {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool {
		if pos[idx[a]] != pos[idx[b]] {
			return pos[idx[a]] < pos[idx[b]]
		}
		return idx[a] < idx[b]
	})
	out := make([]player, len(idx))
	for i, r := range idx {
		out[i] = roster[r]
	}
	return out
}

// lookupPlayer resolves a free-form name (e.g. from the language model)
// against the roster.
func lookupPlayer(name string) (player, bool) {
	found := findPlayers(name)
	if len(found) == 0 {
		return player{}, false
	}
	return found[0], true
}

// findTournament returns the first tournament named in text.
func findTournament(text string) (tournament, bool) {
	lower := strings.ToLower(text)
	best, bestPos := -1, len(lower)+1
	for _, ref := range tournamentAliases {
		if loc := ref.re.FindStringIndex(lower); loc != nil && loc[0] < bestPos {
			best, bestPos = ref.index, loc[0]
		}
	}
	if best < 0 {
		return tournament{}, false
	}
	return tournaments[best], true
}

var reYear = regexp.MustCompile(`\b(19[6-9]\d|20[0-4]\d)\b`)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"twenty": 20, "fifty": 50, "hundred": 100,
}

// findYear returns the first plausible season year in text.
func findYear(text string) (int, bool) {
	m := reYear.FindString(text)
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	return y, err == nil
}

// parseCount reads a digit string or a number word.
func parseCount(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, ok := numberWords[s]; ok {
		return n, true
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// championKey is tournament display name + year + tour.
type championKey struct {
	tournament string
	year       int
	tour       string
}

// notHeld marks editions that were cancelled.
const notHeld = "-"

// knownChampions answers singles-title questions without touching the store.
var knownChampions = map[championKey]string{
	{"Australian Open", 2019, tourATP}: "Novak Djokovic",
	{"Australian Open", 2020, tourATP}: "Novak Djokovic",
	{"Australian Open", 2021, tourATP}: "Novak Djokovic",
	{"Australian Open", 2022, tourATP}: "Rafael Nadal",
	{"Australian Open", 2023, tourATP}: "Novak Djokovic",
	{"Australian Open", 2024, tourATP}: "Jannik Sinner",
	{"Australian Open", 2025, tourATP}: "Jannik Sinner",
	{"French Open", 2019, tourATP}:     "Rafael Nadal",
	{"French Open", 2020, tourATP}:     "Rafael Nadal",
	{"French Open", 2021, tourATP}:     "Novak Djokovic",
	{"French Open", 2022, tourATP}:     "Rafael Nadal",
	{"French Open", 2023, tourATP}:     "Novak Djokovic",
	{"French Open", 2024, tourATP}:     "Carlos Alcaraz",
	{"French Open", 2025, tourATP}:     "Carlos Alcaraz",
	{"Wimbledon", 2019, tourATP}:       "Novak Djokovic",
	{"Wimbledon", 2020, tourATP}:       notHeld,
	{"Wimbledon", 2021, tourATP}:       "Novak Djokovic",
	{"Wimbledon", 2022, tourATP}:       "Novak Djokovic",
	{"Wimbledon", 2023, tourATP}:       "Carlos Alcaraz",
	{"Wimbledon", 2024, tourATP}:       "Carlos Alcaraz",
	{"Wimbledon", 2025, tourATP}:       "Jannik Sinner",
	{"US Open", 2019, tourATP}:         "Rafael Nadal",
	{"US Open", 2020, tourATP}:         "Dominic Thiem",
	{"US Open", 2021, tourATP}:         "Daniil Medvedev",
	{"US Open", 2022, tourATP}:         "Carlos Alcaraz",
	{"US Open", 2023, tourATP}:         "Novak Djokovic",
	{"US Open", 2024, tourATP}:         "Jannik Sinner",
	{"US Open", 2025, tourATP}:         "Carlos Alcaraz",

	{"Australian Open", 2019, tourWTA}: "Naomi Osaka",
	{"Australian Open", 2020, tourWTA}: "Sofia Kenin",
	{"Australian Open", 2021, tourWTA}: "Naomi Osaka",
	{"Australian Open", 2022, tourWTA}: "Ashleigh Barty",
	{"Australian Open", 2023, tourWTA}: "Aryna Sabalenka",
	{"Australian Open", 2024, tourWTA}: "Aryna Sabalenka",
	{"Australian Open", 2025, tourWTA}: "Madison Keys",
	{"French Open", 2019, tourWTA}:     "Ashleigh Barty",
	{"French Open", 2020, tourWTA}:     "Iga Swiatek",
	{"French Open", 2021, tourWTA}:     "Barbora Krejcikova",
	{"French Open", 2022, tourWTA}:     "Iga Swiatek",
	{"French Open", 2023, tourWTA}:     "Iga Swiatek",
	{"French Open", 2024, tourWTA}:     "Iga Swiatek",
	{"French Open", 2025, tourWTA}:     "Coco Gauff",
	{"Wimbledon", 2019, tourWTA}:       "Simona Halep",
	{"Wimbledon", 2020, tourWTA}:       notHeld,
	{"Wimbledon", 2021, tourWTA}:       "Ashleigh Barty",
	{"Wimbledon", 2022, tourWTA}:       "Elena Rybakina",
	{"Wimbledon", 2023, tourWTA}:       "Marketa Vondrousova",
	{"Wimbledon", 2024, tourWTA}:       "Barbora Krejcikova",
	{"Wimbledon", 2025, tourWTA}:       "Iga Swiatek",
	{"US Open", 2019, tourWTA}:         "Bianca Andreescu",
	{"US Open", 2020, tourWTA}:         "Naomi Osaka",
	{"US Open", 2021, tourWTA}:         "Emma Raducanu",
	{"US Open", 2022, tourWTA}:         "Iga Swiatek",
	{"US Open", 2023, tourWTA}:         "Coco Gauff",
	{"US Open", 2024, tourWTA}:         "Aryna Sabalenka",
	{"US Open", 2025, tourWTA}:         "Aryna Sabalenka",
}
