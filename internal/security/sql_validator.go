package security

import (
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// KnownTables is the default allowlist of readable tables.
var KnownTables = []string{
	"players",
	"rankings",
	"historical_rankings",
	"historical_matches",
	"tournaments",
	"matches",
}

var (
	reSelectPrefix = regexp.MustCompile(`(?i)^SELECT\b`)
	reMutating     = regexp.MustCompile(`(?i)\b(DROP|DELETE|UPDATE|INSERT|ALTER|CREATE|TRUNCATE)\b`)
	reFrom         = regexp.MustCompile(`(?i)\bFROM\b`)
	reTableRef     = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+("?[A-Za-z_][\w.]*"?)`)
	// EXTRACT(YEAR FROM x) and friends use FROM without naming a table.
	reFromInCall = regexp.MustCompile(`(?i)\b(?:EXTRACT|SUBSTRING|TRIM|OVERLAY)\s*\([^()]*\)`)
)

// sqlInjectionPatterns are rejected outright, never sanitized.
var sqlInjectionPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`--`), "comment marker --"},
	{regexp.MustCompile(`/\*|\*/`), "comment marker /* */"},
	{regexp.MustCompile(`(?i)\bUNION\b`), "UNION is not allowed"},
	{regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`), "tautology OR 1=1"},
	{regexp.MustCompile(`(?i)\band\s+1\s*=\s*1\b`), "tautology AND 1=1"},
	{regexp.MustCompile(`(?i)\bor\s+'1'\s*=\s*'1'`), "tautology OR '1'='1'"},
	{regexp.MustCompile(`(?i)\band\s+'1'\s*=\s*'1'`), "tautology AND '1'='1'"},
}

var dangerousFuncPrefixes = []string{"pg_", "lo_", "dblink", "file_", "copy_"}

// ValidationOutcome is the result of validating a candidate statement.
// Cleaned is set only when OK is true; Reason only when it is false.
type ValidationOutcome struct {
	OK      bool
	Cleaned string
	Reason  string
}

func reject(format string, args ...any) ValidationOutcome {
	return ValidationOutcome{Reason: fmt.Sprintf(format, args...)}
}

// SQLValidator guards every statement before it reaches the store.
type SQLValidator struct {
	tables map[string]bool
}

// NewSQLValidator builds a validator over the given table allowlist,
// falling back to KnownTables when none is given.
func NewSQLValidator(tables ...string) *SQLValidator {
	if len(tables) == 0 {
		tables = KnownTables
	}
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[strings.ToLower(t)] = true
	}
	return &SQLValidator{tables: set}
}

// Validate checks candidate against the read-only rules. It has no side effects.
func (v *SQLValidator) Validate(candidate string) ValidationOutcome {
	sql := StripCodeFence(candidate)
	if sql == "" {
		return reject("statement is empty")
	}

	if !reSelectPrefix.MatchString(sql) {
		return reject("only SELECT statements are allowed")
	}

	if m := reMutating.FindString(sql); m != "" {
		return reject("mutating keyword %s is not allowed", strings.ToUpper(m))
	}

	if !reFrom.MatchString(sql) {
		return reject("statement has no FROM clause")
	}

	switch n := strings.Count(sql, ";"); {
	case n > 1:
		return reject("multiple statements are not allowed")
	case n == 1:
		if !strings.HasSuffix(sql, ";") {
			return reject("multiple statements are not allowed")
		}
		sql = strings.TrimSpace(strings.TrimSuffix(sql, ";"))
	}

	for _, p := range sqlInjectionPatterns {
		if p.re.MatchString(sql) {
			return reject("injection pattern detected: %s", p.reason)
		}
	}

	scan := reFromInCall.ReplaceAllString(sql, "()")
	for _, m := range reTableRef.FindAllStringSubmatch(scan, -1) {
		if name := normalizeTable(m[1]); !v.tables[name] {
			return reject("table %q is not in the allowlist", name)
		}
	}

	if reason := v.checkParse(sql); reason != "" {
		return reject("%s", reason)
	}

	return ValidationOutcome{OK: true, Cleaned: sql}
}

// checkParse runs the statement through the PostgreSQL parser and returns
// a reason when it is not exactly one plain SELECT over allowed tables.
func (v *SQLValidator) checkParse(sql string) string {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return "statement does not parse: " + err.Error()
	}
	if len(result.Stmts) != 1 {
		return "multiple statements are not allowed"
	}
	sel := result.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil {
		return "only SELECT statements are allowed"
	}
	if err := v.walkSelect(sel); err != nil {
		return err.Error()
	}
	return ""
}

func (v *SQLValidator) walkSelect(sel *pg_query.SelectStmt) error {
	if sel.Op != pg_query.SetOperation_SETOP_NONE {
		return fmt.Errorf("set operations are not allowed")
	}
	if sel.IntoClause != nil {
		return fmt.Errorf("SELECT INTO is not allowed")
	}
	if len(sel.LockingClause) > 0 {
		return fmt.Errorf("locking clauses are not allowed")
	}
	if sel.WithClause != nil {
		return fmt.Errorf("WITH clauses are not allowed")
	}
	for _, item := range sel.FromClause {
		if err := v.walkFrom(item); err != nil {
			return err
		}
	}
	for _, target := range sel.TargetList {
		if rt := target.GetResTarget(); rt != nil {
			if err := v.walkExpr(rt.Val); err != nil {
				return err
			}
		}
	}
	return v.walkExpr(sel.WhereClause)
}

func (v *SQLValidator) walkFrom(node *pg_query.Node) error {
	if node == nil {
		return nil
	}
	if rv := node.GetRangeVar(); rv != nil {
		if rv.Schemaname != "" && !strings.EqualFold(rv.Schemaname, "public") {
			return fmt.Errorf("schema %q is not allowed", rv.Schemaname)
		}
		if name := strings.ToLower(rv.Relname); !v.tables[name] {
			return fmt.Errorf("table %q is not in the allowlist", name)
		}
		return nil
	}
	if je := node.GetJoinExpr(); je != nil {
		if err := v.walkFrom(je.Larg); err != nil {
			return err
		}
		if err := v.walkFrom(je.Rarg); err != nil {
			return err
		}
		return v.walkExpr(je.Quals)
	}
	if rs := node.GetRangeSubselect(); rs != nil {
		if sub := rs.Subquery.GetSelectStmt(); sub != nil {
			return v.walkSelect(sub)
		}
	}
	if node.GetRangeFunction() != nil {
		return fmt.Errorf("table functions are not allowed")
	}
	return nil
}

func (v *SQLValidator) walkExpr(node *pg_query.Node) error {
	if node == nil {
		return nil
	}
	if sl := node.GetSubLink(); sl != nil {
		if sub := sl.Subselect.GetSelectStmt(); sub != nil {
			if err := v.walkSelect(sub); err != nil {
				return err
			}
		}
		return v.walkExpr(sl.Testexpr)
	}
	if fc := node.GetFuncCall(); fc != nil {
		var parts []string
		for _, part := range fc.Funcname {
			if s := part.GetString_(); s != nil {
				parts = append(parts, strings.ToLower(s.Sval))
			}
		}
		if len(parts) > 1 && parts[0] != "pg_catalog" {
			return fmt.Errorf("schema-qualified function %q is not allowed", strings.Join(parts, "."))
		}
		if len(parts) > 0 {
			name := parts[len(parts)-1]
			for _, prefix := range dangerousFuncPrefixes {
				if strings.HasPrefix(name, prefix) {
					return fmt.Errorf("function %q is not allowed", name)
				}
			}
		}
		for _, arg := range fc.Args {
			if err := v.walkExpr(arg); err != nil {
				return err
			}
		}
		return nil
	}
	if ae := node.GetAExpr(); ae != nil {
		if err := v.walkExpr(ae.Lexpr); err != nil {
			return err
		}
		return v.walkExpr(ae.Rexpr)
	}
	if be := node.GetBoolExpr(); be != nil {
		for _, arg := range be.Args {
			if err := v.walkExpr(arg); err != nil {
				return err
			}
		}
	}
	return nil
}

func normalizeTable(raw string) string {
	name := strings.ToLower(strings.Trim(raw, `"`))
	if i := strings.LastIndex(name, "."); i != -1 {
		if schema := name[:i]; schema != "public" {
			return name
		}
		name = name[i+1:]
	}
	return name
}

// StripCodeFence removes a single leading/trailing ``` wrapper (with an
// optional language tag) and surrounding whitespace.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		if nl := strings.IndexByte(s, '\n'); nl != -1 && isFenceTag(s[:nl]) {
			s = s[nl+1:]
		} else if nl == -1 {
			s = strings.TrimPrefix(s, "sql ")
		}
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func isFenceTag(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "sql", "postgresql", "postgres", "pgsql":
		return true
	}
	return false
}
