package security

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog/log"
)

// AuditLogger logs answered questions with hashed identifiers
type AuditLogger struct {
	enabled bool
}

func NewAuditLogger(enabled bool) *AuditLogger {
	return &AuditLogger{enabled: enabled}
}

// QuestionAudit is one answered question as seen by the audit trail.
type QuestionAudit struct {
	Question   string
	UserID     string
	QueryType  string
	DataSource string
	Confidence float64
	Cached     bool
	RowCount   int
	DurationMs int64
}

// LogQuestion records a question_audit event
func (a *AuditLogger) LogQuestion(e QuestionAudit) {
	if a == nil || !a.enabled {
		return
	}
	log.Info().
		Str("event", "question_audit").
		Str("question_hash", HashQuestion(e.Question)).
		Str("user_hash", hashStr(e.UserID)[:16]).
		Str("query_type", e.QueryType).
		Str("data_source", e.DataSource).
		Float64("confidence", e.Confidence).
		Bool("cached", e.Cached).
		Int("row_count", e.RowCount).
		Int64("duration_ms", e.DurationMs).
		Msg("audit")
}

// LogRejectedStatement records a statement the SQL validator refused
func (a *AuditLogger) LogRejectedStatement(question, statement, reason string) {
	if a == nil || !a.enabled {
		return
	}
	log.Warn().
		Str("event", "statement_rejected").
		Str("question_hash", HashQuestion(question)).
		Str("sql_hash", hashStr(statement)[:16]).
		Str("reason", reason).
		Msg("audit")
}

func hashStr(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashQuestion is the short identifier the audit trail uses for a question.
func HashQuestion(question string) string {
	return hashStr(question)[:16]
}
