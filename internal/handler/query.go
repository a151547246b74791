package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/asktennis/asktennis/internal/middleware"
	"github.com/asktennis/asktennis/internal/models"
	"github.com/asktennis/asktennis/internal/security"
	"github.com/asktennis/asktennis/internal/service"
	"github.com/rs/zerolog/log"
)

const (
	maxQueryBody         = 64 << 10
	historyRecordTimeout = 5 * time.Second
)

// Answerer resolves a question to an answer.
type Answerer interface {
	Answer(ctx context.Context, q models.Question) models.Answer
}

// HistoryRecorder stores answered questions.
type HistoryRecorder interface {
	Record(ctx context.Context, e service.HistoryEntry) error
}

// QueryHandler handles POST /api/query
type QueryHandler struct {
	pipeline  Answerer
	validator *security.QuestionValidator
	audit     *security.AuditLogger
	history   HistoryRecorder
}

// NewQueryHandler builds the handler. history may be nil.
func NewQueryHandler(pipeline Answerer, validator *security.QuestionValidator, audit *security.AuditLogger, history HistoryRecorder) *QueryHandler {
	if validator == nil {
		validator = security.NewQuestionValidator()
	}
	return &QueryHandler{
		pipeline:  pipeline,
		validator: validator,
		audit:     audit,
		history:   history,
	}
}

// Ask handles POST /api/query
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.SetDefaults()

	if v := h.validator.Validate(req.Question); !v.Valid {
		models.WriteError(w, http.StatusBadRequest, v.Message)
		return
	}
	q, err := models.NewQuestion(req.Question, req.UserID)
	if err != nil {
		models.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	answer, err := h.answer(r.Context(), q)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFrom(r.Context())).
			Str("question", q.Text).
			Msg("unrecoverable pipeline error")
		models.WriteError(w, http.StatusInternalServerError, "unable to answer the question right now")
		return
	}
	elapsed := time.Since(start)

	h.audit.LogQuestion(security.QuestionAudit{
		Question:   q.Text,
		UserID:     q.UserID,
		QueryType:  answer.QueryType,
		DataSource: answer.DataSource,
		Confidence: answer.Confidence,
		Cached:     answer.Cached,
		RowCount:   answer.Data.Len(),
		DurationMs: elapsed.Milliseconds(),
	})
	h.record(q, answer, elapsed)

	models.WriteJSON(w, http.StatusOK, models.NewQueryResponse(q.Text, answer))
}

// answer shields the HTTP boundary from a pipeline panic.
func (h *QueryHandler) answer(ctx context.Context, q models.Question) (a models.Answer, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pipeline panic: %v", rec)
		}
	}()
	return h.pipeline.Answer(ctx, q), nil
}

func (h *QueryHandler) record(q models.Question, a models.Answer, elapsed time.Duration) {
	if h.history == nil {
		return
	}
	entry := service.HistoryEntry{
		QuestionHash: security.HashQuestion(q.Text),
		Question:     q.Text,
		QueryType:    a.QueryType,
		DataSource:   a.DataSource,
		Confidence:   a.Confidence,
		Cached:       a.Cached,
		RowCount:     a.Data.Len(),
		DurationMs:   elapsed.Milliseconds(),
		Timestamp:    a.Timestamp,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyRecordTimeout)
		defer cancel()
		if err := h.history.Record(ctx, entry); err != nil {
			log.Warn().Err(err).Msg("question history record failed")
		}
	}()
}
