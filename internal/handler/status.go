package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/asktennis/asktennis/internal/models"
	"github.com/rs/zerolog/log"
)

// PipelineReporter exposes pipeline and cache counters.
type PipelineReporter interface {
	Stats() models.PipelineStats
	CacheStats() models.CacheStats
}

// BreakerReporter is a named circuit breaker.
type BreakerReporter interface {
	Name() string
	State() string
}

// HistoryCounter counts indexed questions.
type HistoryCounter interface {
	Count(ctx context.Context, queryType string) (int64, error)
}

// StatusInfo is the static part of the status report.
type StatusInfo struct {
	StoreDriver   string
	LLMProvider   string
	DefaultSource string
}

// StatusHandler handles GET /api/status
type StatusHandler struct {
	info     StatusInfo
	started  time.Time
	pipeline PipelineReporter
	breakers []BreakerReporter
	history  HistoryCounter
}

// NewStatusHandler builds the handler. history may be nil.
func NewStatusHandler(info StatusInfo, pipeline PipelineReporter, history HistoryCounter, breakers ...BreakerReporter) *StatusHandler {
	return &StatusHandler{
		info:     info,
		started:  time.Now(),
		pipeline: pipeline,
		breakers: breakers,
		history:  history,
	}
}

func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	llmProvider := h.info.LLMProvider
	if llmProvider == "" {
		llmProvider = "none"
	}

	resp := models.StatusResponse{
		Status:        "ok",
		Version:       Version,
		Uptime:        time.Since(h.started).Round(time.Second).String(),
		StoreDriver:   h.info.StoreDriver,
		LLMProvider:   llmProvider,
		DefaultSource: h.info.DefaultSource,
		Cache:         h.pipeline.CacheStats(),
		Pipeline:      h.pipeline.Stats(),
		Breakers:      make(map[string]string, len(h.breakers)),
	}
	for _, b := range h.breakers {
		resp.Breakers[b.Name()] = b.State()
	}

	if h.history != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		n, err := h.history.Count(ctx, "")
		if err != nil {
			log.Warn().Err(err).Msg("question history count failed")
		} else {
			resp.HistoryCount = &n
		}
	}

	models.WriteJSON(w, http.StatusOK, resp)
}
