package server

import (
	"net/http"

	"github.com/asktennis/asktennis/internal/agent"
	"github.com/asktennis/asktennis/internal/handler"
	"github.com/asktennis/asktennis/internal/llm"
	"github.com/asktennis/asktennis/internal/middleware"
	"github.com/asktennis/asktennis/internal/models"
	"github.com/asktennis/asktennis/internal/resilience"
	"github.com/asktennis/asktennis/internal/security"
	"github.com/asktennis/asktennis/internal/service"
	"github.com/asktennis/asktennis/internal/telemetry"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const serviceName = "asktennis"

func (s *Server) setupRoutes() (http.Handler, error) {
	cfg := s.cfg

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		log.Warn().Err(err).Msg("metrics unavailable")
	}

	// ─── Language model ─────────────────────────────────────────────────────────
	llmBreaker := resilience.NewBreaker("llm", cfg.BreakerMaxFailures, cfg.BreakerCooldown())
	var completer llm.Completer
	backend, err := llm.New(llm.Config{
		Provider:         cfg.LLMProvider,
		Model:            cfg.LLMModel,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		OllamaURL:        cfg.OllamaURL,
	})
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("language model disabled")
	case backend == nil:
		log.Warn().Msg("llm_provider not set - answers use templates only")
	default:
		completer = llm.NewGuarded(backend, llmBreaker, cfg.LLMTimeout())
	}

	// ─── Pipeline ───────────────────────────────────────────────────────────────
	defaultSource, _ := models.ParseDataSource(cfg.DefaultDataSource)
	classifier, err := service.NewIntentClassifier(completer, defaultSource, metrics)
	if err != nil {
		return nil, err
	}
	s.classifier = classifier

	storeBreaker := resilience.NewBreaker("store", cfg.BreakerMaxFailures, cfg.BreakerCooldown())
	auditLogger := security.NewAuditLogger(cfg.EnableAuditLogging)

	pipeline := agent.NewPipeline(agent.PipelineDeps{
		Classifier: classifier,
		Builder:    agent.NewQueryBuilder(completer, metrics),
		Validator:  security.NewSQLValidator(),
		Executor:   service.NewQueryExecutor(s.store, storeBreaker, cfg.QueryTimeout(), cfg.SlowQueryThreshold(), metrics),
		Composer:   agent.NewAnswerComposer(completer, metrics),
		Cache:      agent.NewQueryCache(cfg.CacheCapacity, cfg.CacheTTL()),
		Audit:      auditLogger,
		Metrics:    metrics,
		HasModel:   completer != nil,
	})

	// ─── Question history ───────────────────────────────────────────────────────
	var (
		recorder      handler.HistoryRecorder
		counter       handler.HistoryCounter
		historyPinger handler.Pinger
	)
	if cfg.ElasticsearchEnabled {
		history, err := service.NewQuestionHistory(cfg.ElasticsearchURL, cfg.ElasticsearchUser, cfg.ElasticsearchPassword, cfg.ElasticsearchIndex)
		if err != nil {
			log.Warn().Err(err).Msg("question history unavailable")
		} else {
			recorder, counter, historyPinger = history, history, history
		}
	}

	// ─── Data providers ─────────────────────────────────────────────────────────
	live := service.NewLiveProvider(cfg.LiveDataURL, cfg.LiveDataAPIKey, cfg.ProviderTimeout())
	historical := service.NewHistoricalProvider(cfg.HistoricalDataURL, cfg.ProviderTimeout())
	liveCheck := handler.HealthCheck{Name: "live_provider"}
	if cfg.LiveDataURL != "" {
		liveCheck.Pinger = live
	}
	historicalCheck := handler.HealthCheck{Name: "historical_provider"}
	if cfg.HistoricalDataURL != "" {
		historicalCheck.Pinger = historical
	}

	log.Info().
		Str("store_driver", cfg.StoreDriver).
		Str("llm_provider", cfg.LLMProvider).
		Bool("llm_enabled", completer != nil).
		Str("default_source", cfg.DefaultDataSource).
		Bool("history_enabled", recorder != nil).
		Bool("auth_enabled", cfg.EnableAuth && len(cfg.APIKeys) > 0).
		Bool("audit_logging", cfg.EnableAuditLogging).
		Msg("service configuration")

	if cfg.EnableAuth && len(cfg.APIKeys) == 0 {
		log.Warn().Msg("auth enabled but no API keys configured - auth is off")
	}

	// ─── Handlers ───────────────────────────────────────────────────────────────
	queryH := handler.NewQueryHandler(pipeline, security.NewQuestionValidator(), auditLogger, recorder)
	healthH := handler.NewHealthHandler(
		handler.HealthCheck{Name: "store", Pinger: s.store},
		liveCheck,
		historicalCheck,
		handler.HealthCheck{Name: "history", Pinger: historyPinger},
	)
	statusH := handler.NewStatusHandler(handler.StatusInfo{
		StoreDriver:   cfg.StoreDriver,
		LLMProvider:   cfg.LLMProvider,
		DefaultSource: cfg.DefaultDataSource,
	}, pipeline, counter, storeBreaker, llmBreaker)
	dataH := handler.NewDataHandler(live, historical)

	// ─── Router ─────────────────────────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins, cfg.APIKeyHeader)))
	r.Use(chiMiddleware.RealIP)
	r.Use(telemetry.HTTPMiddleware(serviceName))

	s.limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	r.Use(s.limiter.Middleware(cfg.APIKeyHeader))
	if cfg.EnableAuth && len(cfg.APIKeys) > 0 {
		r.Use(middleware.Auth(cfg.APIKeys, cfg.APIKeyHeader, cfg.APIPrefix+"/health"))
	}

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		r.Post("/query", queryH.Ask)
		r.Get("/health", healthH.Health)
		r.Get("/status", statusH.Status)
		r.Get("/data/{source}", dataH.Resources)
		r.Get("/data/{source}/{resource}", dataH.Fetch)
	})

	return r, nil
}
