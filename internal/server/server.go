package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/asktennis/asktennis/internal/config"
	"github.com/asktennis/asktennis/internal/middleware"
	"github.com/asktennis/asktennis/internal/service"
	"github.com/rs/zerolog/log"
)

// Store is the relational store the server owns.
type Store interface {
	service.RelationalStore
	Ping(ctx context.Context) error
	Close() error
}

type Server struct {
	cfg        *config.Config
	http       *http.Server
	store      Store
	classifier *service.IntentClassifier
	limiter    *middleware.RateLimiter
}

// New connects the store and builds the router. The store is required;
// every other dependency degrades to disabled when unavailable.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	s := &Server{cfg: cfg, store: store}
	router, err := s.setupRoutes()
	if err != nil {
		s.close()
		return nil, fmt.Errorf("setup routes: %w", err)
	}

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case "bigquery":
		return service.NewBigQueryStore(ctx, cfg.GCPProjectID, cfg.GoogleApplicationCredentials, cfg.BigQueryDataset, cfg.BigQueryLocation)
	default:
		return service.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	}
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("http server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("graceful shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
		defer cancel()

		err := s.http.Shutdown(shutdownCtx)
		s.close()
		return err
	case err := <-errCh:
		s.close()
		return err
	}
}

func (s *Server) close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.classifier != nil {
		s.classifier.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Warn().Err(err).Str("driver", s.cfg.StoreDriver).Msg("error closing store")
		} else {
			log.Info().Str("driver", s.cfg.StoreDriver).Msg("store closed")
		}
	}
}
