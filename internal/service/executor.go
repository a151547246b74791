package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asktennis/asktennis/internal/models"
	"github.com/asktennis/asktennis/internal/resilience"
	"github.com/asktennis/asktennis/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// RelationalStore runs one parameterized statement. Implementations bind
// params positionally and never interpolate them into the statement text.
type RelationalStore interface {
	Query(ctx context.Context, statement string, params []any) (*models.ResultSet, error)
}

// ExecutionFailure wraps any database-level error, including timeouts.
type ExecutionFailure struct {
	Cause     error
	Statement string
	Duration  time.Duration
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("execute query (%s): %v", e.Duration.Round(time.Millisecond), e.Cause)
}

func (e *ExecutionFailure) Unwrap() error { return e.Cause }

// Timeout reports whether the statement ran out of time.
func (e *ExecutionFailure) Timeout() bool {
	return errors.Is(e.Cause, context.DeadlineExceeded)
}

// QueryExecutor runs validated QuerySpecs against the store.
type QueryExecutor struct {
	store         RelationalStore
	breaker       *resilience.Breaker
	timeout       time.Duration
	slowThreshold time.Duration
	metrics       *telemetry.Metrics
}

func NewQueryExecutor(store RelationalStore, breaker *resilience.Breaker, timeout, slowThreshold time.Duration, metrics *telemetry.Metrics) *QueryExecutor {
	return &QueryExecutor{
		store:         store,
		breaker:       breaker,
		timeout:       timeout,
		slowThreshold: slowThreshold,
		metrics:       metrics,
	}
}

// Execute runs spec once and tags the rows with its source. An empty
// ResultSet is a normal outcome; every error is an *ExecutionFailure.
func (e *QueryExecutor) Execute(ctx context.Context, spec models.QuerySpec) (*models.ResultSet, error) {
	ctx, span := telemetry.StartQuerySpan(ctx, string(spec.Source), spec.Shape)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var rs *models.ResultSet
	run := func() error {
		var err error
		rs, err = e.store.Query(ctx, spec.Statement, spec.Params)
		return err
	}

	start := time.Now()
	var err error
	if e.breaker != nil {
		err = e.breaker.Execute(run)
	} else {
		err = run()
	}
	elapsed := time.Since(start)

	e.metrics.RecordQuery(ctx, string(spec.Source), elapsed.Seconds(), err)
	telemetry.EndSpan(span, err)

	if err != nil {
		log.Error().
			Err(err).
			Str("statement", spec.Statement).
			Str("source", string(spec.Source)).
			Dur("duration", elapsed).
			Msg("query failed")
		return nil, &ExecutionFailure{Cause: err, Statement: spec.Statement, Duration: elapsed}
	}

	if e.slowThreshold > 0 && elapsed > e.slowThreshold {
		log.Warn().
			Str("statement", spec.Statement).
			Dur("duration", elapsed).
			Dur("threshold", e.slowThreshold).
			Msg("slow query")
	}

	if rs == nil {
		rs = models.NewResultSet(spec.Source)
	}
	rs.Source = spec.Source
	rs.DataSource = spec.Source.Provider()
	return rs, nil
}
