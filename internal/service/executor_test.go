package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asktennis/asktennis/internal/models"
	"github.com/asktennis/asktennis/internal/resilience"
	"github.com/asktennis/asktennis/internal/service"
)

type fakeStore struct {
	rs    *models.ResultSet
	err   error
	block bool
	calls atomic.Int32
	args  []any
}

func (f *fakeStore) Query(ctx context.Context, statement string, params []any) (*models.ResultSet, error) {
	f.calls.Add(1)
	f.args = params
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.rs, f.err
}

var rankingSpec = models.QuerySpec{
	Statement: "SELECT p.name, r.ranking FROM rankings r JOIN players p ON p.id = r.player_id WHERE r.ranking = $1",
	Params:    []any{1},
	Source:    models.SourceLive,
	Shape:     "number_one",
}

func TestExecuteTagsSource(t *testing.T) {
	store := &fakeStore{rs: &models.ResultSet{
		Columns: []string{"name", "ranking"},
		Rows:    []models.Row{{"name": models.StringValue("Jannik Sinner"), "ranking": models.NumberValue(1)}},
	}}
	ex := service.NewQueryExecutor(store, nil, time.Second, time.Second, nil)

	rs, err := ex.Execute(context.Background(), rankingSpec)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rs.Source != models.SourceLive || rs.DataSource != models.ProviderLive {
		t.Errorf("source = %q/%q", rs.Source, rs.DataSource)
	}
	if rs.Len() != 1 || rs.Rows[0].Str("name") != "Jannik Sinner" {
		t.Errorf("rows = %+v", rs.Rows)
	}
	if len(store.args) != 1 || store.args[0] != 1 {
		t.Errorf("params passed = %v", store.args)
	}
}

func TestExecuteEmptyIsNotAnError(t *testing.T) {
	ex := service.NewQueryExecutor(&fakeStore{}, nil, time.Second, 0, nil)

	rs, err := ex.Execute(context.Background(), rankingSpec)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !rs.Empty() {
		t.Errorf("expected empty result, got %d rows", rs.Len())
	}
}

func TestExecuteWrapsFailure(t *testing.T) {
	cause := errors.New(`relation "rankings" does not exist`)
	ex := service.NewQueryExecutor(&fakeStore{err: cause}, nil, time.Second, 0, nil)

	_, err := ex.Execute(context.Background(), rankingSpec)
	var ef *service.ExecutionFailure
	if !errors.As(err, &ef) {
		t.Fatalf("err = %v, want *ExecutionFailure", err)
	}
	if !errors.Is(err, cause) {
		t.Error("ExecutionFailure should unwrap to the store error")
	}
	if ef.Statement != rankingSpec.Statement {
		t.Errorf("Statement = %q", ef.Statement)
	}
	if ef.Timeout() {
		t.Error("plain failure reported as timeout")
	}
}

func TestExecuteTimeout(t *testing.T) {
	ex := service.NewQueryExecutor(&fakeStore{block: true}, nil, 20*time.Millisecond, 0, nil)

	start := time.Now()
	_, err := ex.Execute(context.Background(), rankingSpec)
	var ef *service.ExecutionFailure
	if !errors.As(err, &ef) || !ef.Timeout() {
		t.Fatalf("err = %v, want timeout ExecutionFailure", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout did not bound the call")
	}
}

func TestExecuteBreakerOpens(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	breaker := resilience.NewBreaker("store", 2, time.Minute)
	ex := service.NewQueryExecutor(store, breaker, time.Second, 0, nil)

	for i := 0; i < 2; i++ {
		_, _ = ex.Execute(context.Background(), rankingSpec)
	}
	_, err := ex.Execute(context.Background(), rankingSpec)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	var ef *service.ExecutionFailure
	if !errors.As(err, &ef) {
		t.Error("open circuit should still surface as ExecutionFailure")
	}
	if got := store.calls.Load(); got != 2 {
		t.Errorf("store called %d times, want 2", got)
	}
}
