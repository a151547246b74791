package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/asktennis/asktennis/internal/models"
	"github.com/asktennis/asktennis/internal/security"
	"github.com/asktennis/asktennis/internal/service"
	"github.com/asktennis/asktennis/internal/telemetry"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// State is a step of the answer state machine.
type State string

const (
	StateStart      State = "START"
	StateCacheCheck State = "CACHE_CHECK"
	StateClassify   State = "CLASSIFY"
	StateBuild      State = "BUILD"
	StateValidate   State = "VALIDATE"
	StateExecute    State = "EXECUTE"
	StateCompose    State = "COMPOSE"
	StateCacheStore State = "CACHE_STORE"
	StateError      State = "ERROR"
	StateDone       State = "DONE"
)

// Answer confidences. Degraded paths never exceed the path they replace.
const (
	confidenceKnown        = 0.95
	confidenceTemplate     = 0.9
	confidenceEmpty        = 0.5
	confidenceDatabaseOnly = 0.6
	confidenceCanned       = 0.2
	confidenceFallback     = 0.1
	confidenceError        = 0.0

	minGeneratedConfidence = 0.3
	maxGeneratedConfidence = 0.85
)

// Pipeline answers questions. Its public entry point never fails.
type Pipeline struct {
	classifier *service.IntentClassifier
	builder    *QueryBuilder
	validator  *security.SQLValidator
	executor   *service.QueryExecutor
	composer   *AnswerComposer
	cache      *QueryCache
	audit      *security.AuditLogger
	metrics    *telemetry.Metrics
	hasModel   bool

	sf singleflight.Group

	mu    sync.Mutex
	stats models.PipelineStats

	// observe, when set, sees every state transition.
	observe func(from, to State)
}

// PipelineDeps are the collaborators a Pipeline runs on.
type PipelineDeps struct {
	Classifier *service.IntentClassifier
	Builder    *QueryBuilder
	Validator  *security.SQLValidator
	Executor   *service.QueryExecutor
	Composer   *AnswerComposer
	Cache      *QueryCache
	Audit      *security.AuditLogger
	Metrics    *telemetry.Metrics
	// HasModel reports whether a language model is configured.
	HasModel bool
}

func NewPipeline(d PipelineDeps) *Pipeline {
	if d.Validator == nil {
		d.Validator = security.NewSQLValidator()
	}
	return &Pipeline{
		classifier: d.Classifier,
		builder:    d.Builder,
		validator:  d.Validator,
		executor:   d.Executor,
		composer:   d.Composer,
		cache:      d.Cache,
		audit:      d.Audit,
		metrics:    d.Metrics,
		hasModel:   d.HasModel,
		stats:      models.PipelineStats{ByQueryType: map[string]int64{}},
	}
}

// OnTransition registers fn to be called on every state change.
func (p *Pipeline) OnTransition(fn func(from, to State)) {
	p.observe = fn
}

func (p *Pipeline) Cache() *QueryCache { return p.cache }

func (p *Pipeline) CacheStats() models.CacheStats { return p.cache.Stats() }

func (p *Pipeline) Stats() models.PipelineStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.ByQueryType = make(map[string]int64, len(p.stats.ByQueryType))
	for k, v := range p.stats.ByQueryType {
		s.ByQueryType[k] = v
	}
	return s
}

// run is the per-question state of one pass through the machine.
type run struct {
	q      models.Question
	key    string
	rules  models.IntentAnalysis
	intent models.IntentAnalysis

	degraded    bool
	modelFailed bool
	failedAt    State
	err         error

	specs   []models.QuerySpec
	results []*models.ResultSet
	answer  models.Answer
}

// Answer resolves q to an Answer. Concurrent calls for the same question
// share one run. The shared run does not inherit the caller's cancellation;
// a caller that goes away gets an error answer while the others still
// receive the shared result.
func (p *Pipeline) Answer(ctx context.Context, q models.Question) (a models.Answer) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("question", q.Text).Msg("pipeline panic")
			a = p.finalize(ctx, p.unrecoverable(q))
		}
	}()

	ctx, span := telemetry.StartPipelineSpan(ctx, q.Text)
	defer telemetry.EndSpan(span, nil)

	rules := p.classifier.Rules(q.Text)
	key := CacheKey(q.Normalized(), rules.Type, rules.SourceTag())
	runCtx := context.WithoutCancel(ctx)

	ch := p.sf.DoChan(key, func() (interface{}, error) {
		return p.guardedRun(runCtx, q, key, rules), nil
	})

	var ans models.Answer
	select {
	case res := <-ch:
		if res.Shared {
			p.mu.Lock()
			p.stats.InFlightDedup++
			p.mu.Unlock()
		}
		var ok bool
		if ans, ok = res.Val.(models.Answer); !ok {
			ans = p.unrecoverable(q)
		}
	case <-ctx.Done():
		log.Info().Err(ctx.Err()).Str("question", q.Text).Msg("caller left before the answer was ready")
		ans = p.unrecoverable(q)
	}
	return p.finalize(ctx, ans)
}

// guardedRun keeps a panic inside the shared run from escaping its goroutine.
func (p *Pipeline) guardedRun(ctx context.Context, q models.Question, key string, rules models.IntentAnalysis) (a models.Answer) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("question", q.Text).Msg("pipeline panic")
			a = p.unrecoverable(q)
		}
	}()
	return p.run(ctx, q, key, rules)
}

func (p *Pipeline) finalize(ctx context.Context, a models.Answer) models.Answer {
	p.mu.Lock()
	p.stats.Questions++
	p.stats.ByQueryType[a.QueryType]++
	p.mu.Unlock()
	p.metrics.RecordAnswer(ctx, a.QueryType, a.Cached)
	return a
}

func (p *Pipeline) run(ctx context.Context, q models.Question, key string, rules models.IntentAnalysis) models.Answer {
	r := &run{q: q, key: key, rules: rules}

	state := StateStart
	for state != StateDone {
		start := time.Now()
		next := p.step(ctx, r, state)
		p.metrics.RecordStage(ctx, string(state), time.Since(start).Seconds())

		log.Debug().
			Str("from", string(state)).
			Str("to", string(next)).
			Bool("degraded", r.degraded).
			Msg("pipeline transition")
		if p.observe != nil {
			p.observe(state, next)
		}
		state = next
	}

	if r.degraded {
		p.mu.Lock()
		p.stats.DegradedRuns++
		p.mu.Unlock()
	}
	return r.answer
}

func (p *Pipeline) step(ctx context.Context, r *run, state State) State {
	switch state {
	case StateStart:
		return StateCacheCheck
	case StateCacheCheck:
		return p.cacheCheck(ctx, r)
	case StateClassify:
		return p.classify(ctx, r)
	case StateBuild:
		return p.build(ctx, r)
	case StateValidate:
		return p.validate(r)
	case StateExecute:
		return p.execute(ctx, r)
	case StateCompose:
		return p.compose(ctx, r)
	case StateCacheStore:
		return p.cacheStore(r)
	case StateError:
		return p.degrade(ctx, r)
	}
	r.answer = p.unrecoverable(r.q)
	return StateDone
}

func (p *Pipeline) cacheCheck(ctx context.Context, r *run) State {
	cached, ok := p.cache.Get(r.key)
	p.metrics.RecordCache(ctx, ok)
	if !ok {
		return StateClassify
	}
	cached.Cached = true
	r.answer = cached
	return StateDone
}

func (p *Pipeline) classify(ctx context.Context, r *run) State {
	stageCtx, span := telemetry.StartStageSpan(ctx, string(StateClassify), false)
	defer telemetry.EndSpan(span, nil)

	var modelOK bool
	r.intent, modelOK = p.classifier.Analyze(stageCtx, r.q)
	if p.hasModel && !modelOK {
		r.modelFailed = true
	}
	return StateBuild
}

func (p *Pipeline) build(ctx context.Context, r *run) State {
	stageCtx, span := telemetry.StartStageSpan(ctx, string(StateBuild), r.degraded)

	if text, ok := p.builder.Known(r.q, r.intent); ok {
		telemetry.EndSpan(span, nil)
		r.answer = p.newAnswer(r, text, nil, string(r.intent.Type), confidenceKnown)
		p.capForModelFailure(r)
		return StateCacheStore
	}

	r.specs = r.specs[:0]
	var firstErr error
	for _, src := range r.intent.DataSources {
		spec, err := p.builder.Build(stageCtx, r.intent, r.q, src, r.degraded)
		if err != nil {
			var bf *BuildFailure
			if errors.As(err, &bf) && bf.Cause != nil {
				r.modelFailed = true
			}
			log.Debug().Err(err).Str("source", string(src)).Msg("no query for source")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		r.specs = append(r.specs, spec)
	}
	telemetry.EndSpan(span, firstErr)

	if len(r.specs) == 0 {
		return p.fail(r, StateBuild, firstErr)
	}
	return StateValidate
}

func (p *Pipeline) validate(r *run) State {
	for i, spec := range r.specs {
		out := p.validator.Validate(spec.Statement)
		if !out.OK {
			p.audit.LogRejectedStatement(r.q.Text, spec.Statement, out.Reason)
			return p.fail(r, StateValidate, &ValidationRejected{Statement: spec.Statement, Reason: out.Reason})
		}
		r.specs[i].Statement = out.Cleaned
	}
	return StateExecute
}

func (p *Pipeline) execute(ctx context.Context, r *run) State {
	r.results = r.results[:0]
	for _, spec := range r.specs {
		rs, err := p.executor.Execute(ctx, spec)
		if err != nil {
			return p.fail(r, StateExecute, err)
		}
		r.results = append(r.results, rs)
	}
	return StateCompose
}

func (p *Pipeline) compose(ctx context.Context, r *run) State {
	stageCtx, span := telemetry.StartStageSpan(ctx, string(StateCompose), r.degraded)
	defer telemetry.EndSpan(span, nil)

	var texts []string
	var data *models.ResultSet
	conf, allEmpty := 1.0, true
	for i, spec := range r.specs {
		rs := r.results[i]
		c := p.composer.Compose(stageCtx, r.q, r.intent, spec, rs, !r.degraded)
		if c.ModelFailed {
			r.modelFailed = true
		}
		texts = append(texts, c.Text)
		data = models.Merge(data, rs)
		conf = min(conf, p.partConfidence(r, spec, rs, c))
		if !rs.Empty() {
			allEmpty = false
		}
	}

	text := strings.Join(texts, " ")
	switch {
	case r.degraded && allEmpty:
		r.answer = p.newAnswer(r, text, data, models.AnswerTypeFallback, confidenceFallback)
	case r.degraded:
		r.answer = p.newAnswer(r, text, data, models.AnswerTypeDatabaseOnly, min(conf, confidenceDatabaseOnly))
	default:
		r.answer = p.newAnswer(r, text, data, string(r.intent.Type), conf)
		p.capForModelFailure(r)
	}
	return StateCacheStore
}

func (p *Pipeline) partConfidence(r *run, spec models.QuerySpec, rs *models.ResultSet, c Composition) float64 {
	var conf float64
	switch c.Method {
	case ComposedTemplate:
		conf = confidenceTemplate
		if rs.Empty() {
			conf = confidenceEmpty
		}
	case ComposedModel:
		conf = generatedConfidence(r.intent)
	default:
		conf = confidenceCanned
	}
	if spec.Shape == models.ShapeGenerated {
		conf = min(conf, generatedConfidence(r.intent))
	}
	return conf
}

func generatedConfidence(intent models.IntentAnalysis) float64 {
	return max(minGeneratedConfidence, min(intent.Confidence, maxGeneratedConfidence))
}

// capForModelFailure marks answers produced without the language model.
func (p *Pipeline) capForModelFailure(r *run) {
	if p.hasModel && !r.modelFailed {
		return
	}
	r.answer.QueryType = models.AnswerTypeDatabaseOnly
	r.answer.Confidence = min(r.answer.Confidence, confidenceDatabaseOnly)
}

func (p *Pipeline) cacheStore(r *run) State {
	if r.answer.QueryType == models.AnswerTypeError {
		return StateDone
	}
	p.cache.Put(r.key, r.answer)
	return StateDone
}

// fail records the error and moves to ERROR.
func (p *Pipeline) fail(r *run, at State, err error) State {
	if err == nil {
		err = fmt.Errorf("%s failed", at)
	}
	r.failedAt = at
	r.err = err
	return StateError
}

// degrade takes the single template-only retry, or ends the run with a
// canned answer when the retry has already been used.
func (p *Pipeline) degrade(ctx context.Context, r *run) State {
	if !r.degraded {
		log.Warn().
			Err(r.err).
			Str("stage", string(r.failedAt)).
			Str("question", r.q.Text).
			Msg("degrading to template-only query")
		p.metrics.RecordDegradation(ctx, string(r.failedAt))
		r.degraded = true
		return StateBuild
	}

	log.Warn().
		Err(r.err).
		Str("stage", string(r.failedAt)).
		Str("question", r.q.Text).
		Msg("degraded retry failed, answering with canned text")

	if r.failedAt == StateExecute {
		r.answer = p.newAnswer(r, p.composer.Canned(r.q), nil, models.AnswerTypeError, confidenceError)
		return StateCacheStore
	}
	r.answer = p.newAnswer(r, p.composer.Canned(r.q), nil, models.AnswerTypeFallback, confidenceFallback)
	return StateCacheStore
}

func (p *Pipeline) newAnswer(r *run, text string, data *models.ResultSet, queryType string, conf float64) models.Answer {
	source := r.intent.SourceTag()
	if data != nil && data.DataSource != "" {
		source = data.DataSource
	}
	return models.Answer{
		Text:       text,
		Data:       data,
		QueryType:  queryType,
		Confidence: conf,
		DataSource: source,
		Timestamp:  time.Now(),
	}
}

func (p *Pipeline) unrecoverable(q models.Question) models.Answer {
	text := "Sorry, something went wrong while answering that tennis question. Please try again in a moment."
	if p.composer != nil {
		text = p.composer.Canned(q)
	}
	return models.Answer{
		Text:       text,
		QueryType:  models.AnswerTypeError,
		Confidence: confidenceError,
		DataSource: models.ProviderHistorical,
		Timestamp:  time.Now(),
	}
}
