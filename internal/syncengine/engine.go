// Package syncengine reconciles the local record store with the remote
// document store: pull, merge, push, deletion propagation and retention purge.
package syncengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/logging"
	"github.com/kazu-apps/carenote-sync/internal/metrics"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/repository"
	"github.com/kazu-apps/carenote-sync/internal/retrypolicy"
	"github.com/kazu-apps/carenote-sync/internal/validate"
)

// RemoteIDNamespace scopes the name-based remote ids derived from sync keys.
var RemoteIDNamespace = uuid.Must(uuid.FromString("5b0c6f0e-4a1d-5c7e-9f3b-2d8a61c4e7a9"))

// RemoteIDFor derives the remote id of a record from its sync key. Every
// device computes the same id, so a retried first push cannot create a
// second remote document.
func RemoteIDFor(syncKey string) uuid.UUID {
	return uuid.NewV5(RemoteIDNamespace, syncKey)
}

// RemoteStore is the remote document store as seen by the engine.
type RemoteStore interface {
	// Get returns the current document or an errs.NotFound error.
	Get(ctx context.Context, remoteID uuid.UUID) (*model.Document, error)
	// Put stores d and returns its change sequence. Putting the same state
	// twice has the effect of one write.
	Put(ctx context.Context, d model.Document) (int64, error)
	// ChangedSince returns documents with a sequence above since, in order.
	ChangedSince(ctx context.Context, since int64, limit int) (model.ChangePage, error)
}

// Config tunes a sync cycle.
type Config struct {
	Workers   int           // merge and push concurrency
	PageSize  int           // documents per ChangedSince call
	PushBatch int           // dirty records pushed per cycle, 0 means all
	Retention time.Duration // tombstone retention, 0 disables purging
	Retry     retrypolicy.Policy
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		PageSize:  200,
		PushBatch: 500,
		Retention: 30 * 24 * time.Hour,
		Retry:     retrypolicy.Default(),
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithValidator checks payloads against their schemas before merge and push.
func WithValidator(v *validate.Validator) Option { return func(e *Engine) { e.validator = v } }

// WithMetrics records cycle metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithTransitionHook observes every state transition.
func WithTransitionHook(fn func(from, to State)) Option { return func(e *Engine) { e.hook = fn } }

// Engine runs sync cycles. It is safe for concurrent use; overlapping calls
// to RunSyncCycle coalesce into the running cycle.
type Engine struct {
	records repository.RecordStore
	state   repository.StateStore
	remote  RemoteStore
	cfg     Config
	log     *zap.Logger

	now       func() time.Time
	validator *validate.Validator
	metrics   *metrics.Metrics
	hook      func(from, to State)

	running atomic.Bool
	current atomic.Int32
}

// New builds an engine.
func New(records repository.RecordStore, state repository.StateStore, remote RemoteStore, cfg Config, log *zap.Logger, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{records: records, state: state, remote: remote, cfg: cfg, log: log, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// State returns the current state.
func (e *Engine) State() State { return State(e.current.Load()) }

func (e *Engine) transition(to State) {
	from := State(e.current.Swap(int32(to)))
	if from == to {
		return
	}
	e.log.Debug("sync state", zap.Stringer("from", from), zap.Stringer("to", to))
	if e.hook != nil {
		e.hook(from, to)
	}
}

// RunSyncCycle performs one pull-merge-push-purge cycle. A call made while
// another cycle runs returns StatusCoalesced at once. The returned error is
// set only for failed or cancelled cycles.
func (e *Engine) RunSyncCycle(ctx context.Context) (model.CycleResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return model.CycleResult{Status: model.StatusCoalesced}, nil
	}
	defer e.running.Store(false)

	start := time.Now()
	c := &cycle{Engine: e}
	res, err := c.run(ctx)
	if e.State() != StateIdle {
		e.transition(StateIdle)
	}

	e.metrics.ObserveCycle(string(res.Status), time.Since(start))
	e.metrics.AddRecords("pulled", res.Pulled)
	e.metrics.AddRecords("pushed", res.Pushed)
	e.metrics.AddRecords("purged", res.Purged)
	e.metrics.AddRecords("failed", len(res.Failures))

	fields := []zap.Field{
		zap.String("status", string(res.Status)),
		zap.Int("pulled", res.Pulled),
		zap.Int("pushed", res.Pushed),
		zap.Int("purged", res.Purged),
		zap.Int("failed", len(res.Failures)),
		zap.Int64("watermark", res.Watermark.Seq),
		zap.Duration("dur", time.Since(start)),
	}
	if err != nil {
		e.log.Warn("sync cycle", append(fields, logging.ErrorFields(err)...)...)
	} else {
		e.log.Info("sync cycle", fields...)
	}
	return res, err
}

// cycle holds the mutable state of one run.
type cycle struct {
	*Engine

	mu  sync.Mutex
	res model.CycleResult
}

func (c *cycle) fail(local uuid.UUID, err error, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res.Failures = append(c.res.Failures, model.RecordFailure{
		LocalID: local,
		Kind:    errs.KindOf(err).String(),
		Reason:  reason,
	})
}

func (c *cycle) finish(status model.CycleStatus, err error) (model.CycleResult, error) {
	c.res.Status = status
	if status == model.StatusComplete {
		c.transition(StateReconciled)
	} else {
		c.transition(StateFailed)
	}
	return c.res, err
}

// abort ends the cycle as cancelled when ctx is done, as failed otherwise.
func (c *cycle) abort(ctx context.Context, err error) (model.CycleResult, error) {
	if ctx.Err() != nil {
		return c.finish(model.StatusCancelled, ctx.Err())
	}
	return c.finish(model.StatusFailed, err)
}

func (c *cycle) run(ctx context.Context) (model.CycleResult, error) {
	if err := ctx.Err(); err != nil {
		return model.CycleResult{Status: model.StatusCancelled}, err
	}
	wm, err := c.state.LoadWatermark(ctx)
	if err != nil {
		return c.finish(model.StatusFailed, fmt.Errorf("load watermark: %w", err))
	}
	c.res.Watermark = wm

	first, err := c.fetch(ctx, wm.Seq)
	if err != nil {
		return c.abort(ctx, fmt.Errorf("pull: %w", err))
	}
	dirty, err := c.records.QueryDirty(ctx, c.cfg.PushBatch)
	if err != nil {
		return c.finish(model.StatusFailed, fmt.Errorf("query dirty: %w", err))
	}
	purgeable, err := c.purgeCandidates(ctx)
	if err != nil {
		return c.finish(model.StatusFailed, fmt.Errorf("query tombstones: %w", err))
	}
	if len(first.Documents) == 0 && !first.HasMore && len(dirty) == 0 && len(purgeable) == 0 {
		c.res.Status = model.StatusComplete
		return c.res, nil
	}

	// Pull
	c.transition(StatePulling)
	docs, err := c.pullAll(ctx, first)
	if err != nil {
		return c.abort(ctx, fmt.Errorf("pull: %w", err))
	}

	// Merge
	c.transition(StateMerging)
	seq := c.merge(ctx, docs, wm.Seq)
	if ctx.Err() != nil {
		return c.finish(model.StatusCancelled, ctx.Err())
	}

	// Push
	c.transition(StatePushing)
	if err := c.push(ctx); err != nil {
		return c.abort(ctx, err)
	}

	c.purge(ctx)
	if ctx.Err() != nil {
		return c.finish(model.StatusCancelled, ctx.Err())
	}

	next := model.Watermark{Seq: seq, SyncedAt: c.now().UTC()}
	if err := c.state.SaveWatermark(context.WithoutCancel(ctx), next); err != nil {
		return c.finish(model.StatusFailed, fmt.Errorf("save watermark: %w", err))
	}
	c.res.Watermark = next

	for _, f := range c.res.Failures {
		if f.Kind != errs.Validation.String() {
			return c.finish(model.StatusPending, nil)
		}
	}
	return c.finish(model.StatusComplete, nil)
}

func (c *cycle) fetch(ctx context.Context, since int64) (model.ChangePage, error) {
	return retrypolicy.DoValue(ctx, c.cfg.Retry, func(ctx context.Context) (model.ChangePage, error) {
		return c.remote.ChangedSince(ctx, since, c.cfg.PageSize)
	})
}

// pullAll follows the change feed from the probed first page to its end.
func (c *cycle) pullAll(ctx context.Context, first model.ChangePage) ([]model.Document, error) {
	docs := append([]model.Document(nil), first.Documents...)
	page := first
	for page.HasMore && len(page.Documents) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		page, err = c.fetch(ctx, page.Documents[len(page.Documents)-1].Seq)
		if err != nil {
			return nil, err
		}
		docs = append(docs, page.Documents...)
	}
	return docs, nil
}
