package syncengine

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kazu-apps/carenote-sync/internal/convert"
	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/logging"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/resolver"
)

type mergeResult struct {
	localID uuid.UUID
	changed bool
	done    bool // merged, or dropped as invalid
	err     error
}

// merge applies docs with a bounded worker pool and returns the highest
// sequence up to which every document was handled.
func (c *cycle) merge(ctx context.Context, docs []model.Document, since int64) int64 {
	results := make([]mergeResult, len(docs))

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for i := range docs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = c.apply(ctx, docs[i])
			return nil
		})
	}
	_ = g.Wait()

	seq := since
	contiguous := true
	for i, r := range results {
		switch {
		case r.err == nil && r.done:
			if r.changed {
				c.res.Pulled++
			}
		case r.err != nil && errs.KindOf(r.err) == errs.Validation:
			c.log.Warn("remote document dropped", logging.ErrorFields(r.err)...)
			c.fail(r.localID, r.err, "remote document rejected")
			r.done = true
		case r.err != nil:
			c.log.Warn("remote document not applied", logging.ErrorFields(r.err)...)
			c.fail(r.localID, r.err, "merge failed")
		}
		if !r.done {
			contiguous = false
		}
		if contiguous && docs[i].Seq > seq {
			seq = docs[i].Seq
		}
	}
	return seq
}

// apply merges one remote document into the store. Store writes are not
// cancelled mid-record; cancellation is honoured between records.
func (c *cycle) apply(ctx context.Context, d model.Document) mergeResult {
	wctx := context.WithoutCancel(ctx)
	remote := convert.DocumentToRecord(d)
	if err := c.check(remote); err != nil {
		return mergeResult{err: err}
	}

	local, err := c.records.GetByRemoteID(wctx, d.RemoteID)
	if errors.Is(err, errs.ErrNotFound) && d.SyncKey != "" {
		local, err = c.records.GetBySyncKey(wctx, d.SyncKey)
	}
	if errors.Is(err, errs.ErrNotFound) {
		return c.insert(wctx, remote)
	}
	if err != nil {
		return mergeResult{err: err}
	}

	mergedAt := c.now().UTC()
	res := mergeResult{localID: local.LocalID, done: true}
	var integrity *errs.Error
	_, err = c.records.Update(wctx, local.LocalID, func(cur *model.SyncableRecord) (*model.SyncableRecord, error) {
		if cur == nil {
			rec := remote.Clone()
			rec.LocalID = local.LocalID
			rec.SyncedAt = model.TimePtr(rec.UpdatedAt)
			res.changed = true
			return &rec, nil
		}
		out := resolver.Resolve(*cur, remote, mergedAt)
		integrity = out.Integrity
		if !out.Changed {
			return nil, nil
		}
		res.changed = true
		rec := out.Record
		return &rec, nil
	})
	if integrity != nil {
		c.log.Warn("divergent tombstones merged", zap.String("kind", string(d.Kind)), zap.String("error_kind", integrity.Kind.String()))
	}
	if err != nil {
		return mergeResult{localID: local.LocalID, err: err}
	}
	return res
}

func (c *cycle) insert(ctx context.Context, remote model.SyncableRecord) mergeResult {
	rec := remote.Clone()
	rec.LocalID = uuid.Must(uuid.NewV4())
	rec.SyncedAt = model.TimePtr(rec.UpdatedAt)
	_, err := c.records.Update(ctx, rec.LocalID, func(cur *model.SyncableRecord) (*model.SyncableRecord, error) {
		if cur != nil {
			return nil, errs.ErrAlreadyExists
		}
		return &rec, nil
	})
	if err != nil {
		return mergeResult{localID: rec.LocalID, err: err}
	}
	return mergeResult{localID: rec.LocalID, changed: true, done: true}
}

// check rejects records whose kind or payload does not validate.
func (c *cycle) check(r model.SyncableRecord) error {
	if c.validator != nil {
		return c.validator.Record(r)
	}
	if !r.Kind.Valid() {
		return errs.Validationf("unknown kind %q", r.Kind)
	}
	return nil
}
