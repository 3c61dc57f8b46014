package syncengine

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kazu-apps/carenote-sync/internal/convert"
	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/logging"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/retrypolicy"
)

// push sends every dirty record to the remote store. An authentication
// failure stops the remaining pushes and is returned; other failures are
// recorded per record. A record the remote store rejects as invalid is
// parked and not sent again until it is edited.
func (c *cycle) push(ctx context.Context) error {
	dirty, err := c.records.QueryDirty(ctx, c.cfg.PushBatch)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	var pushed atomic.Int64
	for i := range dirty {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			r := dirty[i]
			err := c.pushOne(gctx, r)
			switch {
			case err == nil:
				pushed.Add(1)
			case errs.KindOf(err) == errs.Authentication:
				return err
			case gctx.Err() != nil:
			case errs.KindOf(err) == errs.Validation:
				c.log.Warn("push rejected", append(logging.ErrorFields(err), zap.String("kind", string(r.Kind)))...)
				c.fail(r.LocalID, err, "push rejected")
				if err := c.records.Reject(context.WithoutCancel(gctx), r.LocalID, r.UpdatedAt); err != nil {
					c.log.Warn("park rejected record failed", logging.ErrorFields(err)...)
				}
			default:
				c.log.Warn("push failed", append(logging.ErrorFields(err), zap.String("kind", string(r.Kind)))...)
				c.fail(r.LocalID, err, "push failed")
			}
			return nil
		})
	}
	err = g.Wait()
	c.res.Pushed = int(pushed.Load())
	if err != nil {
		return err
	}
	return ctx.Err()
}

// pushOne validates r, puts it under its remote id and marks it synced if
// the local row has not changed in the meantime.
func (c *cycle) pushOne(ctx context.Context, r model.SyncableRecord) error {
	if r.SyncKey == "" {
		return errs.Validationf("record has no sync key")
	}
	if err := c.check(r); err != nil {
		return err
	}
	remoteID := RemoteIDFor(r.SyncKey)
	if r.RemoteID != nil {
		remoteID = *r.RemoteID
	}
	doc := convert.RecordToDocument(r, remoteID)
	if _, err := retrypolicy.DoValue(ctx, c.cfg.Retry, func(ctx context.Context) (int64, error) {
		return c.remote.Put(ctx, doc)
	}); err != nil {
		return err
	}

	_, err := c.records.Update(context.WithoutCancel(ctx), r.LocalID, func(cur *model.SyncableRecord) (*model.SyncableRecord, error) {
		if cur == nil {
			return nil, nil
		}
		next := cur.Clone()
		if next.RemoteID == nil {
			next.RemoteID = &remoteID
		}
		if cur.SameState(r) {
			next.SyncedAt = model.TimePtr(cur.UpdatedAt)
		}
		return &next, nil
	})
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	return err
}

// purgeCandidates returns tombstones past the retention window that the
// remote store already has.
func (c *cycle) purgeCandidates(ctx context.Context) ([]model.SyncableRecord, error) {
	if c.cfg.Retention <= 0 {
		return nil, nil
	}
	old, err := c.records.QueryTombstonesOlderThan(ctx, c.now().Add(-c.cfg.Retention))
	if err != nil {
		return nil, err
	}
	out := old[:0]
	for _, r := range old {
		if r.SyncedAt != nil && !r.SyncedAt.Before(*r.DeletedAt) && !r.SyncedAt.Before(r.UpdatedAt) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *cycle) purge(ctx context.Context) {
	cands, err := c.purgeCandidates(ctx)
	if err != nil {
		c.log.Warn("purge query failed", logging.ErrorFields(err)...)
		return
	}
	for _, r := range cands {
		if ctx.Err() != nil {
			return
		}
		ok, err := c.records.Purge(context.WithoutCancel(ctx), r.LocalID)
		if err != nil {
			c.log.Warn("purge failed", logging.ErrorFields(err)...)
			continue
		}
		if ok {
			c.res.Purged++
		}
	}
}
