// Package resolver decides how a local and a remote copy of a record merge.
package resolver

import (
	"bytes"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
)

// Side identifies which copy supplied the winning state.
type Side int

// Winning sides.
const (
	Local Side = iota
	Remote
)

func (s Side) String() string {
	if s == Remote {
		return "remote"
	}
	return "local"
}

// Outcome is the result of merging two copies of one record.
type Outcome struct {
	Record      model.SyncableRecord
	Winner      Side
	Resurrected bool        // a newer edit overrode a tombstone
	Changed     bool        // Record differs from the local copy and must be written
	MergedAt    time.Time   // merge time supplied by the caller
	Integrity   *errs.Error // set when both sides were tombstones with divergent metadata
}

// Resolve merges local and remote. It is pure: the same inputs always give
// the same Outcome, and swapping the arguments yields the same replicated
// state (UpdatedAt, DeletedAt, payload).
//
// Rules:
//   - one tombstone: the tombstone wins unless the live copy was updated
//     strictly after DeletedAt, in which case the record is live again;
//   - both live: last writer wins by UpdatedAt, ties broken by DeviceID,
//     then payload bytes, then RemoteID;
//   - both tombstones: the result is deleted, taken from the copy with the
//     later DeletedAt (then as above); divergent DeletedAt or UpdatedAt is
//     reported through Outcome.Integrity.
func Resolve(local, remote model.SyncableRecord, mergedAt time.Time) Outcome {
	out := Outcome{MergedAt: mergedAt}

	var winner model.SyncableRecord
	switch {
	case local.IsTombstone() && remote.IsTombstone():
		out.Winner = pickLWW(local, remote)
		if !local.DeletedAt.Equal(*remote.DeletedAt) || !local.UpdatedAt.Equal(remote.UpdatedAt) {
			out.Integrity = errs.E(errs.ConflictIntegrity, "resolve: divergent tombstones", nil)
		}
	case local.IsTombstone() || remote.IsTombstone():
		tomb, live, liveSide := local, remote, Remote
		if remote.IsTombstone() {
			tomb, live, liveSide = remote, local, Local
		}
		if live.UpdatedAt.After(*tomb.DeletedAt) {
			out.Winner = liveSide
			out.Resurrected = true
		} else {
			out.Winner = other(liveSide)
		}
	default:
		out.Winner = pickLWW(local, remote)
	}

	if out.Winner == Remote {
		winner = remote.Clone()
	} else {
		winner = local.Clone()
	}
	winner.UpdatedAt = maxTime(local.UpdatedAt, remote.UpdatedAt)
	if out.Resurrected {
		winner.DeletedAt = nil
	}
	if winner.IsTombstone() {
		winner.Payload = nil
	}

	winner.LocalID = local.LocalID
	winner.RemoteID = carryRemoteID(local, remote)
	if winner.SyncKey == "" {
		winner.SyncKey = firstNonEmpty(local.SyncKey, remote.SyncKey)
	}

	// The remote copy is current iff the merged state is what it already holds.
	if winner.SameState(remote) {
		winner.SyncedAt = model.TimePtr(winner.UpdatedAt)
	} else {
		winner.SyncedAt = localAgreement(local, winner)
	}

	out.Record = winner
	out.Changed = !winner.SameState(local) || !sameIDs(winner, local) || !syncedEqual(winner, local)
	return out
}

// pickLWW chooses between two copies of equal tombstone status. Two
// tombstones are ordered by DeletedAt first, then by UpdatedAt.
func pickLWW(local, remote model.SyncableRecord) Side {
	if local.IsTombstone() && remote.IsTombstone() {
		if c := local.DeletedAt.Compare(*remote.DeletedAt); c != 0 {
			if c > 0 {
				return Local
			}
			return Remote
		}
	}
	if c := local.UpdatedAt.Compare(remote.UpdatedAt); c != 0 {
		if c > 0 {
			return Local
		}
		return Remote
	}
	if local.DeviceID != remote.DeviceID {
		if local.DeviceID > remote.DeviceID {
			return Local
		}
		return Remote
	}
	if c := bytes.Compare(local.Payload, remote.Payload); c != 0 {
		if c > 0 {
			return Local
		}
		return Remote
	}
	if local.RemoteID != nil && remote.RemoteID != nil {
		if bytes.Compare(local.RemoteID.Bytes(), remote.RemoteID.Bytes()) < 0 {
			return Remote
		}
	}
	return Local
}

// localAgreement keeps the local SyncedAt when it is still below the merged
// UpdatedAt, otherwise clears it so the record is pushed.
func localAgreement(local, merged model.SyncableRecord) *time.Time {
	if local.SyncedAt != nil && local.SyncedAt.Before(merged.UpdatedAt) {
		t := *local.SyncedAt
		return &t
	}
	return nil
}

func carryRemoteID(local, remote model.SyncableRecord) *uuid.UUID {
	if local.RemoteID != nil {
		id := *local.RemoteID
		return &id
	}
	if remote.RemoteID != nil {
		id := *remote.RemoteID
		return &id
	}
	return nil
}

func sameIDs(a, b model.SyncableRecord) bool {
	if a.RemoteID == nil || b.RemoteID == nil {
		return a.RemoteID == nil && b.RemoteID == nil
	}
	return *a.RemoteID == *b.RemoteID
}

func syncedEqual(a, b model.SyncableRecord) bool {
	if a.SyncedAt == nil || b.SyncedAt == nil {
		return a.SyncedAt == nil && b.SyncedAt == nil
	}
	return a.SyncedAt.Equal(*b.SyncedAt)
}

func other(s Side) Side {
	if s == Local {
		return Remote
	}
	return Local
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
