// Package model defines domain entities used by the sync engine, stores and services.
package model

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Kind names the domain entity stored in a record payload.
type Kind string

// Supported record kinds.
const (
	KindMedication    Kind = "medication"
	KindTask          Kind = "task"
	KindNote          Kind = "note"
	KindHealthRecord  Kind = "health_record"
	KindCalendarEvent Kind = "calendar_event"
)

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindMedication, KindTask, KindNote, KindHealthRecord, KindCalendarEvent}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, v := range Kinds() {
		if v == k {
			return true
		}
	}
	return false
}

// SyncableRecord is a locally mutable domain record together with its sync metadata.
type SyncableRecord struct {
	LocalID   uuid.UUID  // stable for the record's lifetime
	RemoteID  *uuid.UUID // assigned once, never changed afterwards
	Kind      Kind
	SyncKey   string // "<deviceID>/<localID>" of the creating device
	DeviceID  string // last writer
	UpdatedAt time.Time
	DeletedAt *time.Time // tombstone marker
	SyncedAt  *time.Time // last remote agreement, <= UpdatedAt
	Payload   json.RawMessage
}

// IsTombstone reports whether the record is soft-deleted.
func (r SyncableRecord) IsTombstone() bool { return r.DeletedAt != nil }

// Dirty reports whether the record has local changes not yet pushed.
func (r SyncableRecord) Dirty() bool {
	return r.SyncedAt == nil || r.SyncedAt.Before(r.UpdatedAt)
}

// Reconciled reports whether the last known state was agreed with the remote store.
func (r SyncableRecord) Reconciled() bool {
	return r.SyncedAt != nil && r.SyncedAt.Equal(r.UpdatedAt)
}

// Clone returns a deep copy so callers may mutate pointers and payload freely.
func (r SyncableRecord) Clone() SyncableRecord {
	out := r
	if r.RemoteID != nil {
		id := *r.RemoteID
		out.RemoteID = &id
	}
	out.DeletedAt = cloneTime(r.DeletedAt)
	out.SyncedAt = cloneTime(r.SyncedAt)
	if r.Payload != nil {
		out.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	return out
}

// SameState reports whether two copies carry the same replicated state.
// Local bookkeeping (LocalID, SyncedAt) is not compared.
func (r SyncableRecord) SameState(o SyncableRecord) bool {
	if !r.UpdatedAt.Equal(o.UpdatedAt) || r.DeviceID != o.DeviceID || r.Kind != o.Kind {
		return false
	}
	if !timePtrEqual(r.DeletedAt, o.DeletedAt) {
		return false
	}
	if r.IsTombstone() {
		return true
	}
	return string(r.Payload) == string(o.Payload)
}

// NextUpdatedAt returns a write timestamp that never regresses below prev.
func NextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Millisecond)
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}

// SyncKeyFor builds the stable application-level key of a new record.
func SyncKeyFor(deviceID string, localID uuid.UUID) string {
	return deviceID + "/" + localID.String()
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }

// RecordFailure describes one record that could not be synced in a cycle.
type RecordFailure struct {
	LocalID uuid.UUID
	Kind    string // error category, never raw error text
	Reason  string
}

// CycleStatus is the coarse status surfaced to users.
type CycleStatus string

// Cycle statuses.
const (
	StatusComplete  CycleStatus = "complete"
	StatusPending   CycleStatus = "pending"
	StatusFailed    CycleStatus = "failed"
	StatusCoalesced CycleStatus = "coalesced"
	StatusCancelled CycleStatus = "cancelled"
)

// Watermark is the persisted cycle state: the last fully applied remote change.
type Watermark struct {
	Seq      int64
	SyncedAt time.Time
}

// CycleResult aggregates the outcome of a single sync cycle.
type CycleResult struct {
	Status    CycleStatus
	Pulled    int
	Pushed    int
	Purged    int
	Failures  []RecordFailure
	Watermark Watermark
}

// Succeeded returns the number of records applied or pushed.
func (r CycleResult) Succeeded() int { return r.Pulled + r.Pushed }

// LedgerEntry is the idempotency ledger row for a verified purchase token.
type LedgerEntry struct {
	TokenDigest      []byte // blake2b of the purchase token; the raw token is never stored
	ProductID        string
	IsActive         bool
	ExpiryTimeMillis int64
	AutoRenewing     bool
	VerifiedAt       time.Time
}

// Purchase is the authority's view of a purchase token.
type Purchase struct {
	ProductID        string
	IsActive         bool
	ExpiryTimeMillis int64
	AutoRenewing     bool
}

// Document is a record as stored by the remote document store.
type Document struct {
	RemoteID  uuid.UUID
	Kind      Kind
	SyncKey   string
	DeviceID  string
	UpdatedAt time.Time
	DeletedAt *time.Time
	Body      json.RawMessage
	Seq       int64 // assigned by the remote store on every effective write
}

// ChangePage is one page of remote changes ordered by Seq.
type ChangePage struct {
	Documents []Document
	HasMore   bool
}
