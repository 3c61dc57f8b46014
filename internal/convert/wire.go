// Package convert maps records, documents and wire messages onto each other.
package convert

import (
	"fmt"
	"time"

	u "github.com/gofrs/uuid/v5"

	"github.com/kazu-apps/carenote-sync/internal/model"
	pb "github.com/kazu-apps/carenote-sync/internal/rpc/carenotev1"
)

// --- helpers ---

func ms(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMs(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// --- Records <-> Documents ---

// RecordToDocument builds the remote representation of r under remoteID.
// Tombstones carry no body.
func RecordToDocument(r model.SyncableRecord, remoteID u.UUID) model.Document {
	d := model.Document{
		RemoteID:  remoteID,
		Kind:      r.Kind,
		SyncKey:   r.SyncKey,
		DeviceID:  r.DeviceID,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.DeletedAt != nil {
		d.DeletedAt = model.TimePtr(r.DeletedAt.UTC())
		return d
	}
	if r.Payload != nil {
		d.Body = append([]byte(nil), r.Payload...)
	}
	return d
}

// DocumentToRecord builds the replicated part of a record from d.
// LocalID and SyncedAt are left for the caller.
func DocumentToRecord(d model.Document) model.SyncableRecord {
	id := d.RemoteID
	r := model.SyncableRecord{
		RemoteID:  &id,
		Kind:      d.Kind,
		SyncKey:   d.SyncKey,
		DeviceID:  d.DeviceID,
		UpdatedAt: d.UpdatedAt,
	}
	if d.DeletedAt != nil {
		r.DeletedAt = model.TimePtr(*d.DeletedAt)
		return r
	}
	if d.Body != nil {
		r.Payload = append([]byte(nil), d.Body...)
	}
	return r
}

// --- Documents <-> wire ---

// ToWireDocument converts a domain document to its wire message.
func ToWireDocument(d model.Document) *pb.Document {
	out := &pb.Document{
		RemoteID:        d.RemoteID.String(),
		Kind:            string(d.Kind),
		SyncKey:         d.SyncKey,
		DeviceID:        d.DeviceID,
		UpdatedAtMillis: ms(d.UpdatedAt),
		Seq:             d.Seq,
	}
	if d.DeletedAt != nil {
		out.DeletedAtMillis = ms(*d.DeletedAt)
	} else {
		out.Body = []byte(d.Body)
	}
	return out
}

// FromWireDocument converts a wire message to a domain document.
func FromWireDocument(in *pb.Document) (model.Document, error) {
	if in == nil {
		return model.Document{}, fmt.Errorf("nil document")
	}
	var id u.UUID
	if err := id.UnmarshalText([]byte(in.RemoteID)); err != nil {
		return model.Document{}, fmt.Errorf("invalid remote_id: %w", err)
	}
	if in.UpdatedAtMillis <= 0 {
		return model.Document{}, fmt.Errorf("missing updated_at")
	}
	d := model.Document{
		RemoteID:  id,
		Kind:      model.Kind(in.Kind),
		SyncKey:   in.SyncKey,
		DeviceID:  in.DeviceID,
		UpdatedAt: fromMs(in.UpdatedAtMillis),
		Seq:       in.Seq,
	}
	if in.DeletedAtMillis > 0 {
		d.DeletedAt = model.TimePtr(fromMs(in.DeletedAtMillis))
	} else if len(in.Body) > 0 {
		d.Body = append([]byte(nil), in.Body...)
	}
	return d, nil
}

// ToWireChanges converts a change page to its wire response.
func ToWireChanges(p model.ChangePage) *pb.ChangesResponse {
	out := &pb.ChangesResponse{HasMore: p.HasMore, Documents: make([]*pb.Document, 0, len(p.Documents))}
	for _, d := range p.Documents {
		out.Documents = append(out.Documents, ToWireDocument(d))
	}
	return out
}

// FromWireChanges converts a wire response to a change page.
func FromWireChanges(in *pb.ChangesResponse) (model.ChangePage, error) {
	if in == nil {
		return model.ChangePage{}, nil
	}
	page := model.ChangePage{HasMore: in.HasMore, Documents: make([]model.Document, 0, len(in.Documents))}
	for i, w := range in.Documents {
		d, err := FromWireDocument(w)
		if err != nil {
			return model.ChangePage{}, fmt.Errorf("document[%d]: %w", i, err)
		}
		page.Documents = append(page.Documents, d)
	}
	return page, nil
}

// --- Purchases ---

// ToWirePurchase converts the authority's answer to its wire response.
func ToWirePurchase(p model.Purchase) *pb.VerifyPurchaseResponse {
	return &pb.VerifyPurchaseResponse{
		ProductID:        p.ProductID,
		IsActive:         p.IsActive,
		ExpiryTimeMillis: p.ExpiryTimeMillis,
		AutoRenewing:     p.AutoRenewing,
	}
}

// FromWirePurchase converts a wire response to the authority's answer.
func FromWirePurchase(in *pb.VerifyPurchaseResponse) model.Purchase {
	if in == nil {
		return model.Purchase{}
	}
	return model.Purchase{
		ProductID:        in.ProductID,
		IsActive:         in.IsActive,
		ExpiryTimeMillis: in.ExpiryTimeMillis,
		AutoRenewing:     in.AutoRenewing,
	}
}
