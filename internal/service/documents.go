package service

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/repository"
)

// DocumentService is the remote document store as seen by devices.
type DocumentService interface {
	// Get returns a single document by remote id.
	Get(ctx context.Context, recipientID, remoteID uuid.UUID) (*model.Document, error)
	// Put stores a document; replays of the same state keep the old sequence.
	Put(ctx context.Context, recipientID uuid.UUID, d model.Document) (seq int64, applied bool, err error)
	// Changes returns one page of documents with sequence greater than since.
	Changes(ctx context.Context, recipientID uuid.UUID, since int64, limit int) (model.ChangePage, error)
}

// PayloadChecker validates a live document body for its kind.
type PayloadChecker interface {
	Payload(kind model.Kind, raw []byte) error
}

type DocumentServiceImpl struct {
	repo     repository.DocumentRepository
	payloads PayloadChecker
	maxPage  int
	maxBody  int
}

// NewDocumentService constructs DocumentService with page and body limits.
// payloads may be nil, in which case bodies are only checked for presence.
func NewDocumentService(repo repository.DocumentRepository, payloads PayloadChecker, maxPage, maxBody int) *DocumentServiceImpl {
	if maxPage <= 0 {
		maxPage = 500
	}
	if maxBody <= 0 {
		maxBody = 64 << 10
	}
	return &DocumentServiceImpl{repo: repo, payloads: payloads, maxPage: maxPage, maxBody: maxBody}
}

// Get fetches a single document.
func (s *DocumentServiceImpl) Get(ctx context.Context, recipientID, remoteID uuid.UUID) (*model.Document, error) {
	if recipientID == uuid.Nil || remoteID == uuid.Nil {
		return nil, errs.Validationf("empty recipient/remote id")
	}
	return s.repo.Get(ctx, recipientID, remoteID)
}

// Put validates d and delegates to the repository.
// Validation rules:
// - known kind, non-empty sync key and device id
// - updated_at set
// - live documents carry a body within the size limit
func (s *DocumentServiceImpl) Put(ctx context.Context, recipientID uuid.UUID, d model.Document) (int64, bool, error) {
	if recipientID == uuid.Nil || d.RemoteID == uuid.Nil {
		return 0, false, errs.Validationf("empty recipient/remote id")
	}
	if !d.Kind.Valid() {
		return 0, false, errs.Validationf("unknown kind %q", d.Kind)
	}
	if d.SyncKey == "" || d.DeviceID == "" {
		return 0, false, errs.Validationf("empty sync_key/device_id")
	}
	if d.UpdatedAt.IsZero() {
		return 0, false, errs.Validationf("missing updated_at")
	}
	if d.DeletedAt == nil {
		if len(d.Body) == 0 {
			return 0, false, errs.Validationf("empty body")
		}
		if len(d.Body) > s.maxBody {
			return 0, false, errs.Validationf("body too large (%d > %d)", len(d.Body), s.maxBody)
		}
		if s.payloads != nil {
			if err := s.payloads.Payload(d.Kind, d.Body); err != nil {
				return 0, false, err
			}
		}
	}
	return s.repo.Put(ctx, recipientID, d)
}

// Changes clamps limit to the page maximum.
func (s *DocumentServiceImpl) Changes(ctx context.Context, recipientID uuid.UUID, since int64, limit int) (model.ChangePage, error) {
	if recipientID == uuid.Nil {
		return model.ChangePage{}, errs.Validationf("empty recipient id")
	}
	if since < 0 {
		return model.ChangePage{}, errs.Validationf("negative since")
	}
	if limit <= 0 || limit > s.maxPage {
		limit = s.maxPage
	}
	return s.repo.ChangedSince(ctx, recipientID, since, limit)
}
