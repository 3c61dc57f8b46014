package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/repository"
)

type fakeDocRepo struct {
	putIn   model.Document
	putSeq  int64
	putErr  error
	putCall int

	chSince int64
	chLimit int
	chOut   model.ChangePage

	getOut *model.Document
	getErr error
}

var _ repository.DocumentRepository = (*fakeDocRepo)(nil)

func (f *fakeDocRepo) Get(_ context.Context, _, _ uuid.UUID) (*model.Document, error) {
	return f.getOut, f.getErr
}
func (f *fakeDocRepo) Put(_ context.Context, _ uuid.UUID, d model.Document) (int64, bool, error) {
	f.putCall++
	f.putIn = d
	return f.putSeq, f.putErr == nil, f.putErr
}
func (f *fakeDocRepo) ChangedSince(_ context.Context, _ uuid.UUID, since int64, limit int) (model.ChangePage, error) {
	f.chSince, f.chLimit = since, limit
	return f.chOut, nil
}

type rejectAll struct{}

func (rejectAll) Payload(model.Kind, []byte) error { return errs.Validationf("bad payload") }

func liveDoc() model.Document {
	return model.Document{
		RemoteID:  uuid.Must(uuid.NewV4()),
		Kind:      model.KindTask,
		SyncKey:   "tablet/4",
		DeviceID:  "tablet",
		UpdatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Body:      []byte(`{"title":"refill"}`),
	}
}

func TestDocumentService_Put_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := &fakeDocRepo{}
	s := NewDocumentService(repo, nil, 10, 32)
	rid := uuid.Must(uuid.NewV4())

	cases := map[string]func(d *model.Document){
		"nil remote id": func(d *model.Document) { d.RemoteID = uuid.Nil },
		"unknown kind":  func(d *model.Document) { d.Kind = "recipe" },
		"no sync key":   func(d *model.Document) { d.SyncKey = "" },
		"no device":     func(d *model.Document) { d.DeviceID = "" },
		"no timestamp":  func(d *model.Document) { d.UpdatedAt = time.Time{} },
		"empty body":    func(d *model.Document) { d.Body = nil },
		"large body":    func(d *model.Document) { d.Body = []byte(`{"title":"0123456789012345678901234567890123456789"}`) },
	}
	for name, mutate := range cases {
		d := liveDoc()
		mutate(&d)
		if _, _, err := s.Put(ctx, rid, d); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("%s: want validation error, got %v", name, err)
		}
	}
	if _, _, err := s.Put(ctx, uuid.Nil, liveDoc()); err == nil {
		t.Fatalf("want error on empty recipient")
	}
	if repo.putCall != 0 {
		t.Fatalf("repo must not be called on invalid input")
	}
}

func TestDocumentService_Put_TombstoneNeedsNoBody(t *testing.T) {
	t.Parallel()
	repo := &fakeDocRepo{putSeq: 4}
	s := NewDocumentService(repo, rejectAll{}, 10, 32)

	d := liveDoc()
	del := d.UpdatedAt
	d.DeletedAt = &del
	d.Body = nil

	seq, applied, err := s.Put(context.Background(), uuid.Must(uuid.NewV4()), d)
	if err != nil || seq != 4 || !applied {
		t.Fatalf("tombstone put: seq=%d applied=%v err=%v", seq, applied, err)
	}
	if repo.putIn.RemoteID != d.RemoteID {
		t.Fatalf("document not forwarded")
	}
}

func TestDocumentService_Put_ChecksPayload(t *testing.T) {
	t.Parallel()
	repo := &fakeDocRepo{}
	s := NewDocumentService(repo, rejectAll{}, 10, 1024)

	if _, _, err := s.Put(context.Background(), uuid.Must(uuid.NewV4()), liveDoc()); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want payload validation error, got %v", err)
	}
}

func TestDocumentService_Changes_ClampsLimit(t *testing.T) {
	t.Parallel()
	repo := &fakeDocRepo{chOut: model.ChangePage{HasMore: true}}
	s := NewDocumentService(repo, nil, 50, 0)
	rid := uuid.Must(uuid.NewV4())

	if _, err := s.Changes(context.Background(), rid, -1, 10); err == nil {
		t.Fatalf("want error on negative since")
	}

	page, err := s.Changes(context.Background(), rid, 7, 1000)
	if err != nil || !page.HasMore {
		t.Fatalf("changes: %+v %v", page, err)
	}
	if repo.chSince != 7 || repo.chLimit != 50 {
		t.Fatalf("want since=7 limit=50, got %d %d", repo.chSince, repo.chLimit)
	}

	_, _ = s.Changes(context.Background(), rid, 0, 0)
	if repo.chLimit != 50 {
		t.Fatalf("zero limit should use the maximum, got %d", repo.chLimit)
	}
}

func TestDocumentService_RepoErrorsPropagate(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	repo := &fakeDocRepo{putErr: boom, getErr: errs.ErrNotFound}
	s := NewDocumentService(repo, nil, 10, 1024)
	rid := uuid.Must(uuid.NewV4())

	if _, _, err := s.Put(context.Background(), rid, liveDoc()); !errors.Is(err, boom) {
		t.Fatalf("want repo error, got %v", err)
	}
	if _, err := s.Get(context.Background(), rid, uuid.Must(uuid.NewV4())); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}
