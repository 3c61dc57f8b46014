package syncengine

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
)

// fakeRemote is an in-memory document store with the server's write
// semantics: a put only takes a new sequence when the state differs.
type fakeRemote struct {
	mu     sync.Mutex
	docs   map[uuid.UUID]model.Document
	seq    int64
	puts   int
	writes int

	failAfterWrite int   // puts that are stored but answered with a transient error
	putErr         error // returned by every put when set
	onChanges      func(call int)
	changesCalls   int
}

var _ RemoteStore = (*fakeRemote)(nil)

func newFakeRemote() *fakeRemote {
	return &fakeRemote{docs: map[uuid.UUID]model.Document{}}
}

func (f *fakeRemote) Get(_ context.Context, id uuid.UUID) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, errs.E(errs.NotFound, "get", nil)
	}
	return &d, nil
}

func (f *fakeRemote) Put(_ context.Context, d model.Document) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return 0, f.putErr
	}
	cur, ok := f.docs[d.RemoteID]
	if !ok || !sameDoc(cur, d) {
		f.seq++
		d.Seq = f.seq
		f.docs[d.RemoteID] = d
		f.writes++
		cur = d
	}
	if f.failAfterWrite > 0 {
		f.failAfterWrite--
		return 0, errs.E(errs.Transient, "put", nil)
	}
	return cur.Seq, nil
}

// seed stores d as if another device had written it.
func (f *fakeRemote) seed(d model.Document) model.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	d.Seq = f.seq
	f.docs[d.RemoteID] = d
	return d
}

func (f *fakeRemote) ChangedSince(_ context.Context, since int64, limit int) (model.ChangePage, error) {
	f.mu.Lock()
	f.changesCalls++
	call, hook := f.changesCalls, f.onChanges
	var out []model.Document
	for _, d := range f.docs {
		if d.Seq > since {
			out = append(out, d)
		}
	}
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	page := model.ChangePage{Documents: out}
	if limit > 0 && len(out) > limit {
		page.Documents, page.HasMore = out[:limit], true
	}
	return page, nil
}

func (f *fakeRemote) doc(id uuid.UUID) (model.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	return d, ok
}

func (f *fakeRemote) counts() (puts, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts, f.writes
}

func sameDoc(a, b model.Document) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) || a.DeviceID != b.DeviceID {
		return false
	}
	if (a.DeletedAt == nil) != (b.DeletedAt == nil) {
		return false
	}
	if a.DeletedAt != nil && !a.DeletedAt.Equal(*b.DeletedAt) {
		return false
	}
	return bytes.Equal(a.Body, b.Body)
}
