package remote

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/kazu-apps/carenote-sync/internal/auth"
	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/repository"
	pb "github.com/kazu-apps/carenote-sync/internal/rpc/carenotev1"
	grpcserver "github.com/kazu-apps/carenote-sync/internal/server/grpc"
	"github.com/kazu-apps/carenote-sync/internal/service"
)

// memDocs is an in-memory DocumentRepository with the same write
// semantics as the PostgreSQL one.
type memDocs struct {
	mu   sync.Mutex
	seq  int64
	docs map[uuid.UUID]map[uuid.UUID]model.Document
	puts int
}

var _ repository.DocumentRepository = (*memDocs)(nil)

func newMemDocs() *memDocs { return &memDocs{docs: map[uuid.UUID]map[uuid.UUID]model.Document{}} }

func (m *memDocs) Get(_ context.Context, rid, id uuid.UUID) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[rid][id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &d, nil
}

func (m *memDocs) Put(_ context.Context, rid uuid.UUID, d model.Document) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[rid] == nil {
		m.docs[rid] = map[uuid.UUID]model.Document{}
	}
	if cur, ok := m.docs[rid][d.RemoteID]; ok && same(cur, d) {
		return cur.Seq, false, nil
	}
	m.puts++
	m.seq++
	d.Seq = m.seq
	if d.DeletedAt != nil {
		d.Body = nil
	}
	m.docs[rid][d.RemoteID] = d
	return d.Seq, true, nil
}

func same(a, b model.Document) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) || a.DeviceID != b.DeviceID || (a.DeletedAt == nil) != (b.DeletedAt == nil) {
		return false
	}
	return a.DeletedAt != nil || bytes.Equal(a.Body, b.Body)
}

func (m *memDocs) ChangedSince(_ context.Context, rid uuid.UUID, since int64, limit int) (model.ChangePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Document
	for _, d := range m.docs[rid] {
		if d.Seq > since {
			all = append(all, d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })
	page := model.ChangePage{Documents: all}
	if len(all) > limit {
		page.Documents, page.HasMore = all[:limit], true
	}
	return page, nil
}

func (m *memDocs) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

type memPurchases struct{ rows map[string]model.Purchase }

func (m *memPurchases) Lookup(_ context.Context, digest []byte, productID string) (*model.Purchase, error) {
	p, ok := m.rows[string(digest)+productID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &p, nil
}

func (m *memPurchases) Record(_ context.Context, digest []byte, p model.Purchase) error {
	m.rows[string(digest)+p.ProductID] = p
	return nil
}

type testServer struct {
	docs      *memDocs
	ents      *service.EntitlementServiceImpl
	key       []byte
	recipient uuid.UUID
	lis       *bufconn.Listener
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		docs:      newMemDocs(),
		ents:      service.NewEntitlementService(&memPurchases{rows: map[string]model.Purchase{}}),
		key:       []byte("test-key"),
		recipient: uuid.Must(uuid.NewV4()),
		lis:       bufconn.Listen(1 << 20),
	}
	log := zap.NewNop()
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcserver.RecoverUnary(log),
		grpcserver.AuthUnary(ts.key),
	))
	srv := grpcserver.New(service.NewDocumentService(ts.docs, nil, 100, 0), ts.ents)
	pb.RegisterDocumentsServer(gs, srv)
	pb.RegisterEntitlementsServer(gs, srv)
	go func() { _ = gs.Serve(ts.lis) }()
	t.Cleanup(func() { gs.Stop(); _ = ts.lis.Close() })
	return ts
}

func (ts *testServer) token(t *testing.T, recipient uuid.UUID) string {
	t.Helper()
	tok, _, err := auth.NewIssuer(ts.key, time.Hour).Issue(auth.Principal{MemberID: uuid.Must(uuid.NewV4()), RecipientID: recipient})
	require.NoError(t, err)
	return tok
}

func (ts *testServer) client(t *testing.T, token string, rateLimit float64) *Client {
	t.Helper()
	c, err := Dial(Config{Addr: "passthrough:///bufnet", Token: token, Plaintext: true, RateLimit: rateLimit, Burst: 1},
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return ts.lis.Dial() }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleDoc() model.Document {
	return model.Document{
		RemoteID:  uuid.Must(uuid.NewV4()),
		Kind:      model.KindMedication,
		SyncKey:   "phone/9",
		DeviceID:  "phone",
		UpdatedAt: time.Date(2024, 2, 29, 8, 30, 0, 0, time.UTC),
		Body:      []byte(`{"name":"aspirin",  "dosage":"100mg"}`),
	}
}

func TestClient_RoundTrip(t *testing.T) {
	t.Parallel()
	ts := startServer(t)
	c := ts.client(t, ts.token(t, ts.recipient), 0)
	ctx := context.Background()

	d := sampleDoc()
	seq, err := c.Put(ctx, d)
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)

	again, err := c.Put(ctx, d)
	require.NoError(t, err)
	require.Equal(t, seq, again, "an identical put keeps the sequence")
	require.Equal(t, 1, ts.docs.writes())

	got, err := c.Get(ctx, d.RemoteID)
	require.NoError(t, err)
	require.Equal(t, string(d.Body), string(got.Body), "body bytes survive the wire")
	require.True(t, d.UpdatedAt.Equal(got.UpdatedAt))

	page, err := c.ChangedSince(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Documents, 1)
	require.False(t, page.HasMore)

	page, err = c.ChangedSince(ctx, seq, 10)
	require.NoError(t, err)
	require.Empty(t, page.Documents)
}

func TestClient_RecipientsAreIsolated(t *testing.T) {
	t.Parallel()
	ts := startServer(t)
	ctx := context.Background()

	_, err := ts.client(t, ts.token(t, ts.recipient), 0).Put(ctx, sampleDoc())
	require.NoError(t, err)

	other := ts.client(t, ts.token(t, uuid.Must(uuid.NewV4())), 0)
	page, err := other.ChangedSince(ctx, 0, 10)
	require.NoError(t, err)
	require.Empty(t, page.Documents)
}

func TestClient_ErrorKinds(t *testing.T) {
	t.Parallel()
	ts := startServer(t)
	ctx := context.Background()
	c := ts.client(t, ts.token(t, ts.recipient), 0)

	_, err := c.Get(ctx, uuid.Must(uuid.NewV4()))
	require.Equal(t, errs.NotFound, errs.KindOf(err))

	bad := sampleDoc()
	bad.SyncKey = ""
	_, err = c.Put(ctx, bad)
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = ts.client(t, "bogus", 0).ChangedSince(ctx, 0, 10)
	require.ErrorIs(t, err, errs.ErrAuthentication)

	_, err = c.Verify(ctx, "gp.unknown", "premium", "key")
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestClient_Verify(t *testing.T) {
	t.Parallel()
	ts := startServer(t)
	ctx := context.Background()
	want := model.Purchase{ProductID: "premium", IsActive: true, ExpiryTimeMillis: 1_900_000_000_000, AutoRenewing: true}
	require.NoError(t, ts.ents.Grant(ctx, "gp.token", want))

	got, err := ts.client(t, ts.token(t, ts.recipient), 0).Verify(ctx, "gp.token", "premium", uuid.Must(uuid.NewV4()).String())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestClient_RateLimited(t *testing.T) {
	t.Parallel()
	ts := startServer(t)
	c := ts.client(t, ts.token(t, ts.recipient), 0)
	c.lim = rate.NewLimiter(rate.Every(time.Hour), 1)

	_, err := c.ChangedSince(context.Background(), 0, 10)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ChangedSince(ctx, 0, 10)
	require.ErrorIs(t, err, errs.ErrTransient)
}

func TestMapError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		code codes.Code
		want errs.Kind
	}{
		{codes.Unauthenticated, errs.Authentication},
		{codes.InvalidArgument, errs.Validation},
		{codes.FailedPrecondition, errs.Validation},
		{codes.OutOfRange, errs.Validation},
		{codes.NotFound, errs.NotFound},
		{codes.PermissionDenied, errs.PermissionDenied},
		{codes.Unavailable, errs.Transient},
		{codes.Aborted, errs.Transient},
		{codes.ResourceExhausted, errs.Transient},
		{codes.Internal, errs.Transient},
		{codes.Unknown, errs.Transient},
	}
	for _, c := range cases {
		err := mapError("op", status.Error(c.code, "detail with jane@example.com"))
		require.Equal(t, c.want, errs.KindOf(err), c.code.String())
		require.NotContains(t, err.Error(), "jane")
	}
	require.ErrorIs(t, mapError("op", status.Error(codes.Canceled, "")), context.Canceled)
	require.Equal(t, errs.Transient, errs.KindOf(mapError("op", errors.New("eof"))))
}
