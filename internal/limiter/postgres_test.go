package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

/************ fake pgx ************/
type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	err     error
	hits    int
	start   time.Time
	lastSQL string
	args    []any
}

func (f *fakePool) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL, f.args = sql, args
	return fakeRow{scan: func(dest ...any) error {
		if f.err != nil {
			return f.err
		}
		*(dest[0].(*int)) = f.hits
		*(dest[1].(*time.Time)) = f.start
		return nil
	}}
}

func TestAllow_WithinWindow(t *testing.T) {
	fp := &fakePool{hits: 3, start: time.Now()}
	l := NewPGWithQuerier(fp, time.Minute, 3)

	ok, wait, err := l.Allow(context.Background(), "member-1")
	if err != nil || !ok || wait != 0 {
		t.Fatalf("Allow: ok=%v wait=%v err=%v", ok, wait, err)
	}
	if !strings.Contains(fp.lastSQL, "INSERT INTO request_limits") {
		t.Fatalf("unexpected sql: %s", fp.lastSQL)
	}
	if fp.args[0] == "member-1" {
		t.Fatalf("raw subject must not be stored")
	}
}

func TestAllow_OverLimitReportsWait(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC)
	fp := &fakePool{hits: 4, start: now.Add(-10 * time.Second)}
	l := NewPGWithQuerier(fp, time.Minute, 3)
	l.now = func() time.Time { return now }

	ok, wait, err := l.Allow(context.Background(), "member-1")
	if err != nil || ok || wait != 50*time.Second {
		t.Fatalf("Allow over limit: ok=%v wait=%v err=%v", ok, wait, err)
	}
}

func TestAllow_DBError_Propagates(t *testing.T) {
	fp := &fakePool{err: errors.New("db boom")}
	l := NewPGWithQuerier(fp, time.Minute, 3)

	ok, _, err := l.Allow(context.Background(), "member-1")
	if err == nil || ok {
		t.Fatalf("want error propagate, got ok=%v err=%v", ok, err)
	}
}

func TestHashSubject_Determinism(t *testing.T) {
	a := HashSubject("member-1")
	b := HashSubject("member-1")
	c := HashSubject("member-2")
	if a != b || a == c || len(a) != 64 {
		t.Fatalf("hash mismatch/len: %d", len(a))
	}
}
