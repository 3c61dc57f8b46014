package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
)

func TestPurchaseRepo_Lookup(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPurchaseRepo(db)
	digest := []byte("digest")

	mock.ExpectQuery(`SELECT product_id, is_active, expiry_time_millis, auto_renewing\s+FROM purchases WHERE token_digest=\$1 AND product_id=\$2`).
		WithArgs(digest, "premium").
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "is_active", "expiry_time_millis", "auto_renewing"}).
			AddRow("premium", true, int64(1_900_000_000_000), false))

	p, err := r.Lookup(context.Background(), digest, "premium")
	require.NoError(t, err)
	require.Equal(t, model.Purchase{ProductID: "premium", IsActive: true, ExpiryTimeMillis: 1_900_000_000_000}, *p)
}

func TestPurchaseRepo_Lookup_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPurchaseRepo(db)

	mock.ExpectQuery(`FROM purchases`).
		WithArgs([]byte("d"), "premium").
		WillReturnError(pgx.ErrNoRows)

	_, err := r.Lookup(context.Background(), []byte("d"), "premium")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurchaseRepo_Record(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPurchaseRepo(db)
	digest := []byte("digest")

	mock.ExpectExec(`INSERT INTO purchases`).
		WithArgs(digest, "premium", true, int64(5), true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := r.Record(context.Background(), digest, model.Purchase{ProductID: "premium", IsActive: true, ExpiryTimeMillis: 5, AutoRenewing: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
