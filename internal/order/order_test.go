package order

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	require.NoError(t, mapError(nil))
	require.ErrorIs(t, mapError(pgx.ErrNoRows), ErrNotFound)
	require.ErrorIs(t, mapError(&pgconn.PgError{Code: "23505", ConstraintName: "orders_reference_key"}), ErrDuplicate)

	other := errors.New("connection reset")
	require.Equal(t, other, mapError(other))
}

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/shop?sslmode=disable", migrateURL("postgres://u:p@db:5432/shop?sslmode=disable"))
	require.Equal(t, "pgx5://db/shop", migrateURL("postgresql://db/shop"))
	require.Equal(t, "pgx5://db/shop", migrateURL("pgx5://db/shop"))
}

func TestMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(MigrationsFS(), "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(MigrationsFS(), "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	o := Order{ID: uuid.New(), Reference: "FS-1", Status: StatusPendingPayment}
	require.NoError(t, store.Create(ctx, o))
	require.ErrorIs(t, store.Create(ctx, Order{ID: uuid.New(), Reference: "FS-1"}), ErrDuplicate)

	require.NoError(t, store.AttachPayment(ctx, o.ID, Payment{Provider: "sandbox", Token: "tok"}))
	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, "tok", got.Payment.Token)

	_, err = store.Get(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.AttachPayment(ctx, uuid.New(), Payment{}), ErrNotFound)
}

func TestMemoryStoreUpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	o := Order{ID: uuid.New(), Reference: "FS-2", Status: StatusPendingPayment}
	require.NoError(t, store.Create(ctx, o))

	changed, err := store.UpdateStatus(ctx, o.ID, StatusPaid)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = store.UpdateStatus(ctx, o.ID, StatusPaid)
	require.NoError(t, err)
	require.False(t, changed)

	_, err = store.UpdateStatus(ctx, o.ID, StatusCancelled)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = store.UpdateStatus(ctx, uuid.New(), StatusPaid)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StatusPendingPayment, StatusPaid))
	require.True(t, CanTransition(StatusPendingPayment, StatusCancelled))
	require.True(t, CanTransition(StatusCancelled, StatusCancelled))
	require.False(t, CanTransition(StatusPaid, StatusPendingPayment))
	require.False(t, CanTransition(StatusCancelled, StatusPaid))
}
