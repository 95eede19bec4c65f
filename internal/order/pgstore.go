package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// PgStore persists orders in Postgres.
type PgStore struct {
	Pool *pgxpool.Pool
	Now  func() time.Time
}

func (s PgStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create implements Store.
func (s PgStore) Create(ctx context.Context, o Order) error {
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return fmt.Errorf("encode customer: %w", err)
	}
	summary, err := json.Marshal(o.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	created := o.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO orders (id, reference, session_id, status, customer_email, customer, summary, currency, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $10)`,
		o.ID, o.Reference, o.SessionID, o.Status, o.Customer.Email, customer, summary,
		o.Summary.Currency, o.Summary.Total.StringFixed(2), created,
	)
	return mapError(err)
}

// AttachPayment implements Store.
func (s PgStore) AttachPayment(ctx context.Context, id uuid.UUID, p Payment) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE orders
		   SET payment_provider = $2, payment_token = $3, payment_url = $4, updated_at = $5
		 WHERE id = $1`,
		id, p.Provider, p.Token, p.RedirectURL, s.now(),
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get implements Store.
func (s PgStore) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	var (
		o                       Order
		customer, summary       []byte
		total                   string
		provider, token, payURL *string
	)
	err := s.Pool.QueryRow(ctx, `
		SELECT id, reference, session_id, status, customer, summary, total::text,
		       payment_provider, payment_token, payment_url, created_at, updated_at
		  FROM orders
		 WHERE id = $1`, id,
	).Scan(&o.ID, &o.Reference, &o.SessionID, &o.Status, &customer, &summary, &total,
		&provider, &token, &payURL, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, mapError(err)
	}
	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return Order{}, fmt.Errorf("decode customer: %w", err)
	}
	if err := json.Unmarshal(summary, &o.Summary); err != nil {
		return Order{}, fmt.Errorf("decode summary: %w", err)
	}
	if o.Summary.Total, err = decimal.NewFromString(total); err != nil {
		return Order{}, fmt.Errorf("decode total: %w", err)
	}
	if provider != nil && token != nil {
		o.Payment = &Payment{Provider: *provider, Token: *token}
		if payURL != nil {
			o.Payment.RedirectURL = *payURL
		}
	}
	return o, nil
}

// UpdateStatus implements Store. The row is locked while the transition is
// checked so concurrent webhooks settle an order once.
func (s PgStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (changed bool, err error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current string
	if err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
		return false, mapError(err)
	}
	if !CanTransition(current, status) {
		err = ErrInvalidTransition
		return false, err
	}
	if current == status {
		return false, tx.Commit(ctx)
	}
	if _, err = tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, id, status, s.now()); err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
