package cart

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/foodsafe/storefront/internal/obs"
	"github.com/foodsafe/storefront/internal/pricing"
)

var (
	// ErrVariantNotFound is returned when the catalog has no such variant.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrInvalidInput is returned for malformed mutation arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoSession is returned when a call carries no session identity.
	ErrNoSession = errors.New("missing session")
)

// Catalog resolves a variant id into a line item at the current catalog price.
type Catalog interface {
	Variant(ctx context.Context, variantID string) (LineItem, error)
}

// Locker runs fn while holding an exclusive lock on key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service gives every session its own Store. A mutation takes the session
// lock, loads the saved state, applies the change, saves, then unlocks, so two
// concurrent requests for one session cannot lose each other's update.
type Service struct {
	Repo    Repository
	Lock    Locker
	Catalog Catalog
	Rules   pricing.Rules
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// Get returns the session's cart, or an empty one.
func (s *Service) Get(ctx context.Context, sessionID string) (State, error) {
	if sessionID == "" {
		return State{}, ErrNoSession
	}
	saved, ok, err := s.Repo.Load(ctx, sessionID)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return NewStore(s.Rules).Snapshot(), nil
	}
	return Restore(s.Rules, saved).Snapshot(), nil
}

// AddItem looks up variantID in the catalog and adds it to the cart.
func (s *Service) AddItem(ctx context.Context, sessionID, variantID string) (State, error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return State{}, ErrInvalidInput
	}
	item, err := s.Catalog.Variant(ctx, variantID)
	if err != nil {
		s.record("add", err)
		return State{}, err
	}
	return s.Mutate(ctx, sessionID, "add", func(st *Store) error {
		st.AddItem(item)
		return nil
	})
}

// RemoveItem drops variantID from the cart.
func (s *Service) RemoveItem(ctx context.Context, sessionID, variantID string) (State, error) {
	return s.Mutate(ctx, sessionID, "remove", func(st *Store) error {
		st.RemoveItem(variantID)
		return nil
	})
}

// UpdateQuantity sets the quantity for variantID; qty <= 0 removes it.
func (s *Service) UpdateQuantity(ctx context.Context, sessionID, variantID string, qty int) (State, error) {
	return s.Mutate(ctx, sessionID, "update", func(st *Store) error {
		st.UpdateQuantity(variantID, qty)
		return nil
	})
}

// SetCountry stores the shopper's country; nil selects the default market.
func (s *Service) SetCountry(ctx context.Context, sessionID string, country *string) (State, error) {
	return s.Mutate(ctx, sessionID, "country", func(st *Store) error {
		st.SetCountry(country)
		return nil
	})
}

// SetVatNumber stores or clears the shopper's VAT number.
func (s *Service) SetVatNumber(ctx context.Context, sessionID string, vatNumber *string) (State, error) {
	return s.Mutate(ctx, sessionID, "vat", func(st *Store) error {
		st.SetVatNumber(vatNumber)
		return nil
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, sessionID string) (State, error) {
	return s.Mutate(ctx, sessionID, "clear", func(st *Store) error {
		st.Clear()
		return nil
	})
}

// ClearOrdered empties the cart only if its lines still match ordered by
// variant, quantity and unit price. A cart changed after checkout took its
// snapshot is left alone so the change is not lost. It reports whether the
// cart was cleared.
func (s *Service) ClearOrdered(ctx context.Context, sessionID string, ordered []LineItem) (bool, error) {
	cleared := false
	_, err := s.Mutate(ctx, sessionID, "clear", func(st *Store) error {
		if !sameLines(st.state.Items, ordered) {
			return nil
		}
		st.Clear()
		cleared = true
		return nil
	})
	return cleared, err
}

func sameLines(a, b []LineItem) bool {
	return slices.EqualFunc(a, b, func(x, y LineItem) bool {
		return x.VariantID == y.VariantID && x.Quantity == y.Quantity && x.UnitPrice.Equal(y.UnitPrice)
	})
}

// Mutate runs fn against the session's store inside the session lock and
// saves the result. When fn fails nothing is saved.
func (s *Service) Mutate(ctx context.Context, sessionID, op string, fn func(*Store) error) (State, error) {
	if sessionID == "" {
		return State{}, ErrNoSession
	}
	var out State
	err := s.Lock.WithLock(ctx, cartKey(sessionID), s.lockTTL(), func(ctx context.Context) error {
		store := NewStore(s.Rules)
		saved, ok, err := s.Repo.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		if ok {
			store = Restore(s.Rules, saved)
		}
		if err := fn(store); err != nil {
			return err
		}
		out = store.Snapshot()
		return s.Repo.Save(ctx, sessionID, out)
	})
	s.record(op, err)
	if err != nil {
		s.Logger.Debug().Err(err).Str("op", op).Str("session_id", sessionID).Msg("cart mutation failed")
		return State{}, err
	}
	return out, nil
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 5 * time.Second
	}
	return s.LockTTL
}

func (s *Service) record(op string, err error) {
	if obs.CartMutationsTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	obs.CartMutationsTotal.WithLabelValues(op, result).Inc()
}
