package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultCurrency is the ledger currency used when none is configured.
const DefaultCurrency = "USD"

// Service is the governance and revenue engine over a Store. Cross-entity
// referential checks live here; stores stay thin. All methods are safe for
// concurrent use.
type Service struct {
	store    Store
	now      func() time.Time
	currency string

	distMu sync.Mutex
	dist   map[uint64]*sync.Mutex // artist id -> distribution lock
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCurrency sets the single currency this ledger accepts for revenue.
func WithCurrency(currency string) Option {
	return func(s *Service) { s.currency = strings.ToUpper(strings.TrimSpace(currency)) }
}

// New creates a Service over the given store.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
		currency: DefaultCurrency,
		dist:     make(map[uint64]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Currency returns the ledger currency.
func (s *Service) Currency() string { return s.currency }

// RegisterUser stores a new identity. The password hash is produced by the
// caller; the engine never sees plaintext credentials.
func (s *Service) RegisterUser(ctx context.Context, u User) (User, error) {
	u.Username = strings.TrimSpace(u.Username)
	if err := validUsername(u.Username); err != nil {
		return User{}, err
	}
	if u.PasswordHash == "" {
		return User{}, fmt.Errorf("%w: password hash required", ErrValidation)
	}
	return s.store.CreateUser(ctx, u)
}

func (s *Service) GetUser(ctx context.Context, id uint64) (User, error) {
	u, ok, err := s.store.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	return u, nil
}

func (s *Service) GetUserByUsername(ctx context.Context, username string) (User, error) {
	u, ok, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, fmt.Errorf("%w: user %q", ErrNotFound, username)
	}
	return u, nil
}

// UpdateProfile replaces the mutable profile fields. Identity fields
// (username, artist flag) are immutable after registration.
func (s *Service) UpdateProfile(ctx context.Context, id uint64, wallet, bio, imageURL string) (User, error) {
	return s.store.UpdateUserProfile(ctx, id, strings.TrimSpace(wallet), strings.TrimSpace(bio), strings.TrimSpace(imageURL))
}

func validUsername(name string) error {
	if len(name) < 3 || len(name) > 32 {
		return fmt.Errorf("%w: username must be 3-32 characters", ErrValidation)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return fmt.Errorf("%w: username may contain letters, digits, '.', '_', '-'", ErrValidation)
		}
	}
	return nil
}

// artistLock returns the per-artist mutex that serializes the
// read-compute-write window of a distribution.
func (s *Service) artistLock(artistID uint64) *sync.Mutex {
	s.distMu.Lock()
	defer s.distMu.Unlock()
	mu, ok := s.dist[artistID]
	if !ok {
		mu = &sync.Mutex{}
		s.dist[artistID] = mu
	}
	return mu
}
