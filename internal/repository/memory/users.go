package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/herdbook/internal/model"
	"github.com/iliyamo/herdbook/internal/repository"
)

// UserRepo is the map-backed account store.  Emails are kept lower-cased.
type UserRepo struct {
	mu     sync.RWMutex
	nextID uint64
	byID   map[uint64]model.User
}

// NewUserRepo returns an empty account store.
func NewUserRepo() *UserRepo {
	return &UserRepo{byID: make(map[uint64]model.User)}
}

// Create stores u, filling ID and CreatedAt.  New accounts start verified,
// matching the schema default.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range r.byID {
		if existing.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	r.nextID++
	u.ID = r.nextID
	u.EmailVerified = true
	u.CreatedAt = time.Now().UTC().Truncate(time.Second)
	r.byID[u.ID] = *u
	return nil
}

// GetByEmail looks the address up case-insensitively.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetByID returns ErrNotFound when the account does not exist.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// MarkEmailVerified sets the verified flag.
func (r *UserRepo) MarkEmailVerified(ctx context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.EmailVerified = true
	r.byID[id] = u
	return nil
}

// Delete removes an account.  The API never deletes users; tests use it to
// exercise tokens whose subject no longer exists.
func (r *UserRepo) Delete(id uint64) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

// TokenRepo keeps refresh token hashes in memory.
type TokenRepo struct {
	mu     sync.Mutex
	byHash map[string]model.RefreshToken
}

// NewTokenRepo returns an empty refresh token store.
func NewTokenRepo() *TokenRepo {
	return &TokenRepo{byHash: make(map[string]model.RefreshToken)}
}

// StoreRefresh records the hash of a freshly issued refresh token.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHash[tokenHash] = model.RefreshToken{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: exp.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// ValidateRefresh returns the owning user of a live token.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[tokenHash]
	if !ok || t.RevokedAt != nil || now.UTC().After(t.ExpiresAt) {
		return 0, repository.ErrNotFound
	}
	return t.UserID, nil
}

// RevokeByHash revokes a live token.  ErrNotFound means the hash is unknown
// or was already revoked, so exactly one concurrent caller succeeds.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[tokenHash]
	if !ok || t.RevokedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	t.RevokedAt = &now
	r.byHash[tokenHash] = t
	return nil
}
