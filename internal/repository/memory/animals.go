// Package memory holds map-backed stores with the same contracts as the
// MySQL repositories.  They back STORE_DRIVER=memory and the tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/herdbook/internal/model"
	"github.com/iliyamo/herdbook/internal/repository"
)

// AnimalRepo is the map-backed animal store.  It is safe for concurrent use.
type AnimalRepo struct {
	mu     sync.RWMutex
	nextID uint64
	byID   map[uint64]model.Animal
	now    func() time.Time
}

// NewAnimalRepo returns an empty store on the UTC wall clock.
func NewAnimalRepo() *AnimalRepo {
	return &AnimalRepo{
		byID: make(map[uint64]model.Animal),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// numberTakenLocked reports whether number belongs to a record other than
// exceptID, across all owners.  Comparison is case-insensitive like the
// MySQL unique index under the default collation.
func (r *AnimalRepo) numberTakenLocked(number string, exceptID uint64) bool {
	for id, a := range r.byID {
		if id != exceptID && strings.EqualFold(a.Number, number) {
			return true
		}
	}
	return false
}

// List matches filters case-insensitively, as MySQL does under the table's
// default collation, and orders newest first.
func (r *AnimalRepo) List(ctx context.Context, ownerID uint64, f model.AnimalFilter) ([]model.Animal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(f.Search)
	out := make([]model.Animal, 0)
	for _, a := range r.byID {
		if a.OwnerID != ownerID {
			continue
		}
		if f.Type != "" && !strings.EqualFold(string(a.Type), f.Type) {
			continue
		}
		if f.Status != "" && !strings.EqualFold(string(a.Status), f.Status) {
			continue
		}
		if f.Gender != "" && !strings.EqualFold(string(a.Gender), f.Gender) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.Number), search) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// GetByIDAndOwner returns ErrNotFound for absent and foreign records alike.
func (r *AnimalRepo) GetByIDAndOwner(ctx context.Context, id, ownerID uint64) (*model.Animal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok || a.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

// Create assigns the id and second-precision timestamps.
func (r *AnimalRepo) Create(ctx context.Context, a *model.Animal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.numberTakenLocked(a.Number, 0) {
		return repository.ErrDuplicateNumber
	}
	r.nextID++
	now := r.now().Truncate(time.Second)
	a.ID = r.nextID
	a.CreatedAt = now
	a.UpdatedAt = now
	r.byID[a.ID] = *a
	return nil
}

// Update applies the set fields and bumps UpdatedAt.
func (r *AnimalRepo) Update(ctx context.Context, id, ownerID uint64, ch model.AnimalChanges) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok || a.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	if ch.Number != nil && r.numberTakenLocked(*ch.Number, id) {
		return repository.ErrDuplicateNumber
	}
	ch.Apply(&a)
	a.UpdatedAt = r.now().Truncate(time.Second)
	r.byID[id] = a
	return nil
}

// DeleteByIDAndOwner removes the owner's record.
func (r *AnimalRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok || a.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

// Stats counts the owner's records by type and status.
func (r *AnimalRepo) Stats(ctx context.Context, ownerID uint64) (model.AnimalStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := model.NewAnimalStats()
	for _, a := range r.byID {
		if a.OwnerID != ownerID {
			continue
		}
		st.Total++
		st.ByType[a.Type]++
		st.ByStatus[a.Status]++
	}
	return st, nil
}

// Count returns the number of records across all owners.
func (r *AnimalRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// SetClock replaces the time source.
func (r *AnimalRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}
