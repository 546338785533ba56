package repository

import (
	"context"      // context carries deadlines and cancellation to DB operations
	"database/sql" // sql provides generic database operations
	"errors"
	"fmt"

	"github.com/iliyamo/herdbook/internal/model"
)

// AnimalRepo encapsulates all queries against the `animals` table.  Every
// read and write is scoped by (id, user_id) so a caller only ever sees
// their own records.
type AnimalRepo struct {
	db *sql.DB
}

// NewAnimalRepo constructs an AnimalRepo with the provided DB handle.
func NewAnimalRepo(db *sql.DB) *AnimalRepo {
	return &AnimalRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnimal(s rowScanner) (model.Animal, error) {
	var (
		a     model.Animal
		typ   string
		st    string
		gen   string
		image sql.NullString
	)
	if err := s.Scan(&a.ID, &a.OwnerID, &a.Number, &typ, &a.BirthDate, &st, &gen, &image, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.Animal{}, err
	}
	a.Type = model.AnimalType(typ)
	a.Status = model.Status(st)
	a.Gender = model.Gender(gen)
	a.Image = image.String
	return a, nil
}

// List returns the owner's animals matching f, newest first.  An empty
// result is an empty slice, not an error.
func (r *AnimalRepo) List(ctx context.Context, ownerID uint64, f model.AnimalFilter) ([]model.Animal, error) {
	q, args := buildListQuery(ownerID, f)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list animals: %w", err)
	}
	defer rows.Close()

	out := make([]model.Animal, 0)
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan animal: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list animals: %w", err)
	}
	return out, nil
}

// GetByIDAndOwner fetches an animal only if it belongs to ownerID.
// ErrNotFound covers both "absent" and "owned by someone else".
func (r *AnimalRepo) GetByIDAndOwner(ctx context.Context, id, ownerID uint64) (*model.Animal, error) {
	const q = "SELECT " + animalColumns + " FROM animals WHERE id = ? AND user_id = ?"
	a, err := scanAnimal(r.db.QueryRowContext(ctx, q, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get animal %d: %w", id, err)
	}
	return &a, nil
}

// Create inserts a and then reloads it so that the generated id and the
// store-assigned timestamps are populated on the caller's value.
func (r *AnimalRepo) Create(ctx context.Context, a *model.Animal) error {
	const qInsert = `INSERT INTO animals (number, type, age, status, gender, image, user_id)
	                 VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, qInsert,
		a.Number, string(a.Type), a.BirthDate.Format(model.DateLayout),
		string(a.Status), string(a.Gender), nullString(a.Image), a.OwnerID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateNumber
		}
		return fmt.Errorf("insert animal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert animal: %w", err)
	}

	stored, err := r.GetByIDAndOwner(ctx, uint64(id), a.OwnerID)
	if err != nil {
		return err
	}
	*a = *stored
	return nil
}

// Update applies the set fields of ch to the owner's record and refreshes
// updated_at.  A collision on number yields ErrDuplicateNumber.
func (r *AnimalRepo) Update(ctx context.Context, id, ownerID uint64, ch model.AnimalChanges) error {
	q, args := buildUpdateQuery(id, ownerID, ch)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateNumber
		}
		return fmt.Errorf("update animal %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByIDAndOwner permanently removes the owner's record.
func (r *AnimalRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM animals WHERE id = ? AND user_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("delete animal %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats counts the owner's animals by type and by status.
func (r *AnimalRepo) Stats(ctx context.Context, ownerID uint64) (model.AnimalStats, error) {
	const q = `SELECT type, status, COUNT(*) FROM animals WHERE user_id = ? GROUP BY type, status`
	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return model.AnimalStats{}, fmt.Errorf("animal stats: %w", err)
	}
	defer rows.Close()

	st := model.NewAnimalStats()
	for rows.Next() {
		var (
			typ, status string
			n           int
		)
		if err := rows.Scan(&typ, &status, &n); err != nil {
			return model.AnimalStats{}, fmt.Errorf("scan animal stats: %w", err)
		}
		st.Total += n
		st.ByType[model.AnimalType(typ)] += n
		st.ByStatus[model.Status(status)] += n
	}
	if err := rows.Err(); err != nil {
		return model.AnimalStats{}, fmt.Errorf("animal stats: %w", err)
	}
	return st, nil
}

// ListAll returns every record across owners, newest first.  Only the
// operator CLI uses it; the API never lists outside one owner.
func (r *AnimalRepo) ListAll(ctx context.Context) ([]model.Animal, error) {
	const q = "SELECT " + animalColumns + " FROM animals ORDER BY created_at DESC, id DESC"
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list all animals: %w", err)
	}
	defer rows.Close()

	var out []model.Animal
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan animal: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
