package repository

import (
	"strings"

	"github.com/iliyamo/herdbook/internal/model"
)

const animalColumns = "id, user_id, number, type, age, status, gender, image, created_at, updated_at"

// buildListQuery assembles the owner-scoped list statement.  Filters are
// ANDed; every value travels as a placeholder argument.
func buildListQuery(ownerID uint64, f model.AnimalFilter) (string, []any) {
	where := []string{"user_id = ?"}
	args := []any{ownerID}

	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Gender != "" {
		where = append(where, "gender = ?")
		args = append(args, f.Gender)
	}
	if f.Search != "" {
		where = append(where, "number LIKE ?")
		args = append(args, "%"+escapeLike(f.Search)+"%")
	}

	q := "SELECT " + animalColumns + " FROM animals WHERE " +
		strings.Join(where, " AND ") +
		" ORDER BY created_at DESC, id DESC"
	return q, args
}

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// buildUpdateQuery translates the set fields of ch into a parameterized
// UPDATE.  Column names come from this fixed list, never from the request.
// updated_at is refreshed even when ch is empty.
func buildUpdateQuery(id, ownerID uint64, ch model.AnimalChanges) (string, []any) {
	var sets []string
	var args []any

	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if ch.Number != nil {
		add("number", *ch.Number)
	}
	if ch.Type != nil {
		add("type", string(*ch.Type))
	}
	if ch.BirthDate != nil {
		add("age", ch.BirthDate.Format(model.DateLayout))
	}
	if ch.Status != nil {
		add("status", string(*ch.Status))
	}
	if ch.Gender != nil {
		add("gender", string(*ch.Gender))
	}
	if ch.Image != nil {
		add("image", nullString(*ch.Image))
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id, ownerID)

	q := "UPDATE animals SET " + strings.Join(sets, ", ") + " WHERE id = ? AND user_id = ?"
	return q, args
}

// nullString stores "" as NULL so records without a photo read back empty.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
