// Package repository defines the MySQL data access layer and the error
// values shared by every repository.  These sentinels let higher layers
// distinguish failure scenarios without inspecting driver errors: a
// missing or foreign-owned row is ErrNotFound, and a unique-key collision
// is translated to the sentinel of the column that collided.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a row does not exist or is not owned by
// the caller.  Both cases look the same from outside so that another
// owner's records cannot be probed.
var ErrNotFound = errors.New("not found")

// ErrDuplicateNumber is returned when an animal number is already taken
// by any record in the store.
var ErrDuplicateNumber = errors.New("animal number already exists")

// ErrEmailExists is returned when registering an email that is in use.
var ErrEmailExists = errors.New("email already exists")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a unique-constraint violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
