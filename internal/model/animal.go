package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of an animal's birth date.
const DateLayout = "2006-01-02"

// AnimalType is the species of a record.  The set is closed; every switch
// over it lists each variant so adding one surfaces at every branch.
type AnimalType string

const (
	TypeCow  AnimalType = "cow"
	TypeGoat AnimalType = "goat"
)

// AnimalTypes lists every AnimalType in display order.
var AnimalTypes = []AnimalType{TypeCow, TypeGoat}

// Valid reports whether t is one of the known species.
func (t AnimalType) Valid() bool {
	switch t {
	case TypeCow, TypeGoat:
		return true
	}
	return false
}

// Status is the lifecycle state of an animal.
type Status string

const (
	StatusActive Status = "active"
	StatusSold   Status = "sold"
	StatusDead   Status = "dead"
	StatusOther  Status = "other"
)

// Statuses lists every Status in display order.
var Statuses = []Status{StatusActive, StatusSold, StatusDead, StatusOther}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSold, StatusDead, StatusOther:
		return true
	}
	return false
}

// Color is the dashboard badge color for the status.
func (s Status) Color() string {
	switch s {
	case StatusActive:
		return "success"
	case StatusSold:
		return "warning"
	case StatusDead:
		return "error"
	case StatusOther:
		return "default"
	}
	return "default"
}

// Gender of an animal.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Valid reports whether g is male or female.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale:
		return true
	}
	return false
}

// Animal mirrors a row of the `animals` table.  BirthDate is stored in the
// historical `age` column.  Image is the relative URL of the photo asset or
// empty when the record has none.
type Animal struct {
	ID        uint64
	OwnerID   uint64
	Number    string
	Type      AnimalType
	BirthDate time.Time
	Status    Status
	Gender    Gender
	Image     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AgeAt returns the animal's age in whole years at the given instant.
func (a Animal) AgeAt(now time.Time) int {
	if a.BirthDate.IsZero() || now.Before(a.BirthDate) {
		return 0
	}
	years := now.Year() - a.BirthDate.Year()
	if now.Month() < a.BirthDate.Month() ||
		(now.Month() == a.BirthDate.Month() && now.Day() < a.BirthDate.Day()) {
		years--
	}
	return years
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp (date picker
// widgets send either) and returns the calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(DateLayout, s); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// AnimalFilter narrows a List call.  Empty fields are ignored; the values
// are passed through as equality predicates without validation.
type AnimalFilter struct {
	Type   string
	Status string
	Gender string
	Search string // substring of Number
}

// AnimalChanges carries a partial update.  A nil field is left untouched.
type AnimalChanges struct {
	Number    *string
	Type      *AnimalType
	BirthDate *time.Time
	Status    *Status
	Gender    *Gender
	Image     *string
}

// Apply copies the set fields onto a.
func (c AnimalChanges) Apply(a *Animal) {
	if c.Number != nil {
		a.Number = *c.Number
	}
	if c.Type != nil {
		a.Type = *c.Type
	}
	if c.BirthDate != nil {
		a.BirthDate = *c.BirthDate
	}
	if c.Status != nil {
		a.Status = *c.Status
	}
	if c.Gender != nil {
		a.Gender = *c.Gender
	}
	if c.Image != nil {
		a.Image = *c.Image
	}
}

// AnimalStats is the per-owner dashboard summary.  Every known type and
// status is present as a key, zero when the owner has none.
type AnimalStats struct {
	Total    int
	ByType   map[AnimalType]int
	ByStatus map[Status]int
}

// NewAnimalStats returns stats with all keys initialised to zero.
func NewAnimalStats() AnimalStats {
	st := AnimalStats{
		ByType:   make(map[AnimalType]int, len(AnimalTypes)),
		ByStatus: make(map[Status]int, len(Statuses)),
	}
	for _, t := range AnimalTypes {
		st.ByType[t] = 0
	}
	for _, s := range Statuses {
		st.ByStatus[s] = 0
	}
	return st
}
