package core

import (
	"errors"
	"strings"
	"time"
)

const (
	CategoryFood          Category = "Food"
	CategoryTransport     Category = "Transport"
	CategoryEntertainment Category = "Entertainment"
	CategoryBill          Category = "Bill"
	CategoryOther         Category = "Other"
)

type (
	// Category is the fixed expense classification set.
	Category string

	// Record is one expense entry as stored and displayed.
	Record struct {
		ID           string    // opaque, assigned by the store on creation
		Owner        string    // identity of the creating user, never reassigned
		Name         string    // trimmed, non-empty
		Price        string    // decimal text at the boundary, period separator
		Category     Category  // defaults to CategoryOther when unspecified
		CreatedAt    time.Time // server-assigned, sole sort key
		CreationDate string    // display-formatted dd.mm.yyyy, cosmetic only
	}

	// RecordUpdate is the mutable subset of a record for partial updates.
	// Owner, ID and CreatedAt are immutable and deliberately absent.
	RecordUpdate struct {
		Name     string
		Price    string
		Category Category
	}
)

var (
	ErrEmptyName       = errors.New("empty name")
	ErrEmptyPrice      = errors.New("empty price")
	ErrCommaPrice      = errors.New("comma decimal separator in price")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrNegativePrice   = errors.New("negative price")
	ErrInvalidCategory = errors.New("invalid category")
	ErrEmptyOwner      = errors.New("empty owner")
)

// Categories lists every valid category in display order.
func Categories() []Category {
	return []Category{CategoryFood, CategoryTransport, CategoryEntertainment, CategoryBill, CategoryOther}
}

// NormalizeCategory maps empty input to CategoryOther and validates the rest.
func NormalizeCategory(s string) (Category, error) {
	if strings.TrimSpace(s) == "" {
		return CategoryOther, nil
	}
	c := Category(strings.TrimSpace(s))
	if !c.IsValid() {
		return "", ErrInvalidCategory
	}
	return c, nil
}

// IsValid reports whether c is one of the fixed categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryFood, CategoryTransport, CategoryEntertainment, CategoryBill, CategoryOther:
		return true
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// Validate checks the submission-time invariants. The store itself does not
// enforce them; every write path must call this first.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Owner) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	if _, err := ParsePrice(r.Price); err != nil {
		return err
	}
	if !r.Category.IsValid() {
		return ErrInvalidCategory
	}
	return nil
}

// Validate checks an edit submission for a partial update.
func (u RecordUpdate) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return ErrEmptyName
	}
	if _, err := ParsePrice(u.Price); err != nil {
		return err
	}
	if !u.Category.IsValid() {
		return ErrInvalidCategory
	}
	return nil
}

// DisplayDate formats a creation instant the way record rows show it.
func DisplayDate(t time.Time) string {
	return t.Format("02.01.2006")
}
