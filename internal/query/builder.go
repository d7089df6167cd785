// Package query translates user-chosen filters into the predicate set a
// record query runs with. Predicates compose conjunctively only; there is no
// disjunction or negation.
package query

import (
	"strings"
	"time"

	"masraf/internal/core"
)

type (
	// Filter holds the optional user-chosen constraints. Zero values mean
	// "not set". Month without Year is not a supported combination and is
	// silently ignored by Build.
	Filter struct {
		Month    int // 1..12, only honored together with Year
		Year     int
		Category core.Category
	}

	// PredicateSet is the conjunction of conditions for one record query.
	// Owner is always present; the rest is optional.
	PredicateSet struct {
		Owner    string
		From     time.Time // inclusive lower bound on CreatedAt, zero if unbounded
		To       time.Time // inclusive upper bound on CreatedAt, zero if unbounded
		Category core.Category
	}
)

// Build produces the predicate set for owner with the given filter applied.
func Build(owner string, f Filter) PredicateSet {
	p := PredicateSet{Owner: owner}

	if f.Year != 0 {
		if f.Month >= 1 && f.Month <= 12 {
			p.From = time.Date(f.Year, time.Month(f.Month), 1, 0, 0, 0, 0, time.UTC)
			p.To = p.From.AddDate(0, 1, 0).Add(-time.Nanosecond)
		} else {
			p.From = time.Date(f.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
			p.To = p.From.AddDate(1, 0, 0).Add(-time.Nanosecond)
		}
	}

	if f.Category != "" {
		p.Category = f.Category
	}

	return p
}

// Matches evaluates the predicate set against one record in memory.
// The SQLite store compiles the same conditions to SQL; both paths must
// agree, which the tests pin down.
func (p PredicateSet) Matches(r core.Record) bool {
	if r.Owner != p.Owner {
		return false
	}
	if !p.From.IsZero() && r.CreatedAt.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && r.CreatedAt.After(p.To) {
		return false
	}
	if p.Category != "" && r.Category != p.Category {
		return false
	}
	return true
}

// SQL renders the predicate set as a parameterized WHERE clause body and its
// argument list, in a fixed condition order.
func (p PredicateSet) SQL() (string, []any) {
	conds := []string{"owner = ?"}
	args := []any{p.Owner}

	if !p.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, p.From.UTC())
	}
	if !p.To.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, p.To.UTC())
	}
	if p.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(p.Category))
	}

	return strings.Join(conds, " AND "), args
}
