package query

import (
	"testing"
	"time"

	"masraf/internal/core"
)

func TestBuild_DateRanges(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		wantFrom time.Time
		wantTo   time.Time
	}{
		{
			name:     "month and year span that month",
			filter:   Filter{Month: 3, Year: 2024},
			wantFrom: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond),
		},
		{
			name:     "december rolls into next year",
			filter:   Filter{Month: 12, Year: 2023},
			wantFrom: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond),
		},
		{
			name:     "year alone spans the full year",
			filter:   Filter{Year: 2024},
			wantFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond),
		},
		{
			name:   "month without year is ignored",
			filter: Filter{Month: 5},
		},
		{
			name:   "no filter leaves range unbounded",
			filter: Filter{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Build("u1", tt.filter)
			if p.Owner != "u1" {
				t.Fatalf("owner = %q, want u1", p.Owner)
			}
			if !p.From.Equal(tt.wantFrom) {
				t.Errorf("From = %v, want %v", p.From, tt.wantFrom)
			}
			if !p.To.Equal(tt.wantTo) {
				t.Errorf("To = %v, want %v", p.To, tt.wantTo)
			}
		})
	}
}

func TestBuild_Category(t *testing.T) {
	p := Build("u1", Filter{Category: core.CategoryFood})
	if p.Category != core.CategoryFood {
		t.Fatalf("category = %q, want Food", p.Category)
	}
	p = Build("u1", Filter{})
	if p.Category != "" {
		t.Fatalf("category should be unset, got %q", p.Category)
	}
}

func TestPredicateSet_Matches(t *testing.T) {
	rec := func(owner string, at time.Time, cat core.Category) core.Record {
		return core.Record{Owner: owner, CreatedAt: at, Category: cat, Name: "x", Price: "1"}
	}
	march := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	p := Build("u1", Filter{Month: 3, Year: 2024, Category: core.CategoryFood})

	if !p.Matches(rec("u1", march, core.CategoryFood)) {
		t.Error("matching record rejected")
	}
	if p.Matches(rec("u2", march, core.CategoryFood)) {
		t.Error("foreign owner accepted")
	}
	if p.Matches(rec("u1", march.AddDate(0, 1, 0), core.CategoryFood)) {
		t.Error("record outside month accepted")
	}
	if p.Matches(rec("u1", march, core.CategoryBill)) {
		t.Error("other category accepted")
	}

	// Owner-only predicate matches everything of that owner.
	all := Build("u1", Filter{})
	if !all.Matches(rec("u1", time.Time{}, core.CategoryOther)) {
		t.Error("owner-only predicate rejected unfiltered record")
	}
}

func TestPredicateSet_SQL(t *testing.T) {
	p := Build("u1", Filter{Year: 2024, Category: core.CategoryBill})
	clause, args := p.SQL()
	want := "owner = ? AND created_at >= ? AND created_at <= ? AND category = ?"
	if clause != want {
		t.Fatalf("clause = %q, want %q", clause, want)
	}
	if len(args) != 4 {
		t.Fatalf("args = %d, want 4", len(args))
	}
	if args[0] != "u1" || args[3] != "Bill" {
		t.Fatalf("unexpected args: %v", args)
	}

	clause, args = Build("u2", Filter{}).SQL()
	if clause != "owner = ?" || len(args) != 1 {
		t.Fatalf("owner-only clause = %q args=%v", clause, args)
	}
}
