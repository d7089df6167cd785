package core

import (
	"errors"
	"testing"
	"time"
)

func validRecord() Record {
	return Record{
		ID:        "r1",
		Owner:     "u1",
		Name:      "Coffee",
		Price:     "3.50",
		Category:  CategoryFood,
		CreatedAt: time.Date(2024, 3, 12, 9, 30, 0, 0, time.UTC),
	}
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr error
	}{
		{
			name:   "valid record",
			mutate: func(r *Record) {},
		},
		{
			name:    "empty owner",
			mutate:  func(r *Record) { r.Owner = "" },
			wantErr: ErrEmptyOwner,
		},
		{
			name:    "whitespace name",
			mutate:  func(r *Record) { r.Name = "   " },
			wantErr: ErrEmptyName,
		},
		{
			name:    "empty price",
			mutate:  func(r *Record) { r.Price = "" },
			wantErr: ErrEmptyPrice,
		},
		{
			name:    "comma price",
			mutate:  func(r *Record) { r.Price = "3,50" },
			wantErr: ErrCommaPrice,
		},
		{
			name:    "negative price",
			mutate:  func(r *Record) { r.Price = "-2" },
			wantErr: ErrNegativePrice,
		},
		{
			name:    "unknown category",
			mutate:  func(r *Record) { r.Category = "Groceries" },
			wantErr: ErrInvalidCategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordUpdate_Validate(t *testing.T) {
	upd := RecordUpdate{Name: "Bus ticket", Price: "2.75", Category: CategoryTransport}
	if err := upd.Validate(); err != nil {
		t.Fatalf("valid update rejected: %v", err)
	}

	upd.Price = "1,20"
	if !errors.Is(upd.Validate(), ErrCommaPrice) {
		t.Fatal("comma price should be rejected")
	}

	upd = RecordUpdate{Name: "", Price: "1", Category: CategoryOther}
	if !errors.Is(upd.Validate(), ErrEmptyName) {
		t.Fatal("empty name should be rejected")
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"", CategoryOther, false},
		{"  ", CategoryOther, false},
		{"Food", CategoryFood, false},
		{"Bill", CategoryBill, false},
		{"food", "", true},
		{"Snacks", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeCategory(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizeCategory(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeCategory(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisplayDate(t *testing.T) {
	d := DisplayDate(time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC))
	if d != "05.03.2024" {
		t.Fatalf("DisplayDate = %q, want 05.03.2024", d)
	}
}
