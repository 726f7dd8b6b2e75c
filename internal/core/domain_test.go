package core

import (
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2024-05-10 ")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.Year() != 2024 || d.Month() != 5 || d.Day() != 10 {
		t.Fatalf("unexpected date %v", d)
	}
	for _, bad := range []string{"", "10/05/2024", "2024-13-01", "2024-02-30"} {
		if _, err := ParseDate(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestDateAfterIsDayGranular(t *testing.T) {
	today := DateOf(time.Date(2024, 5, 10, 23, 59, 0, 0, time.UTC))
	if NewDate(2024, 5, 10).After(today) {
		t.Fatalf("same day must not be after")
	}
	if !NewDate(2024, 5, 11).After(today) {
		t.Fatalf("next day must be after")
	}
}

func TestMidday(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	got := NewDate(2024, 5, 10).Midday(loc)
	want := time.Date(2024, 5, 10, 12, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("Midday = %v, want %v", got, want)
	}
}

func TestNewExpenseValidate(t *testing.T) {
	good := NewExpense{Description: "ok", Amount: 1.5, Category: Food, Date: NewDate(2025, 1, 1)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []NewExpense{
		{Description: " ", Amount: 1, Date: NewDate(2025, 1, 1)},
		{Description: "a", Amount: 0, Date: NewDate(2025, 1, 1)},
		{Description: "a", Amount: -3, Date: NewDate(2025, 1, 1)},
		{Description: "a", Amount: 1},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMaterialize(t *testing.T) {
	e := NewExpense{Description: "  Lunch ", Amount: 12, Category: "pizza", Date: NewDate(2024, 5, 3)}
	got := e.Materialize("id1", "u1", time.UTC)
	if got.Description != "Lunch" {
		t.Fatalf("description not trimmed: %q", got.Description)
	}
	if got.Category != Others {
		t.Fatalf("unknown category should become Others, got %q", got.Category)
	}
	if got.CreatedAt.Hour() != 12 {
		t.Fatalf("CreatedAt should be midday, got %v", got.CreatedAt)
	}
}

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"Food":     Food,
		"food":     Food,
		" Travel ": Travel,
		"":         Others,
		"Pets":     Others,
	}
	for in, want := range cases {
		if got := ParseCategory(in); got != want {
			t.Fatalf("ParseCategory(%q) = %q, want %q", in, got, want)
		}
	}
	if len(Categories()) != 12 {
		t.Fatalf("expected 12 categories, got %d", len(Categories()))
	}
}

func TestPeriodContainsAndTitle(t *testing.T) {
	may := NewDate(2024, 5, 10)
	cases := []struct {
		p     Period
		in    bool
		title string
	}{
		{AllTime(), true, "(All Time)"},
		{YearPeriod(2024), true, "in 2024"},
		{YearPeriod(2023), false, "in 2023"},
		{MonthPeriod(2024, 4), true, "in May 2024"},
		{MonthPeriod(2024, 3), false, "in April 2024"},
		{MonthPeriod(2023, 4), false, "in May 2023"},
	}
	for _, tc := range cases {
		if got := tc.p.Contains(may); got != tc.in {
			t.Fatalf("%v.Contains = %v, want %v", tc.p, got, tc.in)
		}
		if got := tc.p.Title(); got != tc.title {
			t.Fatalf("%v.Title = %q, want %q", tc.p, got, tc.title)
		}
	}
	if AllTime().Contains(Date{}) {
		t.Fatalf("zero date must never be contained")
	}
}
