package core

import (
	"math"
	"testing"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{80, "80.00"},
		{0.1 + 0.2, "0.30"},
		{12.345, "12.35"},
		{-20, "-20.00"},
		{0, "0.00"},
		{math.Inf(1), "∞"},
		{math.Inf(-1), "-∞"},
		{math.NaN(), "0.00"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.in); got != tc.want {
			t.Fatalf("FormatAmount(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	if got := FormatMoney(920); got != "₹920.00" {
		t.Fatalf("got %q", got)
	}
	if got := FormatMoney(-20.5); got != "-₹20.50" {
		t.Fatalf("got %q", got)
	}
	if got := FormatMoney(-0.001); got != "₹0.00" {
		t.Fatalf("negative zero should render unsigned, got %q", got)
	}
	huge := 1e308
	if got := FormatMoney(huge + huge); got != "₹∞" {
		t.Fatalf("overflowed total: got %q", got)
	}
	if got := FormatMoney(1000 - math.Inf(1)); got != "-₹∞" {
		t.Fatalf("overflowed remaining: got %q", got)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12.34", 12.34, true},
		{"12,34", 12.34, true},
		{" 5 ", 5, true},
		{"-5", -5, true},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("ParseAmount(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseAmount(%q) expected error", tc.in)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(50, 80); got != 62.5 {
		t.Fatalf("Percent = %v", got)
	}
	if got := Percent(1, 0); got != 0 {
		t.Fatalf("Percent with zero total = %v", got)
	}
	if got := Percent(1e308, math.Inf(1)); got != 0 {
		t.Fatalf("Percent with infinite total = %v", got)
	}
	if got := Percent(math.Inf(1), math.Inf(1)); got != 0 {
		t.Fatalf("Percent of infinite part = %v", got)
	}
}
