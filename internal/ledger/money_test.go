package ledger

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"100", 100_000_000},
		{"100.50", 100_500_000},
		{"0.0075", 7_500},
		{".5", 500_000},
		{"0", 0},
		{"-2.5", -2_500_000},
		{"+3", 3_000_000},
		{" 42 ", 42_000_000},
		{"0.000001", 1},
	}
	for _, c := range cases {
		got, err := ParseAmount(c.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseAmount(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseAmountRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "1.0000001", "1,5", "10.", "99999999999999999999", "-"} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseAmount(%q): expected ErrValidation, got %v", in, err)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{100_000_000, "100"},
		{7_500, "0.0075"},
		{100_500_000, "100.5"},
		{1, "0.000001"},
		{0, "0"},
		{-2_500_000, "-2.5"},
	}
	for _, c := range cases {
		if got := FormatAmount(c.in); got != c.want {
			t.Fatalf("FormatAmount(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, 7_500, 999_999, 1_000_000, 123_456_789} {
		got, err := ParseAmount(FormatAmount(v))
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Fatalf("round trip %d -> %q -> %d", v, FormatAmount(v), got)
		}
	}
}

func TestShareOf(t *testing.T) {
	if got := shareOf(100_000_000, 60); got != 60_000_000 {
		t.Fatalf("shareOf 60%%: %d", got)
	}
	if got := shareOf(100_000_000, 0); got != 0 {
		t.Fatalf("shareOf 0%%: %d", got)
	}
	if got := shareOf(1, 50); got != 0 {
		t.Fatalf("shareOf truncates: %d", got)
	}
}

func TestProRata(t *testing.T) {
	if got := proRata(30_000_000, 250, 1_000_000); got != 7_500 {
		t.Fatalf("proRata sparse: %d", got)
	}
	if got := proRata(30_000_000, 750, 1000); got != 22_500_000 {
		t.Fatalf("proRata dense: %d", got)
	}
	if got := proRata(100, 1, 0); got != 0 {
		t.Fatalf("proRata zero whole: %d", got)
	}
	// pool*part would overflow int64 without big.Int intermediates
	if got := proRata(9_000_000_000_000_000_000, 3, 9); got != 3_000_000_000_000_000_000 {
		t.Fatalf("proRata large: %d", got)
	}
}

func TestPctOf(t *testing.T) {
	cases := []struct {
		part, whole, want int64
	}{
		{250, 1000, 25},
		{750, 1000, 75},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13}, // 12.5 rounds half up
		{0, 0, 0},
		{5, 0, 0},
		{1000, 1000, 100},
	}
	for _, c := range cases {
		if got := pctOf(c.part, c.whole); got != c.want {
			t.Fatalf("pctOf(%d,%d) = %d, want %d", c.part, c.whole, got, c.want)
		}
	}
}
