package money

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Money
	}{
		{"10.00", 1000},
		{"10", 1000},
		{"10.5", 1050},
		{"0.01", 1},
		{"-3.50", -350},
		{" 7.25 ", 725},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", "1.234", "1.2.3", "-", "10,00"} {
		if _, err := Parse(in); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Parse(%q): expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, m := range []Money{0, 1, 99, 100, 1050, -350} {
		parsed, err := Parse(String(m))
		if err != nil {
			t.Fatalf("round trip %d: %v", m, err)
		}
		if parsed != m {
			t.Fatalf("round trip %d: got %d", m, parsed)
		}
	}
}

func TestPercentRoundsHalfUp(t *testing.T) {
	if got := Percent(3000, 1000); got != 300 {
		t.Fatalf("10%% of 30.00 = %d, want 300", got)
	}
	// 1.25% of 0.99 is 0.012375 -> rounds to a single cent
	if got := Percent(99, 125); got != 1 {
		t.Fatalf("1.25%% of 0.99 = %d, want 1", got)
	}
	if got := Percent(-100, 1000); got != 0 {
		t.Fatalf("negative base should yield 0, got %d", got)
	}
}
