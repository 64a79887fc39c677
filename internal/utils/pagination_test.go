package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		in   string
		def  int
		want int
	}{
		{"42", 0, 42},
		{" 7 ", 0, 7},
		{"", 10, 10},
		{"x", 5, 5},
		{"-3", 1, -3},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.in, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q,%d)=%d want %d", tc.in, tc.def, got, tc.want)
		}
	}
}

func TestClampLimit(t *testing.T) {
	cases := map[string]int{"": 100, "abc": 100, "0": 1, "-5": 1, "25": 25, "1000": 100}
	for in, want := range cases {
		if got := ClampLimit(in, 100, 100); got != want {
			t.Fatalf("ClampLimit(%q)=%d want %d", in, got, want)
		}
	}
}
