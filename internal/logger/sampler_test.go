package logger

import "testing"

func TestRatioSamplerWindow(t *testing.T) {
	s := newRatioSampler(1, 3)
	want := []bool{true, false, false, true, false, false}
	for i, w := range want {
		if got := s.Allow(); got != w {
			t.Fatalf("event %d: allow = %v, want %v", i, got, w)
		}
	}
}

func TestRatioSamplerDisabledPassesAll(t *testing.T) {
	s := newRatioSampler(0, 0)
	for i := 0; i < 5; i++ {
		if !s.Allow() {
			t.Fatalf("event %d blocked by disabled sampler", i)
		}
	}
}

func TestRatioSamplerNumClampedToDen(t *testing.T) {
	s := newRatioSampler(10, 3)
	for i := 0; i < 6; i++ {
		if !s.Allow() {
			t.Fatalf("event %d blocked with num >= den", i)
		}
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := []struct {
		spec string
		num  int
		den  int
	}{
		{"1/50", 1, 50},
		{" 2 / 5 ", 2, 5},
		{"25", 1, 25},
		{"0", 0, 0},
		{"", 0, 0},
		{"garbage", 0, 0},
		{"a/b", 0, 0},
	}
	for _, tc := range cases {
		num, den := parseRatioSpec(tc.spec)
		if num != tc.num || den != tc.den {
			t.Fatalf("parseRatioSpec(%q) = %d/%d, want %d/%d", tc.spec, num, den, tc.num, tc.den)
		}
	}
}
