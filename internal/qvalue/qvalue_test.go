package qvalue

import "testing"

func TestParseEdgeCases(t *testing.T) {
	cases := []struct {
		in   string
		want QValue
		ok   bool
	}{
		{"1", Max, true},
		{"1.0", Max, true},
		{"1.00", Max, true},
		{"1.000", Max, true},
		{"0", Zero, true},
		{"0.5", 500, true},
		{"0.05", 50, true},
		{"0.005", 5, true},
		{"2", 0, false},
		{"2.0", 0, false},
		{"1.001", 0, false},
		{"1.", 0, false},
		{"1.X", 0, false},
		{"0.X", 0, false},
		{"0.0X", 0, false},
		{"1.0000", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := Parse(c.in)
		if ok != c.ok {
			t.Fatalf("Parse(%q) ok = %v, want %v", c.in, ok, c.ok)
		}
		if ok && got != c.want {
			t.Fatalf("Parse(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFromClampedAndRoundTrip(t *testing.T) {
	for milli := -10; milli <= 1010; milli += 17 {
		qv := FromClamped(milli)
		if qv > Max {
			t.Fatalf("FromClamped(%d) = %d exceeds Max", milli, qv)
		}
		s := qv.String()
		qv2, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(%q) failed to parse own String() output", s)
		}
		if qv2 != qv {
			t.Fatalf("round trip mismatch: %v -> %q -> %v", qv, s, qv2)
		}
	}
}

func TestStringFormat(t *testing.T) {
	if Max.String() != "1" {
		t.Fatalf("Max.String() = %q", Max.String())
	}
	if Zero.String() != "0" {
		t.Fatalf("Zero.String() = %q", Zero.String())
	}
	if QValue(500).String() != "0.5" {
		t.Fatalf("0.5 String() = %q", QValue(500).String())
	}
	if QValue(550).String() != "0.55" {
		t.Fatalf("0.55 String() = %q", QValue(550).String())
	}
	if QValue(555).String() != "0.555" {
		t.Fatalf("0.555 String() = %q", QValue(555).String())
	}
}
