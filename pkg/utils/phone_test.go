package utils

import "testing"

func TestValidPhone(t *testing.T) {
	cases := map[string]bool{
		"+251911223344":    true,
		"0911223344":       true,
		"123456789012345":  true,
		"1234567890123456": false,
		"091122334":        false,
		"+25191122334a":    false,
		"":                 false,
		"++251911223344":   false,
	}
	for in, want := range cases {
		if got := ValidPhone(in); got != want {
			t.Fatalf("ValidPhone(%q) = %v, want %v", in, got, want)
		}
	}
	if NormalizePhone("  +251911223344 ") != "+251911223344" {
		t.Fatalf("expected trimmed phone")
	}
}
