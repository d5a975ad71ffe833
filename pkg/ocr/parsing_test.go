package ocr

import "testing"

func TestParseCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"1610", 1610},
		{"1,610", 1610},
		{"1.610", 1610},
		{"1 610", 1610},
		{"l23", 123},
		{"I2", 12},
		{"2O", 20},
		{"º5", 5},
		{" 42 ", 42},
	}
	for _, tc := range cases {
		got, err := ParseCount(tc.in)
		if err != nil {
			t.Fatalf("ParseCount(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseCount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseCountNoDigits(t *testing.T) {
	if _, err := ParseCount("abc"); err == nil {
		t.Fatal("expected error for digit-free input")
	}
	if _, err := ParseCount(""); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestLooksLikeCount(t *testing.T) {
	good := []string{"0", "7", "95", "1610", "1,610", "1.610", "1 610", "l6l0", "12."}
	for _, s := range good {
		if !looksLikeCount(s) {
			t.Fatalf("looksLikeCount(%q) = false, want true", s)
		}
	}
	bad := []string{"", "abc", "1,61", "12,3456"}
	for _, s := range bad {
		if looksLikeCount(s) {
			t.Fatalf("looksLikeCount(%q) = true, want false", s)
		}
	}
}

func TestNormalizeDigits(t *testing.T) {
	if got := normalizeDigits(" lO5 "); got != "105" {
		t.Fatalf("normalizeDigits = %q, want 105", got)
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("1234567890", 4); got != "1234…" {
		t.Fatalf("snippet = %q", got)
	}
	if got := snippet("123", 4); got != "123" {
		t.Fatalf("snippet short = %q", got)
	}
}

func TestNormalizeText(t *testing.T) {
	if got := normalizeText("12\n34\t 56"); got != "12 34 56" {
		t.Fatalf("normalizeText = %q", got)
	}
}
