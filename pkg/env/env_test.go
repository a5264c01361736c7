package env

import "testing"

func TestGetTrimsAndFallsBack(t *testing.T) {
	t.Setenv("CRAFTSTORE_TEST_VALUE", "  json ")
	if got := Get("CRAFTSTORE_TEST_VALUE", "console"); got != "json" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
	t.Setenv("CRAFTSTORE_TEST_VALUE", "   ")
	if got := Get("CRAFTSTORE_TEST_VALUE", "console"); got != "console" {
		t.Fatalf("blank value should fall back, got %q", got)
	}
}

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("CRAFTSTORE_LOG_FORMAT", "")
	t.Setenv("LOG_FORMAT", "console")
	if got := First("json", "CRAFTSTORE_LOG_FORMAT", "LOG_FORMAT"); got != "console" {
		t.Fatalf("expected legacy key to be used, got %q", got)
	}
	t.Setenv("CRAFTSTORE_LOG_FORMAT", "json")
	if got := First("console", "CRAFTSTORE_LOG_FORMAT", "LOG_FORMAT"); got != "json" {
		t.Fatalf("expected prefixed key to win, got %q", got)
	}
	if got := First("json"); got != "json" {
		t.Fatalf("expected fallback with no keys, got %q", got)
	}
}
