package env

import "testing"

func TestGetTrimsAndFallsBack(t *testing.T) {
	t.Setenv("GEMTRADE_TEST_VALUE", "  console ")
	if got := Get("GEMTRADE_TEST_VALUE", "json"); got != "console" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
	t.Setenv("GEMTRADE_TEST_VALUE", "   ")
	if got := Get("GEMTRADE_TEST_VALUE", "json"); got != "json" {
		t.Fatalf("expected fallback for blank value, got %q", got)
	}
}

func TestFirstHonoursOrder(t *testing.T) {
	t.Setenv("GEMTRADE_TEST_A", "")
	t.Setenv("GEMTRADE_TEST_B", "web.1")
	t.Setenv("GEMTRADE_TEST_C", "other")
	if got := First("GEMTRADE_TEST_A", "GEMTRADE_TEST_B", "GEMTRADE_TEST_C"); got != "web.1" {
		t.Fatalf("expected first non-blank value, got %q", got)
	}
	if got := First("GEMTRADE_TEST_UNSET"); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
