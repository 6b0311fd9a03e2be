package support

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("ANONEDITS_TEST_ENV", "value")
	if got := GetEnv("ANONEDITS_TEST_ENV", "fallback"); got != "value" {
		t.Fatalf("GetEnv returned %s, want value", got)
	}

	if got := GetEnv("ANONEDITS_TEST_ENV_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("GetEnv returned %s, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("ANONEDITS_TEST_INT", "42")
	t.Setenv("ANONEDITS_TEST_INT_BAD", "forty-two")

	if got := GetEnvInt("ANONEDITS_TEST_INT", 1); got != 42 {
		t.Fatalf("GetEnvInt returned %d, want 42", got)
	}
	if got := GetEnvInt("ANONEDITS_TEST_INT_BAD", 1); got != 1 {
		t.Fatalf("GetEnvInt returned %d for invalid value, want fallback 1", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("ANONEDITS_TEST_BOOL", " true ")
	if !GetEnvBool("ANONEDITS_TEST_BOOL", false) {
		t.Fatal("GetEnvBool returned false, want true")
	}
	if !GetEnvBool("ANONEDITS_TEST_BOOL_MISSING", true) {
		t.Fatal("GetEnvBool ignored fallback")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("ANONEDITS_TEST_DURATION", "90s")
	if got := GetEnvDuration("ANONEDITS_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Fatalf("GetEnvDuration returned %s, want 1m30s", got)
	}
}
