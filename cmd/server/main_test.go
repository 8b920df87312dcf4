package main

import (
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	if got := getEnvOrDefault("PULSE_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("unset = %q, want the fallback", got)
	}

	t.Setenv("PULSE_TEST_STR", "configured")
	if got := getEnvOrDefault("PULSE_TEST_STR", "fallback"); got != "configured" {
		t.Errorf("set = %q, want the env value", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	if got := getEnvInt("PULSE_TEST_UNSET", 2); got != 2 {
		t.Errorf("unset = %d, want the fallback", got)
	}

	t.Setenv("PULSE_WORKERS", "6")
	if got := getEnvInt("PULSE_WORKERS", 2); got != 6 {
		t.Errorf("set = %d, want 6", got)
	}

	t.Setenv("PULSE_WORKERS", "lots")
	if got := getEnvInt("PULSE_WORKERS", 2); got != 2 {
		t.Errorf("garbage = %d, want the fallback", got)
	}
}

func TestGetEnvInt64(t *testing.T) {
	if got := getEnvInt64("PULSE_TEST_UNSET", 45<<20); got != 45<<20 {
		t.Errorf("unset = %d, want the fallback", got)
	}

	t.Setenv("PULSE_MAX_AUDIO_BYTES", "10485760")
	if got := getEnvInt64("PULSE_MAX_AUDIO_BYTES", 45<<20); got != 10485760 {
		t.Errorf("set = %d, want 10485760", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	if got := getEnvDuration("PULSE_TEST_UNSET", 120*time.Second); got != 120*time.Second {
		t.Errorf("unset = %v, want the fallback", got)
	}

	t.Setenv("PULSE_ACQUIRE_TIMEOUT", "90s")
	if got := getEnvDuration("PULSE_ACQUIRE_TIMEOUT", 120*time.Second); got != 90*time.Second {
		t.Errorf("set = %v, want 90s", got)
	}

	t.Setenv("PULSE_ACQUIRE_TIMEOUT", "soon")
	if got := getEnvDuration("PULSE_ACQUIRE_TIMEOUT", 120*time.Second); got != 120*time.Second {
		t.Errorf("garbage = %v, want the fallback", got)
	}
}
