package config

import (
	"testing"
	"time"
)

type fakeSettings map[string]string

func (f fakeSettings) GetSetting(key string) (string, error) {
	return f[key], nil
}

func TestInt(t *testing.T) {
	loader := NewLoader(fakeSettings{
		"retry.max_retries": "5",
		"bad":               "not-a-number",
	})

	if got := loader.Int("retry.max_retries", 2); got != 5 {
		t.Errorf("Int = %d, want 5", got)
	}
	if got := loader.Int("missing", 2); got != 2 {
		t.Errorf("Int for missing key = %d, want default 2", got)
	}
	if got := loader.Int("bad", 2); got != 2 {
		t.Errorf("Int for invalid value = %d, want default 2", got)
	}
}

func TestBool(t *testing.T) {
	loader := NewLoader(fakeSettings{
		"on":    "true",
		"off":   "false",
		"weird": "yes",
	})

	if !loader.Bool("on", false) {
		t.Error(`Bool("on") should be true`)
	}
	if loader.Bool("off", true) {
		t.Error(`Bool("off") should be false`)
	}
	if loader.Bool("weird", true) {
		t.Error(`Bool should treat anything but "true" as false`)
	}
	if !loader.Bool("missing", true) {
		t.Error("Bool for missing key should return the default")
	}
}

func TestBoolDefaultTrue(t *testing.T) {
	loader := NewLoader(fakeSettings{
		"off":   "false",
		"weird": "banana",
	})

	if !loader.BoolDefaultTrue("missing") {
		t.Error("missing key should default to true")
	}
	if loader.BoolDefaultTrue("off") {
		t.Error(`explicit "false" should be false`)
	}
	if !loader.BoolDefaultTrue("weird") {
		t.Error(`anything but "false" should stay true`)
	}
}

func TestString(t *testing.T) {
	loader := NewLoader(fakeSettings{"sync.schedule": "@every 1h"})

	if got := loader.String("sync.schedule", "@every 6h"); got != "@every 1h" {
		t.Errorf("String = %q, want @every 1h", got)
	}
	if got := loader.String("missing", "@every 6h"); got != "@every 6h" {
		t.Errorf("String for missing key = %q, want default", got)
	}
}

func TestDuration(t *testing.T) {
	loader := NewLoader(fakeSettings{
		"good": "1h30m",
		"bad":  "soon",
	})

	if got := loader.Duration("good", time.Minute); got != 90*time.Minute {
		t.Errorf("Duration = %v, want 1h30m", got)
	}
	if got := loader.Duration("bad", time.Minute); got != time.Minute {
		t.Errorf("Duration for invalid value = %v, want default", got)
	}
	if got := loader.Duration("missing", time.Minute); got != time.Minute {
		t.Errorf("Duration for missing key = %v, want default", got)
	}
}

func TestDurationMinutes(t *testing.T) {
	loader := NewLoader(fakeSettings{"session.validity_minutes": "50"})

	if got := loader.DurationMinutes("session.validity_minutes", 10); got != 50*time.Minute {
		t.Errorf("DurationMinutes = %v, want 50m", got)
	}
	if got := loader.DurationMinutes("missing", 10); got != 10*time.Minute {
		t.Errorf("DurationMinutes for missing key = %v, want 10m", got)
	}
}

func TestDurationMillis(t *testing.T) {
	loader := NewLoader(fakeSettings{"retry.reauth_delay_ms": "500"})

	if got := loader.DurationMillis("retry.reauth_delay_ms", 100); got != 500*time.Millisecond {
		t.Errorf("DurationMillis = %v, want 500ms", got)
	}
	if got := loader.DurationMillis("missing", 100); got != 100*time.Millisecond {
		t.Errorf("DurationMillis for missing key = %v, want 100ms", got)
	}
}
