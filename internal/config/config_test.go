package config

import (
	"os"
	"testing"
)

func TestLoadEmbeddedVersionDefaults(t *testing.T) {
	cfg := Load()

	arcface, ok := cfg.Recognition.Versions["arcface-v4"]
	if !ok {
		t.Fatal("arcface-v4 missing from embedded defaults")
	}
	if arcface.Dim != 512 {
		t.Errorf("arcface-v4 dim = %d, want 512", arcface.Dim)
	}
	if arcface.Threshold != 0.6 {
		t.Errorf("arcface-v4 threshold = %v, want 0.6", arcface.Threshold)
	}

	legacy, ok := cfg.Recognition.Versions["legacy-v1"]
	if !ok {
		t.Fatal("legacy-v1 missing from embedded defaults")
	}
	if legacy.Dim != 128 {
		t.Errorf("legacy-v1 dim = %d, want 128", legacy.Dim)
	}
}

func TestThresholdFor(t *testing.T) {
	cfg := Load()

	if got := cfg.ThresholdFor("arcface-v4"); got != 0.6 {
		t.Errorf("ThresholdFor(arcface-v4) = %v, want 0.6", got)
	}
	if got := cfg.ThresholdFor("legacy-v1"); got != 0.55 {
		t.Errorf("ThresholdFor(legacy-v1) = %v, want 0.55", got)
	}
	if got := cfg.ThresholdFor("unknown"); got != 0.6 {
		t.Errorf("ThresholdFor(unknown) = %v, want fallback 0.6", got)
	}

	// Global override beats per-version defaults.
	cfg.Recognition.Threshold = 0.75
	if got := cfg.ThresholdFor("legacy-v1"); got != 0.75 {
		t.Errorf("ThresholdFor with override = %v, want 0.75", got)
	}
}

func TestEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected int
	}{
		{"unset", "", 42},
		{"valid", "7", 7},
		{"invalid", "abc", 42},
		{"negative", "-1", 42},
		{"zero", "0", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "CLASSLENS_TEST_ENV_INT"
			if tt.value == "" {
				os.Unsetenv(key)
			} else {
				t.Setenv(key, tt.value)
			}
			if got := envInt(key, 42); got != tt.expected {
				t.Errorf("envInt(%q) = %d, want %d", tt.value, got, tt.expected)
			}
		})
	}
}

func TestEnvFloat(t *testing.T) {
	key := "CLASSLENS_TEST_ENV_FLOAT"

	t.Setenv(key, "0.8")
	if got := envFloat(key, 0.6); got != 0.8 {
		t.Errorf("envFloat(0.8) = %v, want 0.8", got)
	}

	t.Setenv(key, "1.5")
	if got := envFloat(key, 0.6); got != 0.6 {
		t.Errorf("envFloat out of range = %v, want default 0.6", got)
	}

	os.Unsetenv(key)
	if got := envFloat(key, 0.6); got != 0.6 {
		t.Errorf("envFloat unset = %v, want default 0.6", got)
	}
}
