package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChristianSBP/sbp-services/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Limits.DefaultMaxPerWeek != 10 {
		t.Errorf("default weekly limit = %v, want 10", cfg.Limits.DefaultMaxPerWeek)
	}
	if cfg.Rest.DailyRestHours != 11 {
		t.Errorf("daily rest = %v, want 11", cfg.Rest.DailyRestHours)
	}
}

func TestWeeklyLimitFallsBackToDefault(t *testing.T) {
	cfg := config.Default()
	if got := cfg.WeeklyLimit("wind_quintet"); got != 4 {
		t.Errorf("chamber limit = %v, want 4", got)
	}
	if got := cfg.WeeklyLimit("tutti"); got != 10 {
		t.Errorf("tutti limit = %v, want the default 10", got)
	}
}

func TestStatusWeight(t *testing.T) {
	cfg := config.Default()
	cases := map[string]float64{
		"fixed":    1,
		"planned":  1,
		"possible": 0.5,
		"unknown":  0,
	}
	for status, want := range cases {
		if got := cfg.StatusWeight(status); got != want {
			t.Errorf("StatusWeight(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"missing name":   "limits:\n  default_max_per_week: 10\n  max_per_day: 2\n",
		"zero weekly":    "orchestra:\n  name: x\nlimits:\n  default_max_per_week: 0\n  max_per_day: 2\n",
		"bad time":       strings.Replace(config.GenerateDefault(), `"09:30"`, `"9:30am"`, 1),
		"negative break": strings.Replace(config.GenerateDefault(), "same_day_break_minutes: 90", "same_day_break_minutes: -1", 1),
		"not yaml":       "{{{",
	}
	for name, raw := range cases {
		if _, err := config.FromYAML([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional without file: %v", err)
	}
	if cfg.Orchestra.Name == "" {
		t.Error("expected defaults when no file exists")
	}

	custom := strings.Replace(config.GenerateDefault(), "default_max_per_week: 10", "default_max_per_week: 8", 1)
	if err := os.WriteFile(filepath.Join(dir, "sbp.yml"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional with file: %v", err)
	}
	if cfg.Limits.DefaultMaxPerWeek != 8 {
		t.Errorf("weekly limit = %v, want the overridden 8", cfg.Limits.DefaultMaxPerWeek)
	}
}

func TestLoadMissingFileErrs(t *testing.T) {
	if _, err := config.Load(t.TempDir()); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
