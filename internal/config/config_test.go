package config

import (
	"testing"
)

func devConfig() *Config {
	return &Config{
		Port:                  "8000",
		Env:                   "development",
		DatabaseURL:           "postgres://localhost/frontdesk",
		ShiftStart:            "08:00",
		ConsultMinutes:        25,
		MaxPatientsPerDay:     19,
		RescheduleHorizonDays: 30,
		BookingRetries:        3,
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/frontdesk")
	t.Setenv("ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.ShiftStart != "08:00" {
		t.Errorf("expected default shift start 08:00, got %s", cfg.ShiftStart)
	}
	if cfg.ConsultMinutes != 25 {
		t.Errorf("expected default consult minutes 25, got %d", cfg.ConsultMinutes)
	}
	if cfg.MaxPatientsPerDay != 19 {
		t.Errorf("expected default max patients 19, got %d", cfg.MaxPatientsPerDay)
	}
	if cfg.RescheduleHorizonDays != 30 {
		t.Errorf("expected default horizon 30, got %d", cfg.RescheduleHorizonDays)
	}
	if !cfg.IsDev() {
		t.Error("expected IsDev() true for ENV=development")
	}
}

func TestValidate_ProductionRequiresSecret(t *testing.T) {
	cfg := devConfig()
	cfg.Env = "production"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for production config without JWT_SECRET")
	}

	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_SchedulingDefaults(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero consult minutes", func(c *Config) { c.ConsultMinutes = 0 }},
		{"zero max patients", func(c *Config) { c.MaxPatientsPerDay = 0 }},
		{"zero horizon", func(c *Config) { c.RescheduleHorizonDays = 0 }},
		{"malformed shift start", func(c *Config) { c.ShiftStart = "8am" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := devConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_DevAllowsMissingSecret(t *testing.T) {
	cfg := devConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
