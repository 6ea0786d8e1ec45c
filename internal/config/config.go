package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	JWTSecret   string   `mapstructure:"JWT_SECRET"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// Scheduling defaults, used when a doctor has no explicit configuration.
	ShiftStart            string `mapstructure:"SHIFT_START"`
	ConsultMinutes        int    `mapstructure:"CONSULT_MINUTES"`
	MaxPatientsPerDay     int    `mapstructure:"MAX_PATIENTS_PER_DAY"`
	RescheduleHorizonDays int    `mapstructure:"RESCHEDULE_HORIZON_DAYS"`
	BookingRetries        int    `mapstructure:"BOOKING_RETRIES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SHIFT_START", "08:00")
	v.SetDefault("CONSULT_MINUTES", 25)
	v.SetDefault("MAX_PATIENTS_PER_DAY", 19)
	v.SetDefault("RESCHEDULE_HORIZON_DAYS", 30)
	v.SetDefault("BOOKING_RETRIES", 3)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("SHIFT_START")
	v.BindEnv("CONSULT_MINUTES")
	v.BindEnv("MAX_PATIENTS_PER_DAY")
	v.BindEnv("RESCHEDULE_HORIZON_DAYS")
	v.BindEnv("BOOKING_RETRIES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all requests get admin access.")
		log.Println("WARNING: set ENV=production and JWT_SECRET for production use.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret must be set so real authentication is enforced, and the
// scheduling defaults must be sane.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.ConsultMinutes <= 0 {
		return fmt.Errorf("CONSULT_MINUTES must be positive, got %d", c.ConsultMinutes)
	}
	if c.MaxPatientsPerDay <= 0 {
		return fmt.Errorf("MAX_PATIENTS_PER_DAY must be positive, got %d", c.MaxPatientsPerDay)
	}
	if c.RescheduleHorizonDays <= 0 {
		return fmt.Errorf("RESCHEDULE_HORIZON_DAYS must be positive, got %d", c.RescheduleHorizonDays)
	}
	if len(c.ShiftStart) != 5 || c.ShiftStart[2] != ':' {
		return fmt.Errorf("SHIFT_START must be HH:MM, got %q", c.ShiftStart)
	}
	return nil
}
