package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config centraliza toda la configuración del servicio.
// Viene de env vars (o .env en dev), con defaults razonables.
type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogJSON  bool   `mapstructure:"LOG_JSON"`

	// DBDSN vacío => repos in-memory (dev/tests).
	DBDSN string `mapstructure:"DB_DSN"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	// Rate limit por par clínico-paciente (ventana deslizante de 1h).
	// Los contadores son locales al proceso: perderlos en un restart
	// degrada a "sin límite por un rato", no es un problema de correctitud.
	RateLimitPerHour int `mapstructure:"RATE_LIMIT_PER_HOUR"`

	// Cola del audit logger (writes asíncronos).
	AuditQueueSize int `mapstructure:"AUDIT_QUEUE_SIZE"`

	// TTL default de tokens de emergencia, en horas.
	EmergencyTokenTTLHours int `mapstructure:"EMERGENCY_TOKEN_TTL_HOURS"`

	// Colaboradores externos (si hay BaseURL, se usan adapters REST).
	DirectoryBaseURL string `mapstructure:"DIRECTORY_BASE_URL"`
	DirectoryAPIKey  string `mapstructure:"DIRECTORY_API_KEY"`
	BookingsBaseURL  string `mapstructure:"BOOKINGS_BASE_URL"`
	BookingsAPIKey   string `mapstructure:"BOOKINGS_API_KEY"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_JSON", true)
	v.SetDefault("RATE_LIMIT_PER_HOUR", 100)
	v.SetDefault("AUDIT_QUEUE_SIZE", 1024)
	v.SetDefault("EMERGENCY_TOKEN_TTL_HOURS", 24)

	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "LOG_JSON",
		"DB_DSN", "JWT_SECRET",
		"RATE_LIMIT_PER_HOUR", "AUDIT_QUEUE_SIZE", "EMERGENCY_TOKEN_TTL_HOURS",
		"DIRECTORY_BASE_URL", "DIRECTORY_API_KEY",
		"BOOKINGS_BASE_URL", "BOOKINGS_API_KEY",
	} {
		_ = v.BindEnv(key)
	}

	// .env es opcional; si no existe seguimos con env vars.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.RateLimitPerHour <= 0 {
		cfg.RateLimitPerHour = 100
	}
	if cfg.AuditQueueSize <= 0 {
		cfg.AuditQueueSize = 1024
	}
	if cfg.EmergencyTokenTTLHours <= 0 {
		cfg.EmergencyTokenTTLHours = 24
	}

	return cfg, nil
}
