package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	JWT           JWTConfig
	Email         EmailConfig
	Admin         AdminConfig
	CORS          CORSConfig
	RateLimit     RateLimitConfig
	App           AppConfig
	Log           LogConfig
	Scheduler     SchedulerConfig
	Vault         VaultConfig
	PropertyStore PropertyStoreConfig
	Workflow      WorkflowConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string
	Port         string
	TimeoutRead  time.Duration
	TimeoutWrite time.Duration
	TimeoutIdle  time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// EmailConfig holds notifier configuration
type EmailConfig struct {
	Provider       string // "smtp" or "sendgrid"
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	FromName       string
	SendGridAPIKey string
	DailyQuota     int
	PortalURL      string
}

// AdminConfig identifies the examination-section administrator
type AdminConfig struct {
	Email        string
	PasswordHash string // bcrypt hash
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled    bool
	Requests   int
	Duration   time.Duration
	MaxClients int
}

// AppConfig holds general application configuration
type AppConfig struct {
	Env     string
	Name    string
	Version string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	DeadlinePollCron    string // e.g., "0 9 * * *" (Daily 9 AM)
	PendingDigestCron   string // e.g., "0 8 * * *" (Daily 8 AM)
	EnableDeadlinePoll  bool
	EnablePendingDigest bool
}

// VaultConfig holds Vault-related configuration
type VaultConfig struct {
	Address      string
	Token        string
	KVMount      string
	TransitMount string
	TransitKey   string
	Enabled      bool
}

// PropertyStoreConfig selects where OTPs and dedup flags are kept
type PropertyStoreConfig struct {
	Backend        string // "postgres" or "vault"
	EncryptSecrets bool   // encrypt the OTP blob with Vault transit
}

// WorkflowConfig holds edit-access workflow tunables
type WorkflowConfig struct {
	UnlockWindow    time.Duration
	DefaultMaxMarks float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// godotenv doesn't override already-set variables, so order matters
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnv("SERVER_PORT", "8080"),
			TimeoutRead:  getDurationEnv("SERVER_TIMEOUT_READ", 15*time.Second),
			TimeoutWrite: getDurationEnv("SERVER_TIMEOUT_WRITE", 30*time.Second),
			TimeoutIdle:  getDurationEnv("SERVER_TIMEOUT_IDLE", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "marks"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "marks_access"),
			SSLMode:         getEnv("DB_SSLMODE", "prefer"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath:  getEnv("DB_MIGRATIONS_PATH", "./migrations"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			Expiration: getDurationEnv("JWT_EXPIRATION", 12*time.Hour),
		},
		Email: EmailConfig{
			Provider:       strings.ToLower(getEnv("EMAIL_PROVIDER", "smtp")),
			SMTPHost:       getEnv("SMTP_HOST", ""),
			SMTPPort:       getEnv("SMTP_PORT", "587"),
			SMTPUsername:   getEnv("SMTP_USERNAME", ""),
			SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
			SMTPFrom:       getEnv("SMTP_FROM", "noreply@example.com"),
			FromName:       getEnv("EMAIL_FROM_NAME", "Controller of Examinations"),
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			DailyQuota:     getIntEnv("EMAIL_DAILY_QUOTA", 100),
			PortalURL:      getEnv("PORTAL_URL", "http://localhost:3000"),
		},
		Admin: AdminConfig{
			Email:        strings.ToLower(getEnv("ADMIN_EMAIL", "")),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getSliceEnv("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getSliceEnv("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type"}),
			ExposedHeaders:   getSliceEnv("CORS_EXPOSED_HEADERS", []string{"Link"}),
			AllowCredentials: getBoolEnv("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getIntEnv("CORS_MAX_AGE", 300),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getBoolEnv("RATE_LIMIT_ENABLED", true),
			Requests:   getIntEnv("RATE_LIMIT_REQUESTS", 100),
			Duration:   getDurationEnv("RATE_LIMIT_DURATION", 1*time.Minute),
			MaxClients: getIntEnv("RATE_LIMIT_MAX_CLIENTS", 10000),
		},
		App: AppConfig{
			Env:     getEnv("APP_ENV", "development"),
			Name:    getEnv("APP_NAME", "MarksAccess"),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Scheduler: SchedulerConfig{
			DeadlinePollCron:    getEnv("SCHEDULER_DEADLINE_POLL_CRON", "0 9 * * *"),
			PendingDigestCron:   getEnv("SCHEDULER_PENDING_DIGEST_CRON", "0 8 * * *"),
			EnableDeadlinePoll:  getBoolEnv("SCHEDULER_ENABLE_DEADLINE_POLL", true),
			EnablePendingDigest: getBoolEnv("SCHEDULER_ENABLE_PENDING_DIGEST", true),
		},
		Vault: VaultConfig{
			Address:      getEnv("VAULT_ADDR", "http://localhost:8200"),
			Token:        getEnv("VAULT_TOKEN", ""),
			KVMount:      getEnv("VAULT_KV_MOUNT", "secret"),
			TransitMount: getEnv("VAULT_TRANSIT_MOUNT", "transit"),
			TransitKey:   getEnv("VAULT_TRANSIT_KEY", "marks-access-properties"),
			Enabled:      getBoolEnv("VAULT_ENABLED", false),
		},
		PropertyStore: PropertyStoreConfig{
			Backend:        strings.ToLower(getEnv("PROPERTY_STORE_BACKEND", "postgres")),
			EncryptSecrets: getBoolEnv("PROPERTY_STORE_ENCRYPT_SECRETS", false),
		},
		Workflow: WorkflowConfig{
			UnlockWindow:    getDurationEnv("WORKFLOW_UNLOCK_WINDOW", 48*time.Hour),
			DefaultMaxMarks: getFloatEnv("WORKFLOW_DEFAULT_MAX_MARKS", 100),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Admin.Email == "" {
		return fmt.Errorf("ADMIN_EMAIL is required")
	}
	if c.Database.Password == "" && c.App.Env == "production" {
		return fmt.Errorf("DB_PASSWORD is required in production")
	}
	switch c.Email.Provider {
	case "smtp":
	case "sendgrid":
		if c.Email.SendGridAPIKey == "" {
			return fmt.Errorf("SENDGRID_API_KEY is required when EMAIL_PROVIDER=sendgrid")
		}
	default:
		return fmt.Errorf("unsupported EMAIL_PROVIDER: %s", c.Email.Provider)
	}
	switch c.PropertyStore.Backend {
	case "postgres":
	case "vault":
		if !c.Vault.Enabled {
			return fmt.Errorf("PROPERTY_STORE_BACKEND=vault requires VAULT_ENABLED=true")
		}
	default:
		return fmt.Errorf("unsupported PROPERTY_STORE_BACKEND: %s", c.PropertyStore.Backend)
	}
	if c.PropertyStore.EncryptSecrets && !c.Vault.Enabled {
		return fmt.Errorf("PROPERTY_STORE_ENCRYPT_SECRETS requires VAULT_ENABLED=true")
	}
	if c.Workflow.UnlockWindow <= 0 {
		return fmt.Errorf("WORKFLOW_UNLOCK_WINDOW must be positive")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, v := range parts {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
