package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	Storage      StorageConfig
	Mail         MailConfig
	Registration RegistrationConfig
	Sweep        SweepConfig
	Throttle     ThrottleConfig
	Logger       LoggerConfig
}

// Credentials is one database role. The public role is write-restricted by
// row-level security; the privileged role is only used for reads that must
// not be filtered by it.
type Credentials struct {
	User     string
	Password string
}

type DatabaseConfig struct {
	Host           string
	Port           int
	DBName         string
	SSLMode        string
	Public         Credentials
	Privileged     Credentials
	MaxOpenConns   int
	MaxIdleConns   int
	MigrateOnStart bool
}

type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

type StorageConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	Bucket         string
	CacheControl   int
	Timeout        time.Duration
}

type MailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	FromName string
}

type RegistrationConfig struct {
	EventName          string
	MaxPerWindow       int
	Window             time.Duration
	MaxScreenshotBytes int64
}

type SweepConfig struct {
	Enabled     bool
	Schedule    string
	GracePeriod time.Duration
	JobTimeout  time.Duration
}

type ThrottleConfig struct {
	RPS   float64
	Burst int
}

type LoggerConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, optionally seeded by a .env file
func Load() (*Config, error) {
	// A missing .env file is expected in production
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:    getEnv("DB_HOST", "localhost"),
			Port:    getEnvInt("DB_PORT", 5432),
			DBName:  getEnv("DB_NAME", "postgres"),
			SSLMode: getEnv("DB_SSLMODE", "require"),
			Public: Credentials{
				User:     getEnv("DB_PUBLIC_USER", ""),
				Password: getEnv("DB_PUBLIC_PASSWORD", ""),
			},
			Privileged: Credentials{
				User:     getEnv("DB_PRIVILEGED_USER", ""),
				Password: getEnv("DB_PRIVILEGED_PASSWORD", ""),
			},
			MaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:   getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MigrateOnStart: getEnvBool("DB_MIGRATE_ON_START", true),
		},
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvInt("SERVER_PORT", 8080),
			RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			URL:            strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
			AnonKey:        getEnv("SUPABASE_ANON_KEY", ""),
			ServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			Bucket:         getEnv("STORAGE_BUCKET", "codigo-registrations"),
			CacheControl:   getEnvInt("STORAGE_CACHE_CONTROL", 3600),
			Timeout:        getEnvDuration("STORAGE_TIMEOUT", 20*time.Second),
		},
		Mail: MailConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvInt("SMTP_PORT", 587),
			User:     getEnv("EMAIL_USER", ""),
			Password: getEnv("EMAIL_PASS", ""),
			FromName: getEnv("EMAIL_FROM_NAME", "Codigo 4.0 Info"),
		},
		Registration: RegistrationConfig{
			EventName:          getEnv("EVENT_NAME", "Codigo 4.0"),
			MaxPerWindow:       getEnvInt("RATE_LIMIT_MAX", 2),
			Window:             getEnvDuration("RATE_LIMIT_WINDOW", 24*time.Hour),
			MaxScreenshotBytes: int64(getEnvInt("MAX_SCREENSHOT_BYTES", 5*1024*1024)),
		},
		Sweep: SweepConfig{
			Enabled:     getEnvBool("ORPHAN_SWEEP_ENABLED", true),
			Schedule:    getEnv("ORPHAN_SWEEP_SCHEDULE", "15 */6 * * *"),
			GracePeriod: getEnvDuration("ORPHAN_SWEEP_GRACE", time.Hour),
			JobTimeout:  getEnvDuration("ORPHAN_SWEEP_TIMEOUT", 10*time.Minute),
		},
		Throttle: ThrottleConfig{
			RPS:   getEnvFloat("THROTTLE_RPS", 1),
			Burst: getEnvInt("THROTTLE_BURST", 5),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that every required variable is present and sane
func (c *Config) Validate() error {
	required := []struct{ key, value string }{
		{"DB_PUBLIC_USER", c.Database.Public.User},
		{"DB_PRIVILEGED_USER", c.Database.Privileged.User},
		{"SUPABASE_URL", c.Storage.URL},
		{"SUPABASE_ANON_KEY", c.Storage.AnonKey},
		{"SUPABASE_SERVICE_ROLE_KEY", c.Storage.ServiceRoleKey},
	}
	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Database.Public.User == c.Database.Privileged.User {
		return fmt.Errorf("DB_PUBLIC_USER and DB_PRIVILEGED_USER must be different roles")
	}
	if _, err := url.ParseRequestURI(c.Storage.URL); err != nil {
		return fmt.Errorf("SUPABASE_URL is not a valid URL: %w", err)
	}
	if c.Registration.MaxPerWindow < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX must be at least 1")
	}
	if c.Registration.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.Registration.MaxScreenshotBytes <= 0 {
		return fmt.Errorf("MAX_SCREENSHOT_BYTES must be positive")
	}

	return nil
}

// DSN builds a lib/pq connection string for the given role
func (d DatabaseConfig) DSN(cred Credentials) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cred.User, cred.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
