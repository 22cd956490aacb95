package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	Plaid      PlaidConfig
	Budget     BudgetConfig
	Storage    StorageConfig
	Firebase   FirebaseConfig
	Scheduler  SchedulerConfig
	Telemetry  TelemetryConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret string
}

type EncryptionConfig struct {
	Key string
}

// PlaidConfig holds credentials and request defaults for the aggregation provider.
type PlaidConfig struct {
	ClientID     string
	Secret       string
	Env          string
	PageSize     int
	ClientName   string
	Products     []string
	CountryCodes []string
}

// BudgetConfig controls the monthly billable-call quota and per-connection cooldown.
type BudgetConfig struct {
	MonthlyBudget   float64 // dollars
	CostPerCall     float64 // dollars
	SyncCooldown    time.Duration
	Strict          bool
	EnforceCooldown bool
	Backend         string // postgres | firestore
}

type StorageConfig struct {
	DocumentBackend string // postgres | gcs
	GCSBucket       string
	GCSPrefix       string
}

type FirebaseConfig struct {
	CredentialsFile string
	ProjectID       string
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
	SampleRatio  float64
}

var plaidBaseURLs = map[string]string{
	"sandbox":     "https://sandbox.plaid.com",
	"development": "https://development.plaid.com",
	"production":  "https://production.plaid.com",
}

func Load() (*Config, error) {
	// A local .env is optional; real deployments inject the environment directly.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Warning: failed to load .env file: %v", err)
		}
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	pageSize, err := getIntEnv("PLAID_PAGE_SIZE", 500)
	if err != nil {
		return nil, err
	}
	monthlyBudget, err := getFloatEnv("PLAID_MONTHLY_BUDGET", 10.00)
	if err != nil {
		return nil, err
	}
	costPerCall, err := getFloatEnv("PLAID_COST_PER_CALL", 0.10)
	if err != nil {
		return nil, err
	}
	cooldown, err := getDurationEnv("PLAID_SYNC_COOLDOWN", time.Hour)
	if err != nil {
		return nil, err
	}

	sampleRatio, err := getFloatEnv("OTEL_SAMPLE_RATIO", 1.0)
	if err != nil {
		return nil, err
	}

	schedulerWorkers, err := getIntEnv("SCHEDULER_WORKERS", 2)
	if err != nil {
		return nil, err
	}
	schedulerJobDelay, err := getDurationEnv("SCHEDULER_JOB_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	schedulerQueueSize, err := getIntEnv("SCHEDULER_QUEUE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AllowedHosts: getListEnv("ALLOWED_HOSTS", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "burndown"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "burndown"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Plaid: PlaidConfig{
			ClientID:     getEnv("PLAID_CLIENT_ID", ""),
			Secret:       getEnv("PLAID_SECRET", ""),
			Env:          strings.ToLower(getEnv("PLAID_ENV", "sandbox")),
			PageSize:     pageSize,
			ClientName:   getEnv("PLAID_CLIENT_NAME", "Burndown"),
			Products:     getListEnv("PLAID_PRODUCTS", "transactions"),
			CountryCodes: getListEnv("PLAID_COUNTRY_CODES", "US"),
		},
		Budget: BudgetConfig{
			MonthlyBudget:   monthlyBudget,
			CostPerCall:     costPerCall,
			SyncCooldown:    cooldown,
			Strict:          getBoolEnv("PLAID_BUDGET_STRICT", false),
			EnforceCooldown: getBoolEnv("PLAID_ENFORCE_COOLDOWN", false),
			Backend:         strings.ToLower(getEnv("BUDGET_BACKEND", "postgres")),
		},
		Storage: StorageConfig{
			DocumentBackend: strings.ToLower(getEnv("DOCUMENT_BACKEND", "postgres")),
			GCSBucket:       getEnv("GCS_BUCKET", ""),
			GCSPrefix:       getEnv("GCS_PREFIX", "households"),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getBoolEnv("SCHEDULER_ENABLED", false),
			ScheduleTimes: getListEnv("SCHEDULER_TIMES", "06:00"),
			WorkerCount:   schedulerWorkers,
			JobDelay:      schedulerJobDelay,
			QueueSize:     schedulerQueueSize,
			RunOnStartup:  getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "burndown-api"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9464"),
			SampleRatio:  sampleRatio,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Encryption.Key == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(c.Encryption.Key) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes")
	}
	if _, ok := plaidBaseURLs[c.Plaid.Env]; !ok {
		return fmt.Errorf("invalid PLAID_ENV %q (want sandbox, development or production)", c.Plaid.Env)
	}
	if c.Plaid.PageSize <= 0 || c.Plaid.PageSize > 500 {
		return fmt.Errorf("PLAID_PAGE_SIZE must be between 1 and 500")
	}
	if c.Budget.CostPerCall <= 0 {
		return fmt.Errorf("PLAID_COST_PER_CALL must be positive")
	}
	if c.Budget.MonthlyBudget < 0 {
		return fmt.Errorf("PLAID_MONTHLY_BUDGET must not be negative")
	}
	switch c.Budget.Backend {
	case "postgres":
	case "firestore":
		if c.Firebase.CredentialsFile == "" && c.Firebase.ProjectID == "" {
			return fmt.Errorf("FIREBASE_CREDENTIALS_FILE or FIREBASE_PROJECT_ID is required when BUDGET_BACKEND=firestore")
		}
	default:
		return fmt.Errorf("invalid BUDGET_BACKEND %q", c.Budget.Backend)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1")
	}
	switch c.Storage.DocumentBackend {
	case "postgres":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when DOCUMENT_BACKEND=gcs")
		}
	default:
		return fmt.Errorf("invalid DOCUMENT_BACKEND %q", c.Storage.DocumentBackend)
	}
	return nil
}

// BaseURL returns the API host for the configured Plaid environment.
func (c *PlaidConfig) BaseURL() string {
	return plaidBaseURLs[c.Env]
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL returns the database address in URL form, as golang-migrate expects it.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloatEnv(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// getListEnv splits a comma-separated variable, dropping blank items.
func getListEnv(key, defaultValue string) []string {
	var items []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
