// Package config has the configuration file for the app
package config

import (
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/giygas/ppu-savings/orgs"
)

// Environments
const (
	EnvDevelopment = "dev"
	EnvStaging     = "staging"
	EnvProduction  = "prod"
	EnvTest        = "test"
)

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               string
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes

	DatabaseURL  string
	DBMaxConns   int32
	SwapsSQLPath string

	// RedisAddr empty keeps memoized results in process memory
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MemoPrefix    string
	MemoTTL       time.Duration

	TargetCentile        float64
	PeerGroup            string
	MinSavingPractice    float64 // pence
	MinSavingCCG         float64 // pence
	MinSavingAllStandard float64 // pence

	GenericDiscount   float64 // percent
	ApplianceDiscount float64 // percent
	BrandDiscount     float64 // percent

	// RefreshTimes are the daily reload times in gocron's "HH:MM;HH:MM" form
	RefreshTimes string
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               getEnvWithDefault("ENV", EnvDevelopment),
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),         // 4 weeks default
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 1048576),    // 1MB default
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB default

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DBMaxConns:   int32(getIntEnvWithDefault("DB_MAX_CONNS", 10)),
		SwapsSQLPath: getEnvWithDefault("SWAPS_SQL_PATH", "sql/swaps_postgres.sql"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getIntEnvWithDefault("REDIS_DB", 0),
		MemoPrefix:    getEnvWithDefault("MEMO_PREFIX", "ppu:"),
		MemoTTL:       getDurationEnvWithDefault("MEMO_TTL", 30*24*time.Hour),

		TargetCentile:        getFloatEnvWithDefault("TARGET_CENTILE", 10),
		PeerGroup:            getEnvWithDefault("PEER_GROUP", string(orgs.OrgTypeStandardPractice)),
		MinSavingPractice:    getFloatEnvWithDefault("MIN_SAVING_PRACTICE", 1000),
		MinSavingCCG:         getFloatEnvWithDefault("MIN_SAVING_CCG", 20000),
		MinSavingAllStandard: getFloatEnvWithDefault("MIN_SAVING_ALL_STANDARD_PRACTICES", 5000000),

		GenericDiscount:   getFloatEnvWithDefault("GENERIC_DISCOUNT_PERCENTAGE", 20),
		ApplianceDiscount: getFloatEnvWithDefault("APPLIANCE_DISCOUNT_PERCENTAGE", 9.2),
		BrandDiscount:     getFloatEnvWithDefault("BRAND_DISCOUNT_PERCENTAGE", 5),

		RefreshTimes: getEnvWithDefault("REFRESH_TIMES", "06:00;18:00"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateEnv(cfg.Env); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}

	if cfg.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got: %d", cfg.DBMaxConns)
	}

	if cfg.MemoTTL < 0 {
		return fmt.Errorf("MEMO_TTL must not be negative, got: %s", cfg.MemoTTL)
	}

	if cfg.TargetCentile < 0 || cfg.TargetCentile > 100 || math.IsNaN(cfg.TargetCentile) {
		return fmt.Errorf("TARGET_CENTILE must be between 0 and 100, got: %v", cfg.TargetCentile)
	}

	if _, err := orgs.ParseOrgType(cfg.PeerGroup); err != nil {
		return fmt.Errorf("invalid PEER_GROUP: %w", err)
	}

	for name, value := range map[string]float64{
		"MIN_SAVING_PRACTICE":               cfg.MinSavingPractice,
		"MIN_SAVING_CCG":                    cfg.MinSavingCCG,
		"MIN_SAVING_ALL_STANDARD_PRACTICES": cfg.MinSavingAllStandard,
	} {
		if value < 0 {
			return fmt.Errorf("%s must not be negative, got: %v", name, value)
		}
	}

	for name, value := range map[string]float64{
		"GENERIC_DISCOUNT_PERCENTAGE":   cfg.GenericDiscount,
		"APPLIANCE_DISCOUNT_PERCENTAGE": cfg.ApplianceDiscount,
		"BRAND_DISCOUNT_PERCENTAGE":     cfg.BrandDiscount,
	} {
		if err := validatePercentage(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if _, err := ParseRefreshTimes(cfg.RefreshTimes); err != nil {
		return fmt.Errorf("invalid REFRESH_TIMES: %w", err)
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Check for privileged ports
	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "127.0.0.1" || address == "::1" || address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

// validateEnv validates the ENV environment variable
func validateEnv(env string) error {
	if env == "" {
		return fmt.Errorf("ENV cannot be empty")
	}

	validEnvs := []string{EnvDevelopment, EnvStaging, EnvProduction, EnvTest}
	env = strings.ToLower(env)

	for _, validEnv := range validEnvs {
		if env == validEnv {
			return nil
		}
	}

	return fmt.Errorf("ENV must be one of: %v, got: %s", validEnvs, env)
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	logLevel = strings.ToLower(logLevel)

	for _, level := range validLevels {
		if logLevel == level {
			return nil
		}
	}

	return fmt.Errorf("LOG_LEVEL must be one of: %v, got: %s", validLevels, logLevel)
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 { // 1 year maximum
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE must be positive, got: %d", size)
	}

	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

func validatePercentage(pct float64) error {
	if pct < 0 || pct >= 100 || math.IsNaN(pct) {
		return fmt.Errorf("must be in [0, 100), got: %v", pct)
	}
	return nil
}

// ParseRefreshTimes splits and checks a "HH:MM;HH:MM" schedule
func ParseRefreshTimes(schedule string) ([]time.Duration, error) {
	if strings.TrimSpace(schedule) == "" {
		return nil, fmt.Errorf("at least one refresh time is required")
	}

	var offsets []time.Duration
	for _, part := range strings.Split(schedule, ";") {
		t, err := time.Parse("15:04", strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("refresh time %q must be HH:MM", part)
		}
		offsets = append(offsets, time.Duration(t.Hour())*time.Hour+time.Duration(t.Minute())*time.Minute)
	}
	return offsets, nil
}

// MinSavings returns the per org type thresholds in pence
func (c *Config) MinSavings() map[orgs.OrgType]float64 {
	return map[orgs.OrgType]float64{
		orgs.OrgTypePractice:             c.MinSavingPractice,
		orgs.OrgTypeCCG:                  c.MinSavingCCG,
		orgs.OrgTypeAllStandardPractices: c.MinSavingAllStandard,
	}
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"DATABASE_URL",
		"DB_MAX_CONNS",
		"SWAPS_SQL_PATH",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"MEMO_PREFIX",
		"MEMO_TTL",
		"TARGET_CENTILE",
		"PEER_GROUP",
		"MIN_SAVING_PRACTICE",
		"MIN_SAVING_CCG",
		"MIN_SAVING_ALL_STANDARD_PRACTICES",
		"GENERIC_DISCOUNT_PERCENTAGE",
		"APPLIANCE_DISCOUNT_PERCENTAGE",
		"BRAND_DISCOUNT_PERCENTAGE",
		"REFRESH_TIMES",
	}
}

// ValidateAllEnvVars checks if all required environment variables are set
func ValidateAllEnvVars() error {
	requiredVars := []string{"DATABASE_URL"}
	missingVars := []string{}

	for _, varName := range requiredVars {
		if os.Getenv(varName) == "" {
			missingVars = append(missingVars, varName)
		}
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}
