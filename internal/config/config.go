package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Storage engines
const (
	EngineNDJSON = "ndjson"
	EngineSQLite = "sqlite"
)

// Access policies
const (
	PolicySharedKey  = "sharedkey"
	PolicyAuthorizer = "authorizer"
	PolicyAny        = "any"
)

// Restore policies decide how the live store picks up restored files.
const (
	RestoreRestart = "restart"
	RestoreReload  = "reload"
)

// Collection names
const (
	CollectionApplication = "application"
	CollectionLogs        = "logs"
)

// Resources are the business collections exposed through the CRUD routes.
var Resources = []string{"fabricators", "pallets", "drawings", "jobs", "cart"}

// Config holds all application configuration. It is built once at startup
// and passed to each component; nothing reads the environment afterwards.
type Config struct {
	// Server configuration
	Port      string
	PublicURL string

	// Live store configuration
	StorageDir         string
	StorageEngine      string
	Collections        []string
	CompactionInterval time.Duration
	InspectLimit       int

	// Backup configuration
	BackupDir            string
	BackupPrefix         string
	MaxBackups           int
	BackupInterval       time.Duration
	BackupOnStartup      bool
	ProtectedCollections []string
	RestorePolicy        string
	RestartDelay         time.Duration
	MaxImportBytes       int64

	// Access configuration
	MasterSetupKey string
	AdminKey       string
	AccessPolicy   string
	AuthzURL       string
	AuthzClientID  string

	// Activity log configuration
	LogRetention int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "3000"),
		StorageDir:           getEnv("STORAGE_DIR", "./database"),
		StorageEngine:        strings.ToLower(getEnv("STORAGE_ENGINE", EngineNDJSON)),
		CompactionInterval:   getEnvAsDuration("COMPACTION_INTERVAL", 24*time.Hour),
		InspectLimit:         getEnvAsInt("INSPECT_LIMIT", 1000),
		BackupDir:            getEnv("BACKUP_DIR", "./backups"),
		BackupPrefix:         getEnv("BACKUP_PREFIX", "DB_v"),
		MaxBackups:           getEnvAsInt("MAX_BACKUPS", 3),
		BackupInterval:       getEnvAsDuration("BACKUP_INTERVAL", 0),
		BackupOnStartup:      getEnvAsBool("BACKUP_ON_STARTUP", true),
		ProtectedCollections: getEnvAsList("PROTECTED_COLLECTIONS", []string{CollectionApplication}),
		RestorePolicy:        strings.ToLower(getEnv("RESTORE_POLICY", RestoreRestart)),
		RestartDelay:         getEnvAsDuration("RESTART_DELAY", time.Second),
		MaxImportBytes:       int64(getEnvAsInt("MAX_IMPORT_BYTES", 256<<20)),
		MasterSetupKey:       getEnv("MASTER_SETUP_KEY", ""),
		AdminKey:             getEnv("ADMIN_KEY", ""),
		AccessPolicy:         strings.ToLower(getEnv("ACCESS_POLICY", PolicySharedKey)),
		AuthzURL:             getEnv("AUTHZ_URL", ""),
		AuthzClientID:        getEnv("AUTHZ_CLIENT_ID", ""),
		LogRetention:         getEnvAsInt("LOG_RETENTION", 10000),
	}
	cfg.PublicURL = getEnv("PUBLIC_URL", "http://localhost:"+cfg.Port)
	cfg.Collections = DefaultCollections()

	// The credential store is protected no matter what the environment says
	if !cfg.IsProtectedCollection(CollectionApplication) {
		cfg.ProtectedCollections = append(cfg.ProtectedCollections, CollectionApplication)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultCollections returns every collection the service persists.
func DefaultCollections() []string {
	names := make([]string, 0, len(Resources)+2)
	names = append(names, Resources...)
	return append(names, CollectionApplication, CollectionLogs)
}

// Validate checks the required fields and value ranges
func (c *Config) Validate() error {
	if c.StorageDir == "" {
		return fmt.Errorf("STORAGE_DIR is required")
	}
	if c.BackupDir == "" {
		return fmt.Errorf("BACKUP_DIR is required")
	}
	switch c.StorageEngine {
	case EngineNDJSON, EngineSQLite:
	default:
		return fmt.Errorf("unsupported STORAGE_ENGINE: %s", c.StorageEngine)
	}
	if c.BackupPrefix == "" || strings.ContainsAny(c.BackupPrefix, `/\`) || strings.HasPrefix(c.BackupPrefix, ".") {
		return fmt.Errorf("BACKUP_PREFIX must be a plain, non-hidden name: %q", c.BackupPrefix)
	}
	if c.MaxBackups < 1 {
		return fmt.Errorf("MAX_BACKUPS must be at least 1")
	}
	if c.InspectLimit < 1 {
		return fmt.Errorf("INSPECT_LIMIT must be at least 1")
	}
	if c.MasterSetupKey == "" {
		return fmt.Errorf("MASTER_SETUP_KEY is required")
	}
	if c.AdminKey == "" {
		return fmt.Errorf("ADMIN_KEY is required")
	}
	switch c.AccessPolicy {
	case PolicySharedKey:
	case PolicyAuthorizer, PolicyAny:
		if c.AuthzURL == "" {
			return fmt.Errorf("AUTHZ_URL is required")
		}
		if c.AuthzClientID == "" {
			return fmt.Errorf("AUTHZ_CLIENT_ID is required")
		}
	default:
		return fmt.Errorf("unsupported ACCESS_POLICY: %s", c.AccessPolicy)
	}
	switch c.RestorePolicy {
	case RestoreRestart, RestoreReload:
	default:
		return fmt.Errorf("unsupported RESTORE_POLICY: %s", c.RestorePolicy)
	}
	return nil
}

// IsProtectedCollection reports whether name is excluded from every
// backup, export, inspection, restore and reset path.
func (c *Config) IsProtectedCollection(name string) bool {
	for _, p := range c.ProtectedCollections {
		if p == name {
			return true
		}
	}
	return false
}

// IsProtectedFile reports whether a collection file name (with any
// extension) belongs to a protected collection.
func (c *Config) IsProtectedFile(file string) bool {
	base := filepath.Base(file)
	return c.IsProtectedCollection(strings.TrimSuffix(base, filepath.Ext(base)))
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s", "24h") or a bare number of seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
