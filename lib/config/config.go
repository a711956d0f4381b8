// Package config loads and validates the store configuration from
// environment variables, .env files and command-line flags (via viper).
//
// All paths pointing into the filesystem are validated against a configured
// root before use: a path that resolves outside the root is rejected with a
// Validation error at startup, never silently corrected.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agenthive/hivemem/lib/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "hivemem"

// Config carries every tunable of the entry store and its persistence layer.
type Config struct {
	// Dir is the storage directory, resolved and validated against Root.
	Dir string
	// Root confines Dir. Empty means the current working directory.
	Root string

	MaxMemorySize        int64
	MaxEntries           int
	GCInterval           time.Duration
	CompressionThreshold int
	DefaultNamespace     string

	LockTTL           time.Duration
	AtomicMaxAttempts int

	PoolMinSize         int
	PoolMaxSize         int
	ConnectTimeout      time.Duration
	QueryTimeout        time.Duration
	HealthCheckInterval time.Duration
	SaveInterval        time.Duration

	LogLevel string
}

// Init loads .env files and wires environment variables into viper. Called
// once before any config read.
func Init() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// SetupFlags adds the store configuration flags to a command.
func SetupFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("dir", "./data", "storage directory for the durable backend and snapshots")
	f.String("root", "", "directory the storage path is confined to (default: working directory)")
	f.Int64("max-memory-size", 64<<20, "memory ceiling in bytes")
	f.Int("max-entries", 10_000, "entry count ceiling")
	f.Duration("gc-interval", 30*time.Second, "full garbage collection interval")
	f.Int("compression-threshold", 8<<10, "payload size in bytes above which values are compressed")
	f.String("namespace", "shared_state", "default namespace for writes without one")
	f.Duration("lock-ttl", 5*time.Second, "default lock duration for atomic updates")
	f.Int("atomic-max-attempts", 10, "retry ceiling for atomic updates")
	f.Int("pool-min-size", 2, "minimum backend connections per pool")
	f.Int("pool-max-size", 8, "maximum backend connections per pool")
	f.Duration("connect-timeout", 5*time.Second, "backend connection acquire timeout")
	f.Duration("query-timeout", 10*time.Second, "backend query timeout")
	f.Duration("health-check-interval", 15*time.Second, "degraded-backend recovery probe interval")
	f.Duration("save-interval", 30*time.Second, "snapshot save interval of the file backend")
	f.String("log-level", "info", "log level (trace, debug, info, warn, error)")
}

// BindCommandFlags binds a command's flags to viper.
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// Load reads the configuration from viper and validates it. It fails fast:
// an invalid value is a startup error, not a warning.
func Load() (*Config, error) {
	c := &Config{
		Dir:                  viper.GetString("dir"),
		Root:                 viper.GetString("root"),
		MaxMemorySize:        viper.GetInt64("max-memory-size"),
		MaxEntries:           viper.GetInt("max-entries"),
		GCInterval:           viper.GetDuration("gc-interval"),
		CompressionThreshold: viper.GetInt("compression-threshold"),
		DefaultNamespace:     viper.GetString("namespace"),
		LockTTL:              viper.GetDuration("lock-ttl"),
		AtomicMaxAttempts:    viper.GetInt("atomic-max-attempts"),
		PoolMinSize:          viper.GetInt("pool-min-size"),
		PoolMaxSize:          viper.GetInt("pool-max-size"),
		ConnectTimeout:       viper.GetDuration("connect-timeout"),
		QueryTimeout:         viper.GetDuration("query-timeout"),
		HealthCheckInterval:  viper.GetDuration("health-check-interval"),
		SaveInterval:         viper.GetDuration("save-interval"),
		LogLevel:             viper.GetString("log-level"),
	}
	return c, c.Validate()
}

// Validate checks value ranges and resolves Dir against Root.
func (c *Config) Validate() error {
	if c.MaxMemorySize <= 0 {
		return store.NewError(store.CodeValidation, "", "max-memory-size must be positive")
	}
	if c.MaxEntries <= 0 {
		return store.NewError(store.CodeValidation, "", "max-entries must be positive")
	}
	if c.GCInterval <= 0 {
		return store.NewError(store.CodeValidation, "", "gc-interval must be positive")
	}
	if c.PoolMinSize < 1 || c.PoolMaxSize < c.PoolMinSize {
		return store.NewError(store.CodeValidation, "",
			"pool sizes must satisfy 1 <= min (%d) <= max (%d)", c.PoolMinSize, c.PoolMaxSize)
	}

	root := c.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return store.WrapError(store.CodeInternal, "", err, "resolve working directory")
		}
		root = wd
	}
	dir, err := ValidatePath(root, c.Dir)
	if err != nil {
		return err
	}
	c.Root = root
	c.Dir = dir
	return nil
}

// ValidatePath resolves path relative to root and verifies the result stays
// inside root. Symlinks in existing path components are resolved before the
// containment check so a link cannot smuggle the directory outside.
func ValidatePath(root, path string) (string, error) {
	if path == "" {
		return "", store.NewError(store.CodeValidation, "", "storage path must not be empty")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", store.WrapError(store.CodeValidation, "", err, "resolve root %q", root)
	}
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = resolved
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(absRoot, abs)
	}
	abs = filepath.Clean(abs)

	// Resolve symlinks on the longest existing prefix; the path itself may
	// not exist yet.
	resolved := abs
	for probe := abs; ; {
		if r, err := filepath.EvalSymlinks(probe); err == nil {
			resolved = filepath.Join(r, strings.TrimPrefix(abs, probe))
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}

	rel, err := filepath.Rel(absRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", store.NewError(store.CodeValidation, "",
			"storage path %q escapes root %q", path, root)
	}
	return resolved, nil
}
