package util

import (
	"fmt"
	"os"

	"github.com/agenthive/hivemem/lib/config"
	"github.com/agenthive/hivemem/lib/store"
	"github.com/agenthive/hivemem/lib/store/memstore"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// InitConfig initializes configuration from env files and environment
// variables. Registered with cobra.OnInitialize by every command group.
func InitConfig() {
	config.Init()
}

// NewLogger builds the CLI logger at the configured level.
func NewLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger(), nil
}

// OpenStore binds the command's flags, loads the validated configuration and
// opens the entry store.
func OpenStore(cmd *cobra.Command) (store.IEntryStore, error) {
	if err := config.BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	opts := memstore.DefaultOptions(cfg.Dir)
	opts.MaxMemorySize = cfg.MaxMemorySize
	opts.MaxEntries = cfg.MaxEntries
	opts.GCInterval = cfg.GCInterval
	opts.CompressionThreshold = cfg.CompressionThreshold
	opts.DefaultNamespace = cfg.DefaultNamespace
	opts.LockTTL = cfg.LockTTL
	opts.AtomicMaxAttempts = cfg.AtomicMaxAttempts
	opts.PoolMinSize = cfg.PoolMinSize
	opts.PoolMaxSize = cfg.PoolMaxSize
	opts.ConnectTimeout = cfg.ConnectTimeout
	opts.QueryTimeout = cfg.QueryTimeout
	opts.HealthCheckInterval = cfg.HealthCheckInterval
	opts.SaveInterval = cfg.SaveInterval
	opts.Logger = logger

	return memstore.New(opts)
}
