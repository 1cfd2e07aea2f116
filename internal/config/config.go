package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Backends accepted for ledger state.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// StoreConfig selects where the ledger snapshot, journal and event log live.
type StoreConfig struct {
	Backend     string
	StatePath   string
	SQLitePath  string
	PostgresDSN string
	JournalDir  string
	JournalSync bool
	EventsOut   string
	ErrorsOut   string
}

// PoolConfig identifies the pool. When Pool is empty the address is derived
// from Factory and Implementation.
type PoolConfig struct {
	Pool           string
	Factory        string
	Implementation string
	Token0         string
	Token1         string
}

// LedgerConfig holds settings shared by every ledger command.
type LedgerConfig struct {
	Store    StoreConfig
	Pool     PoolConfig
	LogLevel string
	Format   string
}

// WatchConfig adds chain ingestion settings to LedgerConfig.
type WatchConfig struct {
	LedgerConfig
	RPCURL            string
	CFA               string
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	FetchDeposits     bool
}

// LoadLedger merges config file, environment variables, and flags into LedgerConfig.
func LoadLedger(cfgFile string, flags *pflag.FlagSet) (LedgerConfig, error) {
	v, err := load(cfgFile, flags, nil)
	if err != nil {
		return LedgerConfig{}, err
	}
	return ledgerConfig(v)
}

// LoadWatch merges config file, environment variables, and flags into WatchConfig.
func LoadWatch(cfgFile string, flags *pflag.FlagSet) (WatchConfig, error) {
	v, err := load(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("batch-size", uint64(2000))
		v.SetDefault("checkpoint", "./data/checkpoint.json")
		v.SetDefault("checkpoint-enabled", true)
		v.SetDefault("max-retries", 5)
		v.SetDefault("retry-backoff", 500*time.Millisecond)
		v.SetDefault("fetch-deposits", false)
	})
	if err != nil {
		return WatchConfig{}, err
	}
	base, err := ledgerConfig(v)
	if err != nil {
		return WatchConfig{}, err
	}

	cfg := WatchConfig{
		LedgerConfig:      base,
		RPCURL:            v.GetString("rpc"),
		CFA:               v.GetString("cfa"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		BatchSize:         v.GetUint64("batch-size"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		FetchDeposits:     v.GetBool("fetch-deposits"),
	}
	if cfg.RPCURL == "" {
		return WatchConfig{}, fmt.Errorf("rpc is required")
	}
	if cfg.CFA == "" {
		return WatchConfig{}, fmt.Errorf("cfa is required")
	}
	return cfg, nil
}

func load(cfgFile string, flags *pflag.FlagSet, defaults func(v *viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("SWIRL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend", BackendFile)
	v.SetDefault("state", "./data/state.json")
	v.SetDefault("sqlite", "./data/swirl.db")
	v.SetDefault("journal-sync", false)
	v.SetDefault("events", "")
	v.SetDefault("errors", "./data/decode_errors.jsonl")
	v.SetDefault("log-level", "info")
	v.SetDefault("format", "text")
	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func ledgerConfig(v *viper.Viper) (LedgerConfig, error) {
	cfg := LedgerConfig{
		Store: StoreConfig{
			Backend:     strings.ToLower(strings.TrimSpace(v.GetString("backend"))),
			StatePath:   v.GetString("state"),
			SQLitePath:  v.GetString("sqlite"),
			PostgresDSN: v.GetString("postgres-dsn"),
			JournalDir:  v.GetString("journal"),
			JournalSync: v.GetBool("journal-sync"),
			EventsOut:   v.GetString("events"),
			ErrorsOut:   v.GetString("errors"),
		},
		Pool: PoolConfig{
			Pool:           v.GetString("pool"),
			Factory:        v.GetString("factory"),
			Implementation: v.GetString("implementation"),
			Token0:         v.GetString("token0"),
			Token1:         v.GetString("token1"),
		},
		LogLevel: v.GetString("log-level"),
		Format:   strings.ToLower(v.GetString("format")),
	}

	switch cfg.Store.Backend {
	case BackendFile, BackendSQLite:
	case BackendPostgres:
		if cfg.Store.PostgresDSN == "" {
			return LedgerConfig{}, fmt.Errorf("postgres-dsn is required for the postgres backend")
		}
	default:
		return LedgerConfig{}, fmt.Errorf("unsupported backend: %s", cfg.Store.Backend)
	}
	switch cfg.Format {
	case "text", "json":
	default:
		return LedgerConfig{}, fmt.Errorf("unsupported format: %s", cfg.Format)
	}
	if cfg.Pool.Token0 == "" || cfg.Pool.Token1 == "" {
		return LedgerConfig{}, fmt.Errorf("token0 and token1 are required")
	}
	if cfg.Pool.Pool == "" && (cfg.Pool.Factory == "" || cfg.Pool.Implementation == "") {
		return LedgerConfig{}, fmt.Errorf("pool or factory and implementation are required")
	}
	return cfg, nil
}
