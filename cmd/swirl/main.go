package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "swirl",
		Short:        "Streaming liquidity pool ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Apply Superfluid CFA flows from an RPC endpoint to the pool",
		RunE:  runWatch,
	}
	addLedgerFlags(watchCmd.Flags())
	watchCmd.Flags().String("rpc", "", "RPC URL")
	watchCmd.Flags().String("cfa", "", "constant flow agreement contract address")
	watchCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	watchCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	watchCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	watchCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path (file backend)")
	watchCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	watchCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	watchCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	watchCmd.Flags().Bool("fetch-deposits", false, "read flow deposits with getFlow")
	watchCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode and rejection errors JSONL")
	root.AddCommand(watchCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply a flow notifications JSONL file to the pool",
		RunE:  runReplay,
	}
	addLedgerFlags(replayCmd.Flags())
	replayCmd.Flags().String("in", "", "input notifications JSONL")
	root.AddCommand(replayCmd)

	root.AddCommand(opCommands()...)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print reserves, prices and balances",
		RunE:  runStatus,
	}
	addLedgerFlags(statusCmd.Flags())
	statusCmd.Flags().String("at", "", "timestamp (unix seconds or RFC3339), default now")
	statusCmd.Flags().String("rpc", "", "optional RPC URL for token metadata")
	root.AddCommand(statusCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addLedgerFlags(fs *pflag.FlagSet) {
	fs.String("token0", "", "first pool token")
	fs.String("token1", "", "second pool token")
	fs.String("pool", "", "pool address; derived from factory and implementation when empty")
	fs.String("factory", "", "pool factory (CREATE2 deployer) address")
	fs.String("implementation", "", "pool implementation address")
	fs.String("backend", "file", "state backend (file, sqlite, postgres)")
	fs.String("state", "./data/state.json", "state file path (file backend)")
	fs.String("sqlite", "./data/swirl.db", "SQLite database path")
	fs.String("postgres-dsn", "", "Postgres DSN")
	fs.String("journal", "", "write-ahead journal directory, empty disables")
	fs.Bool("journal-sync", false, "fsync every journal write")
	fs.String("events", "", "ledger events JSONL, empty disables")
	fs.String("format", "text", "output format (text, json)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
