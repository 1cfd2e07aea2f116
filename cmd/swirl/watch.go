package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swirlPool/internal/chain"
	"swirlPool/internal/config"
	"swirlPool/internal/indexer"
	"swirlPool/internal/storage"
	"swirlPool/internal/superfluid"
)

const checkpointName = "watch"

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWatch(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfa, err := indexer.ParseAddress("cfa", cfg.CFA)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, cfg.LedgerConfig, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	decoder, err := superfluid.NewDecoder(sess.ledger.Address())
	if err != nil {
		return err
	}
	decoder.Seed(sess.ledger.FlowRecords())

	var checkpoint indexer.Checkpointer = indexer.NewCheckpointStore(cfg.Checkpoint, cfg.CheckpointEnabled)
	if sess.checkpoints != nil && cfg.CheckpointEnabled {
		checkpoint = &indexer.DBCheckpoint{Store: sess.checkpoints, Name: checkpointName + ":" + sess.ledger.Address().Hex()}
	}

	opts := []indexer.Option{
		indexer.WithCheckpoint(checkpoint),
		indexer.WithPersist(sess.Save),
	}
	if cfg.Store.ErrorsOut != "" {
		opts = append(opts, indexer.WithErrorSink(storage.NewJsonlErrorSink(cfg.Store.ErrorsOut)))
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:     cfg.FromBlock,
		ToBlock:       cfg.ToBlock,
		CFA:           cfa,
		BatchSize:     cfg.BatchSize,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
		FetchDeposits: cfg.FetchDeposits,
	}, chainClient, decoder, sess.adapter, logger, opts...)

	logger.Info("watch start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("pool", sess.ledger.Address().Hex()),
		zap.String("cfa", cfa.Hex()),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("backend", cfg.Store.Backend),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	return runner.Run(ctx)
}
