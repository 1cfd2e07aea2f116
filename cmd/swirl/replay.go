package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swirlPool/internal/config"
	"swirlPool/internal/ledger"
	"swirlPool/internal/storage"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadLedger(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	in, _ := cmd.Flags().GetString("in")
	if in == "" {
		return fmt.Errorf("input path is required")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputFile, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	notifications, err := storage.ReadNotifications(inputFile)
	if err != nil {
		return err
	}

	sess, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	applied, rejected := 0, 0
	for _, n := range notifications {
		if _, err := sess.adapter.Handle(ctx, n); err != nil {
			var opErr *ledger.OpError
			if !errors.As(err, &opErr) {
				return err
			}
			rejected++
			continue
		}
		applied++
	}

	if err := sess.Save(ctx); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	logger.Info("replay complete",
		zap.String("in", in),
		zap.Int("applied", applied),
		zap.Int("rejected", rejected),
	)
	return nil
}
