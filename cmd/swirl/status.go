package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"swirlPool/internal/chain"
	"swirlPool/internal/config"
	"swirlPool/internal/ledger"
	"swirlPool/internal/model"
	"swirlPool/internal/report"
	"swirlPool/internal/token"
)

func runStatus(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadLedger(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	at, _ := cmd.Flags().GetString("at")
	now, err := config.ParseTimestamp(at, time.Now())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	var meta0, meta1 model.TokenMeta
	if rpcURL, _ := cmd.Flags().GetString("rpc"); rpcURL != "" {
		client, err := chain.NewClient(ctx, rpcURL)
		if err != nil {
			return err
		}
		defer client.Close()
		cache := token.NewCache()
		meta0 = cache.Resolve(ctx, client, sess.ledger.Token0(), logger)
		meta1 = cache.Resolve(ctx, client, sess.ledger.Token1(), logger)
	}

	var summary report.Summary
	err = sess.adapter.Do(func(l *ledger.Ledger) error {
		var err error
		summary, err = report.Build(l, meta0, meta1, now)
		return err
	})
	if err != nil {
		return err
	}

	if cfg.Format == "json" {
		return report.WriteJSON(cmd.OutOrStdout(), summary)
	}
	return report.WriteText(cmd.OutOrStdout(), summary)
}
