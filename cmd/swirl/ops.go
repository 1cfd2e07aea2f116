package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swirlPool/internal/config"
	"swirlPool/internal/indexer"
	"swirlPool/internal/ledger"
	"swirlPool/internal/model"
	"swirlPool/internal/report"
)

// operation describes a ledger operation exposed as a subcommand.
type operation struct {
	use   string
	short string
	flags func(cmd *cobra.Command)
	entry func(cmd *cobra.Command, now uint64) (model.JournalEntry, error)
	// result prints what changed once the entry is applied.
	result func(cmd *cobra.Command, l *ledger.Ledger, now uint64) error
}

func opCommands() []*cobra.Command {
	ops := []operation{
		{
			use:   "deposit",
			short: "Credit tokens to the pool's balance ahead of a mint",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().String("asset", "", "token address")
				cmd.Flags().String("amount", "", "amount in whole tokens, or raw:<units>")
			},
			entry: func(cmd *cobra.Command, now uint64) (model.JournalEntry, error) {
				asset, err := addressFlag(cmd, "asset")
				if err != nil {
					return model.JournalEntry{}, err
				}
				amount, err := amountFlag(cmd)
				if err != nil {
					return model.JournalEntry{}, err
				}
				return ledger.DepositEntry(asset, amount), nil
			},
		},
		{
			use:   "mint",
			short: "Mint LP tokens for the deposited balances",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().String("to", "", "LP recipient")
			},
			entry: accountEntry(model.OpMint, "to"),
			result: func(cmd *cobra.Command, l *ledger.Ledger, now uint64) error {
				to, _ := addressFlag(cmd, "to")
				fmt.Fprintf(cmd.OutOrStdout(), "liquidity %s %s\n", to.Hex(), report.Amount(l.LiquidityOf(to), 18))
				return nil
			},
		},
		{
			use:   "burn",
			short: "Burn all of an account's LP tokens",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().String("account", "", "LP holder")
			},
			entry:  accountEntry(model.OpBurn, "account"),
			result: printBalances("account"),
		},
		{
			use:   "claim",
			short: "Release an account's accrued swap output",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().String("account", "", "streaming account")
			},
			entry:  accountEntry(model.OpClaim, "account"),
			result: printBalances("account"),
		},
		{
			use:   "transfer",
			short: "Move settled accrual between accounts",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().String("from", "", "sender")
				cmd.Flags().String("to", "", "recipient; the pool address claims")
				cmd.Flags().String("asset", "", "token address")
				cmd.Flags().String("amount", "", "amount in whole tokens, or raw:<units>")
			},
			entry: func(cmd *cobra.Command, now uint64) (model.JournalEntry, error) {
				from, err := addressFlag(cmd, "from")
				if err != nil {
					return model.JournalEntry{}, err
				}
				to, err := addressFlag(cmd, "to")
				if err != nil {
					return model.JournalEntry{}, err
				}
				asset, err := addressFlag(cmd, "asset")
				if err != nil {
					return model.JournalEntry{}, err
				}
				amount, err := amountFlag(cmd)
				if err != nil {
					return model.JournalEntry{}, err
				}
				return ledger.TransferEntry(from, to, asset, amount, now), nil
			},
			result: printBalances("from"),
		},
		{
			use:   "transfer-liquidity",
			short: "Move LP tokens between accounts",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().String("from", "", "sender")
				cmd.Flags().String("to", "", "recipient")
				cmd.Flags().String("amount", "", "LP amount in whole tokens, or raw:<units>")
			},
			entry: func(cmd *cobra.Command, now uint64) (model.JournalEntry, error) {
				from, err := addressFlag(cmd, "from")
				if err != nil {
					return model.JournalEntry{}, err
				}
				to, err := addressFlag(cmd, "to")
				if err != nil {
					return model.JournalEntry{}, err
				}
				amount, err := amountFlag(cmd)
				if err != nil {
					return model.JournalEntry{}, err
				}
				return ledger.TransferLiquidityEntry(from, to, amount), nil
			},
		},
		{
			use:   "sync",
			short: "Accrue prices and streamed inflow up to --at",
			entry: func(cmd *cobra.Command, now uint64) (model.JournalEntry, error) {
				return model.JournalEntry{Op: model.OpSync, Timestamp: now}, nil
			},
			result: func(cmd *cobra.Command, l *ledger.Ledger, now uint64) error {
				r0, r1, ts := l.Reserves()
				fmt.Fprintf(cmd.OutOrStdout(), "reserves %s %s at %d\n", r0, r1, ts)
				return nil
			},
		},
	}

	cmds := make([]*cobra.Command, 0, len(ops))
	for _, op := range ops {
		cmd := &cobra.Command{
			Use:   op.use,
			Short: op.short,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runOp(cmd, op)
			},
		}
		addLedgerFlags(cmd.Flags())
		cmd.Flags().String("at", "", "timestamp (unix seconds or RFC3339), default now")
		cmd.Flags().Uint8("decimals", 18, "decimals used to scale whole-token amounts")
		if op.flags != nil {
			op.flags(cmd)
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

func runOp(cmd *cobra.Command, op operation) error {
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
	entry, err := op.entry(cmd, now)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.adapter.Apply(ctx, entry); err != nil {
		return err
	}
	if err := sess.Save(ctx); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	logger.Debug("operation applied", zap.String("op", entry.Op), zap.Uint64("timestamp", now))

	if op.result == nil {
		return nil
	}
	return sess.adapter.Do(func(l *ledger.Ledger) error {
		return op.result(cmd, l, now)
	})
}

func accountEntry(op, flag string) func(cmd *cobra.Command, now uint64) (model.JournalEntry, error) {
	return func(cmd *cobra.Command, now uint64) (model.JournalEntry, error) {
		account, err := addressFlag(cmd, flag)
		if err != nil {
			return model.JournalEntry{}, err
		}
		return ledger.AccountEntry(op, account, now), nil
	}
}

func printBalances(flag string) func(cmd *cobra.Command, l *ledger.Ledger, now uint64) error {
	return func(cmd *cobra.Command, l *ledger.Ledger, now uint64) error {
		account, err := addressFlag(cmd, flag)
		if err != nil {
			return err
		}
		decimals, _ := cmd.Flags().GetUint8("decimals")
		for _, asset := range []common.Address{l.Token0(), l.Token1()} {
			balance, err := l.BalanceOf(account, asset, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", account.Hex(), asset.Hex(), report.Amount(balance, decimals))
		}
		return nil
	}
}

func addressFlag(cmd *cobra.Command, name string) (common.Address, error) {
	value, _ := cmd.Flags().GetString(name)
	return indexer.ParseAddress(name, value)
}

func amountFlag(cmd *cobra.Command) (*big.Int, error) {
	value, _ := cmd.Flags().GetString("amount")
	if value == "" {
		return nil, fmt.Errorf("amount is required")
	}
	decimals, _ := cmd.Flags().GetUint8("decimals")
	return config.ParseAmount(value, decimals)
}
