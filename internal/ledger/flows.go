package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swirlPool/internal/flow"
	"swirlPool/internal/model"
)

// ApplyFlow syncs the pool to the notification instant, moves the account's
// flow record through its lifecycle and updates the global flow rates.
func (l *Ledger) ApplyFlow(n model.FlowNotification) (flow.Transition, error) {
	var applied flow.Transition
	err := l.atomic("apply_flow", func(tx *txn) error {
		if err := l.requireAsset(n.Asset); err != nil {
			return err
		}
		if err := tx.sync(n.Timestamp); err != nil {
			return err
		}

		var settled *big.Int
		settle := func(rec model.FlowRecord) error {
			amount, err := tx.credit(rec, n.Timestamp)
			settled = amount
			return err
		}
		snapshot := cumulativeFor(&l.state, n.Asset)

		tx.checkpointFlow(n.Account)
		var (
			tr  flow.Transition
			err error
		)
		switch n.Kind {
		case model.FlowCreated, model.FlowUpdated:
			tr, err = l.flows.OpenOrUpdate(n.Account, n.Asset, n.FlowRate, n.Timestamp, snapshot, settle)
		case model.FlowTerminated:
			if rec, ok := l.flows.Get(n.Account); ok && rec.Active && rec.Asset != n.Asset {
				return fmt.Errorf("%w: active on %s", flow.ErrAssetMismatch, rec.Asset.Hex())
			}
			tr, err = l.flows.Terminate(n.Account, n.Timestamp, snapshot, settle)
		default:
			return fmt.Errorf("unsupported flow kind: %s", n.Kind)
		}
		if err != nil {
			return err
		}
		if n.Deposit != nil && n.Deposit.Sign() > 0 {
			l.flows.SetDeposit(n.Account, n.Deposit)
			tr.Record.Deposit = new(big.Int).Set(n.Deposit)
		}
		applied = tr
		if tr.Noop {
			return nil
		}

		global := l.globalRateOf(n.Asset)
		global.Sub(global, tr.PreviousRate)
		global.Add(global, tr.Record.FlowRate)

		data := model.FlowEventData{
			Kind:                 string(tr.Kind),
			Account:              n.Account.Hex(),
			Asset:                n.Asset.Hex(),
			FlowRate:             tr.Record.FlowRate.String(),
			PriceCumulativeStart: tr.Record.PriceCumulativeStart.String(),
		}
		if settled != nil {
			data.Settled = settled.String()
		}
		tx.emit(model.EventFlow, n.Timestamp, data)
		l.logger.Info("flow applied",
			zap.String("kind", string(tr.Kind)),
			zap.String("account", n.Account.Hex()),
			zap.String("asset", n.Asset.Hex()),
			zap.String("flow_rate", tr.Record.FlowRate.String()),
			zap.String("global_flow_rate", global.String()),
		)
		return nil
	})
	return applied, err
}

// OpenFlow starts or renews the account's stream of asset.
func (l *Ledger) OpenFlow(account, asset common.Address, rate *big.Int, now uint64) (flow.Transition, error) {
	return l.ApplyFlow(model.FlowNotification{Kind: model.FlowCreated, Account: account, Asset: asset, FlowRate: rate, Timestamp: now})
}

// UpdateFlow changes the rate of the account's stream. A zero rate terminates it.
func (l *Ledger) UpdateFlow(account, asset common.Address, rate *big.Int, now uint64) (flow.Transition, error) {
	return l.ApplyFlow(model.FlowNotification{Kind: model.FlowUpdated, Account: account, Asset: asset, FlowRate: rate, Timestamp: now})
}

// TerminateFlow settles and stops the account's stream.
func (l *Ledger) TerminateFlow(account, asset common.Address, now uint64) (flow.Transition, error) {
	return l.ApplyFlow(model.FlowNotification{Kind: model.FlowTerminated, Account: account, Asset: asset, Timestamp: now})
}
