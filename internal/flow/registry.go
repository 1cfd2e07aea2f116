package flow

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/looplab/fsm"

	"swirlPool/internal/model"
)

var (
	ErrStaleUpdate     = errors.New("stale update")
	ErrFlowInactive    = errors.New("flow inactive")
	ErrInvalidFlowRate = errors.New("invalid flow rate")
	ErrAssetMismatch   = errors.New("flow asset mismatch")
)

// SettleFunc materializes the accrual of rec before the registry rewrites it.
type SettleFunc func(rec model.FlowRecord) error

// Transition describes what a registry call changed.
type Transition struct {
	Kind         model.FlowKind
	Record       model.FlowRecord
	PreviousRate *big.Int
	Noop         bool
}

type entry struct {
	record  model.FlowRecord
	machine *fsm.FSM
}

// Registry holds one FlowRecord per account for a single pool.
type Registry struct {
	entries map[common.Address]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[common.Address]*entry)}
}

// Get returns a copy of the account's record.
func (r *Registry) Get(account common.Address) (model.FlowRecord, bool) {
	e, ok := r.entries[account]
	if !ok {
		return model.FlowRecord{}, false
	}
	return e.record.Clone(), true
}

// State returns the lifecycle state of the account's flow.
func (r *Registry) State(account common.Address) string {
	e, ok := r.entries[account]
	if !ok {
		return StateNone
	}
	return e.machine.Current()
}

// Records returns copies of all records ordered by account.
func (r *Registry) Records() []model.FlowRecord {
	out := make([]model.FlowRecord, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.record.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Account.Bytes(), out[j].Account.Bytes()) < 0
	})
	return out
}

// Restore loads persisted records, replacing any existing state.
func (r *Registry) Restore(records []model.FlowRecord) error {
	entries := make(map[common.Address]*entry, len(records))
	for _, rec := range records {
		if _, dup := entries[rec.Account]; dup {
			return fmt.Errorf("duplicate flow record for %s", rec.Account.Hex())
		}
		rec = rec.Clone()
		if rec.Active != (rec.FlowRate.Sign() != 0) {
			return fmt.Errorf("flow record %s: active flag disagrees with rate %s", rec.Account.Hex(), rec.FlowRate)
		}
		state := StateTerminated
		if rec.Active {
			state = StateActive
		}
		entries[rec.Account] = &entry{record: rec, machine: newMachine(state)}
	}
	r.entries = entries
	return nil
}

// Checkpoint captures the account's current entry and returns a function
// restoring it. Used by callers that need all-or-nothing updates.
func (r *Registry) Checkpoint(account common.Address) func() {
	e, ok := r.entries[account]
	if !ok {
		return func() { delete(r.entries, account) }
	}
	rec := e.record.Clone()
	state := e.machine.Current()
	return func() {
		r.entries[account] = &entry{record: rec, machine: newMachine(state)}
	}
}

// OpenOrUpdate applies a created/updated notification. An active record is
// settled before it is rewritten; a missing or terminated record is replaced
// by a fresh one starting at now.
func (r *Registry) OpenOrUpdate(account, asset common.Address, rate *big.Int, now uint64, snapshot *big.Int, settle SettleFunc) (Transition, error) {
	if rate == nil {
		rate = big.NewInt(0)
	}
	if rate.Sign() < 0 {
		return Transition{}, fmt.Errorf("%w: %s", ErrInvalidFlowRate, rate)
	}

	e, ok := r.entries[account]
	if ok && now < e.record.ExecutedAt {
		return Transition{}, fmt.Errorf("%w: %d < %d", ErrStaleUpdate, now, e.record.ExecutedAt)
	}

	if !ok || !e.record.Active {
		if rate.Sign() == 0 {
			return Transition{Kind: model.FlowUpdated, PreviousRate: big.NewInt(0), Noop: true}, nil
		}
		if !ok {
			e = &entry{machine: newMachine(StateNone)}
		}
		if err := fire(e.machine, eventOpen); err != nil {
			return Transition{}, fmt.Errorf("open flow: %w", err)
		}
		e.record = model.FlowRecord{
			Account:              account,
			Asset:                asset,
			FlowRate:             new(big.Int).Set(rate),
			Active:               true,
			ExecutedAt:           now,
			PriceCumulativeStart: new(big.Int).Set(snapshot),
			Deposit:              big.NewInt(0),
		}
		r.entries[account] = e
		return Transition{Kind: model.FlowCreated, Record: e.record.Clone(), PreviousRate: big.NewInt(0)}, nil
	}

	if e.record.Asset != asset {
		return Transition{}, fmt.Errorf("%w: active on %s", ErrAssetMismatch, e.record.Asset.Hex())
	}
	previous := new(big.Int).Set(e.record.FlowRate)
	if previous.Cmp(rate) == 0 {
		return Transition{Kind: model.FlowUpdated, Record: e.record.Clone(), PreviousRate: previous, Noop: true}, nil
	}
	if rate.Sign() == 0 {
		return r.terminate(e, now, snapshot, settle)
	}

	if err := settle(e.record.Clone()); err != nil {
		return Transition{}, err
	}
	e.record.FlowRate = new(big.Int).Set(rate)
	e.record.ExecutedAt = now
	e.record.PriceCumulativeStart = new(big.Int).Set(snapshot)
	return Transition{Kind: model.FlowUpdated, Record: e.record.Clone(), PreviousRate: previous}, nil
}

// Terminate settles and deactivates the account's flow. The snapshot fields
// keep the settlement values for historical reads.
func (r *Registry) Terminate(account common.Address, now uint64, snapshot *big.Int, settle SettleFunc) (Transition, error) {
	e, ok := r.entries[account]
	if !ok || !e.record.Active {
		return Transition{}, ErrFlowInactive
	}
	if now < e.record.ExecutedAt {
		return Transition{}, fmt.Errorf("%w: %d < %d", ErrStaleUpdate, now, e.record.ExecutedAt)
	}
	return r.terminate(e, now, snapshot, settle)
}

func (r *Registry) terminate(e *entry, now uint64, snapshot *big.Int, settle SettleFunc) (Transition, error) {
	if err := settle(e.record.Clone()); err != nil {
		return Transition{}, err
	}
	if err := fire(e.machine, eventTerminate); err != nil {
		return Transition{}, fmt.Errorf("terminate flow: %w", err)
	}
	previous := new(big.Int).Set(e.record.FlowRate)
	e.record.ExecutedAt = now
	e.record.PriceCumulativeStart = new(big.Int).Set(snapshot)
	e.record.FlowRate = big.NewInt(0)
	e.record.Active = false
	return Transition{Kind: model.FlowTerminated, Record: e.record.Clone(), PreviousRate: previous}, nil
}

// Settle moves an active record's accrual base to now.
func (r *Registry) Settle(account common.Address, now uint64, snapshot *big.Int) error {
	e, ok := r.entries[account]
	if !ok || !e.record.Active {
		return nil
	}
	if now < e.record.ExecutedAt {
		return fmt.Errorf("%w: %d < %d", ErrStaleUpdate, now, e.record.ExecutedAt)
	}
	e.record.ExecutedAt = now
	e.record.PriceCumulativeStart = new(big.Int).Set(snapshot)
	return nil
}

// SetDeposit records the streaming protocol's security deposit.
func (r *Registry) SetDeposit(account common.Address, deposit *big.Int) {
	e, ok := r.entries[account]
	if !ok || deposit == nil {
		return
	}
	e.record.Deposit = new(big.Int).Set(deposit)
}
