package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"swirlPool/internal/model"
)

// ApplyEntry executes a journaled input against the ledger.
func (l *Ledger) ApplyEntry(e model.JournalEntry) error {
	var p parser
	switch e.Op {
	case model.OpFlow:
		if e.Flow == nil {
			return fmt.Errorf("flow entry without notification")
		}
		n, err := e.Flow.Notification()
		if err != nil {
			return err
		}
		_, err = l.ApplyFlow(n)
		return err
	case model.OpSync:
		return l.Sync(e.Timestamp)
	case model.OpDeposit:
		asset, amount := p.addr(e.Asset), p.int(e.Amount)
		if p.err != nil {
			return p.err
		}
		return l.Deposit(asset, amount)
	case model.OpMint:
		to := p.addr(e.Account)
		if p.err != nil {
			return p.err
		}
		_, err := l.Mint(to, e.Timestamp)
		return err
	case model.OpBurn:
		account := p.addr(e.Account)
		if p.err != nil {
			return p.err
		}
		_, _, err := l.Burn(account, e.Timestamp)
		return err
	case model.OpClaim:
		account := p.addr(e.Account)
		if p.err != nil {
			return p.err
		}
		_, err := l.Claim(account, e.Timestamp)
		return err
	case model.OpTransfer:
		from, to, asset, amount := p.addr(e.Account), p.addr(e.To), p.addr(e.Asset), p.int(e.Amount)
		if p.err != nil {
			return p.err
		}
		return l.Transfer(from, to, asset, amount, e.Timestamp)
	case model.OpTransferLiquidity:
		from, to, amount := p.addr(e.Account), p.addr(e.To), p.int(e.Amount)
		if p.err != nil {
			return p.err
		}
		return l.TransferLiquidity(from, to, amount)
	default:
		return fmt.Errorf("unsupported journal op: %s", e.Op)
	}
}

// Entry helpers used by callers that journal before applying.

func DepositEntry(asset common.Address, amount fmt.Stringer) model.JournalEntry {
	return model.JournalEntry{Op: model.OpDeposit, Asset: asset.Hex(), Amount: amount.String()}
}

func AccountEntry(op string, account common.Address, now uint64) model.JournalEntry {
	return model.JournalEntry{Op: op, Account: account.Hex(), Timestamp: now}
}

func TransferEntry(from, to, asset common.Address, amount fmt.Stringer, now uint64) model.JournalEntry {
	return model.JournalEntry{Op: model.OpTransfer, Account: from.Hex(), To: to.Hex(), Asset: asset.Hex(), Amount: amount.String(), Timestamp: now}
}

func TransferLiquidityEntry(from, to common.Address, amount fmt.Stringer) model.JournalEntry {
	return model.JournalEntry{Op: model.OpTransferLiquidity, Account: from.Hex(), To: to.Hex(), Amount: amount.String()}
}
