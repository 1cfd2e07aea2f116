package storage

import (
	"context"

	"swirlPool/internal/ledger"
)

// StateStore persists ledger snapshots.
type StateStore interface {
	Load(ctx context.Context) (*ledger.Snapshot, bool, error)
	Save(ctx context.Context, snap *ledger.Snapshot) error
}
