package wal

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"

	"swirlPool/internal/ledger"
	"swirlPool/internal/model"
)

const entryKeyPrefix = "entry_"

// Config configures the on-disk journal.
type Config struct {
	Dir              string
	SegmentThreshold int
	MaxSegments      int
	SyncDisk         bool
}

// Journal is a write-ahead log of ledger inputs.
type Journal struct {
	wal *gowal.Wal
}

func Open(cfg Config) (*Journal, error) {
	if cfg.Dir == "" {
		return nil, errors.New("journal dir is required")
	}
	if cfg.SegmentThreshold <= 0 {
		cfg.SegmentThreshold = 1000
	}
	if cfg.MaxSegments <= 0 {
		cfg.MaxSegments = 100
	}
	w, err := gowal.NewWAL(gowal.Config{
		Dir:              cfg.Dir,
		Prefix:           "journal_",
		SegmentThreshold: cfg.SegmentThreshold,
		MaxSegments:      cfg.MaxSegments,
		IsInSyncDiskMode: cfg.SyncDisk,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error init journal")
	}
	return &Journal{wal: w}, nil
}

// Append writes entry under the next index and returns that index.
func (j *Journal) Append(entry model.JournalEntry) (uint64, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal journal entry")
	}
	idx := j.wal.CurrentIndex() + 1
	if err := j.wal.Write(idx, entryKey(idx), data); err != nil {
		return 0, errors.Wrap(err, "failed to write journal entry")
	}
	return idx, nil
}

// Entry is a journaled input with its index.
type Entry struct {
	Index uint64
	Entry model.JournalEntry
}

// Entries returns every retained entry with index greater than after, in
// index order.
func (j *Journal) Entries(after uint64) ([]Entry, error) {
	var out []Entry
	for msg := range j.wal.Iterator() {
		idx, ok := parseEntryKey(msg.Key)
		if !ok || idx <= after {
			continue
		}
		var entry model.JournalEntry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			return nil, errors.Wrapf(err, "error unmarshal journal entry %d", idx)
		}
		out = append(out, Entry{Index: idx, Entry: entry})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out, nil
}

func (j *Journal) CurrentIndex() uint64 {
	return j.wal.CurrentIndex()
}

func (j *Journal) Close() error {
	return j.wal.Close()
}

// Replay applies every entry the ledger has not seen yet. Entries the ledger
// rejects were rejected when first applied too; they are logged and skipped.
// The ledger's event sink is detached while replaying, so events that reached
// the sink before a restart are not written twice.
func Replay(j *Journal, l *ledger.Ledger, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := l.SetSink(nil)
	defer l.SetSink(sink)
	entries, err := j.Entries(l.JournalIndex())
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, e := range entries {
		if err := l.ApplyEntry(e.Entry); err != nil {
			logger.Warn("journal entry rejected on replay",
				zap.Uint64("index", e.Index),
				zap.String("op", e.Entry.Op),
				zap.Error(err),
			)
		} else {
			applied++
		}
		l.MarkJournal(e.Index)
	}
	return applied, nil
}

func entryKey(idx uint64) string {
	return fmt.Sprintf("%s%020d", entryKeyPrefix, idx)
}

func parseEntryKey(key string) (uint64, bool) {
	if !strings.HasPrefix(key, entryKeyPrefix) {
		return 0, false
	}
	idx, err := strconv.ParseUint(strings.TrimPrefix(key, entryKeyPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return idx, true
}
