package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/timshannon/badgerhold/v4"

	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/ports"
)

// seenEntry is the badgerhold value stored per identity.
type seenEntry struct {
	Identity  string
	Symbol    string
	FirstSeen time.Time
}

// BadgerSeenStore keeps dedup identities in an embedded Badger database.
type BadgerSeenStore struct {
	store  *badgerhold.Store
	logger zerolog.Logger
}

var _ ports.SeenStore = (*BadgerSeenStore)(nil)

// OpenBadgerSeenStore opens (or creates) the database directory at path.
func OpenBadgerSeenStore(path string, logger zerolog.Logger) (*BadgerSeenStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create badger dir: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger seen store: %w", err)
	}

	logger.Debug().Str("path", path).Msg("badger seen store opened")
	return &BadgerSeenStore{store: store, logger: logger}, nil
}

// LoadSeen returns every stored identity.
func (b *BadgerSeenStore) LoadSeen(_ context.Context) ([]domain.DedupRecord, error) {
	var entries []seenEntry
	if err := b.store.Find(&entries, nil); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("load seen: %w", err)
	}
	out := make([]domain.DedupRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.DedupRecord{
			Identity:  e.Identity,
			Symbol:    domain.Symbol(e.Symbol),
			FirstSeen: e.FirstSeen,
		})
	}
	return out, nil
}

// MarkSeen inserts the identity; an existing entry keeps its first-seen time.
func (b *BadgerSeenStore) MarkSeen(_ context.Context, rec domain.DedupRecord) error {
	entry := seenEntry{
		Identity:  rec.Identity,
		Symbol:    rec.Symbol.String(),
		FirstSeen: rec.FirstSeen.UTC(),
	}
	if err := b.store.Insert(rec.Identity, &entry); err != nil && !errors.Is(err, badgerhold.ErrKeyExists) {
		return fmt.Errorf("mark seen %s: %w", rec.Identity, err)
	}
	return nil
}

// PruneSeen deletes identities first seen before the cutoff.
func (b *BadgerSeenStore) PruneSeen(ctx context.Context, before time.Time) (int, error) {
	var entries []seenEntry
	if err := b.store.Find(&entries, nil); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return 0, fmt.Errorf("scan seen: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !e.FirstSeen.Before(before) {
			continue
		}
		if err := b.store.Delete(e.Identity, &seenEntry{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return removed, fmt.Errorf("delete seen %s: %w", e.Identity, err)
		}
		removed++
	}
	return removed, nil
}

// Close closes the database.
func (b *BadgerSeenStore) Close() error {
	if b.store == nil {
		return nil
	}
	return b.store.Close()
}
