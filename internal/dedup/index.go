package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/ports"
)

type entryState uint8

const (
	stateReserved entryState = iota + 1
	stateSeen
)

type entry struct {
	state     entryState
	symbol    domain.Symbol
	firstSeen time.Time
}

// Index tracks which identities were processed or are being processed.
// Reserve is the only way for a caller to claim an identity; it is atomic with
// respect to every other operation on the index.
type Index struct {
	mu      sync.Mutex
	entries map[string]entry
	store   ports.SeenStore
	logger  zerolog.Logger
}

// New builds an empty index. A nil store keeps seen identities in memory only.
func New(store ports.SeenStore, logger zerolog.Logger) *Index {
	return &Index{
		entries: make(map[string]entry),
		store:   store,
		logger:  logger,
	}
}

// Seed marks records as seen without touching the backing store.
func (i *Index) Seed(records []domain.DedupRecord) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	added := 0
	for _, rec := range records {
		if rec.Identity == "" {
			continue
		}
		if existing, ok := i.entries[rec.Identity]; ok && existing.state == stateSeen {
			if !rec.FirstSeen.IsZero() && rec.FirstSeen.Before(existing.firstSeen) {
				existing.firstSeen = rec.FirstSeen
				i.entries[rec.Identity] = existing
			}
			continue
		}
		i.entries[rec.Identity] = entry{state: stateSeen, symbol: rec.Symbol, firstSeen: rec.FirstSeen}
		added++
	}
	return added
}

// Has reports whether identity is seen or currently reserved.
func (i *Index) Has(identity string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.entries[identity]
	return ok
}

// Seen reports whether identity was durably processed.
func (i *Index) Seen(identity string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	e, ok := i.entries[identity]
	return ok && e.state == stateSeen
}

// Reserve claims identity for processing. It returns false when the identity is
// already seen or reserved by another task.
func (i *Index) Reserve(identity string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.entries[identity]; ok {
		return false
	}
	i.entries[identity] = entry{state: stateReserved}
	return true
}

// Release drops an in-flight reservation so a later cycle can retry the article.
// Seen identities are left untouched.
func (i *Index) Release(identity string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if e, ok := i.entries[identity]; ok && e.state == stateReserved {
		delete(i.entries, identity)
	}
}

// Commit turns a reservation into a seen entry and mirrors it to the store.
// It must only be called once the record is durable in the stream.
func (i *Index) Commit(ctx context.Context, rec domain.DedupRecord) {
	i.mu.Lock()
	i.entries[rec.Identity] = entry{state: stateSeen, symbol: rec.Symbol, firstSeen: rec.FirstSeen}
	i.mu.Unlock()

	i.persist(ctx, rec)
}

// RecordSeen marks identity as seen regardless of any reservation.
func (i *Index) RecordSeen(ctx context.Context, identity string, symbol domain.Symbol, ts time.Time) {
	i.Commit(ctx, domain.DedupRecord{Identity: identity, Symbol: symbol, FirstSeen: ts})
}

// Prune forgets seen identities first seen before the cutoff.
func (i *Index) Prune(ctx context.Context, before time.Time) (int, error) {
	i.mu.Lock()
	removed := 0
	for id, e := range i.entries {
		if e.state == stateSeen && !e.firstSeen.IsZero() && e.firstSeen.Before(before) {
			delete(i.entries, id)
			removed++
		}
	}
	i.mu.Unlock()

	if i.store == nil {
		return removed, nil
	}
	if _, err := i.store.PruneSeen(ctx, before); err != nil {
		return removed, err
	}
	return removed, nil
}

// Len returns the number of seen identities.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, e := range i.entries {
		if e.state == stateSeen {
			n++
		}
	}
	return n
}

func (i *Index) persist(ctx context.Context, rec domain.DedupRecord) {
	if i.store == nil {
		return
	}
	// The record stream already holds the identity; a store miss only costs a
	// rescan at startup.
	if err := i.store.MarkSeen(context.WithoutCancel(ctx), rec); err != nil {
		i.logger.Warn().
			Err(err).
			Str("identity", rec.Identity).
			Str("symbol", rec.Symbol.String()).
			Msg("seen store write failed")
	}
}
