package watchlist

import (
	"errors"

	"FinNewsAgent/internal/domain"
)

// ErrEmpty is returned when no usable symbol was configured.
var ErrEmpty = errors.New("watchlist is empty")

// Watchlist is the ordered, read-only set of tracked symbols for one run.
type Watchlist struct {
	symbols []domain.Symbol
	index   map[domain.Symbol]struct{}
}

// New normalizes raw entries, dropping blanks and repeats while keeping order.
func New(raw []string) (Watchlist, error) {
	w := Watchlist{index: make(map[domain.Symbol]struct{}, len(raw))}
	for _, entry := range raw {
		sym := domain.NormalizeSymbol(entry)
		if sym == "" {
			continue
		}
		if _, dup := w.index[sym]; dup {
			continue
		}
		w.index[sym] = struct{}{}
		w.symbols = append(w.symbols, sym)
	}
	if len(w.symbols) == 0 {
		return Watchlist{}, ErrEmpty
	}
	return w, nil
}

// Symbols returns a copy of the tracked symbols in configured order.
func (w Watchlist) Symbols() []domain.Symbol {
	out := make([]domain.Symbol, len(w.symbols))
	copy(out, w.symbols)
	return out
}

// Contains reports whether sym is tracked.
func (w Watchlist) Contains(sym domain.Symbol) bool {
	_, ok := w.index[sym]
	return ok
}

func (w Watchlist) Len() int {
	return len(w.symbols)
}
