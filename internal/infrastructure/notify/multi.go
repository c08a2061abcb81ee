package notify

import (
	"context"
	"errors"
	"fmt"

	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/ports"
)

// Named pairs a notifier with a label used in errors and logs.
type Named struct {
	Name     string
	Notifier ports.Notifier
}

// Multi sends every alert to all configured channels.
type Multi struct {
	targets []Named
}

var _ ports.Notifier = (*Multi)(nil)

// NewMulti drops entries without a notifier.
func NewMulti(targets ...Named) *Multi {
	m := &Multi{}
	for _, t := range targets {
		if t.Notifier != nil {
			m.targets = append(m.targets, t)
		}
	}
	return m
}

// Len returns the number of channels.
func (m *Multi) Len() int {
	return len(m.targets)
}

// Names lists channel labels in order.
func (m *Multi) Names() []string {
	names := make([]string, 0, len(m.targets))
	for _, t := range m.targets {
		names = append(names, t.Name)
	}
	return names
}

// Send tries every channel once and joins the failures.
func (m *Multi) Send(ctx context.Context, event domain.AlertEvent) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.Notifier.Send(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}
