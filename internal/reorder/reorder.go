// Package reorder implements optimistic drag-and-drop reordering of admin
// lists: the new order is applied locally first, then written in one batch,
// and replaced by the authoritative order if the write fails.
package reorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/briangreenhill/communitysite/internal/store"
)

// State of a list
type State int

const (
	Stable State = iota
	OptimisticPending
	RolledBack
)

func (s State) String() string {
	switch s {
	case Stable:
		return "stable"
	case OptimisticPending:
		return "pending"
	case RolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrPending    = errors.New("reorder already pending")
	ErrNotPending = errors.New("no reorder pending")
	ErrOutOfRange = errors.New("position out of range")
	ErrMismatch   = errors.New("ids do not match list")
)

// Item is anything with a stable identifier
type Item interface {
	RecordID() string
}

// WriteFunc persists a batch of sort orders
type WriteFunc func(ctx context.Context, orders []store.SortOrder) error

// LoadFunc fetches the authoritative list
type LoadFunc[T Item] func(ctx context.Context) ([]T, error)

// List holds one admin list and its reorder state
type List[T Item] struct {
	items    []T
	previous []T
	orders   []store.SortOrder
	state    State
	assign   func(*T, int)
}

// New wraps items in their current order. assign, if non-nil, stores the
// new position on each item when the order changes.
func New[T Item](items []T, assign func(*T, int)) *List[T] {
	return &List[T]{items: append([]T(nil), items...), assign: assign}
}

// Items returns the list as it should be displayed now
func (l *List[T]) Items() []T {
	return append([]T(nil), l.items...)
}

// State returns the current state
func (l *List[T]) State() State {
	return l.state
}

// Move relocates the item at from to position to, renumbers every item by
// position and returns the batch that Commit will write.
func (l *List[T]) Move(from, to int) ([]store.SortOrder, error) {
	if l.state == OptimisticPending {
		return nil, ErrPending
	}
	if from < 0 || from >= len(l.items) || to < 0 || to >= len(l.items) {
		return nil, ErrOutOfRange
	}

	next := make([]T, 0, len(l.items))
	moved := l.items[from]
	for i, it := range l.items {
		if i != from {
			next = append(next, it)
		}
	}
	next = append(next[:to], append([]T{moved}, next[to:]...)...)
	return l.apply(next), nil
}

// Arrange puts the list into the order given by ids, which must name every
// item exactly once.
func (l *List[T]) Arrange(ids []string) ([]store.SortOrder, error) {
	if l.state == OptimisticPending {
		return nil, ErrPending
	}
	if len(ids) != len(l.items) {
		return nil, ErrMismatch
	}
	byID := make(map[string]T, len(l.items))
	for _, it := range l.items {
		byID[it.RecordID()] = it
	}
	next := make([]T, 0, len(ids))
	for _, id := range ids {
		it, ok := byID[id]
		if !ok {
			return nil, ErrMismatch
		}
		delete(byID, id)
		next = append(next, it)
	}
	return l.apply(next), nil
}

func (l *List[T]) apply(next []T) []store.SortOrder {
	orders := make([]store.SortOrder, len(next))
	for i := range next {
		if l.assign != nil {
			l.assign(&next[i], i)
		}
		orders[i] = store.SortOrder{ID: next[i].RecordID(), SortOrder: i}
	}
	l.previous = l.items
	l.items = next
	l.orders = orders
	l.state = OptimisticPending
	return append([]store.SortOrder(nil), orders...)
}

// Commit writes the pending batch once. On success the list becomes Stable.
// On failure the authoritative order is loaded and shown instead, the list
// becomes RolledBack and the write error is returned; nothing is retried.
// If ctx is done by the time the write returns, the list is left untouched.
func (l *List[T]) Commit(ctx context.Context, write WriteFunc, reload LoadFunc[T]) error {
	if l.state != OptimisticPending {
		return ErrNotPending
	}

	werr := write(ctx, l.orders)
	if err := ctx.Err(); err != nil {
		return err
	}
	if werr == nil {
		l.state = Stable
		l.previous, l.orders = nil, nil
		return nil
	}

	fresh, lerr := reload(ctx)
	if lerr != nil {
		// authoritative order unknown; show what we had before the move
		l.items = l.previous
		l.state = RolledBack
		l.previous, l.orders = nil, nil
		return fmt.Errorf("update sort orders: %w (reload failed: %v)", werr, lerr)
	}
	l.items = fresh
	l.state = RolledBack
	l.previous, l.orders = nil, nil
	return fmt.Errorf("update sort orders: %w", werr)
}
