// Package store defines the table-style contract of the remote content store.
// Implementations live in the supabase and sqlite subpackages.
package store

import (
	"context"
	"errors"
	"regexp"
)

var (
	// ErrNotFound is returned by Update when no row has the given id
	ErrNotFound = errors.New("row not found")
	// ErrBadColumn is returned for column names that are not plain identifiers
	ErrBadColumn = errors.New("invalid column name")
	// ErrRejected wraps errors where the store answered but refused the
	// request itself (malformed id, constraint violation). The store is
	// healthy; retrying the same request fails the same way.
	ErrRejected = errors.New("request rejected by store")
)

// Filter restricts a column to one of Values
type Filter struct {
	Column string
	Values []string
}

// Order sorts by Column
type Order struct {
	Column    string
	Ascending bool
}

// Query describes a filtered, sorted, optionally ranged read.
// From and To are inclusive row offsets; To < 0 means no range.
type Query struct {
	Filters []Filter
	Order   []Order
	From    int
	To      int
}

// All returns a query with no range applied
func All() Query {
	return Query{To: -1}
}

// Where appends an IN filter
func (q Query) Where(column string, values ...string) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: column, Values: values})
	return q
}

// Range limits the result to rows from..to inclusive
func (q Query) Range(from, to int) Query {
	q.From, q.To = from, to
	return q
}

// Ranged reports whether a range applies
func (q Query) Ranged() bool {
	return q.To >= 0
}

// SortOrder assigns position Order to the row with ID
type SortOrder struct {
	ID        string `json:"id"`
	SortOrder int    `json:"sort_order"`
}

// Store is a remote table store. Rows are exchanged as JSON-compatible
// values: Select decodes a JSON array of rows into out, Insert and Update
// decode the single stored row.
type Store interface {
	// Select reads rows matching q into out and returns the total number of
	// matching rows ignoring the range.
	Select(ctx context.Context, table string, q Query, out any) (int, error)
	// Insert writes row and decodes the stored row (with its assigned id) into out.
	Insert(ctx context.Context, table string, row any, out any) error
	// Update patches the row with id and decodes the stored row into out.
	Update(ctx context.Context, table, id string, patch any, out any) error
	// Delete removes the row with id. Deleting a missing row is not an error.
	Delete(ctx context.Context, table, id string) error
	// UpdateSortOrders sets sort_order on each listed row. Implementations
	// that write row by row may leave a prefix applied when they fail.
	UpdateSortOrders(ctx context.Context, table string, orders []SortOrder) error
	// Upsert inserts or replaces rows by id.
	Upsert(ctx context.Context, table string, rows any) error
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidColumn reports whether name is safe to use as a column identifier
func ValidColumn(name string) bool {
	return identifier.MatchString(name)
}

// CheckQuery validates every column referenced by q
func CheckQuery(table string, q Query) error {
	if !ValidColumn(table) {
		return ErrBadColumn
	}
	for _, f := range q.Filters {
		if !ValidColumn(f.Column) {
			return ErrBadColumn
		}
	}
	for _, o := range q.Order {
		if !ValidColumn(o.Column) {
			return ErrBadColumn
		}
	}
	return nil
}
