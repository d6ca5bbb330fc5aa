// Package supabase implements store.Store on Supabase's PostgREST API,
// guarded by a circuit breaker so an unreachable backend fails fast.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/briangreenhill/communitysite/internal/store"
)

// BreakerConfig holds configuration for the circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used in production
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "supabase",
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// Store talks to the PostgREST endpoint of a Supabase project
type Store struct {
	client *supa.Client
	cb     *gobreaker.CircuitBreaker
	log    zerolog.Logger
}

// New creates a store for the project at url using key (anon or service role)
func New(url, key string, bc BreakerConfig, log zerolog.Logger) (*Store, error) {
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return NewWithClient(client, bc, log), nil
}

// NewWithClient wraps an existing client, sharing it with media storage
func NewWithClient(client *supa.Client, bc BreakerConfig, log zerolog.Logger) *Store {
	s := &Store{client: client, log: log}
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        bc.Name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureThreshold
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return s
}

// Client exposes the underlying Supabase client
func (s *Store) Client() *supa.Client {
	return s.client
}

func (s *Store) exec(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, classify(fn())
	})
	return err
}

func (s *Store) Select(ctx context.Context, table string, q store.Query, out any) (int, error) {
	if err := store.CheckQuery(table, q); err != nil {
		return 0, err
	}
	var total int64
	err := s.exec(ctx, func() error {
		fb := s.client.From(table).Select("*", "exact", false)
		for _, f := range q.Filters {
			fb = fb.In(f.Column, f.Values)
		}
		for _, o := range q.Order {
			fb = fb.Order(o.Column, &postgrest.OrderOpts{Ascending: o.Ascending})
		}
		if q.Ranged() {
			fb = fb.Range(q.From, q.To, "")
		}
		n, err := fb.ExecuteTo(out)
		total = int64(n)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("select %s: %w", table, err)
	}
	return int(total), nil
}

func (s *Store) Insert(ctx context.Context, table string, row any, out any) error {
	var rows []json.RawMessage
	err := s.exec(ctx, func() error {
		_, err := s.client.From(table).Insert(row, false, "", "representation", "").ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return decodeFirst(rows, out)
}

func (s *Store) Update(ctx context.Context, table, id string, patch any, out any) error {
	var rows []json.RawMessage
	err := s.exec(ctx, func() error {
		_, err := s.client.From(table).Update(patch, "representation", "").Eq("id", id).ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", table, id, err)
	}
	return decodeFirst(rows, out)
}

func (s *Store) Delete(ctx context.Context, table, id string) error {
	err := s.exec(ctx, func() error {
		_, _, err := s.client.From(table).Delete("minimal", "").Eq("id", id).Execute()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	return nil
}

// UpdateSortOrders patches each row in turn. PostgREST has no multi-row
// update with per-row values, and an upsert would need every NOT NULL column.
// A failure part way leaves the earlier rows written.
func (s *Store) UpdateSortOrders(ctx context.Context, table string, orders []store.SortOrder) error {
	for _, o := range orders {
		o := o
		err := s.exec(ctx, func() error {
			patch := map[string]int{"sort_order": o.SortOrder}
			_, _, err := s.client.From(table).Update(patch, "minimal", "").Eq("id", o.ID).Execute()
			return err
		})
		if err != nil {
			return fmt.Errorf("update sort order %s/%s: %w", table, o.ID, err)
		}
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, table string, rows any) error {
	err := s.exec(ctx, func() error {
		_, _, err := s.client.From(table).Upsert(rows, "id", "minimal", "").Execute()
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

func decodeFirst(rows []json.RawMessage, out any) error {
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rows[0], out)
}
