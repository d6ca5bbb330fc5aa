package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/communitysite/internal/auth"
	"github.com/briangreenhill/communitysite/internal/cache"
	"github.com/briangreenhill/communitysite/internal/reorder"
	"github.com/briangreenhill/communitysite/internal/store"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Recorder receives content metrics. *metrics.Collector implements it.
type Recorder interface {
	Fallback(domain, reason string)
	RemoteError(domain, op string)
	Mutation(domain, op string, err error)
}

type nopRecorder struct{}

func (nopRecorder) Fallback(string, string)        {}
func (nopRecorder) RemoteError(string, string)     {}
func (nopRecorder) Mutation(string, string, error) {}

// Options configure every Service built from them
type Options struct {
	ListTTL time.Duration
	ItemTTL time.Duration
	PageTTL time.Duration
	// FallbackOnEmpty serves sample data when the remote store answers with
	// zero rows. When false only remote errors fall back.
	FallbackOnEmpty bool
	Recorder        Recorder
	Logger          zerolog.Logger
	// Samples overrides the bundled sample datasets
	Samples fs.FS
	// ObjectsRemoved is called after a successful delete with the storage
	// paths the deleted item owned
	ObjectsRemoved func(ctx context.Context, domain string, paths []string)
}

// DefaultOptions returns the production TTLs
func DefaultOptions() Options {
	return Options{
		ListTTL:         5 * time.Minute,
		ItemTTL:         10 * time.Minute,
		PageTTL:         2 * time.Minute,
		FallbackOnEmpty: true,
		Logger:          zerolog.Nop(),
	}
}

// Service reads and writes one content domain
type Service[T Record] struct {
	domain   Domain[T]
	store    store.Store
	cache    *cache.Store
	opts     Options
	rec      Recorder
	log      zerolog.Logger
	validate *validator.Validate
}

// NewService builds a service for d on top of st and c
func NewService[T Record](d Domain[T], st store.Store, c *cache.Store, opts Options) *Service[T] {
	if opts.Samples == nil {
		opts.Samples = sampleFS
	}
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Service[T]{
		domain:   d,
		store:    st,
		cache:    c,
		opts:     opts,
		rec:      rec,
		log:      opts.Logger.With().Str("domain", d.Name).Logger(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service[T]) Domain() Domain[T] { return s.domain }

// location drops the filter for domains that have no location column
func (s *Service[T]) location(loc Location) Location {
	if s.domain.LocationColumn == "" {
		return ""
	}
	return loc
}

// List returns the items shown at loc ("" for all), sorted by the domain
// ordering. It reads through the cache; on a miss the remote store is asked
// and, if it fails or has nothing, the filtered sample dataset is served and
// cached like any other result. Only context cancellation is returned as an
// error.
func (s *Service[T]) List(ctx context.Context, loc Location) ([]T, error) {
	loc = s.location(loc)
	key := cache.ListKey(s.domain.Name, string(loc))
	return cache.GetCached(ctx, s.cache, key, s.opts.ListTTL, func(ctx context.Context) ([]T, error) {
		return s.fetchList(ctx, loc)
	})
}

func (s *Service[T]) fetchList(ctx context.Context, loc Location) ([]T, error) {
	q := store.All()
	if loc != "" {
		q = q.Where(s.domain.LocationColumn, string(loc), string(Both))
	}
	q.Order = s.domain.Order

	var rows []T
	_, err := s.store.Select(ctx, s.domain.Table, q, &rows)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.rec.RemoteError(s.domain.Name, "list")
		s.rec.Fallback(s.domain.Name, "error")
		s.log.Warn().Err(err).Str("location", string(loc)).Msg("remote list failed, serving sample data")
		return filterByLocation(s.loadSamples(), loc), nil
	}
	if len(rows) == 0 && s.opts.FallbackOnEmpty {
		s.rec.Fallback(s.domain.Name, "empty")
		s.log.Debug().Str("location", string(loc)).Msg("remote list empty, serving sample data")
		return filterByLocation(s.loadSamples(), loc), nil
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// Get returns one item by id, reading through the cache. When the remote
// store fails (or has no such row and empty results fall back) the sample
// item with the same id is served. ErrNotFound when neither has it.
func (s *Service[T]) Get(ctx context.Context, id string) (T, error) {
	if reservedID(id) {
		var zero T
		return zero, ErrNotFound
	}
	key := cache.ItemKey(s.domain.Name, id)
	return cache.GetCached(ctx, s.cache, key, s.opts.ItemTTL, func(ctx context.Context) (T, error) {
		return s.fetchItem(ctx, id)
	})
}

func (s *Service[T]) fetchItem(ctx context.Context, id string) (T, error) {
	var zero T
	var rows []T
	_, err := s.store.Select(ctx, s.domain.Table, store.All().Where("id", id).Range(0, 0), &rows)
	switch {
	case err == nil && len(rows) > 0:
		return rows[0], nil
	case errors.Is(err, store.ErrRejected):
		// the store is up and the id is not one of its keys
		return zero, ErrNotFound
	case err != nil:
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		s.rec.RemoteError(s.domain.Name, "get")
		s.log.Warn().Err(err).Str("id", id).Msg("remote get failed, trying sample data")
	case !s.opts.FallbackOnEmpty:
		return zero, ErrNotFound
	}

	for _, it := range s.loadSamples() {
		if it.RecordID() == id {
			s.rec.Fallback(s.domain.Name, "item")
			return it, nil
		}
	}
	return zero, ErrNotFound
}

// reservedID reports ids that would share a cache key with a list or page
// entry of the same domain
func reservedID(id string) bool {
	if id == "" || id == cache.AllLocations || strings.HasPrefix(id, "page_") {
		return true
	}
	for _, l := range Locations {
		if string(l) == id {
			return true
		}
	}
	return false
}

// Load reads one row straight from the remote store, bypassing the cache and
// the sample data. Admin forms use it so they never edit a stale or sample copy.
func (s *Service[T]) Load(ctx context.Context, id string) (T, error) {
	var zero T
	var rows []T
	_, err := s.store.Select(ctx, s.domain.Table, store.All().Where("id", id).Range(0, 0), &rows)
	switch {
	case errors.Is(err, store.ErrRejected):
		return zero, ErrNotFound
	case err != nil:
		s.rec.RemoteError(s.domain.Name, "load")
		return zero, fmt.Errorf("load %s/%s: %w", s.domain.Name, id, err)
	case len(rows) == 0:
		return zero, ErrNotFound
	}
	return rows[0], nil
}

// Page returns one page of the admin listing. Admin reads never fall back:
// remote errors are returned so the page can show them.
func (s *Service[T]) Page(ctx context.Context, page, size int) (Page[T], error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	key := cache.PageKey(s.domain.Name, page, size)
	return cache.GetCached(ctx, s.cache, key, s.opts.PageTTL, func(ctx context.Context) (Page[T], error) {
		q := store.All().Range((page-1)*size, page*size-1)
		q.Order = s.domain.Order
		var rows []T
		total, err := s.store.Select(ctx, s.domain.Table, q, &rows)
		if err != nil {
			s.rec.RemoteError(s.domain.Name, "page")
			return Page[T]{}, fmt.Errorf("load %s page %d: %w", s.domain.Name, page, err)
		}
		if rows == nil {
			rows = []T{}
		}
		return Page[T]{Items: rows, Total: total, Page: page, Size: size}, nil
	})
}

// LoadAll reads the whole table in display order, bypassing the cache and
// the sample data. Used where the authoritative state is needed.
func (s *Service[T]) LoadAll(ctx context.Context) ([]T, error) {
	q := store.All()
	q.Order = s.domain.Order
	var rows []T
	if _, err := s.store.Select(ctx, s.domain.Table, q, &rows); err != nil {
		s.rec.RemoteError(s.domain.Name, "load")
		return nil, fmt.Errorf("load %s: %w", s.domain.Name, err)
	}
	return rows, nil
}

// Invalidate drops every cached view of the domain
func (s *Service[T]) Invalidate() int {
	return s.cache.InvalidatePattern(cache.DomainPattern(s.domain.Name))
}

func requireAdmin(ctx context.Context) error {
	if _, ok := auth.AdminFrom(ctx); !ok {
		return ErrUnauthorized
	}
	return nil
}

func (s *Service[T]) check(item T) error {
	if err := s.validate.Struct(item); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// row turns item into the column set sent to the store. Remote-assigned
// columns are dropped.
func (s *Service[T]) row(item T) (map[string]any, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	delete(row, "id")
	delete(row, "created_at")
	if s.domain.LocationColumn == "" {
		delete(row, "display_on")
	} else if v, _ := row[s.domain.LocationColumn].(string); v == "" {
		row[s.domain.LocationColumn] = string(Both)
	}
	return row, nil
}

// finish records the outcome of a write and invalidates on success
func (s *Service[T]) finish(op string, err error) error {
	s.rec.Mutation(s.domain.Name, op, err)
	if err != nil {
		s.log.Error().Err(err).Str("op", op).Msg("content write failed")
		return fmt.Errorf("%s %s: %w", op, s.domain.Name, err)
	}
	n := s.Invalidate()
	s.log.Info().Str("op", op).Int("invalidated", n).Msg("content written")
	return nil
}

// Create inserts item and returns the stored row
func (s *Service[T]) Create(ctx context.Context, item T) (T, error) {
	var out T
	if err := requireAdmin(ctx); err != nil {
		return out, err
	}
	if err := s.check(item); err != nil {
		return out, err
	}
	row, err := s.row(item)
	if err != nil {
		return out, err
	}
	err = s.store.Insert(ctx, s.domain.Table, row, &out)
	return out, s.finish("create", err)
}

// Update replaces the editable columns of the row with id. Sort order is
// left alone; it only changes through UpdateSortOrders.
func (s *Service[T]) Update(ctx context.Context, id string, item T) (T, error) {
	var out T
	if err := requireAdmin(ctx); err != nil {
		return out, err
	}
	if err := s.check(item); err != nil {
		return out, err
	}
	row, err := s.row(item)
	if err != nil {
		return out, err
	}
	delete(row, "sort_order")
	err = s.store.Update(ctx, s.domain.Table, id, row, &out)
	if errors.Is(err, store.ErrNotFound) {
		s.rec.Mutation(s.domain.Name, "update", err)
		return out, ErrNotFound
	}
	return out, s.finish("update", err)
}

// Delete removes the row with id
func (s *Service[T]) Delete(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	var owned []string
	if s.domain.Objects != nil {
		var rows []T
		if _, err := s.store.Select(ctx, s.domain.Table, store.All().Where("id", id).Range(0, 0), &rows); err == nil && len(rows) > 0 {
			owned = s.domain.Objects(rows[0])
		}
	}

	if err := s.finish("delete", s.store.Delete(ctx, s.domain.Table, id)); err != nil {
		return err
	}
	if len(owned) > 0 && s.opts.ObjectsRemoved != nil {
		s.opts.ObjectsRemoved(ctx, s.domain.Name, owned)
	}
	return nil
}

// UpdateSortOrders writes a batch of positions in one call. A failed batch
// may be partly applied remotely, so the domain is invalidated either way.
func (s *Service[T]) UpdateSortOrders(ctx context.Context, orders []store.SortOrder) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	err := s.finish("reorder", s.store.UpdateSortOrders(ctx, s.domain.Table, orders))
	if err != nil {
		s.Invalidate()
	}
	return err
}

// Arrange puts the domain into the order given by ids. The new order is
// applied optimistically and written once; if the write fails the
// authoritative order is reloaded and returned with state RolledBack.
func (s *Service[T]) Arrange(ctx context.Context, ids []string) ([]T, reorder.State, error) {
	return s.reorder(ctx, func(l *reorder.List[T]) error {
		_, err := l.Arrange(ids)
		return err
	})
}

// Move relocates the item at position from to position to
func (s *Service[T]) Move(ctx context.Context, from, to int) ([]T, reorder.State, error) {
	return s.reorder(ctx, func(l *reorder.List[T]) error {
		_, err := l.Move(from, to)
		return err
	})
}

func (s *Service[T]) reorder(ctx context.Context, change func(*reorder.List[T]) error) ([]T, reorder.State, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, reorder.Stable, err
	}
	items, err := s.LoadAll(ctx)
	if err != nil {
		return nil, reorder.Stable, err
	}
	l := reorder.New(items, s.domain.SetSortOrder)
	if err := change(l); err != nil {
		return items, l.State(), fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	err = l.Commit(ctx, s.UpdateSortOrders, s.LoadAll)
	return l.Items(), l.State(), err
}
