package content

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/briangreenhill/communitysite/internal/cache"
	"github.com/briangreenhill/communitysite/internal/reorder"
	"github.com/briangreenhill/communitysite/internal/store"
)

// Manager is the untyped view of a Service used by the admin area, the JSON
// API and backups, which handle every domain the same way.
type Manager interface {
	Name() string
	Label() string
	Table() string
	Fields() []Field
	HasLocation() bool

	Records(ctx context.Context, loc Location) ([]Record, error)
	Record(ctx context.Context, id string) (Record, error)
	LoadRecord(ctx context.Context, id string) (Record, error)
	RecordPage(ctx context.Context, page, size int) (Page[Record], error)

	CreateFrom(ctx context.Context, row map[string]any) (Record, error)
	UpdateFrom(ctx context.Context, id string, row map[string]any) (Record, error)
	Delete(ctx context.Context, id string) error
	ArrangeIDs(ctx context.Context, ids []string) ([]Record, reorder.State, error)
	MoveItem(ctx context.Context, from, to int) ([]Record, reorder.State, error)
	Invalidate() int
}

func (s *Service[T]) Name() string      { return s.domain.Name }
func (s *Service[T]) Label() string     { return s.domain.Label }
func (s *Service[T]) Table() string     { return s.domain.Table }
func (s *Service[T]) Fields() []Field   { return s.domain.Fields }
func (s *Service[T]) HasLocation() bool { return s.domain.LocationColumn != "" }

func records[T Record](items []T) []Record {
	out := make([]Record, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}

func (s *Service[T]) Records(ctx context.Context, loc Location) ([]Record, error) {
	items, err := s.List(ctx, loc)
	if err != nil {
		return nil, err
	}
	return records(items), nil
}

func (s *Service[T]) Record(ctx context.Context, id string) (Record, error) {
	it, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Service[T]) LoadRecord(ctx context.Context, id string) (Record, error) {
	it, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Service[T]) RecordPage(ctx context.Context, page, size int) (Page[Record], error) {
	p, err := s.Page(ctx, page, size)
	if err != nil {
		return Page[Record]{}, err
	}
	return Page[Record]{Items: records(p.Items), Total: p.Total, Page: p.Page, Size: p.Size}, nil
}

// decodeRow converts a column map into T
func decodeRow[T any](row map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(row)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return out, nil
}

func (s *Service[T]) CreateFrom(ctx context.Context, row map[string]any) (Record, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	item, err := decodeRow[T](row)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, item)
}

// UpdateFrom applies row on top of the stored item, so columns the caller
// does not send keep their value.
func (s *Service[T]) UpdateFrom(ctx context.Context, id string, row map[string]any) (Record, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	var rows []map[string]any
	if _, err := s.store.Select(ctx, s.domain.Table, store.All().Where("id", id).Range(0, 0), &rows); err != nil {
		s.rec.RemoteError(s.domain.Name, "load")
		return nil, fmt.Errorf("load %s/%s: %w", s.domain.Name, id, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	merged := rows[0]
	for k, v := range row {
		merged[k] = v
	}

	item, err := decodeRow[T](merged)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, id, item)
}

func (s *Service[T]) ArrangeIDs(ctx context.Context, ids []string) ([]Record, reorder.State, error) {
	items, st, err := s.Arrange(ctx, ids)
	return records(items), st, err
}

func (s *Service[T]) MoveItem(ctx context.Context, from, to int) ([]Record, reorder.State, error) {
	items, st, err := s.Move(ctx, from, to)
	return records(items), st, err
}

// Registry keeps the managers in registration order
type Registry struct {
	names    []string
	managers map[string]Manager
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]Manager)}
}

// Register adds m, replacing any manager with the same name
func (r *Registry) Register(m Manager) {
	if _, exists := r.managers[m.Name()]; !exists {
		r.names = append(r.names, m.Name())
	}
	r.managers[m.Name()] = m
}

// Get retrieves a manager by name
func (r *Registry) Get(name string) (Manager, bool) {
	m, ok := r.managers[name]
	return m, ok
}

// Lookup is Get with an error for unknown names
func (r *Registry) Lookup(name string) (Manager, error) {
	if m, ok := r.managers[name]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, name)
}

// List returns the registered names in order
func (r *Registry) List() []string {
	return append([]string(nil), r.names...)
}

// All returns the managers in registration order
func (r *Registry) All() []Manager {
	out := make([]Manager, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.managers[n])
	}
	return out
}

// Catalog holds the typed service of every domain
type Catalog struct {
	Events     *Service[Event]
	Activities *Service[Activity]
	Gallery    *Service[GalleryImage]
	Team       *Service[TeamMember]
	Volunteers *Service[Volunteer]

	*Registry
}

// NewCatalog builds all services on one store and one cache
func NewCatalog(st store.Store, c *cache.Store, opts Options) *Catalog {
	cat := &Catalog{
		Events:     NewService(EventsDomain, st, c, opts),
		Activities: NewService(ActivitiesDomain, st, c, opts),
		Gallery:    NewService(GalleryDomain, st, c, opts),
		Team:       NewService(TeamDomain, st, c, opts),
		Volunteers: NewService(VolunteersDomain, st, c, opts),
		Registry:   NewRegistry(),
	}
	cat.Register(cat.Events)
	cat.Register(cat.Activities)
	cat.Register(cat.Gallery)
	cat.Register(cat.Team)
	cat.Register(cat.Volunteers)
	return cat
}
