// Package backup exports every content table into one JSON document and
// restores such documents.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/briangreenhill/communitysite/internal/store"
)

// Version of the document format
const Version = 1

var (
	ErrVersion       = errors.New("unsupported backup version")
	ErrUnknownDomain = errors.New("backup names an unknown domain")
	ErrMissingID     = errors.New("backup row without id")
)

// Document is a full export. Rows are kept as raw JSON so ids and numbers
// round-trip exactly.
type Document struct {
	Version   int                          `json:"version"`
	CreatedAt time.Time                    `json:"created_at"`
	Domains   map[string][]json.RawMessage `json:"domains"`
}

// Rows returns the number of rows per domain
func (d Document) Rows() map[string]int {
	out := make(map[string]int, len(d.Domains))
	for name, rows := range d.Domains {
		out[name] = len(rows)
	}
	return out
}

// Domain is what backup needs from a content domain. content.Manager
// implements it.
type Domain interface {
	Name() string
	Table() string
	Invalidate() int
}

type Service struct {
	store   store.Store
	domains []Domain
	log     zerolog.Logger
	now     func() time.Time
}

func New(st store.Store, domains []Domain, log zerolog.Logger) *Service {
	return &Service{store: st, domains: domains, log: log, now: time.Now}
}

// Export reads every domain table concurrently
func (s *Service) Export(ctx context.Context) (Document, error) {
	results := make([][]json.RawMessage, len(s.domains))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range s.domains {
		i, d := i, d
		g.Go(func() error {
			var rows []json.RawMessage
			q := store.All()
			q.Order = []store.Order{{Column: "sort_order", Ascending: true}}
			if _, err := s.store.Select(gctx, d.Table(), q, &rows); err != nil {
				return fmt.Errorf("export %s: %w", d.Name(), err)
			}
			if rows == nil {
				rows = []json.RawMessage{}
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Document{}, err
	}

	doc := Document{Version: Version, CreatedAt: s.now().UTC(), Domains: make(map[string][]json.RawMessage, len(s.domains))}
	for i, d := range s.domains {
		doc.Domains[d.Name()] = results[i]
	}
	s.log.Info().Interface("rows", doc.Rows()).Msg("backup exported")
	return doc, nil
}

// Check validates doc against the known domains without writing anything
func (s *Service) Check(doc Document) error {
	if doc.Version != Version {
		return fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}
	for name, rows := range doc.Domains {
		if s.domain(name) == nil {
			return fmt.Errorf("%w: %q", ErrUnknownDomain, name)
		}
		for i, raw := range rows {
			var row struct {
				ID json.RawMessage `json:"id"`
			}
			if err := json.Unmarshal(raw, &row); err != nil {
				return fmt.Errorf("%s row %d: %w", name, i, err)
			}
			if len(row.ID) == 0 || string(row.ID) == "null" || string(row.ID) == `""` {
				return fmt.Errorf("%w: %s row %d", ErrMissingID, name, i)
			}
		}
	}
	return nil
}

func (s *Service) domain(name string) Domain {
	for _, d := range s.domains {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Import upserts every row of doc by id and invalidates each domain it
// touched. Domains are written one after another; a failure stops the
// import and leaves earlier domains written.
func (s *Service) Import(ctx context.Context, doc Document) (map[string]int, error) {
	if err := s.Check(doc); err != nil {
		return nil, err
	}
	written := make(map[string]int, len(doc.Domains))
	for _, d := range s.domains {
		rows, ok := doc.Domains[d.Name()]
		if !ok || len(rows) == 0 {
			continue
		}
		if err := s.store.Upsert(ctx, d.Table(), rows); err != nil {
			return written, fmt.Errorf("import %s: %w", d.Name(), err)
		}
		d.Invalidate()
		written[d.Name()] = len(rows)
	}
	s.log.Info().Interface("rows", written).Msg("backup imported")
	return written, nil
}

// Encode writes doc as indented JSON
func Encode(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Decode reads a document
func Decode(r io.Reader) (Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode backup: %w", err)
	}
	return doc, nil
}

// Marshal returns the encoded document
func Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the object name used for stored exports
func FileName(at time.Time) string {
	return "backup-" + at.UTC().Format("20060102-150405") + ".json"
}

// Domains converts a slice of any Domain implementation
func Domains[D Domain](ds []D) []Domain {
	out := make([]Domain, len(ds))
	for i, d := range ds {
		out[i] = d
	}
	return out
}
