// Package analytics records public page views in Postgres and summarises
// them for the admin dashboard.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

var ErrDisabled = errors.New("analytics disabled")

// View is one page view
type View struct {
	Path      string
	Referrer  string
	UserAgent string
	At        time.Time
}

type PathCount struct {
	Path  string
	Views int
}

type DayCount struct {
	Day   time.Time
	Views int
}

// Summary aggregates views since a point in time
type Summary struct {
	Since  time.Time
	Total  int
	ByPath []PathCount
	ByDay  []DayCount
}

// Recorder stores and summarises views
type Recorder interface {
	Record(ctx context.Context, v View) error
	Summary(ctx context.Context, since time.Time) (Summary, error)
}

// DB is the subset of *pgxpool.Pool used here
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS page_views (
	id         BIGSERIAL PRIMARY KEY,
	path       TEXT NOT NULL,
	referrer   TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	viewed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS page_views_viewed_at_idx ON page_views (viewed_at);
`

const (
	insertView = `INSERT INTO page_views (path, referrer, user_agent, viewed_at) VALUES ($1, $2, $3, $4)`

	viewsByPath = `SELECT path, count(*) FROM page_views WHERE viewed_at >= $1
GROUP BY path ORDER BY count(*) DESC, path LIMIT $2`

	viewsByDay = `SELECT date_trunc('day', viewed_at) AS day, count(*) FROM page_views WHERE viewed_at >= $1
GROUP BY day ORDER BY day`
)

const topPaths = 20

// Postgres is a Recorder on the page_views table
type Postgres struct {
	db  DB
	log zerolog.Logger
	now func() time.Time
}

func NewPostgres(db DB, log zerolog.Logger) *Postgres {
	return &Postgres{db: db, log: log, now: time.Now}
}

// Migrate creates the page_views table if needed
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate page_views: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, v View) error {
	if v.At.IsZero() {
		v.At = p.now()
	}
	if _, err := p.db.Exec(ctx, insertView, truncate(v.Path, 500), truncate(v.Referrer, 500), truncate(v.UserAgent, 500), v.At.UTC()); err != nil {
		return fmt.Errorf("record page view: %w", err)
	}
	return nil
}

func (p *Postgres) Summary(ctx context.Context, since time.Time) (Summary, error) {
	s := Summary{Since: since}

	rows, err := p.db.Query(ctx, viewsByPath, since.UTC(), topPaths)
	if err != nil {
		return s, fmt.Errorf("views by path: %w", err)
	}
	for rows.Next() {
		var pc PathCount
		var n int64
		if err := rows.Scan(&pc.Path, &n); err != nil {
			rows.Close()
			return s, fmt.Errorf("scan views by path: %w", err)
		}
		pc.Views = int(n)
		s.ByPath = append(s.ByPath, pc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("views by path: %w", err)
	}

	rows, err = p.db.Query(ctx, viewsByDay, since.UTC())
	if err != nil {
		return s, fmt.Errorf("views by day: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dc DayCount
		var n int64
		if err := rows.Scan(&dc.Day, &n); err != nil {
			return s, fmt.Errorf("scan views by day: %w", err)
		}
		dc.Views = int(n)
		s.Total += dc.Views
		s.ByDay = append(s.ByDay, dc)
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("views by day: %w", err)
	}
	return s, nil
}

// truncate cuts s to at most n bytes without splitting a rune; invalid
// UTF-8 is replaced so Postgres accepts the text
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Nop discards views; used when no database is configured
type Nop struct{}

func (Nop) Record(context.Context, View) error { return nil }

func (Nop) Summary(_ context.Context, since time.Time) (Summary, error) {
	return Summary{Since: since}, ErrDisabled
}

// Middleware records successful GET page views after the response is
// written. Recording runs in the background and failures are only logged.
func Middleware(rec Recorder, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			if r.Method != http.MethodGet || sw.status >= 300 || isAsset(r.URL.Path) {
				return
			}
			v := View{Path: r.URL.Path, Referrer: r.Referer(), UserAgent: r.UserAgent(), At: time.Now()}
			ctx := context.WithoutCancel(r.Context())
			go func() {
				ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				if err := rec.Record(ctx, v); err != nil {
					log.Warn().Err(err).Str("path", v.Path).Msg("page view not recorded")
				}
			}()
		})
	}
}

func isAsset(path string) bool {
	return strings.HasPrefix(path, "/static/") || path == "/favicon.ico" || path == "/robots.txt"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
