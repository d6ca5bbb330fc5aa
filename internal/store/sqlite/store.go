// Package sqlite implements store.Store on a local SQLite file so the site
// can run without a Supabase project. Rows are kept as JSON documents.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/briangreenhill/communitysite/internal/store"
)

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS records (
	tbl  TEXT NOT NULL,
	id   TEXT NOT NULL,
	body TEXT NOT NULL,
	PRIMARY KEY (tbl, id)
);
`

// Store is a document-per-row table store
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open content db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createRecordsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate content db: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

func whereClause(table string, q store.Query) (string, []any) {
	var b strings.Builder
	args := []any{table}
	b.WriteString("tbl = ?")
	for _, f := range q.Filters {
		if len(f.Values) == 0 {
			b.WriteString(" AND 0")
			continue
		}
		b.WriteString(" AND CAST(json_extract(body, ?) AS TEXT) IN (")
		args = append(args, "$."+f.Column)
		for i, v := range f.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, v)
		}
		b.WriteString(")")
	}
	return b.String(), args
}

func (s *Store) Select(ctx context.Context, table string, q store.Query, out any) (int, error) {
	if err := store.CheckQuery(table, q); err != nil {
		return 0, err
	}
	where, args := whereClause(table, q)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE "+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}

	query := "SELECT body FROM records WHERE " + where + " ORDER BY "
	for _, o := range q.Order {
		dir := "DESC"
		if o.Ascending {
			dir = "ASC"
		}
		query += "json_extract(body, ?) " + dir + ", "
		args = append(args, "$."+o.Column)
	}
	query += "rowid ASC"
	if q.Ranged() {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.To-q.From+1, q.From)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var buf bytes.Buffer
	buf.WriteByte('[')
	first := true
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return 0, fmt.Errorf("scan %s: %w", table, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		buf.WriteString(body)
		first = false
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("select %s: %w", table, err)
	}
	buf.WriteByte(']')

	if err := json.Unmarshal(buf.Bytes(), out); err != nil {
		return 0, fmt.Errorf("decode %s: %w", table, err)
	}
	return total, nil
}

func (s *Store) Insert(ctx context.Context, table string, row any, out any) error {
	doc, err := toDoc(row)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	doc["id"] = id
	if _, ok := doc["created_at"]; !ok {
		doc["created_at"] = s.now().UTC().Format(time.RFC3339Nano)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO records (tbl, id, body) VALUES (?, ?, ?)`, table, id, string(body)); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return decode(body, out)
}

func (s *Store) Update(ctx context.Context, table, id string, patch any, out any) error {
	changes, err := toDoc(patch)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var current string
	err = tx.QueryRowContext(ctx, `SELECT body FROM records WHERE tbl = ? AND id = ?`, table, id).Scan(&current)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load %s/%s: %w", table, id, err)
	}

	doc, err := toDoc(json.RawMessage(current))
	if err != nil {
		return err
	}
	for k, v := range changes {
		if k == "id" {
			continue
		}
		doc[k] = v
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE records SET body = ? WHERE tbl = ? AND id = ?`, string(body), table, id); err != nil {
		return fmt.Errorf("update %s/%s: %w", table, id, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return decode(body, out)
}

func (s *Store) Delete(ctx context.Context, table, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE tbl = ? AND id = ?`, table, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	return nil
}

func (s *Store) UpdateSortOrders(ctx context.Context, table string, orders []store.SortOrder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, o := range orders {
		_, err := tx.ExecContext(ctx,
			`UPDATE records SET body = json_set(body, '$.sort_order', ?) WHERE tbl = ? AND id = ?`,
			o.SortOrder, table, o.ID)
		if err != nil {
			return fmt.Errorf("update sort order %s/%s: %w", table, o.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Upsert(ctx context.Context, table string, rows any) error {
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	var docs []json.RawMessage
	if err := json.Unmarshal(raw, &docs); err != nil {
		return fmt.Errorf("upsert %s: rows must be an array: %w", table, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, d := range docs {
		doc, err := toDoc(d)
		if err != nil {
			return err
		}
		id := idString(doc["id"])
		if id == "" {
			return fmt.Errorf("upsert %s: row without id", table)
		}
		doc["id"] = id
		body, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO records (tbl, id, body) VALUES (?, ?, ?)`, table, id, string(body)); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", table, id, err)
		}
	}
	return tx.Commit()
}

// toDoc round-trips v through JSON into a generic object, keeping numbers exact
func toDoc(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("row must be a JSON object: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

func decode(body []byte, out any) error {
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
