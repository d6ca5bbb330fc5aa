package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/briangreenhill/communitysite/internal/store"
)

var errRemote = errors.New("remote unavailable")

// fakeStore is an in-memory store.Store that counts calls and can be told
// to fail reads or writes.
type fakeStore struct {
	mu      sync.Mutex
	tables  map[string][]map[string]any
	nextID  int
	selects int
	writes  int

	failSelect error
	failWrite  error
	// failOrderAt > 0 fails UpdateSortOrders at that row, after the earlier
	// rows are written
	failOrderAt int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: map[string][]map[string]any{}, nextID: 100}
}

func (f *fakeStore) seed(table string, rows ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append(f.tables[table], rows...)
}

func (f *fakeStore) calls() (selects, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selects, f.writes
}

func cell(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	}
	return 0
}

func remarshal(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeStore) Select(ctx context.Context, table string, q store.Query, out any) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selects++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if f.failSelect != nil {
		return 0, f.failSelect
	}

	var rows []map[string]any
	for _, r := range f.tables[table] {
		keep := true
		for _, flt := range q.Filters {
			match := false
			for _, v := range flt.Values {
				if cell(r[flt.Column]) == v {
					match = true
				}
			}
			keep = keep && match
		}
		if keep {
			rows = append(rows, r)
		}
	}
	for i := len(q.Order) - 1; i >= 0; i-- {
		o := q.Order[i]
		sort.SliceStable(rows, func(a, b int) bool {
			if o.Ascending {
				return toFloat(rows[a][o.Column]) < toFloat(rows[b][o.Column])
			}
			return toFloat(rows[a][o.Column]) > toFloat(rows[b][o.Column])
		})
	}
	total := len(rows)
	if q.Ranged() {
		from, to := q.From, q.To+1
		if from > len(rows) {
			from = len(rows)
		}
		if to > len(rows) {
			to = len(rows)
		}
		rows = rows[from:to]
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return total, remarshal(rows, out)
}

func (f *fakeStore) write() error {
	f.writes++
	return f.failWrite
}

func (f *fakeStore) Insert(_ context.Context, table string, row any, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write(); err != nil {
		return err
	}
	var doc map[string]any
	if err := remarshal(row, &doc); err != nil {
		return err
	}
	f.nextID++
	doc["id"] = float64(f.nextID)
	f.tables[table] = append(f.tables[table], doc)
	return remarshal(doc, out)
}

func (f *fakeStore) find(table, id string) map[string]any {
	for _, r := range f.tables[table] {
		if cell(r["id"]) == id {
			return r
		}
	}
	return nil
}

func (f *fakeStore) Update(_ context.Context, table, id string, patch any, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write(); err != nil {
		return err
	}
	r := f.find(table, id)
	if r == nil {
		return store.ErrNotFound
	}
	var changes map[string]any
	if err := remarshal(patch, &changes); err != nil {
		return err
	}
	for k, v := range changes {
		r[k] = v
	}
	return remarshal(r, out)
}

func (f *fakeStore) Delete(_ context.Context, table, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write(); err != nil {
		return err
	}
	rows := f.tables[table][:0]
	for _, r := range f.tables[table] {
		if cell(r["id"]) != id {
			rows = append(rows, r)
		}
	}
	f.tables[table] = rows
	return nil
}

func (f *fakeStore) UpdateSortOrders(_ context.Context, table string, orders []store.SortOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write(); err != nil {
		return err
	}
	for i, o := range orders {
		if f.failOrderAt > 0 && i == f.failOrderAt {
			return errRemote
		}
		if r := f.find(table, o.ID); r != nil {
			r["sort_order"] = float64(o.SortOrder)
		}
	}
	return nil
}

func (f *fakeStore) Upsert(_ context.Context, table string, rows any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write(); err != nil {
		return err
	}
	var docs []map[string]any
	if err := remarshal(rows, &docs); err != nil {
		return err
	}
	for _, d := range docs {
		if r := f.find(table, cell(d["id"])); r != nil {
			for k, v := range d {
				r[k] = v
			}
			continue
		}
		f.tables[table] = append(f.tables[table], d)
	}
	return nil
}

// countingRecorder records fallbacks and mutations
type countingRecorder struct {
	mu        sync.Mutex
	fallbacks map[string]int
	mutations map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{fallbacks: map[string]int{}, mutations: map[string]int{}}
}

func (c *countingRecorder) Fallback(domain, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallbacks[domain+"/"+reason]++
}

func (c *countingRecorder) RemoteError(string, string) {}

func (c *countingRecorder) Mutation(domain, op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.mutations[domain+"/"+op+"/"+result]++
}
