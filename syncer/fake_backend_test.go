package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fishman08/gainius-sub000/remote"
)

// fakeBackend is an in-memory remote with per-table error injection and
// call recording, so tests can assert push ordering and retry behavior.
type fakeBackend struct {
	mu         sync.Mutex
	tables     map[string]map[string]remote.Row
	failUpsert map[string]error
	failDelete map[string]error
	failSelect map[string]error
	calls      []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tables:     make(map[string]map[string]remote.Row),
		failUpsert: make(map[string]error),
		failDelete: make(map[string]error),
		failSelect: make(map[string]error),
	}
}

// seed inserts a row directly with an explicit updated_at watermark.
func (f *fakeBackend) seed(table string, row remote.Row, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := cloneRow(row)
	clone["updated_at"] = updatedAt
	f.table(table)[fmt.Sprint(row["id"])] = clone
}

func (f *fakeBackend) table(name string) map[string]remote.Row {
	if f.tables[name] == nil {
		f.tables[name] = make(map[string]remote.Row)
	}
	return f.tables[name]
}

func (f *fakeBackend) rowCount(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) Upsert(_ context.Context, table string, row remote.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("upsert:%s:%v", table, row["id"]))
	if err := f.failUpsert[table]; err != nil {
		return err
	}
	clone := cloneRow(row)
	clone["updated_at"] = time.Now()
	f.table(table)[fmt.Sprint(row["id"])] = clone
	return nil
}

func (f *fakeBackend) Delete(_ context.Context, table string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("delete:%s:%s", table, id))
	if err := f.failDelete[table]; err != nil {
		return err
	}
	delete(f.table(table), id)
	return nil
}

func (f *fakeBackend) Select(_ context.Context, table, column, value string, updatedAfter *time.Time) ([]remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSelect[table]; err != nil {
		return nil, err
	}
	var out []remote.Row
	for _, row := range f.tables[table] {
		if fmt.Sprint(row[column]) != value {
			continue
		}
		if !newerThan(row, updatedAfter) {
			continue
		}
		out = append(out, cloneRow(row))
	}
	return out, nil
}

func (f *fakeBackend) SelectIn(_ context.Context, table, column string, values []string, updatedAfter *time.Time) ([]remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSelect[table]; err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(values))
	for _, v := range values {
		wanted[v] = true
	}
	var out []remote.Row
	for _, row := range f.tables[table] {
		if !wanted[fmt.Sprint(row[column])] {
			continue
		}
		if !newerThan(row, updatedAfter) {
			continue
		}
		out = append(out, cloneRow(row))
	}
	return out, nil
}

func newerThan(row remote.Row, watermark *time.Time) bool {
	if watermark == nil {
		return true
	}
	t, ok := row["updated_at"].(time.Time)
	if !ok {
		return false
	}
	return t.After(*watermark)
}

func cloneRow(row remote.Row) remote.Row {
	clone := make(remote.Row, len(row))
	for k, v := range row {
		clone[k] = v
	}
	return clone
}
