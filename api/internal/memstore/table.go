// Package memstore keeps lifecycle entities in process memory. It backs the API when
// STORE_DRIVER=memory and every engine test.
package memstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"facility-compliance-system/api/internal/lifecycle"
)

const defaultLimit = 100

// table is a version-checked map of one entity family.
type table[T any] struct {
	mu      sync.RWMutex
	entity  string
	rows    map[string]T
	id      func(T) string
	version func(T) int64
	stamp   func(T, int64) T
	created func(T) time.Time
}

func newTable[T any](entity string, id func(T) string, version func(T) int64, stamp func(T, int64) T, created func(T) time.Time) *table[T] {
	return &table[T]{
		entity:  entity,
		rows:    make(map[string]T),
		id:      id,
		version: version,
		stamp:   stamp,
		created: created,
	}
}

func (t *table[T]) get(id string) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, lifecycle.NotFound(t.entity, id)
	}
	return row, nil
}

func (t *table[T]) create(row T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.id(row)
	if id == "" {
		var zero T
		return zero, fmt.Errorf("create %s: empty id", t.entity)
	}
	if _, exists := t.rows[id]; exists {
		var zero T
		return zero, fmt.Errorf("create %s %s: duplicate id", t.entity, id)
	}
	row = t.stamp(row, 1)
	t.rows[id] = row
	return row, nil
}

// save replaces the stored row only when the caller saw the stored version.
func (t *table[T]) save(row T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.id(row)
	cur, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, lifecycle.NotFound(t.entity, id)
	}
	if t.version(cur) != t.version(row) {
		var zero T
		return zero, lifecycle.ConcurrentModification(t.entity, id,
			fmt.Errorf("stored version %d, saving version %d", t.version(cur), t.version(row)))
	}
	row = t.stamp(row, t.version(cur)+1)
	t.rows[id] = row
	return row, nil
}

func (t *table[T]) delete(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		return lifecycle.NotFound(t.entity, id)
	}
	delete(t.rows, id)
	return nil
}

// query returns matching rows oldest first, paged by limit and offset.
func (t *table[T]) query(match func(T) bool, limit int, offset int) []T {
	t.mu.RLock()
	out := make([]T, 0, len(t.rows))
	for _, row := range t.rows {
		if match(row) {
			out = append(out, row)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ci, cj := t.created(out[i]), t.created(out[j])
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return t.id(out[i]) < t.id(out[j])
	})
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []T{}
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end]
}

// overwrite bypasses the version check. Tests use it to simulate a concurrent writer.
func (t *table[T]) overwrite(row T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.id(row)
	cur, ok := t.rows[id]
	if ok {
		row = t.stamp(row, t.version(cur)+1)
	}
	t.rows[id] = row
}
