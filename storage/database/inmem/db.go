package inmemdb

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core/rest"
)

type (
	// DB keeps every collection in memory. Used by tests and DATABASE_ENGINE=inmem.
	DB struct {
		tables map[string]*table
	}

	table struct {
		rows  map[string]rest.Row // {key: row}
		order []string            // keys in insertion order
		mutex sync.RWMutex
	}
)

func Open() *DB {
	db := &DB{tables: make(map[string]*table, len(rest.Collections))}
	for name := range rest.Collections {
		db.tables[name] = &table{rows: make(map[string]rest.Row)}
	}
	return db
}

// Reset empties every table.
func (db *DB) Reset() {
	for _, t := range db.tables {
		t.mutex.Lock()
		t.rows = make(map[string]rest.Row)
		t.order = nil
		t.mutex.Unlock()
	}
}

func (db *DB) table(name string) (*table, error) {
	t, ok := db.tables[name]
	if !ok {
		return nil, errors.Wrapf(rest.ErrUnknownCollection, "%q", name)
	}
	return t, nil
}

// all returns the rows in insertion order. The caller holds the lock.
func (t *table) all() []rest.Row {
	rows := make([]rest.Row, 0, len(t.order))
	for _, k := range t.order {
		rows = append(rows, t.rows[k])
	}
	return rows
}

// put inserts or replaces a row. The caller holds the write lock.
func (t *table) put(key string, row rest.Row) {
	if _, ok := t.rows[key]; !ok {
		t.order = append(t.order, key)
	}
	t.rows[key] = row
}
