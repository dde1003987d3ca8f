package inmemdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core/rest"
)

type restRepository struct {
	db *DB
}

var _ rest.Repository = (*restRepository)(nil)

func NewRestRepository(db *DB) rest.Repository {
	return &restRepository{db: db}
}

func (repo *restRepository) Select(_ context.Context, c rest.Collection, q rest.Query) ([]rest.Row, error) {
	t, err := repo.db.table(c.Name)
	if err != nil {
		return nil, err
	}
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	matched, err := filter(c, t.all(), q.Filters)
	if err != nil {
		return nil, err
	}
	sortRows(c, matched, q.Orders)
	matched = page(matched, q.Limit, q.Offset)

	out := make([]rest.Row, 0, len(matched))
	for _, r := range matched {
		out = append(out, project(c, r))
	}
	return out, nil
}

func (repo *restRepository) Insert(_ context.Context, c rest.Collection, rows []rest.Row) ([]rest.Row, error) {
	t, err := repo.db.table(c.Name)
	if err != nil {
		return nil, err
	}

	cleaned := make([]rest.Row, 0, len(rows))
	for _, r := range rows {
		clean, err := c.CleanRow(r)
		if err != nil {
			return nil, err
		}
		key, _ := clean[c.Key].(string)
		if key == "" {
			key = uuid.New().String()
			clean[c.Key] = key
		}
		cleaned = append(cleaned, clean)
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()
	seen := make(map[string]struct{}, len(cleaned))
	for _, r := range cleaned {
		key := r[c.Key].(string)
		if _, ok := t.rows[key]; ok {
			return nil, errors.Errorf("duplicate key %s=%v", c.Key, key)
		}
		if _, ok := seen[key]; ok {
			return nil, errors.Errorf("duplicate key %s=%v", c.Key, key)
		}
		seen[key] = struct{}{}
	}
	out := make([]rest.Row, 0, len(cleaned))
	for _, r := range cleaned {
		t.put(r[c.Key].(string), r)
		out = append(out, project(c, r))
	}
	return out, nil
}

func (repo *restRepository) Update(_ context.Context, c rest.Collection, q rest.Query, patch rest.Row) ([]rest.Row, error) {
	t, err := repo.db.table(c.Name)
	if err != nil {
		return nil, err
	}
	clean, err := c.CleanRow(patch)
	if err != nil {
		return nil, err
	}
	delete(clean, c.Key)

	t.mutex.Lock()
	defer t.mutex.Unlock()
	matched, err := filter(c, t.all(), q.Filters)
	if err != nil {
		return nil, err
	}
	out := make([]rest.Row, 0, len(matched))
	for _, r := range matched {
		updated := make(rest.Row, len(r))
		for k, v := range r {
			updated[k] = v
		}
		for k, v := range clean {
			updated[k] = v
		}
		t.put(updated[c.Key].(string), updated)
		out = append(out, project(c, updated))
	}
	return out, nil
}

// project keeps the exposed columns of r, filling the missing ones with nil.
func project(c rest.Collection, r rest.Row) rest.Row {
	out := make(rest.Row, len(c.Columns))
	for _, col := range c.Columns {
		out[col] = r[col]
	}
	return out
}

func filter(c rest.Collection, rows []rest.Row, filters []rest.Filter) ([]rest.Row, error) {
	matched := make([]rest.Row, 0, len(rows))
rowLoop:
	for _, r := range rows {
		for _, f := range filters {
			ok, err := matches(c, r[f.Column], f)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue rowLoop
			}
		}
		matched = append(matched, r)
	}
	return matched, nil
}

func matches(c rest.Collection, cell interface{}, f rest.Filter) (bool, error) {
	for _, raw := range f.Values {
		want, err := c.Parse(f.Column, raw)
		if err != nil {
			return false, err
		}
		if compare(cell, want) == 0 && cell != nil {
			return true, nil
		}
	}
	return false, nil
}

// compare orders cells of one kind. nil sorts first.
func compare(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	case int64:
		bv, _ := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case bool:
		bv, _ := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case time.Time:
		bv, _ := b.(time.Time)
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		}
		return 0
	case json.RawMessage:
		bv, _ := b.(json.RawMessage)
		return bytes.Compare(av, bv)
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func sortRows(c rest.Collection, rows []rest.Row, orders []rest.Order) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range orders {
			cmp := compare(rows[i][o.Column], rows[j][o.Column])
			if cmp == 0 {
				continue
			}
			if o.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func page(rows []rest.Row, limit, offset int) []rest.Row {
	if offset > 0 {
		if offset >= len(rows) {
			return rows[:0]
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
