package sqlxrepos

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core/rest"
)

type restRepository struct {
	db *sqlx.DB
}

var _ rest.Repository = (*restRepository)(nil)

func NewRestRepository(db *sqlx.DB) rest.Repository {
	return &restRepository{db: db}
}

func (repo *restRepository) Select(ctx context.Context, c rest.Collection, q rest.Query) ([]rest.Row, error) {
	query, args, err := buildSelect(c, q)
	if err != nil {
		return nil, err
	}
	rows, err := repo.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "selecting %s", c.Name)
	}
	return scanRows(c, rows)
}

func (repo *restRepository) Insert(ctx context.Context, c rest.Collection, rows []rest.Row) ([]rest.Row, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]rest.Row, 0, len(rows))
	for _, r := range rows {
		clean, err := c.CleanRow(r)
		if err != nil {
			return nil, err
		}
		if key, _ := clean[c.Key].(string); key == "" {
			clean[c.Key] = uuid.New().String()
		}
		query, args := buildInsert(c, clean)
		res, err := tx.QueryxContext(ctx, query, args...)
		if err != nil {
			return nil, errors.Wrapf(err, "inserting into %s", c.Name)
		}
		inserted, err := scanRows(c, res)
		if err != nil {
			return nil, err
		}
		out = append(out, inserted...)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing transaction")
	}
	return out, nil
}

func (repo *restRepository) Update(ctx context.Context, c rest.Collection, q rest.Query, patch rest.Row) ([]rest.Row, error) {
	clean, err := c.CleanRow(patch)
	if err != nil {
		return nil, err
	}
	delete(clean, c.Key)
	if len(clean) == 0 {
		return repo.Select(ctx, c, rest.Query{Filters: q.Filters})
	}

	query, args, err := buildUpdate(c, q, clean)
	if err != nil {
		return nil, err
	}
	rows, err := repo.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "updating %s", c.Name)
	}
	return scanRows(c, rows)
}

func columnList(c rest.Collection) string {
	quoted := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		quoted = append(quoted, pq.QuoteIdentifier(col))
	}
	return strings.Join(quoted, ", ")
}

// sqlValue adapts a cleaned cell to what lib/pq can bind.
func sqlValue(v interface{}) interface{} {
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw)
	}
	return v
}

// where renders q's filters, numbering placeholders from len(args)+1.
func where(c rest.Collection, filters []rest.Filter, args []interface{}) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", args, nil
	}
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		if !c.Has(f.Column) {
			return "", nil, errors.Errorf("unknown column %q", f.Column)
		}
		placeholders := make([]string, 0, len(f.Values))
		for _, raw := range f.Values {
			v, err := c.Parse(f.Column, raw)
			if err != nil {
				return "", nil, err
			}
			args = append(args, v)
			placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
		}
		col := pq.QuoteIdentifier(f.Column)
		switch {
		case f.Op == rest.OpIn && len(placeholders) == 0:
			conds = append(conds, "FALSE")
		case f.Op == rest.OpIn:
			conds = append(conds, col+" IN ("+strings.Join(placeholders, ", ")+")")
		default:
			conds = append(conds, col+" = "+placeholders[0])
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func buildSelect(c rest.Collection, q rest.Query) (string, []interface{}, error) {
	var b strings.Builder
	b.WriteString("SELECT " + columnList(c) + " FROM " + pq.QuoteIdentifier(c.Table))

	w, args, err := where(c, q.Filters, nil)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(w)

	if len(q.Orders) > 0 {
		parts := make([]string, 0, len(q.Orders))
		for _, o := range q.Orders {
			if !c.Has(o.Column) {
				return "", nil, errors.Errorf("unknown column %q", o.Column)
			}
			dir := " ASC"
			if o.Desc {
				dir = " DESC"
			}
			parts = append(parts, pq.QuoteIdentifier(o.Column)+dir)
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(q.Offset))
	}
	return b.String(), args, nil
}

func sortedKeys(r rest.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildInsert(c rest.Collection, r rest.Row) (string, []interface{}) {
	cols := sortedKeys(r)
	quoted := make([]string, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	for i, col := range cols {
		quoted = append(quoted, pq.QuoteIdentifier(col))
		placeholders = append(placeholders, "$"+strconv.Itoa(i+1))
		args = append(args, sqlValue(r[col]))
	}
	query := "INSERT INTO " + pq.QuoteIdentifier(c.Table) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")" +
		" RETURNING " + columnList(c)
	return query, args
}

func buildUpdate(c rest.Collection, q rest.Query, patch rest.Row) (string, []interface{}, error) {
	cols := sortedKeys(patch)
	sets := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	for _, col := range cols {
		args = append(args, sqlValue(patch[col]))
		sets = append(sets, pq.QuoteIdentifier(col)+" = $"+strconv.Itoa(len(args)))
	}
	w, args, err := where(c, q.Filters, args)
	if err != nil {
		return "", nil, err
	}
	query := "UPDATE " + pq.QuoteIdentifier(c.Table) + " SET " + strings.Join(sets, ", ") + w +
		" RETURNING " + columnList(c)
	return query, args, nil
}

// scanRows reads every row and closes rows.
func scanRows(c rest.Collection, rows *sqlx.Rows) ([]rest.Row, error) {
	defer func() { _ = rows.Close() }()

	out := make([]rest.Row, 0)
	for rows.Next() {
		m := make(map[string]interface{}, len(c.Columns))
		if err := rows.MapScan(m); err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}
		out = append(out, normalize(c, m))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating rows")
	}
	return out, nil
}

// normalize converts driver values: lib/pq returns text-like columns (uuid, jsonb) as []byte.
func normalize(c rest.Collection, m map[string]interface{}) rest.Row {
	r := make(rest.Row, len(m))
	for col, v := range m {
		if b, ok := v.([]byte); ok {
			if c.Kind(col) == rest.KindJSON {
				v = json.RawMessage(append([]byte(nil), b...))
			} else {
				v = string(b)
			}
		}
		r[col] = v
	}
	return r
}
