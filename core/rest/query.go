// Package rest is the query language shared by the backend's row endpoints and the portal's client:
//
//	GET /rest/v1/teacher_responses?teacher_id=eq.42&order=submitted_at.desc&limit=10
//	GET /rest/v1/users?id=in.(a,b,"c,d")
package rest

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core"
)

// Operators
const (
	OpEq = "eq"
	OpIn = "in"
)

// Reserved query keys
const (
	orderKey  = "order"
	limitKey  = "limit"
	offsetKey = "offset"
	selectKey = "select"
)

type (
	Filter struct {
		Column string
		Op     string
		Values []string
	}

	Order struct {
		Column string
		Desc   bool
	}

	// Query is an AND of filters with an optional ordering and page.
	Query struct {
		Filters []Filter
		Orders  []Order
		Limit   int
		Offset  int
	}

	// Repository serves collections to the row endpoints.
	Repository interface {
		Select(ctx context.Context, c Collection, q Query) ([]Row, error)
		Insert(ctx context.Context, c Collection, rows []Row) ([]Row, error)
		// Update applies patch to every row matching q and returns the updated rows.
		Update(ctx context.Context, c Collection, q Query, patch Row) ([]Row, error)
	}
)

func (q Query) Eq(col string, v interface{}) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: col, Op: OpEq, Values: []string{format(v)}})
	return q
}

func (q Query) In(col string, vs ...interface{}) Query {
	values := make([]string, 0, len(vs))
	for _, v := range vs {
		values = append(values, format(v))
	}
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: col, Op: OpIn, Values: values})
	return q
}

func (q Query) OrderBy(col string, desc bool) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Column: col, Desc: desc})
	return q
}

func (q Query) Page(limit, offset int) Query {
	q.Limit, q.Offset = limit, offset
	return q
}

func format(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}

// Values encodes q in the wire grammar.
func (q Query) Values() url.Values {
	v := make(url.Values)
	for _, f := range q.Filters {
		switch f.Op {
		case OpIn:
			quoted := make([]string, 0, len(f.Values))
			for _, s := range f.Values {
				quoted = append(quoted, quote(s))
			}
			v.Add(f.Column, OpIn+".("+strings.Join(quoted, ",")+")")
		default:
			if len(f.Values) > 0 {
				v.Add(f.Column, OpEq+"."+f.Values[0])
			}
		}
	}
	if len(q.Orders) > 0 {
		parts := make([]string, 0, len(q.Orders))
		for _, o := range q.Orders {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		v.Set(orderKey, strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		v.Set(limitKey, strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set(offsetKey, strconv.Itoa(q.Offset))
	}
	return v
}

func quote(s string) string {
	if !strings.ContainsAny(s, `,()"\ `) {
		return s
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// ParseQuery decodes the wire grammar, checking every column against c.
func ParseQuery(v url.Values, c Collection) (Query, error) {
	var (
		q       Query
		fldErrs []core.FieldError
	)
	addErr := func(field, msg string) {
		fldErrs = append(fldErrs, core.FieldError{Field: field, Error: msg})
	}

	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys) // stable filter order

	for _, key := range keys {
		switch key {
		case selectKey:
			// all exposed columns are always returned
		case orderKey:
			for _, part := range strings.Split(v.Get(key), ",") {
				col, dir := part, "asc"
				if i := strings.LastIndex(part, "."); i >= 0 {
					col, dir = part[:i], part[i+1:]
				}
				if !c.Has(col) {
					addErr(orderKey, fmt.Sprintf("unknown column %q", col))
					continue
				}
				if dir != "asc" && dir != "desc" {
					addErr(orderKey, fmt.Sprintf("invalid direction %q", dir))
					continue
				}
				q.Orders = append(q.Orders, Order{Column: col, Desc: dir == "desc"})
			}
		case limitKey, offsetKey:
			n, err := strconv.Atoi(v.Get(key))
			if err != nil || n < 0 {
				addErr(key, "must be a positive integer")
				continue
			}
			if key == limitKey {
				q.Limit = n
			} else {
				q.Offset = n
			}
		default:
			if !c.Has(key) {
				addErr(key, "unknown column")
				continue
			}
			for _, raw := range v[key] {
				f, err := parseFilter(key, raw)
				if err != nil {
					addErr(key, err.Error())
					continue
				}
				for _, val := range f.Values {
					if _, err := c.Parse(key, val); err != nil {
						addErr(key, err.Error())
						break
					}
				}
				q.Filters = append(q.Filters, f)
			}
		}
	}

	if len(fldErrs) > 0 {
		return Query{}, core.NewValidationError(errors.New("invalid query"), fldErrs...)
	}
	return q, nil
}

func parseFilter(col, raw string) (Filter, error) {
	op, arg := raw, ""
	if i := strings.Index(raw, "."); i >= 0 {
		op, arg = raw[:i], raw[i+1:]
	}
	switch op {
	case OpEq:
		return Filter{Column: col, Op: OpEq, Values: []string{arg}}, nil
	case OpIn:
		if !strings.HasPrefix(arg, "(") || !strings.HasSuffix(arg, ")") {
			return Filter{}, errors.New("in filter must be of form in.(a,b)")
		}
		values, err := splitList(arg[1 : len(arg)-1])
		if err != nil {
			return Filter{}, err
		}
		return Filter{Column: col, Op: OpIn, Values: values}, nil
	default:
		return Filter{}, errors.Errorf("unsupported operator %q", op)
	}
}

// splitList splits a comma separated list, honouring double-quoted items.
func splitList(s string) ([]string, error) {
	values := make([]string, 0)
	if s == "" {
		return values, nil
	}
	var (
		cur     strings.Builder
		inQuote bool
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case r == ',' && !inQuote:
			values = append(values, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote || escaped {
		return nil, errors.New("unterminated quote in list")
	}
	return append(values, cur.String()), nil
}
