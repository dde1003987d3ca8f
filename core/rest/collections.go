package rest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core"
)

var ErrUnknownCollection = errors.New("unknown collection")

// Kind is the type of a column, used to convert filter values and scanned cells.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindBool
	KindTime
	KindJSON
)

// Row is one record of a collection, keyed by column name.
type Row map[string]interface{}

// Collection describes a named collection and the table behind it.
type Collection struct {
	Name    string
	Table   string
	Key     string
	Columns []string // exposed columns, in select order
	kinds   map[string]Kind
}

func newCollection(name, key string, cols ...column) Collection {
	c := Collection{Name: name, Table: name, Key: key, kinds: make(map[string]Kind, len(cols))}
	for _, col := range cols {
		c.Columns = append(c.Columns, col.name)
		c.kinds[col.name] = col.kind
	}
	return c
}

type column struct {
	name string
	kind Kind
}

func text(name string) column    { return column{name, KindText} }
func integer(name string) column { return column{name, KindInt} }
func boolean(name string) column { return column{name, KindBool} }
func ts(name string) column      { return column{name, KindTime} }
func jsonb(name string) column   { return column{name, KindJSON} }

// Collection names
const (
	Users             = "users"
	Schools           = "schools"
	TeacherResponses  = "teacher_responses"
	ProblemClusters   = "problem_clusters"
	Questions         = "questions"
	TrainingMaterials = "training_materials"
	TrainingPrograms  = "training_programs"
	FeedbackEntries   = "feedback_entries"
)

// Collections is the registry of every collection served over the wire.
// users.password_hash is not exposed; only the account repository reads it.
var Collections = map[string]Collection{
	Users: newCollection(Users, "id",
		text("id"), text("email"), text("display_name"), text("role"), text("district_id"),
		text("school_name"), text("school_code"), boolean("is_active"),
		ts("created_at"), ts("updated_at"), ts("last_login"),
	),
	Schools: newCollection(Schools, "id",
		text("id"), text("name"), text("code"), text("district_id"), text("state"), ts("created_at"),
	),
	TeacherResponses: newCollection(TeacherResponses, "id",
		text("id"), text("teacher_id"), text("district_id"), jsonb("responses"), ts("submitted_at"),
	),
	ProblemClusters: newCollection(ProblemClusters, "id",
		text("id"), text("district_id"), text("cluster_name"), text("cluster_summary"), text("category"),
		jsonb("teacher_ids"), jsonb("proposed_plan"), ts("created_at"),
	),
	Questions: newCollection(Questions, "id",
		text("id"), text("category"), text("text"), jsonb("options"), integer("position"),
	),
	TrainingMaterials: newCollection(TrainingMaterials, "id",
		text("id"), text("cluster_id"), text("user_id"), text("title"), text("content"), ts("created_at"),
	),
	TrainingPrograms: newCollection(TrainingPrograms, "id",
		text("id"), text("cluster_id"), text("district_id"), text("name"), text("description"),
		ts("start_date"), ts("end_date"), jsonb("sessions"), text("status"), text("created_by"), ts("created_at"),
	),
	FeedbackEntries: newCollection(FeedbackEntries, "id",
		text("id"), text("teacher_id"), text("program_id"), integer("rating"), text("feedback"),
		jsonb("evidence"), ts("submitted_at"),
	),
}

// Lookup returns the named collection.
func Lookup(name string) (Collection, error) {
	c, ok := Collections[name]
	if !ok {
		return Collection{}, errors.Wrapf(ErrUnknownCollection, "%q", name)
	}
	return c, nil
}

func (c Collection) Has(col string) bool {
	_, ok := c.kinds[col]
	return ok
}

func (c Collection) Kind(col string) Kind {
	return c.kinds[col]
}

// Parse converts the wire form of a filter value to the column's Go type.
func (c Collection) Parse(col, s string) (interface{}, error) {
	switch c.Kind(col) {
	case KindInt:
		return strconv.ParseInt(s, 10, 64)
	case KindBool:
		return strconv.ParseBool(s)
	case KindTime:
		return time.Parse(time.RFC3339, s)
	case KindJSON:
		return nil, errors.Errorf("column %q cannot be filtered", col)
	default:
		return s, nil
	}
}

// CleanRow checks that every column of r is exposed and converts JSON-decoded cells
// (float64 numbers, RFC3339 strings, nested objects) to the column's Go type.
func (c Collection) CleanRow(r Row) (Row, error) {
	clean := make(Row, len(r))
	var fldErrs []core.FieldError
	for col, v := range r {
		if !c.Has(col) {
			fldErrs = append(fldErrs, core.FieldError{Field: col, Error: "unknown column"})
			continue
		}
		cv, err := c.cleanCell(col, v)
		if err != nil {
			fldErrs = append(fldErrs, core.FieldError{Field: col, Error: err.Error()})
			continue
		}
		clean[col] = cv
	}
	if len(fldErrs) > 0 {
		return nil, core.NewValidationError(nil, fldErrs...)
	}
	return clean, nil
}

func (c Collection) cleanCell(col string, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Kind(col) {
	case KindInt:
		switch n := v.(type) {
		case float64:
			return int64(n), nil
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case json.Number:
			return n.Int64()
		}
		return nil, errors.New("must be an integer")
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, errors.New("must be a boolean")
	case KindTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return nil, errors.New("must be an RFC3339 timestamp")
			}
			return parsed.UTC(), nil
		}
		return nil, errors.New("must be an RFC3339 timestamp")
	case KindJSON:
		if raw, ok := v.(json.RawMessage); ok {
			return raw, nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(raw), nil
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, errors.New("must be a string")
	}
}

// TrimKey lowers and trims a collection or column name from the wire.
func TrimKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
