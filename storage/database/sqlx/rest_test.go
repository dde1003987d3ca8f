package sqlxrepos

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduweave/eduweave/core/rest"
)

func Test_buildSelect(t *testing.T) {
	responses := rest.Collections[rest.TeacherResponses]
	feedback := rest.Collections[rest.FeedbackEntries]
	respCols := `"id", "teacher_id", "district_id", "responses", "submitted_at"`

	tests := []struct {
		name     string
		coll     rest.Collection
		q        rest.Query
		wantSQL  string
		wantArgs []interface{}
		wantErr  bool
	}{
		{
			name:    "all",
			coll:    responses,
			wantSQL: `SELECT ` + respCols + ` FROM "teacher_responses"`,
		},
		{
			name:     "filters, order, page",
			coll:     responses,
			q:        rest.Query{}.Eq("teacher_id", "t1").In("district_id", "d1", "d2").OrderBy("submitted_at", true).Page(10, 5),
			wantSQL:  `SELECT ` + respCols + ` FROM "teacher_responses" WHERE "teacher_id" = $1 AND "district_id" IN ($2, $3) ORDER BY "submitted_at" DESC LIMIT 10 OFFSET 5`,
			wantArgs: []interface{}{"t1", "d1", "d2"},
		},
		{
			name:     "typed args",
			coll:     feedback,
			q:        rest.Query{}.Eq("rating", 4),
			wantSQL:  `SELECT "id", "teacher_id", "program_id", "rating", "feedback", "evidence", "submitted_at" FROM "feedback_entries" WHERE "rating" = $1`,
			wantArgs: []interface{}{int64(4)},
		},
		{
			name:    "empty in",
			coll:    responses,
			q:       rest.Query{}.In("id"),
			wantSQL: `SELECT ` + respCols + ` FROM "teacher_responses" WHERE FALSE`,
		},
		{name: "unknown filter column", coll: responses, q: rest.Query{}.Eq("lol", 1), wantErr: true},
		{name: "unknown order column", coll: responses, q: rest.Query{}.OrderBy("lol", false), wantErr: true},
		{name: "bad int", coll: feedback, q: rest.Query{}.Eq("rating", "five"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, gotArgs, err := buildSelect(tt.coll, tt.q)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, gotSQL)
			assert.Equal(t, tt.wantArgs, gotArgs)
		})
	}
}

func Test_buildInsert(t *testing.T) {
	c := rest.Collections[rest.TeacherResponses]
	row := rest.Row{"id": "r1", "teacher_id": "t1", "responses": json.RawMessage(`{"q1":"a"}`)}

	gotSQL, gotArgs := buildInsert(c, row)
	assert.Equal(t,
		`INSERT INTO "teacher_responses" ("id", "responses", "teacher_id") VALUES ($1, $2, $3) RETURNING "id", "teacher_id", "district_id", "responses", "submitted_at"`,
		gotSQL)
	assert.Equal(t, []interface{}{"r1", `{"q1":"a"}`, "t1"}, gotArgs)
}

func Test_buildUpdate(t *testing.T) {
	c := rest.Collections[rest.TrainingPrograms]
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	gotSQL, gotArgs, err := buildUpdate(c, rest.Query{}.Eq("id", "p1"), rest.Row{"status": "completed", "start_date": start})
	require.NoError(t, err)
	assert.Equal(t,
		`UPDATE "training_programs" SET "start_date" = $1, "status" = $2 WHERE "id" = $3 RETURNING `+columnList(c),
		gotSQL)
	assert.Equal(t, []interface{}{start, "completed", "p1"}, gotArgs)
}

func Test_normalize(t *testing.T) {
	c := rest.Collections[rest.ProblemClusters]
	got := normalize(c, map[string]interface{}{
		"id":          []byte("c1"),
		"teacher_ids": []byte(`["t1","t2"]`),
		"cluster_name": "Reading",
		"proposed_plan": nil,
	})
	assert.Equal(t, "c1", got["id"])
	assert.Equal(t, json.RawMessage(`["t1","t2"]`), got["teacher_ids"])
	assert.Equal(t, "Reading", got["cluster_name"])
	assert.Nil(t, got["proposed_plan"])
}
