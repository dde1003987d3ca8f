package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduweave/eduweave/core/rest"
	"github.com/eduweave/eduweave/core/user"
	testutil "github.com/eduweave/eduweave/tests"
)

func TestRestAPI(t *testing.T) {
	e := setup(t)
	asha := testutil.CreateAccount(t, e.accounts, "asha@school.test", "Asha", user.RoleTeacher, "d1", pwd, true)
	token := e.getToken(t, asha.User)

	testutil.Seed(t, e.rows, rest.TeacherResponses,
		rest.Row{"id": "r1", "teacher_id": "t1", "district_id": "d1", "responses": map[string]string{"q1": "a"}, "submitted_at": "2024-06-01T09:00:00Z"},
		rest.Row{"id": "r2", "teacher_id": "t2", "district_id": "d1", "responses": map[string]string{"q1": "b"}, "submitted_at": "2024-06-02T09:00:00Z"},
		rest.Row{"id": "r3", "teacher_id": "t3", "district_id": "d2", "responses": map[string]string{"q1": "c"}, "submitted_at": "2024-06-03T09:00:00Z"},
	)

	tests := []httpTest{
		{
			name:     "query without token",
			method:   http.MethodGet,
			path:     "/rest/v1/teacher_responses",
			wantCode: http.StatusUnauthorized,
			wantData: marshalObj(t, errMissingToken),
		},
		{
			name:     "unknown collection",
			method:   http.MethodGet,
			path:     "/rest/v1/grades",
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "not found"}),
		},
		{
			name:     "unknown column",
			method:   http.MethodGet,
			path:     "/rest/v1/teacher_responses?grade=eq.5",
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"grade":"unknown column"}`),
		},
		{
			name:     "filter, order and page",
			method:   http.MethodGet,
			path:     "/rest/v1/teacher_responses?district_id=eq.d1&order=submitted_at.desc&limit=1",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`[{"id":"r2","teacher_id":"t2","district_id":"d1","responses":{"q1":"b"},"submitted_at":"2024-06-02T09:00:00Z"}]`),
		},
		{
			name:     "in filter",
			method:   http.MethodGet,
			path:     "/rest/v1/teacher_responses?id=in.(r1,r3)&select=*&order=id",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`[
				{"id":"r1","teacher_id":"t1","district_id":"d1","responses":{"q1":"a"},"submitted_at":"2024-06-01T09:00:00Z"},
				{"id":"r3","teacher_id":"t3","district_id":"d2","responses":{"q1":"c"},"submitted_at":"2024-06-03T09:00:00Z"}
			]`),
		},
		{
			name:     "users are read-only",
			method:   http.MethodPost,
			path:     "/rest/v1/users",
			token:    token,
			body:     []byte(`{"email":"x@school.test"}`),
			wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "collection is read-only"}),
		},
		{
			name:     "insert with a bad column",
			method:   http.MethodPost,
			path:     "/rest/v1/feedback_entries",
			token:    token,
			body:     []byte(`{"program_id":"p1","rating":"five"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"rating":"must be an integer"}`),
		},
		{
			name:     "malformed body",
			method:   http.MethodPost,
			path:     "/rest/v1/feedback_entries",
			token:    token,
			body:     []byte(`{"program_id":`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "update without filter",
			method:   http.MethodPatch,
			path:     "/rest/v1/teacher_responses",
			token:    token,
			body:     []byte(`{"district_id":"d9"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: "update requires a filter"}),
		},
		{
			name:     "update",
			method:   http.MethodPatch,
			path:     "/rest/v1/teacher_responses?id=eq.r3",
			token:    token,
			body:     []byte(`{"district_id":"d1"}`),
			wantCode: http.StatusOK,
			wantData: []byte(`[{"id":"r3","teacher_id":"t3","district_id":"d1","responses":{"q1":"c"},"submitted_at":"2024-06-03T09:00:00Z"}]`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, e.do(tt.method, tt.path, tt.token, tt.body))
		})
	}

	t.Run("insert one and many", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/rest/v1/feedback_entries", token,
			[]byte(`{"teacher_id":"t1","program_id":"p1","rating":5,"evidence":["https://img.test/1.png"]}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var rows []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 1)
		assert.NotEmpty(t, rows[0]["id"])
		assert.Equal(t, float64(5), rows[0]["rating"])
		assert.Equal(t, []interface{}{"https://img.test/1.png"}, rows[0]["evidence"])

		rec = e.do(http.MethodPost, "/rest/v1/feedback_entries", token,
			[]byte(`[{"program_id":"p1","rating":3},{"program_id":"p1","rating":4}]`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		assert.Len(t, rows, 2)

		rec = e.do(http.MethodGet, "/rest/v1/feedback_entries?program_id=eq.p1", token)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		assert.Len(t, rows, 3)
	})

	t.Run("users are readable without password hashes", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/rest/v1/users?id=eq."+asha.ID, token)
		require.Equal(t, http.StatusOK, rec.Code)
		var rows []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, "teacher", rows[0]["role"])
		assert.NotContains(t, rows[0], "password_hash")
	})
}
