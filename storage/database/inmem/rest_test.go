package inmemdb

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/rest"
	"github.com/eduweave/eduweave/core/user"
)

func seedFeedback(t *testing.T, repo rest.Repository) {
	t.Helper()
	base := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	rows := []rest.Row{
		{"id": "f1", "teacher_id": "t1", "program_id": "p1", "rating": float64(4), "feedback": "useful", "submitted_at": base.Format(time.RFC3339)},
		{"id": "f2", "teacher_id": "t2", "program_id": "p1", "rating": float64(2), "feedback": "too long", "submitted_at": base.Add(time.Hour).Format(time.RFC3339)},
		{"id": "f3", "teacher_id": "t1", "program_id": "p2", "rating": float64(5), "evidence": []interface{}{"https://example.com/a.jpg"}, "submitted_at": base.Add(2 * time.Hour).Format(time.RFC3339)},
	}
	_, err := repo.Insert(context.Background(), rest.Collections[rest.FeedbackEntries], rows)
	require.NoError(t, err)
}

func ids(rows []rest.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r["id"].(string))
	}
	return out
}

func Test_restRepository_Select(t *testing.T) {
	ctx := context.Background()
	repo := NewRestRepository(Open())
	seedFeedback(t, repo)
	coll := rest.Collections[rest.FeedbackEntries]

	tests := []struct {
		name string
		q    rest.Query
		want []string
	}{
		{name: "all, insertion order", q: rest.Query{}, want: []string{"f1", "f2", "f3"}},
		{name: "eq text", q: rest.Query{}.Eq("teacher_id", "t1"), want: []string{"f1", "f3"}},
		{name: "eq int", q: rest.Query{}.Eq("rating", 2), want: []string{"f2"}},
		{name: "in", q: rest.Query{}.In("program_id", "p2", "p9"), want: []string{"f3"}},
		{name: "and", q: rest.Query{}.Eq("teacher_id", "t1").Eq("program_id", "p1"), want: []string{"f1"}},
		{name: "no match", q: rest.Query{}.Eq("teacher_id", "t9"), want: []string{}},
		{name: "order int desc", q: rest.Query{}.OrderBy("rating", true), want: []string{"f3", "f1", "f2"}},
		{name: "order time desc", q: rest.Query{}.OrderBy("submitted_at", true), want: []string{"f3", "f2", "f1"}},
		{name: "multi order", q: rest.Query{}.OrderBy("teacher_id", false).OrderBy("rating", false), want: []string{"f1", "f3", "f2"}},
		{name: "limit", q: rest.Query{}.OrderBy("rating", true).Page(2, 0), want: []string{"f3", "f1"}},
		{name: "offset", q: rest.Query{}.Page(0, 2), want: []string{"f3"}},
		{name: "offset past end", q: rest.Query{}.Page(0, 10), want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := repo.Select(ctx, coll, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(rows))
		})
	}

	t.Run("projection", func(t *testing.T) {
		rows, err := repo.Select(ctx, coll, rest.Query{}.Eq("id", "f1"))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Len(t, rows[0], len(coll.Columns))
		assert.Nil(t, rows[0]["evidence"])
		assert.Equal(t, int64(4), rows[0]["rating"])
	})
}

func Test_restRepository_Insert(t *testing.T) {
	ctx := context.Background()
	repo := NewRestRepository(Open())
	coll := rest.Collections[rest.TeacherResponses]

	rows, err := repo.Insert(ctx, coll, []rest.Row{{"teacher_id": "t1", "responses": map[string]interface{}{"q1": "reading"}}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0]["id"], "key assigned")
	assert.JSONEq(t, `{"q1":"reading"}`, string(rows[0]["responses"].(json.RawMessage)))

	_, err = repo.Insert(ctx, coll, []rest.Row{{"id": rows[0]["id"]}})
	assert.Error(t, err, "duplicate key")

	_, err = repo.Insert(ctx, coll, []rest.Row{
		{"id": "r2", "teacher_id": "t2"},
		{"id": "r2", "teacher_id": "t3"},
	})
	assert.Error(t, err, "duplicate key within the batch")
	got, err := repo.Select(ctx, coll, rest.Query{})
	require.NoError(t, err)
	assert.Len(t, got, 1, "batch is all or nothing")

	_, err = repo.Insert(ctx, coll, []rest.Row{{"lol": 1}})
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = repo.Insert(ctx, rest.Collection{Name: "secrets"}, []rest.Row{{}})
	assert.ErrorIs(t, err, rest.ErrUnknownCollection)
}

func Test_restRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewRestRepository(Open())
	seedFeedback(t, repo)
	coll := rest.Collections[rest.FeedbackEntries]

	rows, err := repo.Update(ctx, coll, rest.Query{}.Eq("teacher_id", "t1"), rest.Row{"feedback": "edited", "id": "hijack"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"f1", "f3"}, ids(rows))

	rows, err = repo.Select(ctx, coll, rest.Query{}.Eq("feedback", "edited"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"f1", "f3"}, ids(rows), "key is never patched")

	rows, err = repo.Update(ctx, coll, rest.Query{}.Eq("teacher_id", "t9"), rest.Row{"feedback": "x"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func Test_accountRepository(t *testing.T) {
	ctx := context.Background()
	db := Open()
	accRepo := NewAccountRepository(db)
	restRepo := NewRestRepository(db)

	acc := user.Account{
		User: user.User{
			ID: "u1", Email: "teacher@example.com", DisplayName: "Asha", Role: user.RoleTeacher,
			DistrictID: "d1", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		IsActive: true,
	}
	require.NoError(t, acc.SetPassword("Blue-Harbor-77"))
	_, err := accRepo.UpdateOrCreateAccount(ctx, acc)
	require.NoError(t, err)

	got, err := accRepo.GetAccountByEmail(ctx, "teacher@example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.User, got.User)
	assert.NoError(t, got.CheckPassword("Blue-Harbor-77"))

	got, err = accRepo.GetAccountByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = accRepo.GetAccountByID(ctx, "u2")
	assert.Equal(t, user.ErrNotFound, err)
	_, err = accRepo.GetAccountByEmail(ctx, "nobody@example.com")
	assert.Equal(t, user.ErrNotFound, err)

	// accounts are rows of the users collection, without their password hash
	rows, err := restRepo.Select(ctx, rest.Collections[rest.Users], rest.Query{}.Eq("role", "teacher"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "teacher@example.com", rows[0]["email"])
	_, hasHash := rows[0]["password_hash"]
	assert.False(t, hasHash)
}
