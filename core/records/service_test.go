package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/records"
	"github.com/eduweave/eduweave/core/rest"
	"github.com/eduweave/eduweave/core/user"
	emailsvc "github.com/eduweave/eduweave/services/email"
	logsvc "github.com/eduweave/eduweave/services/logger"
	inmemdb "github.com/eduweave/eduweave/storage/database/inmem"
	testutil "github.com/eduweave/eduweave/tests"
)

var (
	ctx   = context.Background()
	token = "tok"
	now   = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc     *records.Service
	rest    rest.Repository
	mail    interface{ SentMessages() []core.EmailMessage }
	logger  *logsvc.MemoryLogger
	teacher user.User
	other   user.User // teacher outside the cohort
	officer user.User
}

func newFixture(t *testing.T) *fixture {
	db := inmemdb.Open()
	accounts := inmemdb.NewAccountRepository(db)
	repo := inmemdb.NewRestRepository(db)
	conf := testutil.NewConfig()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	logger := logsvc.NewMemoryLogger()

	f := &fixture{
		rest:    repo,
		mail:    mailSvc,
		logger:  logger,
		teacher: testutil.CreateAccount(t, accounts, "asha@school.test", "Asha", user.RoleTeacher, "d1", "", true).User,
		other:   testutil.CreateAccount(t, accounts, "ravi@school.test", "Ravi", user.RoleTeacher, "d1", "", true).User,
		officer: testutil.CreateAccount(t, accounts, "meera@diet.test", "Meera", user.RoleDistrictOfficial, "d1", "", true).User,
	}
	testutil.CreateAccount(t, accounts, "far@school.test", "Far", user.RoleTeacher, "d2", "", true)

	f.svc = records.NewService(testutil.NewDataSource(repo), mailSvc, logger, conf)
	f.svc.NowFunc = func() time.Time { return now }

	testutil.Seed(t, repo, rest.ProblemClusters,
		rest.Row{
			"id": "c1", "district_id": "d1", "cluster_name": "Early literacy", "cluster_summary": "Reading gaps",
			"category": "literacy", "teacher_ids": []string{f.teacher.ID},
			"proposed_plan": map[string]interface{}{"focus": "phonics"}, "created_at": now,
		},
		rest.Row{
			"id": "c2", "district_id": "d2", "cluster_name": "Numeracy", "teacher_ids": []string{"far@school.test"},
			"created_at": now,
		},
	)
	return f
}

func newValidator() *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	return validate
}

func seedProgram(t *testing.T, f *fixture, id, clusterID, status string) {
	testutil.Seed(t, f.rest, rest.TrainingPrograms, rest.Row{
		"id": id, "cluster_id": clusterID, "district_id": "d1", "name": "Program " + id,
		"start_date": now, "end_date": now.Add(48 * time.Hour), "sessions": []interface{}{},
		"status": status, "created_by": f.officer.ID, "created_at": now,
	})
}

func TestService_TeacherDashboard(t *testing.T) {
	f := newFixture(t)
	f.teacher.SchoolCode = "KV01"
	testutil.Seed(t, f.rest, rest.Schools, rest.Row{"id": "s1", "name": "KV One", "code": "KV01", "district_id": "d1"})
	seedProgram(t, f, "p1", "c1", records.StatusPublished)
	seedProgram(t, f, "p2", "c1", records.StatusDraft)

	_, err := f.svc.SubmitNeed(ctx, token, f.teacher, records.NewNeed{Responses: map[string]string{"q1": "reading"}})
	require.NoError(t, err)
	_, err = f.svc.SubmitNeed(ctx, token, f.other, records.NewNeed{Responses: map[string]string{"q1": "maths"}})
	require.NoError(t, err)

	dash, err := f.svc.TeacherDashboard(ctx, token, f.teacher)
	require.NoError(t, err)
	require.NotNil(t, dash.School)
	assert.Equal(t, "KV One", dash.School.Name)
	assert.Equal(t, 1, dash.SubmissionCount)
	assert.Equal(t, "reading", dash.Submissions[0].Responses["q1"])
	require.Len(t, dash.Trainings, 1)
	assert.Equal(t, "p1", dash.Trainings[0].ID)

	dash, err = f.svc.TeacherDashboard(ctx, token, f.other)
	require.NoError(t, err)
	assert.Nil(t, dash.School)
	assert.Empty(t, dash.Trainings, "not in any cohort")
}

func TestService_SubmitNeed(t *testing.T) {
	f := newFixture(t)

	sub, err := f.svc.SubmitNeed(ctx, token, f.teacher, records.NewNeed{Responses: map[string]string{"q1": "a", "q2": "b"}})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, f.teacher.ID, sub.TeacherID)
	assert.Equal(t, "d1", sub.DistrictID)
	assert.Equal(t, now, sub.SubmittedAt)
	assert.Equal(t, map[string]string{"q1": "a", "q2": "b"}, sub.Responses)
}

func TestService_NeedQuestions(t *testing.T) {
	f := newFixture(t)
	testutil.Seed(t, f.rest, rest.Questions,
		rest.Row{"id": "q2", "category": "classroom", "text": "Second?", "options": []string{}, "position": 2},
		rest.Row{"id": "q1", "category": "classroom", "text": "First?", "options": []string{"a", "b"}, "position": 1},
		rest.Row{"id": "f1", "category": records.FeedbackCategory, "text": "Useful?", "position": 1},
	)

	questions, err := f.svc.NeedQuestions(ctx, token)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "q1", questions[0].ID)
	assert.Equal(t, []string{"a", "b"}, questions[0].Options)

	form, err := f.svc.FeedbackForm(ctx, token, f.teacher)
	require.NoError(t, err)
	require.Len(t, form.Questions, 1)
	assert.Equal(t, "f1", form.Questions[0].ID)
}

func TestService_TrainingContent(t *testing.T) {
	f := newFixture(t)
	seedProgram(t, f, "p1", "c1", records.StatusPublished)
	seedProgram(t, f, "p2", "c1", records.StatusDraft)
	testutil.Seed(t, f.rest, rest.TrainingMaterials, rest.Row{"id": "m1", "cluster_id": "c1", "title": "Phonics 101", "created_at": now})

	content, err := f.svc.TrainingContent(ctx, token, f.teacher, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", content.Program.ID)
	require.Len(t, content.Materials, 1)
	assert.Equal(t, "Phonics 101", content.Materials[0].Title)

	_, err = f.svc.TrainingContent(ctx, token, f.teacher, "p2")
	assert.Equal(t, records.ErrNotFound, err, "drafts are hidden from teachers")

	_, err = f.svc.TrainingContent(ctx, token, f.officer, "p2")
	assert.NoError(t, err)

	_, err = f.svc.TrainingContent(ctx, token, user.User{ID: "x", Role: user.RoleTeacher, DistrictID: "d2"}, "p1")
	assert.Equal(t, records.ErrNotFound, err, "other district")
}

func TestService_SubmitFeedback(t *testing.T) {
	f := newFixture(t)
	seedProgram(t, f, "p1", "c1", records.StatusPublished)

	entry, err := f.svc.SubmitFeedback(ctx, token, f.teacher, records.NewFeedback{ProgramID: "p1", Rating: 4, Feedback: "Great"})
	require.NoError(t, err)
	assert.Equal(t, 4, entry.Rating)
	assert.Equal(t, []string{}, entry.Evidence)

	seedProgram(t, f, "p2", "c1", records.StatusDraft)
	seedProgram(t, f, "p3", "c2", records.StatusPublished)
	tests := []struct {
		name string
		usr  user.User
		id   string
	}{
		{name: "unknown program", usr: f.teacher, id: "nope"},
		{name: "draft program", usr: f.teacher, id: "p2"},
		{name: "program of another cohort", usr: f.teacher, id: "p3"},
		{name: "teacher outside the cohort", usr: f.other, id: "p1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitFeedback(ctx, token, tt.usr, records.NewFeedback{ProgramID: tt.id, Rating: 4})
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, "program_id", vErr.Fields[0].Field)
		})
	}

	rows, err := f.rest.Select(ctx, rest.Collections[rest.FeedbackEntries], rest.Query{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestService_DistrictDashboard(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SubmitNeed(ctx, token, f.teacher, records.NewNeed{Responses: map[string]string{"q1": "a"}})
	require.NoError(t, err)

	dash, err := f.svc.DistrictDashboard(ctx, token, f.officer)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.ClusterCount)
	assert.Equal(t, "c1", dash.Clusters[0].ID)
	assert.Equal(t, 2, dash.TeacherCount)
	assert.Equal(t, 1, dash.SubmissionCount)
}

func TestService_Cohort(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SubmitNeed(ctx, token, f.teacher, records.NewNeed{Responses: map[string]string{"q1": "a"}})
	require.NoError(t, err)

	cohort, err := f.svc.Cohort(ctx, token, f.officer, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Early literacy", cohort.Cluster.Name)
	require.Len(t, cohort.Teachers, 1)
	assert.Equal(t, f.teacher.Email, cohort.Teachers[0].Email)
	assert.Len(t, cohort.Submissions, 1)

	_, err = f.svc.Cohort(ctx, token, f.officer, "c2")
	assert.Equal(t, records.ErrNotFound, err, "cohort of another district")
}

func TestService_Recommendations(t *testing.T) {
	f := newFixture(t)

	recs, err := f.svc.Recommendations(ctx, token, f.officer, "c1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"focus":"phonics"}`, string(recs.Plan))
	assert.Empty(t, recs.Materials)
}

func TestService_PublishTraining(t *testing.T) {
	f := newFixture(t)
	np := records.NewTrainingProgram{
		Name:      "Phonics bootcamp",
		StartDate: now.AddDate(0, 0, 7),
		EndDate:   now.AddDate(0, 0, 9),
		Sessions:  []records.Session{{Title: "Day 1", Duration: 90}},
	}
	require.NoError(t, np.Validate(newValidator()))

	program, err := f.svc.PublishTraining(ctx, token, f.officer, "c1", np)
	require.NoError(t, err)
	assert.Equal(t, records.StatusPublished, program.Status)
	assert.Equal(t, "c1", program.ClusterID)
	assert.Equal(t, f.officer.ID, program.CreatedBy)
	require.Len(t, program.Sessions, 1)

	sent := f.mail.SentMessages()
	require.Len(t, sent, 1, "only the cohort's teacher")
	assert.Equal(t, f.teacher.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "http://portal.test/teacher/training/"+program.ID)

	published, err := f.svc.PublishedTrainings(ctx, token, f.officer)
	require.NoError(t, err)
	require.Len(t, published, 1)

	_, err = f.svc.PublishTraining(ctx, token, f.officer, "c2", np)
	assert.Equal(t, records.ErrNotFound, err)
}

func TestService_FeedbackInsights(t *testing.T) {
	f := newFixture(t)

	insights, err := f.svc.FeedbackInsights(ctx, token, f.officer)
	require.NoError(t, err)
	assert.Empty(t, insights.Programs)

	seedProgram(t, f, "p1", "c1", records.StatusPublished)
	seedProgram(t, f, "p2", "c1", records.StatusPublished)
	for _, nf := range []records.NewFeedback{
		{ProgramID: "p1", Rating: 5, Feedback: "Loved it"},
		{ProgramID: "p1", Rating: 4},
		{ProgramID: "p2", Rating: 2, Feedback: "Too fast"},
	} {
		_, err := f.svc.SubmitFeedback(ctx, token, f.teacher, nf)
		require.NoError(t, err)
	}

	insights, err = f.svc.FeedbackInsights(ctx, token, f.officer)
	require.NoError(t, err)
	assert.Equal(t, 3, insights.ResponseCount)
	assert.Equal(t, 3.7, insights.AverageRating)
	require.Len(t, insights.Programs, 2)
	assert.Equal(t, "p1", insights.Programs[0].Program.ID)
	assert.Equal(t, 4.5, insights.Programs[0].AverageRating)
	assert.Equal(t, []string{"Loved it"}, insights.Programs[0].Comments)
	assert.Equal(t, 2.0, insights.Programs[1].AverageRating)
}
