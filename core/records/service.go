// Package records holds the typed views of the backend's business records and the
// data helpers behind each portal page.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/rest"
	"github.com/eduweave/eduweave/core/user"
)

var ErrNotFound = errors.New("record not found")

type (
	// DataSource is the backend's row storage, reached with the signed-in user's token.
	DataSource interface {
		Select(ctx context.Context, token, collection string, q rest.Query) ([]rest.Row, error)
		Insert(ctx context.Context, token, collection string, rows ...rest.Row) ([]rest.Row, error)
		Update(ctx context.Context, token, collection string, q rest.Query, patch rest.Row) ([]rest.Row, error)
	}

	Service struct {
		ds      DataSource
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
		NowFunc func() time.Time // mockable
	}
)

func NewService(ds DataSource, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{ds: ds, mailSvc: mailSvc, logger: logger, conf: conf, NowFunc: time.Now}
}

func (svc *Service) now() time.Time {
	return svc.NowFunc().UTC()
}

// decode converts rows to their typed view through their JSON form.
func decode(rows []rest.Row, dst interface{}) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return errors.Wrap(err, "encoding rows")
	}
	return errors.Wrap(json.Unmarshal(data, dst), "decoding rows")
}

// encode converts a typed record to a row.
func encode(v interface{}) (rest.Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encoding record")
	}
	var row rest.Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, errors.Wrap(err, "encoding record")
	}
	return row, nil
}

func (svc *Service) selectInto(ctx context.Context, token, coll string, q rest.Query, dst interface{}) error {
	rows, err := svc.ds.Select(ctx, token, coll, q)
	if err != nil {
		return errors.Wrapf(err, "selecting %s", coll)
	}
	return decode(rows, dst)
}

func (svc *Service) insertOne(ctx context.Context, token, coll string, record, dst interface{}) error {
	row, err := encode(record)
	if err != nil {
		return err
	}
	rows, err := svc.ds.Insert(ctx, token, coll, row)
	if err != nil {
		return errors.Wrapf(err, "inserting into %s", coll)
	}
	if len(rows) == 0 {
		return errors.Errorf("inserting into %s: no row returned", coll)
	}
	data, err := json.Marshal(rows[0])
	if err != nil {
		return errors.Wrap(err, "encoding row")
	}
	return errors.Wrap(json.Unmarshal(data, dst), "decoding row")
}

// =========================================================================
// Teacher pages

type TeacherDashboard struct {
	User            user.User         `json:"user"`
	School          *School           `json:"school"`
	Submissions     []NeedSubmission  `json:"submissions"`
	SubmissionCount int               `json:"submission_count"`
	Trainings       []TrainingProgram `json:"trainings"`
}

func (svc *Service) TeacherDashboard(ctx context.Context, token string, usr user.User) (TeacherDashboard, error) {
	dash := TeacherDashboard{User: usr, Submissions: []NeedSubmission{}, Trainings: []TrainingProgram{}}

	if usr.SchoolCode != "" {
		var schools []School
		if err := svc.selectInto(ctx, token, rest.Schools, rest.Query{}.Eq("code", usr.SchoolCode).Page(1, 0), &schools); err != nil {
			return TeacherDashboard{}, err
		}
		if len(schools) > 0 {
			dash.School = &schools[0]
		}
	}

	q := rest.Query{}.Eq("teacher_id", usr.ID).OrderBy("submitted_at", true)
	if err := svc.selectInto(ctx, token, rest.TeacherResponses, q, &dash.Submissions); err != nil {
		return TeacherDashboard{}, err
	}
	dash.SubmissionCount = len(dash.Submissions)

	trainings, err := svc.teacherTrainings(ctx, token, usr)
	if err != nil {
		return TeacherDashboard{}, err
	}
	dash.Trainings = trainings
	return dash, nil
}

// teacherTrainings lists the published programs designed for the cohorts the teacher belongs to.
func (svc *Service) teacherTrainings(ctx context.Context, token string, usr user.User) ([]TrainingProgram, error) {
	var clusters []Cluster
	if err := svc.selectInto(ctx, token, rest.ProblemClusters, rest.Query{}.Eq("district_id", usr.DistrictID), &clusters); err != nil {
		return nil, err
	}
	clusterIDs := make([]interface{}, 0)
	for _, c := range clusters {
		if c.hasTeacher(usr.ID) {
			clusterIDs = append(clusterIDs, c.ID)
		}
	}
	programs := make([]TrainingProgram, 0)
	if len(clusterIDs) == 0 {
		return programs, nil
	}
	q := rest.Query{}.In("cluster_id", clusterIDs...).Eq("status", StatusPublished).OrderBy("start_date", false)
	if err := svc.selectInto(ctx, token, rest.TrainingPrograms, q, &programs); err != nil {
		return nil, err
	}
	return programs, nil
}

func (c Cluster) hasTeacher(id string) bool {
	for _, tid := range c.TeacherIDs {
		if tid == id {
			return true
		}
	}
	return false
}

// NeedQuestions returns the classroom-need questionnaire.
func (svc *Service) NeedQuestions(ctx context.Context, token string) ([]Question, error) {
	var questions []Question
	if err := svc.selectInto(ctx, token, rest.Questions, rest.Query{}.OrderBy("position", false), &questions); err != nil {
		return nil, err
	}
	need := make([]Question, 0, len(questions))
	for _, q := range questions {
		if q.Category != FeedbackCategory {
			need = append(need, q)
		}
	}
	return need, nil
}

// SubmitNeed stores a validated questionnaire.
func (svc *Service) SubmitNeed(ctx context.Context, token string, usr user.User, nn NewNeed) (NeedSubmission, error) {
	sub := NeedSubmission{
		ID:          uuid.New().String(),
		TeacherID:   usr.ID,
		DistrictID:  usr.DistrictID,
		Responses:   nn.Responses,
		SubmittedAt: svc.now(),
	}
	var saved NeedSubmission
	if err := svc.insertOne(ctx, token, rest.TeacherResponses, sub, &saved); err != nil {
		return NeedSubmission{}, err
	}
	return saved, nil
}

type TrainingContent struct {
	Program   TrainingProgram `json:"program"`
	Materials []Material      `json:"materials"`
}

// TrainingContent returns a published program of the teacher's district and its materials.
func (svc *Service) TrainingContent(ctx context.Context, token string, usr user.User, programID string) (TrainingContent, error) {
	program, err := svc.program(ctx, token, usr, programID)
	if err != nil {
		return TrainingContent{}, err
	}
	if usr.IsTeacher() && program.Status != StatusPublished {
		return TrainingContent{}, ErrNotFound
	}

	content := TrainingContent{Program: program, Materials: []Material{}}
	q := rest.Query{}.Eq("cluster_id", program.ClusterID).OrderBy("created_at", false)
	if err := svc.selectInto(ctx, token, rest.TrainingMaterials, q, &content.Materials); err != nil {
		return TrainingContent{}, err
	}
	return content, nil
}

func (svc *Service) program(ctx context.Context, token string, usr user.User, programID string) (TrainingProgram, error) {
	var programs []TrainingProgram
	q := rest.Query{}.Eq("id", programID).Eq("district_id", usr.DistrictID)
	if err := svc.selectInto(ctx, token, rest.TrainingPrograms, q, &programs); err != nil {
		return TrainingProgram{}, err
	}
	if len(programs) == 0 {
		return TrainingProgram{}, ErrNotFound
	}
	return programs[0], nil
}

type FeedbackForm struct {
	Trainings []TrainingProgram `json:"trainings"`
	Questions []Question        `json:"questions"`
}

func (svc *Service) FeedbackForm(ctx context.Context, token string, usr user.User) (FeedbackForm, error) {
	form := FeedbackForm{Questions: []Question{}}
	trainings, err := svc.teacherTrainings(ctx, token, usr)
	if err != nil {
		return FeedbackForm{}, err
	}
	form.Trainings = trainings

	q := rest.Query{}.Eq("category", FeedbackCategory).OrderBy("position", false)
	if err := svc.selectInto(ctx, token, rest.Questions, q, &form.Questions); err != nil {
		return FeedbackForm{}, err
	}
	return form, nil
}

// SubmitFeedback stores a validated rating of a published program assigned to one of the teacher's cohorts.
func (svc *Service) SubmitFeedback(ctx context.Context, token string, usr user.User, nf NewFeedback) (FeedbackEntry, error) {
	trainings, err := svc.teacherTrainings(ctx, token, usr)
	if err != nil {
		return FeedbackEntry{}, err
	}
	if !hasProgram(trainings, nf.ProgramID) {
		return FeedbackEntry{}, core.NewValidationError(ErrNotFound, core.FieldError{Field: "program_id", Error: "unknown training program"})
	}

	entry := FeedbackEntry{
		ID:          uuid.New().String(),
		TeacherID:   usr.ID,
		ProgramID:   nf.ProgramID,
		Rating:      nf.Rating,
		Feedback:    nf.Feedback,
		Evidence:    nf.Evidence,
		SubmittedAt: svc.now(),
	}
	if entry.Evidence == nil {
		entry.Evidence = []string{}
	}
	var saved FeedbackEntry
	if err := svc.insertOne(ctx, token, rest.FeedbackEntries, entry, &saved); err != nil {
		return FeedbackEntry{}, err
	}
	return saved, nil
}

func hasProgram(programs []TrainingProgram, id string) bool {
	for _, p := range programs {
		if p.ID == id {
			return true
		}
	}
	return false
}

// =========================================================================
// District official pages

type DistrictDashboard struct {
	Clusters        []Cluster `json:"clusters"`
	ClusterCount    int       `json:"cluster_count"`
	TeacherCount    int       `json:"teacher_count"`
	SubmissionCount int       `json:"submission_count"`
}

func (svc *Service) DistrictDashboard(ctx context.Context, token string, usr user.User) (DistrictDashboard, error) {
	dash := DistrictDashboard{Clusters: []Cluster{}}

	q := rest.Query{}.Eq("district_id", usr.DistrictID).OrderBy("created_at", true)
	if err := svc.selectInto(ctx, token, rest.ProblemClusters, q, &dash.Clusters); err != nil {
		return DistrictDashboard{}, err
	}
	dash.ClusterCount = len(dash.Clusters)

	teachers, err := svc.ds.Select(ctx, token, rest.Users, rest.Query{}.Eq("district_id", usr.DistrictID).Eq("role", user.RoleTeacher))
	if err != nil {
		return DistrictDashboard{}, errors.Wrap(err, "selecting teachers")
	}
	dash.TeacherCount = len(teachers)

	subs, err := svc.ds.Select(ctx, token, rest.TeacherResponses, rest.Query{}.Eq("district_id", usr.DistrictID))
	if err != nil {
		return DistrictDashboard{}, errors.Wrap(err, "selecting submissions")
	}
	dash.SubmissionCount = len(subs)
	return dash, nil
}

func (svc *Service) cluster(ctx context.Context, token string, usr user.User, clusterID string) (Cluster, error) {
	var clusters []Cluster
	q := rest.Query{}.Eq("id", clusterID).Eq("district_id", usr.DistrictID)
	if err := svc.selectInto(ctx, token, rest.ProblemClusters, q, &clusters); err != nil {
		return Cluster{}, err
	}
	if len(clusters) == 0 {
		return Cluster{}, ErrNotFound
	}
	return clusters[0], nil
}

func (svc *Service) cohortTeachers(ctx context.Context, token string, c Cluster) ([]user.User, error) {
	teachers := make([]user.User, 0, len(c.TeacherIDs))
	if len(c.TeacherIDs) == 0 {
		return teachers, nil
	}
	ids := make([]interface{}, 0, len(c.TeacherIDs))
	for _, id := range c.TeacherIDs {
		ids = append(ids, id)
	}
	q := rest.Query{}.In("id", ids...).OrderBy("display_name", false)
	if err := svc.selectInto(ctx, token, rest.Users, q, &teachers); err != nil {
		return nil, err
	}
	return teachers, nil
}

type Cohort struct {
	Cluster     Cluster          `json:"cluster"`
	Teachers    []user.User      `json:"teachers"`
	Submissions []NeedSubmission `json:"submissions"`
}

// Cohort returns a cluster of the official's district with its teachers and their submissions.
func (svc *Service) Cohort(ctx context.Context, token string, usr user.User, clusterID string) (Cohort, error) {
	c, err := svc.cluster(ctx, token, usr, clusterID)
	if err != nil {
		return Cohort{}, err
	}
	cohort := Cohort{Cluster: c, Submissions: []NeedSubmission{}}
	if cohort.Teachers, err = svc.cohortTeachers(ctx, token, c); err != nil {
		return Cohort{}, err
	}
	if len(c.TeacherIDs) > 0 {
		ids := make([]interface{}, 0, len(c.TeacherIDs))
		for _, id := range c.TeacherIDs {
			ids = append(ids, id)
		}
		q := rest.Query{}.In("teacher_id", ids...).OrderBy("submitted_at", true)
		if err := svc.selectInto(ctx, token, rest.TeacherResponses, q, &cohort.Submissions); err != nil {
			return Cohort{}, err
		}
	}
	return cohort, nil
}

type Recommendations struct {
	Cluster   Cluster         `json:"cluster"`
	Plan      json.RawMessage `json:"plan"`
	Materials []Material      `json:"materials"`
}

// Recommendations returns the plan proposed for a cohort and the materials matched to it.
func (svc *Service) Recommendations(ctx context.Context, token string, usr user.User, clusterID string) (Recommendations, error) {
	c, err := svc.cluster(ctx, token, usr, clusterID)
	if err != nil {
		return Recommendations{}, err
	}
	recs := Recommendations{Cluster: c, Plan: c.ProposedPlan, Materials: []Material{}}
	if len(recs.Plan) == 0 {
		recs.Plan = json.RawMessage("null")
	}
	q := rest.Query{}.Eq("cluster_id", c.ID).OrderBy("created_at", false)
	if err := svc.selectInto(ctx, token, rest.TrainingMaterials, q, &recs.Materials); err != nil {
		return Recommendations{}, err
	}
	return recs, nil
}

// DesignTraining returns what the design form needs: the cohort and its proposed plan.
func (svc *Service) DesignTraining(ctx context.Context, token string, usr user.User, clusterID string) (Cohort, error) {
	return svc.Cohort(ctx, token, usr, clusterID)
}

// PublishTraining stores a validated program for a cohort of the official's district
// and notifies the cohort's teachers by e-mail.
func (svc *Service) PublishTraining(ctx context.Context, token string, usr user.User, clusterID string, np NewTrainingProgram) (TrainingProgram, error) {
	c, err := svc.cluster(ctx, token, usr, clusterID)
	if err != nil {
		return TrainingProgram{}, err
	}

	program := TrainingProgram{
		ID:          uuid.New().String(),
		ClusterID:   c.ID,
		DistrictID:  usr.DistrictID,
		Name:        np.Name,
		Description: np.Description,
		StartDate:   np.StartDate.UTC(),
		EndDate:     np.EndDate.UTC(),
		Sessions:    np.Sessions,
		Status:      StatusPublished,
		CreatedBy:   usr.ID,
		CreatedAt:   svc.now(),
	}
	if program.Sessions == nil {
		program.Sessions = []Session{}
	}
	var saved TrainingProgram
	if err := svc.insertOne(ctx, token, rest.TrainingPrograms, program, &saved); err != nil {
		return TrainingProgram{}, err
	}

	teachers, err := svc.cohortTeachers(ctx, token, c)
	if err != nil {
		svc.logger.Error("notifying cohort", err, usr, map[string]interface{}{"program_id": saved.ID})
		return saved, nil
	}
	svc.notifyCohort(saved, teachers)
	return saved, nil
}

func (svc *Service) notifyCohort(program TrainingProgram, teachers []user.User) {
	msgs := make([]*core.EmailMessage, 0, len(teachers))
	link := fmt.Sprintf("%s/teacher/training/%s", svc.conf.Portal.BaseURL, program.ID)
	for _, t := range teachers {
		if t.Email == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:      []mail.Address{{Name: t.DisplayName, Address: t.Email}},
			Subject: "New training: " + program.Name,
			BodyStr: fmt.Sprintf(
				"Hello %s,\n\nA training designed for your classroom needs has been published.\n\n%s\n%s - %s\n\nDetails: %s\n",
				t.DisplayName, program.Name,
				program.StartDate.Format("2 Jan 2006"), program.EndDate.Format("2 Jan 2006"),
				link,
			),
		})
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
}

// PublishedTrainings lists the programs of the official's district, newest first.
func (svc *Service) PublishedTrainings(ctx context.Context, token string, usr user.User) ([]TrainingProgram, error) {
	programs := make([]TrainingProgram, 0)
	q := rest.Query{}.Eq("district_id", usr.DistrictID).OrderBy("created_at", true)
	if err := svc.selectInto(ctx, token, rest.TrainingPrograms, q, &programs); err != nil {
		return nil, err
	}
	return programs, nil
}

type (
	ProgramInsight struct {
		Program       TrainingProgram `json:"program"`
		ResponseCount int             `json:"response_count"`
		AverageRating float64         `json:"average_rating"`
		Comments      []string        `json:"comments"`
	}

	FeedbackInsights struct {
		Programs      []ProgramInsight `json:"programs"`
		ResponseCount int              `json:"response_count"`
		AverageRating float64          `json:"average_rating"`
	}
)

// FeedbackInsights aggregates the feedback left on the programs of the official's district.
func (svc *Service) FeedbackInsights(ctx context.Context, token string, usr user.User) (FeedbackInsights, error) {
	insights := FeedbackInsights{Programs: []ProgramInsight{}}
	programs, err := svc.PublishedTrainings(ctx, token, usr)
	if err != nil {
		return FeedbackInsights{}, err
	}
	if len(programs) == 0 {
		return insights, nil
	}

	ids := make([]interface{}, 0, len(programs))
	for _, p := range programs {
		ids = append(ids, p.ID)
	}
	var entries []FeedbackEntry
	q := rest.Query{}.In("program_id", ids...).OrderBy("submitted_at", true)
	if err := svc.selectInto(ctx, token, rest.FeedbackEntries, q, &entries); err != nil {
		return FeedbackInsights{}, err
	}

	byProgram := make(map[string][]FeedbackEntry, len(programs))
	for _, e := range entries {
		byProgram[e.ProgramID] = append(byProgram[e.ProgramID], e)
	}

	var total int
	for _, p := range programs {
		pi := ProgramInsight{Program: p, Comments: []string{}}
		var sum int
		for _, e := range byProgram[p.ID] {
			sum += e.Rating
			if e.Feedback != "" {
				pi.Comments = append(pi.Comments, e.Feedback)
			}
		}
		pi.ResponseCount = len(byProgram[p.ID])
		if pi.ResponseCount > 0 {
			pi.AverageRating = roundRating(float64(sum) / float64(pi.ResponseCount))
		}
		total += sum
		insights.ResponseCount += pi.ResponseCount
		insights.Programs = append(insights.Programs, pi)
	}
	if insights.ResponseCount > 0 {
		insights.AverageRating = roundRating(float64(total) / float64(insights.ResponseCount))
	}
	sort.SliceStable(insights.Programs, func(i, j int) bool {
		return insights.Programs[i].ResponseCount > insights.Programs[j].ResponseCount
	})
	return insights, nil
}

// roundRating rounds to one decimal place.
func roundRating(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}
