package records

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/eduweave/eduweave/core"
)

// Program statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusCompleted = "completed"
)

// FeedbackCategory is the question category of the post-training feedback form.
const FeedbackCategory = "feedback"

type (
	School struct {
		ID         string    `json:"id"`
		Name       string    `json:"name"`
		Code       string    `json:"code"`
		DistrictID string    `json:"district_id"`
		State      string    `json:"state"`
		CreatedAt  time.Time `json:"created_at"`
	}

	// NeedSubmission is a teacher's answers to the classroom-need questionnaire.
	NeedSubmission struct {
		ID          string            `json:"id"`
		TeacherID   string            `json:"teacher_id"`
		DistrictID  string            `json:"district_id"`
		Responses   map[string]string `json:"responses"` // {question id: answer}
		SubmittedAt time.Time         `json:"submitted_at"`
	}

	// Cluster is a cohort of teachers sharing a classroom problem, with the plan recommended for them.
	Cluster struct {
		ID           string          `json:"id"`
		DistrictID   string          `json:"district_id"`
		Name         string          `json:"cluster_name"`
		Summary      string          `json:"cluster_summary"`
		Category     string          `json:"category"`
		TeacherIDs   []string        `json:"teacher_ids"`
		ProposedPlan json.RawMessage `json:"proposed_plan,omitempty"`
		CreatedAt    time.Time       `json:"created_at"`
	}

	Question struct {
		ID       string   `json:"id"`
		Category string   `json:"category"`
		Text     string   `json:"text"`
		Options  []string `json:"options"`
		Position int      `json:"position"`
	}

	Material struct {
		ID        string    `json:"id"`
		ClusterID string    `json:"cluster_id"`
		UserID    string    `json:"user_id"`
		Title     string    `json:"title"`
		Content   string    `json:"content"`
		CreatedAt time.Time `json:"created_at"`
	}

	Session struct {
		Title       string   `json:"title" validate:"required,notblank"`
		Description string   `json:"description"`
		Date        string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
		Time        string   `json:"time" validate:"omitempty,datetime=15:04"`
		Duration    int      `json:"duration" validate:"gte=0"` // minutes
		Facilitator string   `json:"facilitator"`
		Resources   []string `json:"resources"`
	}

	TrainingProgram struct {
		ID          string    `json:"id"`
		ClusterID   string    `json:"cluster_id"`
		DistrictID  string    `json:"district_id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		StartDate   time.Time `json:"start_date"`
		EndDate     time.Time `json:"end_date"`
		Sessions    []Session `json:"sessions"`
		Status      string    `json:"status"`
		CreatedBy   string    `json:"created_by"`
		CreatedAt   time.Time `json:"created_at"`
	}

	FeedbackEntry struct {
		ID          string    `json:"id"`
		TeacherID   string    `json:"teacher_id"`
		ProgramID   string    `json:"program_id"`
		Rating      int       `json:"rating"`
		Feedback    string    `json:"feedback"`
		Evidence    []string  `json:"evidence"`
		SubmittedAt time.Time `json:"submitted_at"`
	}
)

// NewNeed is the classroom-need questionnaire as submitted by a teacher.
type NewNeed struct {
	Responses map[string]string `json:"responses" validate:"required,min=1,dive,keys,notblank,endkeys,notblank"`
}

func (nn *NewNeed) Validate(validate *validator.Validate) error {
	clean := make(map[string]string, len(nn.Responses))
	for q, a := range nn.Responses {
		clean[core.CleanString(q)] = core.CleanString(a)
	}
	nn.Responses = clean
	return validate.Struct(nn)
}

// NewTrainingProgram is the design of a training for a cohort.
type NewTrainingProgram struct {
	Name        string    `json:"name" validate:"required,notblank,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required,gtefield=StartDate"`
	Sessions    []Session `json:"sessions" validate:"dive"`
}

func (np *NewTrainingProgram) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Description = core.CleanString(np.Description)
	for i := range np.Sessions {
		np.Sessions[i].Title = core.CleanString(np.Sessions[i].Title)
	}
	return validate.Struct(np)
}

// NewFeedback is a teacher's rating of a training they attended.
type NewFeedback struct {
	ProgramID string   `json:"program_id" validate:"required"`
	Rating    int      `json:"rating" validate:"required,min=1,max=5"`
	Feedback  string   `json:"feedback" validate:"max=2000"`
	Evidence  []string `json:"evidence" validate:"dive,url"`
}

func (nf *NewFeedback) Validate(validate *validator.Validate) error {
	nf.ProgramID = core.CleanString(nf.ProgramID)
	nf.Feedback = core.CleanString(nf.Feedback)
	return validate.Struct(nf)
}
