package echoportal

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core/records"
	"github.com/eduweave/eduweave/core/user"
)

func (s *Server) registerTeacherViews(guard echo.MiddlewareFunc) {
	s.app.GET(user.TeacherHomePath, s.teacherDashboard, guard)
	s.app.GET("/teacher/submit-need", s.submitNeedView, guard)
	s.app.POST("/teacher/submit-need", s.submitNeed, guard)
	s.app.GET("/teacher/training/:id", s.trainingContent, guard)
	s.app.GET("/teacher/feedback", s.feedbackView, guard)
	s.app.POST("/teacher/feedback", s.submitFeedback, guard)
}

func (s *Server) teacherDashboard(ctx echo.Context) error {
	dash, err := fetch(ctx, s, s.deps.Records.TeacherDashboard)
	if err != nil {
		return err
	}
	return s.render(ctx, http.StatusOK, "teacher_dashboard", dash)
}

func (s *Server) submitNeedView(ctx echo.Context) error {
	questions, err := fetch(ctx, s, func(c context.Context, token string, _ user.User) ([]records.Question, error) {
		return s.deps.Records.NeedQuestions(c, token)
	})
	if err != nil {
		return err
	}
	return s.render(ctx, http.StatusOK, "submit_need", echo.Map{"questions": questions})
}

func (s *Server) submitNeed(ctx echo.Context) error {
	var data records.NewNeed
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNeed")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}
	if _, err := mutate(ctx, s, s.deps.Records.SubmitNeed, data); err != nil {
		return err
	}
	return ctx.Redirect(http.StatusSeeOther, user.TeacherHomePath)
}

func (s *Server) trainingContent(ctx echo.Context) error {
	programID := ctx.Param("id")
	content, err := fetch(ctx, s, func(c context.Context, token string, usr user.User) (records.TrainingContent, error) {
		return s.deps.Records.TrainingContent(c, token, usr, programID)
	}, programID)
	if err != nil {
		return err
	}
	return s.render(ctx, http.StatusOK, "training_content", content)
}

func (s *Server) feedbackView(ctx echo.Context) error {
	form, err := fetch(ctx, s, s.deps.Records.FeedbackForm)
	if err != nil {
		return err
	}
	return s.render(ctx, http.StatusOK, "feedback", form)
}

func (s *Server) submitFeedback(ctx echo.Context) error {
	var data records.NewFeedback
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeedback")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}
	if _, err := mutate(ctx, s, s.deps.Records.SubmitFeedback, data); err != nil {
		return err
	}
	return ctx.Redirect(http.StatusSeeOther, user.TeacherHomePath)
}
