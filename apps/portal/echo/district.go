package echoportal

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core/records"
	"github.com/eduweave/eduweave/core/user"
)

const trainingPublishedPath = "/diet/training-published"

type publishInput struct {
	clusterID string
	program   records.NewTrainingProgram
}

func (s *Server) registerDistrictViews(guard echo.MiddlewareFunc) {
	s.app.GET(user.DistrictHomePath, s.districtDashboard, guard)
	s.app.GET("/diet/cohort/:cohortId", s.cohort, guard)
	s.app.GET("/diet/recommendations/:cohortId", s.recommendations, guard)
	s.app.GET("/diet/design-training/:cohortId", s.designTrainingView, guard)
	s.app.POST("/diet/design-training/:cohortId", s.publishTraining, guard)
	s.app.GET(trainingPublishedPath, s.trainingPublished, guard)
	s.app.GET("/diet/training-insights", s.trainingInsights, guard)
}

func (s *Server) districtDashboard(ctx echo.Context) error {
	dash, err := fetch(ctx, s, s.deps.Records.DistrictDashboard)
	if err != nil {
		return err
	}
	return s.render(ctx, http.StatusOK, "district_dashboard", dash)
}

// byCohort adapts a records helper taking the cohort id from the route.
func byCohort[T any](ctx echo.Context, fn func(c context.Context, token string, usr user.User, clusterID string) (T, error)) func(context.Context, string, user.User) (T, error) {
	clusterID := ctx.Param("cohortId")
	return func(c context.Context, token string, usr user.User) (T, error) {
		return fn(c, token, usr, clusterID)
	}
}

func (s *Server) cohort(ctx echo.Context) error {
	cohort, err := fetch(ctx, s, byCohort(ctx, s.deps.Records.Cohort), ctx.Param("cohortId"))
	if err != nil {
		return err
	}
	return s.render(ctx, http.StatusOK, "cohort", cohort)
}

func (s *Server) recommendations(ctx echo.Context) error {
	recs, err := fetch(ctx, s, byCohort(ctx, s.deps.Records.Recommendations), ctx.Param("cohortId"))
	if err != nil {
		return err
	}
	return s.render(ctx, http.StatusOK, "recommendations", recs)
}

func (s *Server) designTrainingView(ctx echo.Context) error {
	cohort, err := fetch(ctx, s, byCohort(ctx, s.deps.Records.DesignTraining), ctx.Param("cohortId"))
	if err != nil {
		return err
	}
	return s.render(ctx, http.StatusOK, "design_training", cohort)
}

func (s *Server) publishTraining(ctx echo.Context) error {
	var data records.NewTrainingProgram
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTrainingProgram")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	in := publishInput{clusterID: ctx.Param("cohortId"), program: data}
	_, err := mutate(ctx, s, func(c context.Context, token string, usr user.User, in publishInput) (records.TrainingProgram, error) {
		return s.deps.Records.PublishTraining(c, token, usr, in.clusterID, in.program)
	}, in)
	if err != nil {
		return err
	}
	return ctx.Redirect(http.StatusSeeOther, trainingPublishedPath)
}

func (s *Server) trainingPublished(ctx echo.Context) error {
	programs, err := fetch(ctx, s, s.deps.Records.PublishedTrainings)
	if err != nil {
		return err
	}
	return s.render(ctx, http.StatusOK, "training_published", echo.Map{"programs": programs})
}

func (s *Server) trainingInsights(ctx echo.Context) error {
	insights, err := fetch(ctx, s, s.deps.Records.FeedbackInsights)
	if err != nil {
		return err
	}
	return s.render(ctx, http.StatusOK, "training_insights", insights)
}
