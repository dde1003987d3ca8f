package echoportal

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eduweave/eduweave/core/authz"
	"github.com/eduweave/eduweave/core/user"
)

const (
	contextUserKey = "user"
	loadingRetry   = "1" // seconds
)

// view is the envelope of every rendered page.
type view struct {
	View  string      `json:"view"`
	User  *user.User  `json:"user,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// guard applies the route authorizer to the current session before the handler runs.
func (s *Server) guard(req authz.Requirement) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			snap := s.deps.Session.Snapshot()
			decision := authz.Authorize(snap.Loading, snap.User, req)
			s.metrics.decisions.WithLabelValues(decision.Outcome.String()).Inc()

			switch decision.Outcome {
			case authz.OutcomeLoading:
				ctx.Response().Header().Set("Retry-After", loadingRetry)
				return ctx.JSON(http.StatusServiceUnavailable, view{View: "loading"})
			case authz.OutcomeRedirect:
				return ctx.Redirect(http.StatusFound, decision.Location)
			}
			if snap.User != nil {
				ctx.Set(contextUserKey, *snap.User)
			}
			return next(ctx)
		}
	}
}

// contextUser is the user the guard let through. Public views may have none.
func contextUser(ctx echo.Context) (user.User, bool) {
	usr, ok := ctx.Get(contextUserKey).(user.User)
	return usr, ok
}

func (s *Server) render(ctx echo.Context, code int, name string, data interface{}) error {
	v := view{View: name, Data: data}
	if usr, ok := contextUser(ctx); ok {
		v.User = &usr
	}
	return ctx.JSON(code, v)
}
