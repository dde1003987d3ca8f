package echoportal

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core/user"
)

const (
	callbackPath = "/auth/callback"

	methodPassword = "password"
	methodGoogle   = "google"
)

type (
	loginForm struct {
		Email    string `json:"email" form:"email" validate:"required,email"`
		Password string `json:"password" form:"password" validate:"required"`
	}

	loginData struct {
		Federated bool   `json:"federated"`
		Error     string `json:"error,omitempty"`
	}
)

func (s *Server) loginView(ctx echo.Context) error {
	return s.render(ctx, http.StatusOK, "login", loginData{
		Federated: true,
		Error:     ctx.QueryParam("error"),
	})
}

func (s *Server) login(ctx echo.Context) error {
	var form loginForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding login form")
	}
	form.Email = strings.TrimSpace(form.Email)
	if err := s.deps.Validate.Struct(form); err != nil {
		return err
	}

	usr, err := s.deps.Session.SignIn(ctx.Request().Context(), form.Email, form.Password)
	s.metrics.signIn(methodPassword, err)
	if err != nil {
		return err
	}
	return ctx.Redirect(http.StatusSeeOther, usr.Role.HomePath())
}

func (s *Server) loginWithGoogle(ctx echo.Context) error {
	consentURL, err := s.deps.Session.SignInWithFederatedProvider(ctx.Request().Context(), s.deps.Conf.Portal.BaseURL+callbackPath)
	if err != nil {
		s.metrics.signIn(methodGoogle, err)
		return err
	}
	return ctx.Redirect(http.StatusFound, consentURL)
}

// authCallback completes a federated sign-in and lands on the role's home.
func (s *Server) authCallback(ctx echo.Context) error {
	if reason := ctx.QueryParam("error"); reason != "" {
		s.metrics.signIn(methodGoogle, errors.New(reason))
		return ctx.Redirect(http.StatusFound, user.LoginPath+"?error="+url.QueryEscape(reason))
	}
	token := ctx.QueryParam("access_token")
	if token == "" {
		return ctx.Redirect(http.StatusFound, user.LoginPath)
	}

	usr, err := s.deps.Session.CompleteFederatedSignIn(ctx.Request().Context(), token)
	s.metrics.signIn(methodGoogle, err)
	if err != nil {
		return ctx.Redirect(http.StatusFound, user.LoginPath+"?error=authentication_failed")
	}
	return ctx.Redirect(http.StatusFound, usr.Role.HomePath())
}

func (s *Server) logout(ctx echo.Context) error {
	s.deps.Session.SignOut(ctx.Request().Context())
	return ctx.Redirect(http.StatusSeeOther, user.LoginPath)
}

func (s *Server) dashboardRedirect(ctx echo.Context) error {
	usr, _ := contextUser(ctx)
	return ctx.Redirect(http.StatusFound, usr.Role.HomePath())
}
