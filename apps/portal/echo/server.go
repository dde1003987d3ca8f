package echoportal

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/authz"
	"github.com/eduweave/eduweave/core/records"
	"github.com/eduweave/eduweave/core/session"
	"github.com/eduweave/eduweave/core/user"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Session    *session.Store
		Records    *records.Service
		Validate   *validator.Validate
		Translator ut.Translator
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		metrics  *metrics
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		metrics:  newMetrics(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Portal.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.deps.Session, s.metrics.backendFailure, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/metrics", echo.WrapHandler(s.metrics.handler()))

	// public views
	public := s.guard(authz.Public())
	s.app.GET(user.LoginPath, s.loginView, public)
	s.app.POST(user.LoginPath, s.login, public)
	s.app.GET(user.LoginPath+"/google", s.loginWithGoogle, public)
	s.app.GET(callbackPath, s.authCallback, public)
	s.app.POST("/logout", s.logout, public)

	s.app.GET("/dashboard", s.dashboardRedirect, s.guard(authz.Authenticated()))

	s.registerTeacherViews(s.guard(authz.RequireRole(user.RoleTeacher)))
	s.registerDistrictViews(s.guard(authz.RequireRole(user.RoleDistrictOfficial)))

	s.app.GET("/", redirectTo(user.LoginPath))
	s.app.Any("/*", redirectTo("/"))
}

// Start listens until the server is shut down; unexpected errors are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Portal.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signalled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func redirectTo(location string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.Redirect(http.StatusFound, location)
	}
}
