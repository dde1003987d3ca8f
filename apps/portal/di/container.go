// Package di assembles the portal's dependencies in a dig.Container.
package di

import (
	"context"
	"log"
	"os"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoportal "github.com/eduweave/eduweave/apps/portal/echo"
	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/records"
	"github.com/eduweave/eduweave/core/session"
	"github.com/eduweave/eduweave/services/baas"
	emailsvc "github.com/eduweave/eduweave/services/email"
	logsvc "github.com/eduweave/eduweave/services/logger"
	"github.com/eduweave/eduweave/storage/credentials/boltstore"
	"github.com/eduweave/eduweave/storage/credentials/memstore"
	"github.com/eduweave/eduweave/storage/credentials/redisstore"
)

// Credentials is the store persisting the session, and how to release it.
type Credentials struct {
	dig.Out
	Store session.CredentialStore
	Close func() `name:"closeCredentials"`
}

// CloseCredentialsParam requests the release function of the credential store.
type CloseCredentialsParam struct {
	dig.In
	Close func() `name:"closeCredentials"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "PORTAL : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newCredentials(conf *core.Config, logger core.Logger) (Credentials, error) {
	closeWith := func(closeFn func() error) func() {
		return func() {
			if err := closeFn(); err != nil {
				logger.Error("closing credentials store", err)
			}
		}
	}

	switch conf.Credentials.Driver {
	case "memory":
		logger.Warn("using in-memory credentials: the session is lost on exit")
		return Credentials{Store: memstore.New(), Close: func() {}}, nil

	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), conf.Backend.RequestTimeout)
		defer cancel()
		store, err := redisstore.Open(ctx, conf.Credentials)
		if err != nil {
			return Credentials{}, errors.Wrap(err, "connecting to redis")
		}
		return Credentials{Store: store, Close: closeWith(store.Close)}, nil

	default:
		store, err := boltstore.Open(conf.Credentials.Path)
		if err != nil {
			return Credentials{}, errors.Wrap(err, "opening credentials file")
		}
		return Credentials{Store: store, Close: closeWith(store.Close)}, nil
	}
}

func newBackendClient(conf *core.Config) *baas.Client {
	return baas.NewClient(conf.Backend, nil)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

func newServerDeps(
	conf *core.Config,
	logger core.Logger,
	store *session.Store,
	recordSvc *records.Service,
	validate *validator.Validate,
	translator ut.Translator,
) echoportal.ServerDeps {
	return echoportal.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Session:    store,
		Records:    recordSvc,
		Validate:   validate,
		Translator: translator,
	}
}

// New returns the portal's dependency injection dig.Container.
// newConfig is core.NewConfig outside tests.
func New(newConfig func() *core.Config) *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newCredentials))
	must(c.Provide(newBackendClient, dig.As(new(session.IdentityProvider), new(records.DataSource))))
	must(c.Provide(session.NewStore))
	must(c.Provide(newEmailService))
	must(c.Provide(records.NewService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newServerDeps))
	must(c.Provide(echoportal.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

// Describe renders the dependency graph in DOT format.
func Describe(c *dig.Container) (string, error) {
	var b strings.Builder
	if err := dig.Visualize(c, &b); err != nil {
		return "", errors.Wrap(err, "visualizing container")
	}
	return b.String(), nil
}
