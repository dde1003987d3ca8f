package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/eduweave/eduweave/apps/backend/echo"
	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/rest"
	"github.com/eduweave/eduweave/core/user"
	logsvc "github.com/eduweave/eduweave/services/logger"
	"github.com/eduweave/eduweave/storage/database"
	inmemdb "github.com/eduweave/eduweave/storage/database/inmem"
	sqlxrepos "github.com/eduweave/eduweave/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "BACKEND : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	accounts, rows, closeDB := setUpStorage(conf, logger)
	defer closeDB()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    user.NewService(accounts),
			Rows:       rows,
			OAuth:      echoapi.NewGoogleProvider(conf),
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Backend.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpStorage opens the configured database engine and returns its repositories.
func setUpStorage(conf *core.Config, logger core.Logger) (user.Repository, rest.Repository, func()) {
	if conf.Database.Engine == "inmem" {
		logger.Warn("using the in-memory database: data is lost on exit")
		db := inmemdb.Open()
		return inmemdb.NewAccountRepository(db), inmemdb.NewRestRepository(db), func() {}
	}

	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), conf.Backend.ShutdownTimeout*6)
	defer cancel()
	if err = database.Ping(ctx, db); err != nil {
		logger.Fatal(fmt.Sprintf("connecting to database: %v", err), err)
	}
	if err = database.Migrate(db.DB); err != nil {
		logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}
	return sqlxrepos.NewAccountRepository(db), sqlxrepos.NewRestRepository(db), closeDB
}
