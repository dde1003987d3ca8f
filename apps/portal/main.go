package main

import (
	"context"
	"fmt"
	"log"

	"github.com/eduweave/eduweave/apps/portal/di"
	echoportal "github.com/eduweave/eduweave/apps/portal/echo"
	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/session"
)

func main() {
	c := di.New(core.NewConfig)

	must(c.Invoke(func(
		conf *core.Config,
		logger core.Logger,
		closeParam di.CloseCredentialsParam,
		store *session.Store,
		server *echoportal.Server,
	) {
		// =========================================================================
		// Initialize App

		logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
		defer closeParam.Close()
		defer logger.Info("Application stopped")

		if conf.Debug {
			if graph, err := di.Describe(c); err == nil {
				logger.Debug("dependency graph\n" + graph)
			}
		}

		// the session restores in the background; guarded views answer "loading" meanwhile
		restoreCtx, cancelRestore := context.WithTimeout(context.Background(), conf.Backend.RequestTimeout)
		defer cancelRestore()
		go store.Restore(restoreCtx)

		// =========================================================================
		// Start Portal

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
			ctx, cancel := context.WithTimeout(context.Background(), conf.Portal.ShutdownTimeout)
			defer cancel()

			// asking listener to shutdown and shed load
			if err := server.Shutdown(ctx); err != nil {
				logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
