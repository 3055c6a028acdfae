package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kebairia/invbackup/internal/operations"
	"github.com/kebairia/invbackup/internal/scheduler"
	"github.com/kebairia/invbackup/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the backup API and run scheduled backups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	engine := newEngine()

	sched, err := scheduler.New(cfg.Schedule, engine, cfg.Database.Path, log)
	if err != nil {
		return err
	}

	// serve only opens database files to verify them, so a restore needs
	// nothing from this process. The inventory application must reopen it.
	api := server.New(engine, cfg.Database.Path,
		server.WithLogger(log),
		server.WithRequestTimeout(cfg.Server.RequestTimeout),
		server.OnRestore(func(res operations.Result) {
			log.Info("database restored, the inventory application must reopen it",
				"database", cfg.Database.Path,
				"displaced", res.DisplacedPath,
			)
		}),
	)

	srv := &http.Server{Addr: cfg.Server.Address, Handler: api.Handler()}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", "address", cfg.Server.Address, "database", cfg.Database.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	sched.Start()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		<-sched.Stop().Done()
		return err
	}

	log.Info("server stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown incomplete", "error", err)
	}
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("scheduled backup still running at shutdown")
	}
	return nil
}
