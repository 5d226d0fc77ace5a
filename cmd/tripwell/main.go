package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/tripwell/tripwell/cmd/tripwell/cli"
	"github.com/tripwell/tripwell/internal/app"
	"github.com/tripwell/tripwell/jobs"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "roles":
			os.Exit(runRoles(args[1:]))
		case "jobs":
			os.Exit(runJobs(args[1:]))
		case "serve":
		default:
			_, _ = fmt.Fprintf(os.Stderr, "usage: tripwell [serve | roles [--json] [role] | jobs ...]\n")
			os.Exit(2)
		}
	}
	serve()
}

func runRoles(args []string) int {
	fs := flag.NewFlagSet("roles", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return cli.RolesCommand(cli.RolesOptions{Role: fs.Arg(0), JSONOutput: *jsonOutput})
}

func runJobs(args []string) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	jobsCLI := cli.NewJobsCLI(redisOpts(cfg))
	defer func() { _ = jobsCLI.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return jobsCLI.JobsCommand(ctx, cli.JobsOptions{Args: args})
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

func serve() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	core, err := app.NewCore(ctx, cfg, logger)
	if err != nil {
		logger.Error("init core", slog.Any("error", err))
		os.Exit(1)
	}
	defer core.Close()

	var jobHandler *jobs.Handler
	if cfg.AuditStore != app.StoreMemory {
		inspector := asynq.NewInspector(redisOpts(cfg))
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      app.NewCoreRouter(core, jobHandler, nil),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("audit_store", cfg.AuditStore))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.AuditStore == app.StoreMemory {
		// Shared stores are swept by the worker schedule.
		g.Go(func() error {
			return core.Retention.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
