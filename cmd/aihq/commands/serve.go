package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slok/aihq/internal/app/stream"
	"github.com/slok/aihq/internal/app/submit"
	"github.com/slok/aihq/internal/http/api"
	"github.com/slok/aihq/internal/log"
)

type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddr   string
	pollInterval time.Duration
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Run the HTTP API server.")
	c.Cmd.Flag("listen-address", "Address of the HTTP API server.").Default(":8080").StringVar(&c.listenAddr)
	c.Cmd.Flag("status-poll-interval", "Interval of the task status stream checks.").Default(stream.DefaultPollInterval.String()).DurationVar(&c.pollInterval)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	q, closeQueue, err := c.rootCmd.newQueue(ctx, repo, queueOptions{})
	if err != nil {
		return err
	}
	defer closeQueue()

	submitter, err := submit.NewService(submit.ServiceConfig{
		Repository: repo,
		Queue:      q,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create submit service: %w", err)
	}

	streamer, err := stream.NewService(stream.ServiceConfig{
		Repository:   repo,
		PollInterval: c.pollInterval,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("could not create stream service: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler, err := api.NewHandler(api.HandlerConfig{
		Repository:     repo,
		Submitter:      submitter,
		Streamer:       streamer,
		Queue:          q,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("could not create API handler: %w", err)
	}

	var g run.Group
	addHTTPServer(ctx, &g, c.listenAddr, handler, logger.WithValues(log.Kv{"server": "api"}))

	return g.Run()
}

// addHTTPServer adds an HTTP server to the run group that stops when the context ends.
func addHTTPServer(ctx context.Context, g *run.Group, addr string, h http.Handler, logger log.Logger) {
	ctx, cancel := context.WithCancel(ctx)

	// Status streams are long lived, no write timeout. Requests end with the
	// server context so the streams don't block the shutdown.
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g.Add(
		func() error {
			logger.Infof("HTTP server listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server failed: %w", err)
			}
			return nil
		},
		func(_ error) {
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warningf("Could not shutdown HTTP server gracefully: %s", err)
			}
		},
	)

	// Stop the server when the command context ends.
	g.Add(
		func() error {
			<-ctx.Done()
			return nil
		},
		func(_ error) {
			cancel()
		},
	)
}
