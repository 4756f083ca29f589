package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slok/aihq/internal/app/apply"
	"github.com/slok/aihq/internal/app/execute"
	"github.com/slok/aihq/internal/conventions"
	"github.com/slok/aihq/internal/deploy"
	"github.com/slok/aihq/internal/github"
	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/metrics"
	metricsprometheus "github.com/slok/aihq/internal/metrics/prometheus"
	"github.com/slok/aihq/internal/planner"
	"github.com/slok/aihq/internal/planner/openai"
	"github.com/slok/aihq/internal/queue"
	"github.com/slok/aihq/internal/workspace"
)

type WorkerCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	githubToken      string
	githubAPIURL     string
	openAIAPIKey     string
	openAIModel      string
	openAIBaseURL    string
	vercelToken      string
	executionTimeout time.Duration
	maxContextFiles  int
	authorName       string
	authorEmail      string
	metricsAddr      string
}

// NewWorkerCommand returns the worker command.
func NewWorkerCommand(rootCmd *RootCommand, app *kingpin.Application) *WorkerCommand {
	c := &WorkerCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("worker", "Run the task execution worker.")

	c.Cmd.Flag("github-token", "GitHub token used to clone and push the repositories.").Envar("GITHUB_TOKEN").StringVar(&c.githubToken)
	c.Cmd.Flag("github-api-url", "GitHub API URL, for GitHub enterprise.").StringVar(&c.githubAPIURL)
	c.Cmd.Flag("openai-api-key", "OpenAI API key used to generate the execution plans.").Envar("OPENAI_API_KEY").Required().StringVar(&c.openAIAPIKey)
	c.Cmd.Flag("openai-model", "Model used to generate the execution plans.").Envar("OPENAI_MODEL").Default(openai.DefaultModel).StringVar(&c.openAIModel)
	c.Cmd.Flag("openai-base-url", "OpenAI compatible API URL.").Envar("OPENAI_BASE_URL").StringVar(&c.openAIBaseURL)
	c.Cmd.Flag("vercel-token", "Vercel token, without it deployments are skipped.").Envar("VERCEL_TOKEN").StringVar(&c.vercelToken)
	c.Cmd.Flag("execution-timeout", "Maximum duration of a task execution.").Default(execute.DefaultExecutionTimeout.String()).DurationVar(&c.executionTimeout)
	c.Cmd.Flag("max-context-files", "Maximum number of repository files sent to the model.").Default(fmt.Sprint(planner.DefaultMaxContextFiles)).IntVar(&c.maxContextFiles)
	c.Cmd.Flag("git-author-name", "Commit author name.").Default(workspace.DefaultAuthor.Name).StringVar(&c.authorName)
	c.Cmd.Flag("git-author-email", "Commit author email.").Default(workspace.DefaultAuthor.Email).StringVar(&c.authorEmail)
	c.Cmd.Flag("metrics-listen-address", "Address of the Prometheus metrics server, disabled when empty.").StringVar(&c.metricsAddr)

	return c
}

func (c WorkerCommand) Name() string { return c.Cmd.FullCommand() }

func (c WorkerCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Metrics.
	var recorder metrics.Recorder = metrics.Noop
	var metricsHandler http.Handler
	if c.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		rec, err := metricsprometheus.NewRecorder(metricsprometheus.RecorderConfig{Registerer: reg})
		if err != nil {
			return fmt.Errorf("could not create metrics recorder: %w", err)
		}
		recorder = rec
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// External clients.
	gh, err := github.NewAPIClient(github.ClientConfig{
		Token:   c.githubToken,
		BaseURL: c.githubAPIURL,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("could not create GitHub client: %w", err)
	}

	modelClient, err := openai.NewClient(openai.ClientConfig{
		APIKey:  c.openAIAPIKey,
		BaseURL: c.openAIBaseURL,
		Model:   c.openAIModel,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("could not create model client: %w", err)
	}

	var deployer deploy.Deployer
	if c.vercelToken != "" {
		vercel, err := deploy.NewVercelClient(deploy.VercelClientConfig{
			Token:  c.vercelToken,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("could not create Vercel client: %w", err)
		}
		deployer = vercel
	} else {
		logger.Warningf("Vercel token not set, deployments will be skipped")
	}

	// Pipeline services.
	ws, err := workspace.NewGitManager(workspace.GitManagerConfig{
		ReposDir: conventions.WorkspacesPath(c.rootCmd.DataDir),
		Token:    c.githubToken,
		Resolver: gh,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("could not create workspace manager: %w", err)
	}

	gen, err := planner.NewModelGenerator(planner.ModelGeneratorConfig{
		Files:           ws,
		Model:           modelClient,
		MaxContextFiles: c.maxContextFiles,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("could not create plan generator: %w", err)
	}

	applier, err := apply.NewService(apply.ServiceConfig{
		Files:      ws,
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create action applier: %w", err)
	}

	executor, err := execute.NewService(execute.ServiceConfig{
		Repository:       repo,
		Workspace:        ws,
		Planner:          gen,
		Applier:          applier,
		Deployer:         deployer,
		Author:           workspace.Author{Name: c.authorName, Email: c.authorEmail},
		ExecutionTimeout: c.executionTimeout,
		MetricsRecorder:  recorder,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("could not create executor: %w", err)
	}

	// A delivered job must not be redelivered while its execution can still be running.
	q, closeQueue, err := c.rootCmd.newQueue(ctx, repo, queueOptions{Redelivery: c.executionTimeout + 5*time.Minute})
	if err != nil {
		return err
	}
	defer closeQueue()

	worker, err := queue.NewWorker(queue.WorkerConfig{
		Queue:           q,
		Handler:         executor.HandleJob,
		OnExhausted:     executor.HandleExhaustedJob,
		MetricsRecorder: recorder,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("could not create queue worker: %w", err)
	}

	// Only one worker runs, any in progress task was left by a previous crashed one.
	recovered, err := executor.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("could not recover interrupted tasks: %w", err)
	}
	if recovered > 0 {
		logger.Warningf("%d interrupted tasks marked as failed", recovered)
	}

	var g run.Group

	// Queue worker.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return worker.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Metrics server.
	if metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		addHTTPServer(ctx, &g, c.metricsAddr, mux, logger.WithValues(log.Kv{"server": "metrics"}))
	}

	return g.Run()
}
