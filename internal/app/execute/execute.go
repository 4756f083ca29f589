package execute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/slok/aihq/internal/deploy"
	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/metrics"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/planner"
	"github.com/slok/aihq/internal/queue"
	"github.com/slok/aihq/internal/storage"
	"github.com/slok/aihq/internal/workspace"
)

// ActionApplier applies a single plan action to a workspace.
type ActionApplier interface {
	Apply(ctx context.Context, action model.Action, workspacePath, taskID string) error
}

// DefaultExecutionTimeout is the wall-clock budget of a single task execution.
const DefaultExecutionTimeout = 30 * time.Minute

// ServiceConfig is the configuration for the task execution service.
type ServiceConfig struct {
	Repository storage.Repository
	Workspace  workspace.Manager
	Planner    planner.Generator
	Applier    ActionApplier
	// Deployer is optional, without it the deployments of the projects are skipped.
	Deployer         deploy.Deployer
	Author           workspace.Author
	ExecutionTimeout time.Duration
	// FailRetryBackoff is the initial wait between the attempts of recording a failed task.
	FailRetryBackoff time.Duration
	MetricsRecorder  metrics.Recorder
	Logger           log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Workspace == nil {
		return fmt.Errorf("workspace manager is required")
	}

	if c.Planner == nil {
		return fmt.Errorf("planner is required")
	}

	if c.Applier == nil {
		return fmt.Errorf("action applier is required")
	}

	if c.Author == (workspace.Author{}) {
		c.Author = workspace.DefaultAuthor
	}

	if c.ExecutionTimeout == 0 {
		c.ExecutionTimeout = DefaultExecutionTimeout
	}

	if c.FailRetryBackoff == 0 {
		c.FailRetryBackoff = 200 * time.Millisecond
	}

	if c.MetricsRecorder == nil {
		c.MetricsRecorder = metrics.Noop
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "execute.Service"})

	return nil
}

// Service executes tasks: PENDING -> IN_PROGRESS -> COMPLETED|FAILED.
type Service struct {
	repo             storage.Repository
	ws               workspace.Manager
	planner          planner.Generator
	applier          ActionApplier
	deployer         deploy.Deployer
	author           workspace.Author
	executionTimeout time.Duration
	failRetryBackoff time.Duration
	metricsRec       metrics.Recorder
	logger           log.Logger
}

// NewService creates a new task execution service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:             cfg.Repository,
		ws:               cfg.Workspace,
		planner:          cfg.Planner,
		applier:          cfg.Applier,
		deployer:         cfg.Deployer,
		author:           cfg.Author,
		executionTimeout: cfg.ExecutionTimeout,
		failRetryBackoff: cfg.FailRetryBackoff,
		metricsRec:       cfg.MetricsRecorder,
		logger:           cfg.Logger,
	}, nil
}

// Execute runs the task pipeline.
//
// Errors returned before the task leaves PENDING are retryable queue delivery
// errors. Once the task has started the execution always ends on a terminal
// status, so the returned errors are marked as permanent.
func (s *Service) Execute(ctx context.Context, taskID string) error {
	ctx = s.logger.SetValuesOnCtx(ctx, log.Kv{"task-id": taskID})
	logger := s.logger.WithCtxValues(ctx)

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return queue.Permanent(err)
		}
		return fmt.Errorf("could not get task: %w", err)
	}

	if task.Status != model.TaskStatusPending {
		return queue.Permanent(fmt.Errorf("task %s is %s: %w", taskID, task.Status, model.ErrTaskNotPending))
	}

	err = s.repo.UpdateTaskStatus(ctx, taskID, storage.TaskStatusUpdate{
		From: []model.TaskStatus{model.TaskStatusPending},
		To:   model.TaskStatusInProgress,
		Log:  &storage.LogEntry{Kind: model.LogKindInfo, Message: "Starting execution: " + task.Prompt},
	})
	if err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return queue.Permanent(fmt.Errorf("task %s: %w", taskID, model.ErrTaskNotPending))
		}
		return fmt.Errorf("could not start task: %w", err)
	}

	logger.Infof("Task execution started")
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, s.executionTimeout)
	defer cancel()

	err = s.run(runCtx, *task)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("execution timed out after %s: %w", s.executionTimeout, err)
	}
	if err != nil {
		logger.Errorf("Task execution failed: %s", err)
		if ferr := s.fail(context.WithoutCancel(ctx), taskID, model.TaskStatusInProgress, err.Error()); ferr != nil {
			logger.Errorf("Could not mark task as failed: %s", ferr)
		}
		s.metricsRec.ObserveTaskExecution(ctx, model.TaskStatusFailed, time.Since(start))
		return queue.Permanent(err)
	}

	s.metricsRec.ObserveTaskExecution(ctx, model.TaskStatusCompleted, time.Since(start))
	logger.Infof("Task execution completed")

	return nil
}

func (s *Service) run(ctx context.Context, task model.Task) error {
	project, err := s.repo.GetProject(ctx, task.ProjectID)
	if err != nil {
		return fmt.Errorf("could not get project: %w", err)
	}

	owner, repo, err := project.OwnerRepo()
	if err != nil {
		return fmt.Errorf("project must have a GitHub repository: %w", err)
	}
	branch := project.RepoBranch()

	// Workspace.
	if err := s.log(ctx, task.ID, model.LogKindInfo, "Cloning repository: "+project.GitHubRepo); err != nil {
		return err
	}
	path, err := s.ws.Acquire(ctx, owner, repo, branch)
	if err != nil {
		return err
	}
	if err := s.log(ctx, task.ID, model.LogKindSuccess, "Repository cloned successfully"); err != nil {
		return err
	}

	// Plan.
	if err := s.log(ctx, task.ID, model.LogKindInfo, "Analyzing prompt and generating execution plan..."); err != nil {
		return err
	}
	plan, err := s.planner.Generate(ctx, task.Prompt, path)
	if err != nil {
		return err
	}
	// A partially valid plan is never applied.
	if err := plan.Validate(); err != nil {
		return &model.PlanParseError{Reason: "invalid plan", Err: err}
	}
	if err := s.log(ctx, task.ID, model.LogKindInfo, "Plan generated: "+plan.Summary); err != nil {
		return err
	}

	result := model.TaskResult{Summary: plan.Summary, Actions: len(plan.Actions)}

	if len(plan.Actions) == 0 {
		if err := s.log(ctx, task.ID, model.LogKindWarning, "Plan has no actions, nothing to commit"); err != nil {
			return err
		}
		return s.complete(ctx, task.ID, result)
	}

	// Actions, in order.
	for _, a := range plan.Actions {
		if err := s.applier.Apply(ctx, a, path, task.ID); err != nil {
			return err
		}
	}

	// Commit and push.
	if err := s.log(ctx, task.ID, model.LogKindInfo, "Committing changes..."); err != nil {
		return err
	}
	err = s.ws.Commit(ctx, path, "AI: "+task.Prompt, s.author)
	if errors.Is(err, model.ErrNothingToCommit) {
		if err := s.log(ctx, task.ID, model.LogKindInfo, "No changes to commit"); err != nil {
			return err
		}
		return s.complete(ctx, task.ID, result)
	}
	if err != nil {
		return err
	}
	if err := s.log(ctx, task.ID, model.LogKindSuccess, "Changes committed successfully"); err != nil {
		return err
	}

	if err := s.log(ctx, task.ID, model.LogKindInfo, "Pushing changes to GitHub..."); err != nil {
		return err
	}
	if err := s.ws.Push(ctx, path, branch); err != nil {
		return err
	}
	if err := s.log(ctx, task.ID, model.LogKindSuccess, "Changes pushed successfully"); err != nil {
		return err
	}

	if err := s.deploy(ctx, task.ID, *project, branch); err != nil {
		return err
	}

	return s.complete(ctx, task.ID, result)
}

// deploy triggers the project deployment, deployment failures are only warnings.
func (s *Service) deploy(ctx context.Context, taskID string, project model.Project, branch string) error {
	if project.VercelProjectID == "" {
		return nil
	}

	if s.deployer == nil {
		return s.log(ctx, taskID, model.LogKindWarning, "Deployment skipped: no deployment client configured")
	}

	if err := s.log(ctx, taskID, model.LogKindInfo, "Triggering Vercel deployment..."); err != nil {
		return err
	}

	d, err := s.deployer.Trigger(ctx, project.VercelProjectID, branch)
	if err != nil {
		s.logger.WithCtxValues(ctx).Warningf("Deployment failed: %s", err)
		return s.log(ctx, taskID, model.LogKindWarning, "Deployment failed: "+err.Error())
	}

	return s.log(ctx, taskID, model.LogKindSuccess, "Deployment triggered: "+d.URL)
}

func (s *Service) complete(ctx context.Context, taskID string, result model.TaskResult) error {
	err := s.repo.UpdateTaskStatus(ctx, taskID, storage.TaskStatusUpdate{
		From:   []model.TaskStatus{model.TaskStatusInProgress},
		To:     model.TaskStatusCompleted,
		Result: &result,
		Log:    &storage.LogEntry{Kind: model.LogKindSuccess, Message: "Task completed successfully!"},
	})
	if err != nil {
		return fmt.Errorf("could not complete task: %w", err)
	}

	return nil
}

// fail transitions the task to FAILED retrying store errors a few times.
func (s *Service) fail(ctx context.Context, taskID string, from model.TaskStatus, msg string, extraFrom ...model.TaskStatus) error {
	u := storage.TaskStatusUpdate{
		From:  append([]model.TaskStatus{from}, extraFrom...),
		To:    model.TaskStatusFailed,
		Error: msg,
		Log:   &storage.LogEntry{Kind: model.LogKindError, Message: "Task failed: " + msg},
	}

	op := func() error {
		err := s.repo.UpdateTaskStatus(ctx, taskID, u)
		if errors.Is(err, model.ErrInvalidTransition) || errors.Is(err, model.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.failRetryBackoff),
		backoff.WithMaxElapsedTime(0),
	), 3)

	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// Abandon fails a task whose queue job exhausted its attempts. Tasks already
// terminal are left untouched. It must not be called while the task is being
// executed.
func (s *Service) Abandon(ctx context.Context, taskID string, cause error) error {
	logger := s.logger.WithValues(log.Kv{"task-id": taskID})

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("could not get task: %w", err)
	}

	if task.Status.Terminal() {
		return nil
	}

	msg := fmt.Sprintf("execution attempts exhausted: %s", cause)
	err = s.fail(ctx, taskID, model.TaskStatusPending, msg, model.TaskStatusInProgress)
	if err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("could not fail task: %w", err)
	}

	logger.Warningf("Task abandoned: %s", msg)
	s.metricsRec.ObserveTaskExecution(ctx, model.TaskStatusFailed, 0)

	return nil
}

// RecoverInterrupted fails the tasks left IN_PROGRESS by a worker that stopped
// in the middle of an execution. Only safe when a single worker is running.
func (s *Service) RecoverInterrupted(ctx context.Context) (int, error) {
	status := model.TaskStatusInProgress
	tasks, err := s.repo.ListTasks(ctx, model.TaskFilter{Status: &status})
	if err != nil {
		return 0, fmt.Errorf("could not list in progress tasks: %w", err)
	}

	recovered := 0
	for _, t := range tasks {
		err := s.fail(ctx, t.ID, model.TaskStatusInProgress, "execution interrupted")
		if err != nil {
			if errors.Is(err, model.ErrInvalidTransition) {
				continue
			}
			return recovered, fmt.Errorf("could not fail task %s: %w", t.ID, err)
		}
		recovered++
		s.logger.Warningf("Interrupted task %s marked as failed", t.ID)
	}

	return recovered, nil
}

// HandleJob is the queue job handler that executes the job task.
func (s *Service) HandleJob(ctx context.Context, job model.Job) error {
	return s.Execute(ctx, job.TaskID)
}

// HandleExhaustedJob is the queue exhausted job hook that abandons the job task.
func (s *Service) HandleExhaustedJob(ctx context.Context, job model.Job, cause error) error {
	return s.Abandon(ctx, job.TaskID, cause)
}

func (s *Service) log(ctx context.Context, taskID string, kind model.LogKind, msg string) error {
	if err := s.repo.AppendLog(ctx, taskID, storage.LogEntry{Kind: kind, Message: msg}); err != nil {
		return fmt.Errorf("could not append task log: %w", err)
	}
	return nil
}

var (
	_ queue.Handler       = (&Service{}).HandleJob
	_ queue.ExhaustedHook = (&Service{}).HandleExhaustedJob
)
