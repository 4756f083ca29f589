package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/aihq/internal/app/submit"
	"github.com/slok/aihq/internal/printer"
)

// TaskCreateCommand creates a task from a prompt.
type TaskCreateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	project string
	prompt  string
	execute bool
	format  string
}

// NewTaskCreateCommand returns the task create command.
func NewTaskCreateCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskCreateCommand {
	c := &TaskCreateCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("create", "Create a task from a prompt.")
	c.Cmd.Arg("project", "Project name or ID.").Required().StringVar(&c.project)
	c.Cmd.Arg("prompt", "What the agent has to do on the project repository.").Required().StringVar(&c.prompt)
	c.Cmd.Flag("execute", "Enqueue the task execution after creating it.").BoolVar(&c.execute)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c TaskCreateCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskCreateCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	project, err := resolveProject(ctx, repo, c.project)
	if err != nil {
		return fmt.Errorf("could not get project: %w", err)
	}

	q, closeQueue, err := c.rootCmd.newQueue(ctx, repo, queueOptions{})
	if err != nil {
		return err
	}
	defer closeQueue()

	svc, err := submit.NewService(submit.ServiceConfig{
		Repository: repo,
		Queue:      q,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	task, err := svc.Create(ctx, submit.CreateRequest{ProjectID: project.ID, Prompt: c.prompt})
	if err != nil {
		return fmt.Errorf("could not create task: %w", err)
	}

	p := printer.New(c.format, c.rootCmd.Stdout)
	if !c.execute {
		return p.PrintTask(*task, nil)
	}

	jobID, err := svc.Execute(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("could not execute task %s: %w", task.ID, err)
	}
	logger.Infof("Task %s enqueued with job %s", task.ID, jobID)

	return p.PrintTask(*task, nil)
}
