package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/aihq/internal/app/submit"
	"github.com/slok/aihq/internal/printer"
)

// TaskExecuteCommand enqueues the execution of a pending task.
type TaskExecuteCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
	format string
}

// NewTaskExecuteCommand returns the task execute command.
func NewTaskExecuteCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskExecuteCommand {
	c := &TaskExecuteCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("execute", "Enqueue the execution of a pending task.")
	c.Cmd.Arg("task-id", "Task ID.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c TaskExecuteCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskExecuteCommand) Run(ctx context.Context) error {
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

	svc, err := submit.NewService(submit.ServiceConfig{
		Repository: repo,
		Queue:      q,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	jobID, err := svc.Execute(ctx, c.taskID)
	if err != nil {
		return fmt.Errorf("could not execute task: %w", err)
	}

	return printer.New(c.format, c.rootCmd.Stdout).PrintMessage(fmt.Sprintf("Task %s added to queue (job %s)", c.taskID, jobID))
}
