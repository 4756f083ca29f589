package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/aihq/internal/app/stream"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/printer"
)

// TaskStatusCommand shows a task with its logs.
type TaskStatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID       string
	follow       bool
	pollInterval time.Duration
	format       string
}

// NewTaskStatusCommand returns the task status command.
func NewTaskStatusCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskStatusCommand {
	c := &TaskStatusCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("status", "Get the status and logs of a task.")
	c.Cmd.Arg("task-id", "Task ID.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("follow", "Print the task logs as they happen until the task finishes.").Short('f').BoolVar(&c.follow)
	c.Cmd.Flag("poll-interval", "Interval of the task checks when following.").Default(stream.DefaultPollInterval.String()).DurationVar(&c.pollInterval)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c TaskStatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskStatusCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	p := printer.New(c.format, c.rootCmd.Stdout)

	if !c.follow {
		task, err := repo.GetTask(ctx, c.taskID)
		if err != nil {
			return fmt.Errorf("could not get task: %w", err)
		}
		logs, err := repo.ListLogs(ctx, c.taskID, 0)
		if err != nil {
			return fmt.Errorf("could not list task logs: %w", err)
		}

		return p.PrintTask(*task, logs)
	}

	svc, err := stream.NewService(stream.ServiceConfig{
		Repository:   repo,
		PollInterval: c.pollInterval,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	var last stream.Frame
	err = svc.Stream(ctx, c.taskID, func(f stream.Frame) error {
		switch f.Type {
		case stream.FrameTypeUpdate:
			last = f
			return p.PrintTaskLogs(frameLogs(c.taskID, f.Logs))
		case stream.FrameTypeError:
			logger.Warningf("%s", f.Message)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not follow task: %w", err)
	}

	if ctx.Err() != nil {
		return nil
	}

	msg := fmt.Sprintf("Task %s %s", c.taskID, last.Status)
	switch {
	case last.Error != "":
		msg += ": " + last.Error
	case last.Result != nil:
		msg += fmt.Sprintf(": %s (%d actions)", last.Result.Summary, last.Result.Actions)
	}

	return p.PrintMessage(msg)
}

func frameLogs(taskID string, logs []stream.Log) []model.TaskLog {
	res := make([]model.TaskLog, 0, len(logs))
	for _, l := range logs {
		res = append(res, model.TaskLog{
			Sequence:  l.Sequence,
			TaskID:    taskID,
			Message:   l.Message,
			Kind:      l.Kind,
			Timestamp: l.Timestamp,
		})
	}
	return res
}
