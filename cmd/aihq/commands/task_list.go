package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/printer"
)

// TaskListCommand lists the tasks, newest first.
type TaskListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	project      string
	statusFilter string
	limit        int
	format       string
}

// NewTaskListCommand returns the task list command.
func NewTaskListCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskListCommand {
	c := &TaskListCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("list", "List tasks, newest first.")
	c.Cmd.Flag("project", "Filter by project name or ID.").StringVar(&c.project)
	c.Cmd.Flag("status", "Filter by status (pending, in_progress, completed, failed).").StringVar(&c.statusFilter)
	c.Cmd.Flag("limit", "Maximum number of tasks.").Default("50").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c TaskListCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskListCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	filter := model.TaskFilter{Limit: c.limit}
	if c.statusFilter != "" {
		status, err := model.ParseTaskStatus(c.statusFilter)
		if err != nil {
			return fmt.Errorf("invalid status filter: %w", err)
		}
		filter.Status = &status
	}
	if c.project != "" {
		project, err := resolveProject(ctx, repo, c.project)
		if err != nil {
			return fmt.Errorf("could not get project: %w", err)
		}
		filter.ProjectID = project.ID
	}

	tasks, err := repo.ListTasks(ctx, filter)
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	if err := printer.New(c.format, c.rootCmd.Stdout).PrintTaskList(tasks); err != nil {
		return fmt.Errorf("could not print tasks: %w", err)
	}

	return nil
}
