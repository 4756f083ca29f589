package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/aihq/internal/printer"
)

// ProjectSyncCommand registers the GitHub repositories of an owner.
type ProjectSyncCommand struct {
	Cmd        *kingpin.CmdClause
	rootCmd    *RootCommand
	projectCmd *ProjectCommand

	owner  string
	format string
}

// NewProjectSyncCommand returns the project sync command.
func NewProjectSyncCommand(rootCmd *RootCommand, projectCmd *ProjectCommand) *ProjectSyncCommand {
	c := &ProjectSyncCommand{rootCmd: rootCmd, projectCmd: projectCmd}

	c.Cmd = projectCmd.Cmd.Command("sync", "Register the GitHub repositories of an organization or user.")
	c.Cmd.Flag("owner", "GitHub organization or user.").Short('o').Required().StringVar(&c.owner)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ProjectSyncCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProjectSyncCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := newProjectService(c.projectCmd, repo, nil, true, logger)
	if err != nil {
		return err
	}

	res, err := svc.Sync(ctx, c.owner)
	if err != nil {
		return fmt.Errorf("could not sync projects: %w", err)
	}
	logger.Infof("%d projects registered, %d skipped", len(res.Created), len(res.Skipped))

	return printer.New(c.format, c.rootCmd.Stdout).PrintProjectList(res.Created)
}
