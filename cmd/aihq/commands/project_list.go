package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/aihq/internal/printer"
)

// ProjectListCommand lists the registered projects.
type ProjectListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewProjectListCommand returns the project list command.
func NewProjectListCommand(rootCmd *RootCommand, projectCmd *ProjectCommand) *ProjectListCommand {
	c := &ProjectListCommand{rootCmd: rootCmd}

	c.Cmd = projectCmd.Cmd.Command("list", "List the registered projects.")
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ProjectListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProjectListCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	projects, err := repo.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("could not list projects: %w", err)
	}

	if err := printer.New(c.format, c.rootCmd.Stdout).PrintProjectList(projects); err != nil {
		return fmt.Errorf("could not print projects: %w", err)
	}

	return nil
}
