package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/printer"
)

// ProjectAddCommand registers a single project.
type ProjectAddCommand struct {
	Cmd        *kingpin.CmdClause
	rootCmd    *RootCommand
	projectCmd *ProjectCommand

	name          string
	repo          string
	branch        string
	description   string
	vercelProject string
	format        string
}

// NewProjectAddCommand returns the project add command.
func NewProjectAddCommand(rootCmd *RootCommand, projectCmd *ProjectCommand) *ProjectAddCommand {
	c := &ProjectAddCommand{rootCmd: rootCmd, projectCmd: projectCmd}

	c.Cmd = projectCmd.Cmd.Command("add", "Register a project.")
	c.Cmd.Flag("name", "Project name.").Required().StringVar(&c.name)
	c.Cmd.Flag("repo", "GitHub repository in owner/repo format.").Required().StringVar(&c.repo)
	c.Cmd.Flag("branch", "Branch the tasks commit to.").Default(model.DefaultBranch).StringVar(&c.branch)
	c.Cmd.Flag("description", "Project description.").StringVar(&c.description)
	c.Cmd.Flag("vercel-project", "Vercel project ID, enables the deployments.").StringVar(&c.vercelProject)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ProjectAddCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProjectAddCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := newProjectService(c.projectCmd, repo, nil, false, c.rootCmd.Logger)
	if err != nil {
		return err
	}

	p, err := svc.Register(ctx, model.Project{
		Name:            c.name,
		Description:     c.description,
		GitHubRepo:      c.repo,
		Branch:          c.branch,
		VercelProjectID: c.vercelProject,
	})
	if err != nil {
		return fmt.Errorf("could not register project: %w", err)
	}

	return printer.New(c.format, c.rootCmd.Stdout).PrintProjectList([]model.Project{*p})
}
