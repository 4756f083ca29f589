package commands

import (
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/aihq/internal/app/projectsync"
	"github.com/slok/aihq/internal/github"
	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/storage"
)

// ProjectCommand is the parent command for project management subcommands.
type ProjectCommand struct {
	Cmd *kingpin.CmdClause

	githubToken  string
	githubAPIURL string
}

// NewProjectCommand returns the project parent command.
func NewProjectCommand(app *kingpin.Application) *ProjectCommand {
	c := &ProjectCommand{}

	c.Cmd = app.Command("project", "Manage projects.")
	c.Cmd.Flag("github-token", "GitHub token used to list the repositories.").Envar("GITHUB_TOKEN").StringVar(&c.githubToken)
	c.Cmd.Flag("github-api-url", "GitHub API URL, for GitHub enterprise.").StringVar(&c.githubAPIURL)

	return c
}

// newProjectService creates the project registration service, the GitHub client
// is only set up when withGitHub is true.
func newProjectService(projectCmd *ProjectCommand, repo storage.ProjectRepository, registry projectsync.RegistryRepository, withGitHub bool, logger log.Logger) (*projectsync.Service, error) {
	cfg := projectsync.ServiceConfig{
		Repository: repo,
		Registry:   registry,
		Logger:     logger,
	}

	if withGitHub {
		gh, err := github.NewAPIClient(github.ClientConfig{
			Token:   projectCmd.githubToken,
			BaseURL: projectCmd.githubAPIURL,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create GitHub client: %w", err)
		}
		cfg.GitHub = gh
	}

	svc, err := projectsync.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create project service: %w", err)
	}

	return svc, nil
}
