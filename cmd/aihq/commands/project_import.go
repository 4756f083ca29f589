package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/aihq/internal/printer"
	storageio "github.com/slok/aihq/internal/storage/io"
)

// ProjectImportCommand registers the projects of a YAML registry file.
type ProjectImportCommand struct {
	Cmd        *kingpin.CmdClause
	rootCmd    *RootCommand
	projectCmd *ProjectCommand

	file   string
	format string
}

// NewProjectImportCommand returns the project import command.
func NewProjectImportCommand(rootCmd *RootCommand, projectCmd *ProjectCommand) *ProjectImportCommand {
	c := &ProjectImportCommand{rootCmd: rootCmd, projectCmd: projectCmd}

	c.Cmd = projectCmd.Cmd.Command("import", "Register the projects of a YAML registry file.")
	c.Cmd.Arg("file", "Project registry file.").Required().StringVar(&c.file)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ProjectImportCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProjectImportCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	absPath, err := filepath.Abs(c.file)
	if err != nil {
		return fmt.Errorf("could not resolve registry file path: %w", err)
	}

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Registry reads are rooted at "/" so the path must be relative to it.
	registry := storageio.NewProjectRegistryYAMLRepository(os.DirFS("/"))
	svc, err := newProjectService(c.projectCmd, repo, registry, false, logger)
	if err != nil {
		return err
	}

	res, err := svc.Import(ctx, absPath[1:])
	if err != nil {
		return fmt.Errorf("could not import projects: %w", err)
	}

	for _, name := range res.Skipped {
		logger.Infof("Project %s already registered, skipped", name)
	}

	return printer.New(c.format, c.rootCmd.Stdout).PrintProjectList(res.Created)
}
