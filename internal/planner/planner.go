package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
)

// DefaultMaxContextFiles is the number of workspace files sent to the model as project structure.
const DefaultMaxContextFiles = 50

// ModelRequest is a single completion request to a language model.
type ModelRequest struct {
	SystemPrompt string
	UserPrompt   string
}

// ModelClient is a language model that answers a completion request with raw text.
type ModelClient interface {
	Complete(ctx context.Context, req ModelRequest) (string, error)
}

// FileLister lists the files of a workspace.
type FileLister interface {
	ListFiles(path, subdir string) ([]string, error)
}

// Generator generates execution plans.
type Generator interface {
	// Generate returns the execution plan for a prompt on a workspace. Model
	// outputs that are not valid plans are returned as *model.PlanParseError.
	Generate(ctx context.Context, prompt, workspacePath string) (model.Plan, error)
}

// ModelGeneratorConfig is the configuration of the language model plan generator.
type ModelGeneratorConfig struct {
	Files           FileLister
	Model           ModelClient
	MaxContextFiles int
	Logger          log.Logger
}

func (c *ModelGeneratorConfig) defaults() error {
	if c.Files == nil {
		return fmt.Errorf("file lister is required")
	}

	if c.Model == nil {
		return fmt.Errorf("model client is required")
	}

	if c.MaxContextFiles <= 0 {
		c.MaxContextFiles = DefaultMaxContextFiles
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "planner.ModelGenerator"})

	return nil
}

// ModelGenerator is a Generator that asks a language model for the plan.
type ModelGenerator struct {
	files           FileLister
	model           ModelClient
	maxContextFiles int
	logger          log.Logger
}

// NewModelGenerator returns a new language model plan generator.
func NewModelGenerator(cfg ModelGeneratorConfig) (*ModelGenerator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &ModelGenerator{
		files:           cfg.Files,
		model:           cfg.Model,
		maxContextFiles: cfg.MaxContextFiles,
		logger:          cfg.Logger,
	}, nil
}

func (g *ModelGenerator) Generate(ctx context.Context, prompt, workspacePath string) (model.Plan, error) {
	files, err := g.files.ListFiles(workspacePath, "")
	if err != nil {
		return model.Plan{}, fmt.Errorf("could not list workspace files: %w", err)
	}
	if len(files) > g.maxContextFiles {
		files = files[:g.maxContextFiles]
	}

	raw, err := g.model.Complete(ctx, ModelRequest{
		SystemPrompt: SystemPrompt(files),
		UserPrompt:   prompt,
	})
	if err != nil {
		return model.Plan{}, fmt.Errorf("failed to analyze prompt: %w", err)
	}

	plan, err := ParsePlan(raw)
	if err != nil {
		return model.Plan{}, err
	}

	g.logger.WithCtxValues(ctx).Debugf("Plan generated with %d actions", len(plan.Actions))

	return plan, nil
}

const systemPromptTpl = `You are an AI coding assistant. Analyze the user's prompt and create a detailed execution plan.

Project structure:
%s

Create a plan with specific actions (read, write, create, modify files).
File paths must be relative to the project root.
For write, create and modify actions the content is the complete final content of the file.
Return only a JSON object with:
{
  "actions": [
    {
      "type": "read" | "write" | "create" | "modify",
      "file": "path/to/file",
      "content": "file content (for write/create/modify)",
      "description": "what this action does"
    }
  ],
  "summary": "brief summary of what will be done"
}`

// SystemPrompt returns the system prompt that asks for a plan given the project structure.
func SystemPrompt(files []string) string {
	return fmt.Sprintf(systemPromptTpl, strings.Join(files, "\n"))
}

var _ Generator = &ModelGenerator{}
