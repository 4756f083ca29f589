package io

import (
	"context"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/slok/aihq/internal/model"
)

// ProjectRegistryYAMLRepository loads project registries from YAML files.
type ProjectRegistryYAMLRepository struct {
	fs fs.FS
}

// NewProjectRegistryYAMLRepository creates a new YAML project registry repository.
func NewProjectRegistryYAMLRepository(filesystem fs.FS) *ProjectRegistryYAMLRepository {
	return &ProjectRegistryYAMLRepository{fs: filesystem}
}

// ListProjects loads the projects of a YAML registry file and returns them as validated domain models.
//
// IDs and creation timestamps are not part of the registry, they are set when the
// projects are stored.
func (r *ProjectRegistryYAMLRepository) ListProjects(ctx context.Context, path string) ([]model.Project, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading project registry file: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var reg ProjectRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := reg.validate(); err != nil {
		return nil, fmt.Errorf("invalid project registry: %w", err)
	}

	return reg.toModel(), nil
}

// ProjectRegistry represents the YAML structure of a project registry.
type ProjectRegistry struct {
	Projects []ProjectConfig `yaml:"projects"`
}

// ProjectConfig represents the YAML structure of a single project.
type ProjectConfig struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	GitHub      GitHubConfig  `yaml:"github"`
	Vercel      *VercelConfig `yaml:"vercel,omitempty"`
}

// GitHubConfig represents the YAML structure of the project repository.
type GitHubConfig struct {
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch"`
}

// VercelConfig represents the YAML structure of the project deployment.
type VercelConfig struct {
	ProjectID string `yaml:"project_id"`
}

func (r ProjectRegistry) validate() error {
	names := map[string]struct{}{}
	for i, p := range r.Projects {
		if _, ok := names[p.Name]; ok {
			return fmt.Errorf("project %d: duplicated name %q: %w", i, p.Name, model.ErrNotValid)
		}
		names[p.Name] = struct{}{}

		if err := p.toModel().Validate(); err != nil {
			return fmt.Errorf("project %d: %w", i, err)
		}

		if p.Vercel != nil && p.Vercel.ProjectID == "" {
			return fmt.Errorf("project %d: vercel project_id is required when vercel is set: %w", i, model.ErrNotValid)
		}
	}

	return nil
}

func (r ProjectRegistry) toModel() []model.Project {
	projects := make([]model.Project, 0, len(r.Projects))
	for _, p := range r.Projects {
		projects = append(projects, p.toModel())
	}
	return projects
}

func (p ProjectConfig) toModel() model.Project {
	project := model.Project{
		Name:        p.Name,
		Description: p.Description,
		GitHubRepo:  p.GitHub.Repo,
		Branch:      p.GitHub.Branch,
	}
	if project.Branch == "" {
		project.Branch = model.DefaultBranch
	}
	if p.Vercel != nil {
		project.VercelProjectID = p.Vercel.ProjectID
	}

	return project
}
