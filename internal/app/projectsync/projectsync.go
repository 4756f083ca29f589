package projectsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/aihq/internal/github"
	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/storage"
)

// RegistryRepository loads projects from a project registry source.
type RegistryRepository interface {
	ListProjects(ctx context.Context, path string) ([]model.Project, error)
}

// ServiceConfig is the configuration of the project registration service.
type ServiceConfig struct {
	Repository storage.ProjectRepository
	// Registry is required to import registry files.
	Registry RegistryRepository
	// GitHub is required to sync repositories.
	GitHub github.Client
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "projectsync.Service"})

	return nil
}

// Service registers projects manually, from registry files or from GitHub.
type Service struct {
	repo     storage.ProjectRepository
	registry RegistryRepository
	gh       github.Client
	logger   log.Logger
}

// NewService returns a new project registration service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:     cfg.Repository,
		registry: cfg.Registry,
		gh:       cfg.GitHub,
		logger:   cfg.Logger,
	}, nil
}

// Result is the outcome of a bulk registration.
type Result struct {
	Created []model.Project
	// Skipped are the names of the projects already registered.
	Skipped []string
}

// Register stores a new project setting its ID and creation time.
func (s *Service) Register(ctx context.Context, p model.Project) (*model.Project, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}

	p.ID = ulid.Make().String()
	p.CreatedAt = time.Now().UTC()
	p.Branch = p.RepoBranch()

	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("could not create project: %w", err)
	}

	s.logger.Infof("Project %s registered (%s)", p.Name, p.GitHubRepo)

	return &p, nil
}

// Import registers the projects of a registry file, projects already registered
// with the same name are skipped.
func (s *Service) Import(ctx context.Context, path string) (*Result, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("project registry is not configured")
	}

	projects, err := s.registry.ListProjects(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("could not load project registry: %w", err)
	}

	return s.registerMissing(ctx, projects)
}

// Sync registers the GitHub repositories of an organization (or user) that are
// not registered yet.
func (s *Service) Sync(ctx context.Context, owner string) (*Result, error) {
	if s.gh == nil {
		return nil, fmt.Errorf("github client is not configured")
	}
	if owner == "" {
		return nil, fmt.Errorf("owner is required: %w", model.ErrNotValid)
	}

	repos, err := s.gh.ListRepositories(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("could not list repositories: %w", err)
	}

	existing, err := s.repo.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list projects: %w", err)
	}
	registered := map[string]bool{}
	for _, p := range existing {
		registered[strings.ToLower(p.GitHubRepo)] = true
	}

	projects := []model.Project{}
	for _, r := range repos {
		if registered[strings.ToLower(r.FullName)] {
			continue
		}
		projects = append(projects, model.Project{
			Name:        r.Name,
			Description: r.Description,
			GitHubRepo:  r.FullName,
			Branch:      r.DefaultBranch,
		})
	}

	res, err := s.registerMissing(ctx, projects)
	if err != nil {
		return nil, err
	}
	s.logger.Infof("Synced %d repositories of %s, %d projects created", len(repos), owner, len(res.Created))

	return res, nil
}

func (s *Service) registerMissing(ctx context.Context, projects []model.Project) (*Result, error) {
	res := &Result{}
	for _, p := range projects {
		_, err := s.repo.GetProjectByName(ctx, p.Name)
		if err == nil {
			s.logger.Debugf("Project %s already registered, skipping", p.Name)
			res.Skipped = append(res.Skipped, p.Name)
			continue
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("could not get project %s: %w", p.Name, err)
		}

		created, err := s.Register(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("could not register project %s: %w", p.Name, err)
		}
		res.Created = append(res.Created, *created)
	}

	return res, nil
}
