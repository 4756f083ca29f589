package model

import (
	"fmt"
	"strings"
	"time"
)

// DefaultBranch is the branch used when a project doesn't set one.
const DefaultBranch = "main"

// Project is a registered code project backed by a GitHub repository.
type Project struct {
	ID              string
	Name            string
	Description     string
	GitHubRepo      string // owner/repo.
	Branch          string
	VercelProjectID string
	CreatedAt       time.Time
}

// Validate validates the project.
func (p Project) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required: %w", ErrNotValid)
	}

	if _, _, err := SplitRepo(p.GitHubRepo); err != nil {
		return err
	}

	return nil
}

// OwnerRepo returns the owner and repository name of the project repository.
func (p Project) OwnerRepo() (owner, repo string, err error) {
	return SplitRepo(p.GitHubRepo)
}

// RepoBranch returns the branch the project works on.
func (p Project) RepoBranch() string {
	if p.Branch == "" {
		return DefaultBranch
	}
	return p.Branch
}

// SplitRepo splits an `owner/repo` repository reference.
func SplitRepo(fullName string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository %q must be in owner/repo format: %w", fullName, ErrNotValid)
	}

	return owner, repo, nil
}
