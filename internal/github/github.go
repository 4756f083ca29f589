package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v66/github"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
)

// Repository is a repository of the hosting provider.
type Repository struct {
	Name          string
	FullName      string
	Description   string
	CloneURL      string
	HTMLURL       string
	DefaultBranch string
	Private       bool
}

// Client is the repository hosting client.
type Client interface {
	// GetRepository returns a repository, model.ErrNotFound if missing.
	GetRepository(ctx context.Context, owner, repo string) (*Repository, error)
	// CloneURL returns the HTTPS clone URL of a repository.
	CloneURL(ctx context.Context, owner, repo string) (string, error)
	// ListRepositories returns all the repositories of an organization, if
	// the organization doesn't exist the owner is used as a user.
	ListRepositories(ctx context.Context, owner string) ([]Repository, error)
}

// ClientConfig is the configuration of the GitHub API client.
type ClientConfig struct {
	Token string
	// BaseURL is the API URL, used for GitHub enterprise or tests.
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}

	if c.BaseURL != "" && !strings.HasSuffix(c.BaseURL, "/") {
		c.BaseURL += "/"
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "github.APIClient"})

	return nil
}

// APIClient is a GitHub API implementation of Client.
type APIClient struct {
	client *gogithub.Client
	logger log.Logger
}

// NewAPIClient returns a new GitHub API client.
func NewAPIClient(cfg ClientConfig) (*APIClient, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := gogithub.NewClient(cfg.HTTPClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}

	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client.BaseURL = u
	}

	return &APIClient{
		client: client,
		logger: cfg.Logger,
	}, nil
}

func (c *APIClient) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	r, _, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("repository %s/%s: %w", owner, repo, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get repository %s/%s: %w", owner, repo, err)
	}

	res := toRepository(r)
	return &res, nil
}

func (c *APIClient) CloneURL(ctx context.Context, owner, repo string) (string, error) {
	r, err := c.GetRepository(ctx, owner, repo)
	if err != nil {
		return "", err
	}

	if r.CloneURL == "" {
		return "", fmt.Errorf("repository %s/%s has no clone URL", owner, repo)
	}

	return r.CloneURL, nil
}

func (c *APIClient) ListRepositories(ctx context.Context, owner string) ([]Repository, error) {
	repos, err := c.listByOrg(ctx, owner)
	if err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("could not list organization repositories: %w", err)
		}

		c.logger.Debugf("Organization %s not found, listing as user", owner)
		repos, err = c.listByUser(ctx, owner)
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("owner %s: %w", owner, model.ErrNotFound)
			}
			return nil, fmt.Errorf("could not list user repositories: %w", err)
		}
	}

	res := make([]Repository, 0, len(repos))
	for _, r := range repos {
		res = append(res, toRepository(r))
	}

	return res, nil
}

func (c *APIClient) listByOrg(ctx context.Context, org string) ([]*gogithub.Repository, error) {
	opts := &gogithub.RepositoryListByOrgOptions{
		Type:        "all",
		Sort:        "updated",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}

	var all []*gogithub.Repository
	for {
		repos, resp, err := c.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, repos...)

		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *APIClient) listByUser(ctx context.Context, user string) ([]*gogithub.Repository, error) {
	opts := &gogithub.RepositoryListByUserOptions{
		Type:        "all",
		Sort:        "updated",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}

	var all []*gogithub.Repository
	for {
		repos, resp, err := c.client.Repositories.ListByUser(ctx, user, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, repos...)

		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

func isNotFound(err error) bool {
	var gerr *gogithub.ErrorResponse
	return errors.As(err, &gerr) && gerr.Response != nil && gerr.Response.StatusCode == http.StatusNotFound
}

func toRepository(r *gogithub.Repository) Repository {
	return Repository{
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		CloneURL:      r.GetCloneURL(),
		HTMLURL:       r.GetHTMLURL(),
		DefaultBranch: r.GetDefaultBranch(),
		Private:       r.GetPrivate(),
	}
}

var _ Client = &APIClient{}
