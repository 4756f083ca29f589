package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
)

// Deployer triggers deployments of projects.
type Deployer interface {
	// Trigger starts a deployment of the git ref of a provider project. Failures
	// are returned as *model.DeploymentError.
	Trigger(ctx context.Context, projectID, ref string) (*model.Deployment, error)
}

const defaultVercelBaseURL = "https://api.vercel.com"

// VercelClientConfig is the configuration of the Vercel client.
type VercelClientConfig struct {
	Token string
	// BaseURL is the API URL, used on tests.
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     log.Logger
}

func (c *VercelClientConfig) defaults() error {
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}

	if c.BaseURL == "" {
		c.BaseURL = defaultVercelBaseURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")

	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "deploy.VercelClient"})

	return nil
}

// VercelClient is a Deployer that uses the Vercel REST API.
type VercelClient struct {
	token   string
	baseURL string
	client  *http.Client
	logger  log.Logger
}

// NewVercelClient returns a new Vercel deployments client.
func NewVercelClient(cfg VercelClientConfig) (*VercelClient, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &VercelClient{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
	}, nil
}

type gitSource struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
}

type createDeploymentRequest struct {
	ProjectID string    `json:"projectId"`
	GitSource gitSource `json:"gitSource"`
}

type deploymentResponse struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	ReadyState string `json:"readyState"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *VercelClient) Trigger(ctx context.Context, projectID, ref string) (*model.Deployment, error) {
	if projectID == "" {
		return nil, &model.DeploymentError{Err: fmt.Errorf("project id is required: %w", model.ErrNotValid)}
	}
	if ref == "" {
		ref = model.DefaultBranch
	}

	body, err := json.Marshal(createDeploymentRequest{
		ProjectID: projectID,
		GitSource: gitSource{Type: "github", Ref: ref},
	})
	if err != nil {
		return nil, &model.DeploymentError{Err: fmt.Errorf("could not marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v13/deployments", bytes.NewReader(body))
	if err != nil {
		return nil, &model.DeploymentError{Err: fmt.Errorf("could not create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &model.DeploymentError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.DeploymentError{Err: fmt.Errorf("could not read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.DeploymentError{Err: fmt.Errorf("vercel API returned %d: %s", resp.StatusCode, apiErrorMessage(data))}
	}

	var d deploymentResponse
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, &model.DeploymentError{Err: fmt.Errorf("could not unmarshal response: %w", err)}
	}

	state := d.ReadyState
	if state == "" {
		state = model.DeploymentStateBuilding
	}

	c.logger.Infof("Deployment %s triggered for project %s (%s)", d.ID, projectID, ref)

	return &model.Deployment{
		ID:    d.ID,
		URL:   d.URL,
		State: state,
	}, nil
}

func apiErrorMessage(data []byte) string {
	var e errorResponse
	if err := json.Unmarshal(data, &e); err == nil {
		switch {
		case e.Error.Message != "":
			return e.Error.Message
		case e.Message != "":
			return e.Message
		}
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return "failed to trigger deployment"
	}
	return msg
}

var _ Deployer = &VercelClient{}
