package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/planner"
)

const (
	// DefaultModel is the chat model used when none is set.
	DefaultModel       = goopenai.GPT4TurboPreview
	DefaultTemperature = float32(0.3)
)

// ClientConfig is the configuration of the OpenAI model client.
type ClientConfig struct {
	APIKey string
	// BaseURL allows using OpenAI API compatible providers.
	BaseURL     string
	Model       string
	Temperature float32
	HTTPClient  *http.Client
	Timeout     time.Duration
	Logger      log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}

	if c.Model == "" {
		c.Model = DefaultModel
	}

	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}

	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}

	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "openai.Client"})

	return nil
}

// Client is a planner.ModelClient backed by the OpenAI chat completions API.
type Client struct {
	client      *goopenai.Client
	model       string
	temperature float32
	logger      log.Logger
}

// NewClient returns a new OpenAI model client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	oaCfg := goopenai.DefaultConfig(cfg.APIKey)
	oaCfg.HTTPClient = cfg.HTTPClient
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:      goopenai.NewClientWithConfig(oaCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}, nil
}

// Complete asks for a JSON object completion.
func (c *Client) Complete(ctx context.Context, req planner.ModelRequest) (string, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: c.temperature,
	})
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai API error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}

	c.logger.WithCtxValues(ctx).WithValues(log.Kv{
		"model":             resp.Model,
		"prompt-tokens":     resp.Usage.PromptTokens,
		"completion-tokens": resp.Usage.CompletionTokens,
		"duration":          time.Since(start).String(),
	}).Debugf("Model completion received")

	return resp.Choices[0].Message.Content, nil
}

var _ planner.ModelClient = &Client{}
