package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/resilience"
)

const generateOperation = "gemini.generate"

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client sends prompts to Gemini. Documents travel as inline bytes, so PDFs
// without a text layer are still readable.
type Client struct {
	client   *genai.Client
	model    string
	executor *resilience.Executor
}

func New(ctx context.Context, cfg Config, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{client: client, model: cfg.Model, executor: executor}, nil
}

func (c *Client) Name() string {
	return "gemini"
}

func (c *Client) Submit(ctx context.Context, prompt string, content ports.AIContent) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	switch {
	case len(content.Data) > 0 && content.MIMEType != "":
		parts = append(parts, genai.NewPartFromBytes(content.Data, content.MIMEType))
	case strings.TrimSpace(content.Text) != "":
		parts = append(parts, genai.NewPartFromText("INPUT:\n"+content.Text))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)}

	var answer string
	call := func(callCtx context.Context) error {
		resp, err := c.client.Models.GenerateContent(callCtx, c.model, contents, config)
		if err != nil {
			return err
		}
		answer = strings.TrimSpace(resp.Text())
		return nil
	}

	var err error
	if c.executor == nil {
		err = call(ctx)
	} else {
		err = c.executor.Execute(ctx, generateOperation, call, classifyGeminiError)
	}
	if err != nil {
		return "", wrapProviderError(err)
	}
	return answer, nil
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= 500:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}
	return resilience.ClassifyTransport(err)
}

func wrapProviderError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrProviderTimeout, generateOperation, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.WrapError(domain.ErrProviderTimeout, generateOperation, err)
	}
	return domain.WrapError(domain.ErrProviderUnavailable, generateOperation, err)
}
