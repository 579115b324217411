package ollama

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/resilience"
)

const generateOperation = "ollama.generate"

// Client submits prompts to a local Ollama server. Ollama models read text
// only, so documents must arrive with their text layer already extracted.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, model string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

func (c *Client) Name() string {
	return "ollama"
}

func (c *Client) Submit(ctx context.Context, prompt string, content ports.AIContent) (string, error) {
	text := strings.TrimSpace(content.Text)
	if text == "" && len(content.Data) > 0 {
		return "", domain.WrapError(domain.ErrExtractionUnreliable, generateOperation, errors.New("document has no text layer and ollama cannot read binary content"))
	}

	reqBody := map[string]any{
		"model":  c.model,
		"prompt": composePrompt(prompt, text),
		"stream": false,
		"options": map[string]any{
			"temperature": 0,
		},
	}

	var answer string
	call := func(callCtx context.Context) error {
		var response struct {
			Response string `json:"response"`
		}
		if err := c.postJSON(callCtx, "/api/generate", reqBody, &response, "generate"); err != nil {
			return err
		}
		answer = strings.TrimSpace(response.Response)
		return nil
	}

	var err error
	if c.executor == nil {
		err = call(ctx)
	} else {
		err = c.executor.Execute(ctx, generateOperation, call, classifyOllamaError)
	}
	if err != nil {
		return "", wrapProviderError(err)
	}
	return answer, nil
}

func composePrompt(prompt, text string) string {
	if text == "" {
		return prompt
	}
	return prompt + "\n\nINPUT:\n" + text
}
