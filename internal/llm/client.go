package llm

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/stellarlinkco/reverie/internal/config"
)

// Request describes one generation call. Classifier and filter callers use
// low temperature and small budgets; the chat reply uses the full budget.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	JSONObject  bool
}

// Client is the text-generation collaborator shared by the intent
// classifier, the relevance filter, the weight scorer, and proactive
// content generation.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type openAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewClient(cfg config.ProviderConfig) Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = newHTTPClient(cfg.TimeoutSeconds)

	return &openAIClient{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

func newHTTPClient(timeoutSeconds int) *http.Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = config.DefaultTimeoutSeconds
	}
	return &http.Client{
		Timeout: time.Duration(timeoutSeconds) * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

func (c *openAIClient) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	completion := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONObject {
		completion.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, completion)
	if err != nil {
		return "", fmt.Errorf("chat completion (model %s): %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion (model %s): empty choices", model)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("chat completion (model %s): empty content", model)
	}
	return content, nil
}
