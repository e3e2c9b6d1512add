package provider

import (
	"context"
	"errors"

	"github.com/sells-group/visibility-cli/pkg/anthropic"
	"github.com/sells-group/visibility-cli/pkg/openai"
	"github.com/sells-group/visibility-cli/pkg/perplexity"
)

// AnthropicCompleter adapts the Anthropic messages API.
type AnthropicCompleter struct {
	Client anthropic.Client
}

// Complete implements Completer.
func (c AnthropicCompleter) Complete(ctx context.Context, req Completion) (*Answer, error) {
	resp, err := c.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     req.Model,
		MaxTokens: int64(req.MaxTokens),
		System:    req.System,
		Messages:  []anthropic.Message{{Role: "user", Content: req.User}},
	})
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, err
	}
	return &Answer{
		Text:         resp.Text,
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// OpenAICompleter adapts OpenAI and OpenAI-compatible chat endpoints.
type OpenAICompleter struct {
	Client openai.Client
}

// Complete implements Completer.
func (c OpenAICompleter) Complete(ctx context.Context, req Completion) (*Answer, error) {
	resp, err := c.Client.ChatCompletion(ctx, openai.ChatRequest{
		Model:     req.Model,
		System:    req.System,
		User:      req.User,
		MaxTokens: int64(req.MaxTokens),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, err
	}
	return &Answer{
		Text:         resp.Text,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

// PerplexityCompleter adapts the Perplexity chat completions API.
type PerplexityCompleter struct {
	Client perplexity.Client
}

// Complete implements Completer.
func (c PerplexityCompleter) Complete(ctx context.Context, req Completion) (*Answer, error) {
	maxTokens := req.MaxTokens
	resp, err := c.Client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: req.Model,
		Messages: []perplexity.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		MaxTokens: &maxTokens,
	})
	if err != nil {
		var apiErr *perplexity.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, err
	}
	return &Answer{
		Text:         resp.Text(),
		Model:        resp.Model,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}, nil
}
