// Package openai is an llm.Provider on the OpenAI Chat Completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/portalvoice/pkg/provider/llm"
	"github.com/MrWong99/portalvoice/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// Provider completes chats with one model.
type Provider struct {
	client oai.Client
	model  shared.ChatModel
}

// Option adds an SDK request option.
type Option func(*[]option.RequestOption)

// WithBaseURL points the client at another OpenAI-compatible server such as
// vLLM or LM Studio.
func WithBaseURL(url string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithBaseURL(url)) }
}

// WithOrganization sends the OpenAI organization header.
func WithOrganization(org string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithOrganization(org)) }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithHTTPClient(c)) }
}

// WithRetries lets the SDK retry failed calls n times. The default is no
// retry: a failed call surfaces at once so failover can take over.
func WithRetries(n int) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithMaxRetries(n)) }
}

// New returns a Provider for model.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: api key is required")
	case model == "":
		return nil, errors.New("openai: model is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: shared.ChatModel(model)}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %w", llm.ErrNoChoices)
	}
	u := resp.Usage
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(u.PromptTokens),
			CompletionTokens: int(u.CompletionTokens),
			TotalTokens:      int(u.TotalTokens),
		},
	}, nil
}

func (p *Provider) params(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	conv, err := req.Conversation()
	if err != nil {
		return oai.ChatCompletionNewParams{}, err
	}
	msgs := make([]oai.ChatCompletionMessageParamUnion, len(conv))
	for i, m := range conv {
		if msgs[i], err = message(m); err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
	}
	params := oai.ChatCompletionNewParams{
		Model:       p.model,
		Messages:    msgs,
		Temperature: param.NewOpt(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

func message(m types.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content), nil
	case "user":
		return oai.UserMessage(m.Content), nil
	case "assistant":
		return oai.AssistantMessage(m.Content), nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported role %q", m.Role)
}
