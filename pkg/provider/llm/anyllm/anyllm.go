// Package anyllm is an llm.Provider on github.com/mozilla-ai/any-llm-go,
// which puts Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, OpenAI and
// local llama.cpp or llamafile servers behind one completion API.
//
//	p, err := anyllm.New("ollama", "llama3.1", anyllmlib.WithBaseURL("http://gpu-box:11434"))
package anyllm

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/portalvoice/pkg/provider/llm"
)

type constructor func(...anyllmlib.Option) (anyllmlib.Provider, error)

func wrap[P anyllmlib.Provider](fn func(...anyllmlib.Option) (P, error)) constructor {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return fn(opts...) }
}

var backends = map[string]constructor{
	"anthropic": wrap(anthropic.New),
	"deepseek":  wrap(deepseek.New),
	"gemini":    wrap(gemini.New),
	"groq":      wrap(groq.New),
	"llamacpp":  wrap(llamacpp.New),
	"llamafile": wrap(llamafile.New),
	"mistral":   wrap(mistral.New),
	"ollama":    wrap(ollama.New),
	"openai":    wrap(anyllmoai.New),
}

// Backends returns the accepted backend names, sorted.
func Backends() []string {
	return slices.Sorted(maps.Keys(backends))
}

var _ llm.Provider = (*Provider)(nil)

// Provider completes chats with one model of one backend.
type Provider struct {
	name    string
	backend anyllmlib.Provider
	model   string
}

// New opens backend (one of [Backends], case-insensitive) for model. opts
// are any-llm-go options; without WithAPIKey the backend reads its usual
// environment variable such as ANTHROPIC_API_KEY.
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	name := strings.ToLower(backend)
	ctor, ok := backends[name]
	switch {
	case name == "":
		return nil, fmt.Errorf("anyllm: backend is required")
	case !ok:
		return nil, fmt.Errorf("anyllm: unknown backend %q (have %s)", backend, strings.Join(Backends(), ", "))
	case model == "":
		return nil, fmt.Errorf("anyllm: %s: model is required", name)
	}
	b, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", name, err)
	}
	return &Provider{name: name, backend: b, model: model}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", p.name, err)
	}
	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s: %w", p.name, llm.ErrNoChoices)
	}
	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	return out, nil
}

func (p *Provider) params(req llm.CompletionRequest) (anyllmlib.CompletionParams, error) {
	conv, err := req.Conversation()
	if err != nil {
		return anyllmlib.CompletionParams{}, err
	}
	msgs := make([]anyllmlib.Message, len(conv))
	for i, m := range conv {
		msgs[i] = anyllmlib.Message{Role: m.Role, Content: m.Content}
	}
	params := anyllmlib.CompletionParams{
		Model:       p.model,
		Messages:    msgs,
		Temperature: &req.Temperature,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params, nil
}
