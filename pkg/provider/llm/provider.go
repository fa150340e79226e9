// Package llm is the chat-completion contract of the intent router: one
// system prompt plus the user's words in, one reply out.
//
// Backends live in sub-packages: openai talks to the OpenAI API (or any
// server that speaks it), anyllm reaches Anthropic, Gemini, Ollama and the
// other any-llm-go backends. Implementations are safe for concurrent use.
package llm

import (
	"context"
	"errors"

	"github.com/MrWong99/portalvoice/pkg/types"
)

var (
	// ErrNoMessages is returned for a request without conversation turns.
	ErrNoMessages = errors.New("llm: request has no messages")

	// ErrNoChoices is returned when the backend answers without a choice.
	ErrNoChoices = errors.New("llm: response has no choices")
)

// Usage is the token accounting of one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is one non-streaming completion.
type CompletionRequest struct {
	// SystemPrompt, when set, is sent as the first message.
	SystemPrompt string

	// Messages is the conversation; the router sends the single user turn.
	Messages []types.Message

	// Temperature is always sent, so zero means deterministic rather than
	// backend default.
	Temperature float64

	// MaxTokens caps the reply. Zero leaves it to the backend.
	MaxTokens int
}

// Conversation returns the messages to send: the system prompt, if any,
// followed by Messages.
func (r CompletionRequest) Conversation() ([]types.Message, error) {
	if len(r.Messages) == 0 {
		return nil, ErrNoMessages
	}
	out := make([]types.Message, 0, len(r.Messages)+1)
	if r.SystemPrompt != "" {
		out = append(out, types.Message{Role: "system", Content: r.SystemPrompt})
	}
	return append(out, r.Messages...), nil
}

// CompletionResponse is the reply of one call.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is a chat-completion backend.
type Provider interface {
	// Complete waits for the full reply to req or for ctx to end.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
