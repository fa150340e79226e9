// Package mock is a scripted llm.Provider for tests.
//
//	p := &mock.Provider{Responses: []string{`{"topics":["portal"]}`, "Silakan buka tautan berikut."}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/portalvoice/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Call is one recorded Complete.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider answers call i with Responses[i]. Past the end of Responses it
// answers with CompleteResponse, which may be nil.
type Provider struct {
	Responses        []string
	CompleteResponse *llm.CompletionResponse

	// CompleteErr fails every call; ErrOnCall fails single calls by index.
	CompleteErr error
	ErrOnCall   map[int]error

	mu    sync.Mutex
	calls []Call
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.calls)
	p.calls = append(p.calls, Call{Ctx: ctx, Req: req})

	if err := p.ErrOnCall[n]; err != nil {
		return nil, err
	}
	switch {
	case p.CompleteErr != nil:
		return nil, p.CompleteErr
	case n < len(p.Responses):
		return &llm.CompletionResponse{Content: p.Responses[n]}, nil
	}
	return p.CompleteResponse, nil
}

// Calls returns a snapshot of the calls so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}
