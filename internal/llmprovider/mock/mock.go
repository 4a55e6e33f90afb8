// Package mock is a ports.LLMProvider binding for tests and local
// development: a scriptable stand-in that avoids a live model call.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentmeshio/meshcore/internal/ports"
)

// Provider is a mock LLMProvider. If GenerateFunc is nil, Generate echoes
// the prompt back wrapped in an acknowledgement.
type Provider struct {
	GenerateFunc func(ctx context.Context, prompt, model string, params ports.GenerateParams) (string, error)

	mu        sync.Mutex
	callCount int
	lastCall  string
}

// New constructs a Provider with the default echo behaviour.
func New() *Provider {
	return &Provider{}
}

// NewWithFunc constructs a Provider backed by fn.
func NewWithFunc(fn func(ctx context.Context, prompt, model string, params ports.GenerateParams) (string, error)) *Provider {
	return &Provider{GenerateFunc: fn}
}

// CallCount returns the number of Generate invocations observed so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCount
}

// LastPrompt returns the most recent prompt passed to Generate.
func (p *Provider) LastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCall
}

func (p *Provider) Generate(ctx context.Context, prompt, model string, params ports.GenerateParams) (string, error) {
	p.mu.Lock()
	p.callCount++
	p.lastCall = prompt
	p.mu.Unlock()

	if p.GenerateFunc != nil {
		return p.GenerateFunc(ctx, prompt, model, params)
	}
	return fmt.Sprintf("acknowledged: %s", prompt), nil
}

func (p *Provider) GenerateBatch(ctx context.Context, prompts []string, model string, params ports.GenerateParams) ([]string, []error) {
	texts := make([]string, len(prompts))
	errs := make([]error, len(prompts))
	for i, prompt := range prompts {
		texts[i], errs[i] = p.Generate(ctx, prompt, model, params)
	}
	return texts, errs
}
