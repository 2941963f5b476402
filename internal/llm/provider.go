// Package llm talks to chat-completion APIs used by the tutor.
package llm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrNoDefaultProvider = errors.New("no default provider configured")
)

// Provider completes a chat request
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request is a provider-neutral completion request. Empty Model uses the
// provider's configured model.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	StopSeqs    []string
}

// Role of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn
type Message struct {
	Role    Role
	Content string
}

// Response is the provider's reply
type Response struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage counts tokens
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Registry holds the configured providers and picks the default one
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	preferred string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// SetDefault prefers the named provider. It must already be registered.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	r.preferred = name
	return nil
}

// Default returns the preferred provider, or the alphabetically first one
// when none was set
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers[r.preferred]; ok {
		return p, nil
	}
	names := r.names()
	if len(names) == 0 {
		return nil, ErrNoDefaultProvider
	}
	return r.providers[names[0]], nil
}

// List returns the registered names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
