// ABOUTME: Registry mapping agent type tags to strategies
// ABOUTME: Resolution is total; unknown or empty tags fall back to Echo

package agent

import (
	"sort"
	"strings"
	"sync"

	"github.com/2389/parley/internal/llm"
)

// Registry resolves strategy tags.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	fallback   Strategy
}

// NewRegistry creates a Registry that resolves unknown tags to fallback.
func NewRegistry(fallback Strategy) *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		fallback:   fallback,
	}
}

// Register binds tag (case-insensitive) to s.
func (r *Registry) Register(tag string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[normalizeTag(tag)] = s
}

// Resolve returns the strategy for tag, or the fallback.
func (r *Registry) Resolve(tag string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.strategies[normalizeTag(tag)]; ok {
		return s
	}
	return r.fallback
}

// Tags lists registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.strategies))
	for t := range r.strategies {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// NewDefaultRegistry wires the built-in strategies. completer may be nil, in
// which case remote agents echo.
func NewDefaultRegistry(echo *Echo, completer llm.Completer) *Registry {
	remote := NewRemote(completer, echo)
	r := NewRegistry(echo)
	r.Register(TypeEcho, echo)
	r.Register(TypeRPS, NewRPS())
	r.Register(TypeLLM, remote)
	r.Register("openai", remote)
	r.Register("gemini", remote)
	return r
}
