package vm

import (
	"fmt"
	"sync"

	"github.com/mapprotocol/mapchain/core"
)

// Handler is the function signature every method module must implement.
type Handler func(ctx *Context, data []byte) error

// Registry maps MethodIDs to Handlers. A mutex guards the map, so Register
// and Execute are safe to call from several goroutines; module init()
// functions themselves run one after another during package initialization.
type Registry struct {
	mu       sync.RWMutex
	handlers map[core.MethodID]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[core.MethodID]Handler)}
}

// Register associates id with h. Panics on duplicate registration.
func (r *Registry) Register(id core.MethodID, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[id]; exists {
		panic(fmt.Sprintf("vm: handler already registered for method %s", id))
	}
	r.handlers[id] = h
}

// Execute dispatches data to the handler registered for id.
func (r *Registry) Execute(id core.MethodID, ctx *Context, data []byte) error {
	r.mu.RLock()
	h, ok := r.handlers[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("vm: no handler registered for method %s", id)
	}
	return h(ctx, data)
}

// globalRegistry is the package-level singleton that modules register into.
var globalRegistry = NewRegistry()

// Register adds a handler to the global registry. Module init() functions
// call this to self-register.
func Register(id core.MethodID, h Handler) {
	globalRegistry.Register(id, h)
}
