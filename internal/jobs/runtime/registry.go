package runtime

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Handler executes one job type. Run reports terminal state through ctx; a returned
// error without a terminal call marks the job failed and retryable.
type Handler interface {
	Type() string
	Run(ctx *Context) error
}

var jobTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds handlers in order and stops at the first invalid or duplicate job type.
func (r *Registry) Register(hs ...Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range hs {
		if h == nil {
			return fmt.Errorf("register job handler: nil handler")
		}
		t := h.Type()
		if !jobTypePattern.MatchString(t) {
			return fmt.Errorf("register job handler: invalid job_type %q", t)
		}
		if _, exists := r.handlers[t]; exists {
			return fmt.Errorf("register job handler: job_type %s already registered", t)
		}
		r.handlers[t] = h
	}
	return nil
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types lists registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
