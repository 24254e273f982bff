package task

import "sync"

// Registry tracks which call targets have a live stream open. The view
// layer consults it to decide whether a target's history should render
// from the stream or from the replay log.
type Registry struct {
	mu   sync.Mutex
	live map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]bool)}
}

// Acquire marks a live stream open for the target. Returns false if one
// is already open; a second concurrent stream per target is not allowed.
func (r *Registry) Acquire(target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.live[target] {
		return false
	}
	r.live[target] = true
	return true
}

// Release marks the target's live stream closed.
func (r *Registry) Release(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, target)
}

// IsLive reports whether the target has an open live stream.
func (r *Registry) IsLive(target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[target]
}
