package session

import "sync"

const maxPendingProgress = 1024

type progress struct {
	ready bool
	n     int
}

// Router delivers coordinator progress to the session that started the
// job. A job can finish before its session claims the hash; the final
// state is kept until then.
type Router struct {
	mu      sync.Mutex
	owners  map[string]*Orchestrator
	pending map[string]progress
	order   []string
}

func NewRouter() *Router {
	return &Router{owners: map[string]*Orchestrator{}, pending: map[string]progress{}}
}

// OnProgress has the gen.ProgressFunc signature.
func (r *Router) OnProgress(hash string, ready bool, framesReady int) {
	final := ready || framesReady == 0
	r.mu.Lock()
	s := r.owners[hash]
	switch {
	case s != nil && final:
		delete(r.owners, hash)
	case s == nil && final:
		r.keep(hash, progress{ready: ready, n: framesReady})
	}
	r.mu.Unlock()
	if s != nil {
		s.OnProgress(hash, ready, framesReady)
	}
}

// keep must be called with mu held.
func (r *Router) keep(hash string, p progress) {
	if _, ok := r.pending[hash]; !ok {
		r.order = append(r.order, hash)
	}
	r.pending[hash] = p
	for len(r.order) > maxPendingProgress {
		delete(r.pending, r.order[0])
		r.order = r.order[1:]
	}
}

// Claim routes future progress for hash to s, replaying a final state that
// arrived first.
func (r *Router) Claim(hash string, s *Orchestrator) {
	r.mu.Lock()
	p, done := r.pending[hash]
	if done {
		delete(r.pending, hash)
	} else {
		r.owners[hash] = s
	}
	r.mu.Unlock()
	if done {
		s.OnProgress(hash, p.ready, p.n)
	}
}

// Release drops every hash owned by s.
func (r *Router) Release(s *Orchestrator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, o := range r.owners {
		if o == s {
			delete(r.owners, h)
		}
	}
}

func (r *Router) Owned() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}
