// Package session compiles the field schema for an attached target and
// keeps one compiled session per target.
package session

import (
	"fmt"
	"sort"
	"sync"
)

// Handle identifies an attached target.
type Handle struct {
	Kind string // "pid", "core" or "image"
	PID  int
	Path string
}

func (h Handle) String() string {
	if h.Kind == "pid" {
		return fmt.Sprintf("pid:%d", h.PID)
	}
	return h.Kind + ":" + h.Path
}

type entry struct {
	once sync.Once
	s    *Session
	err  error
}

// Registry runs schema compilation at most once per handle. The zero value
// is ready to use.
type Registry struct {
	mu      sync.Mutex
	entries map[Handle]*entry
}

// Attach returns the session for h, calling init only if none exists. A
// failed init is not remembered; the next Attach tries again.
func (r *Registry) Attach(h Handle, init func() (*Session, error)) (*Session, error) {
	r.mu.Lock()
	if r.entries == nil {
		r.entries = make(map[Handle]*entry)
	}
	e, ok := r.entries[h]
	if !ok {
		e = &entry{}
		r.entries[h] = e
	}
	r.mu.Unlock()

	e.once.Do(func() { e.s, e.err = init() })
	if e.err != nil {
		r.mu.Lock()
		if r.entries[h] == e {
			delete(r.entries, h)
		}
		r.mu.Unlock()
		return nil, e.err
	}
	return e.s, nil
}

// Detach forgets h so the next Attach compiles again. It reports whether
// h was attached.
func (r *Registry) Detach(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[h]
	delete(r.entries, h)
	return ok
}

// Handles returns the attached handles in string order.
func (r *Registry) Handles() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Handle, 0, len(r.entries))
	for h := range r.entries {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
