package asr

import (
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Settings is an immutable snapshot of everything needed to build the
// recognizers. It is passed by value; a settings change is a new snapshot.
type Settings struct {
	Groq   CloudConfig
	OpenAI CloudConfig
	Local  LocalConfig
}

// Factory builds a recognizer for one backend from a snapshot.
type Factory func(b Backend, s Settings) (Recognizer, error)

// DefaultFactory builds the real backends, sharing one HTTP client.
func DefaultFactory(client *http.Client) Factory {
	return func(b Backend, s Settings) (Recognizer, error) {
		switch b {
		case Groq:
			return NewCloud(Groq, s.Groq, client)
		case OpenAI:
			return NewCloud(OpenAI, s.OpenAI, client)
		case Local:
			return NewLocal(s.Local)
		default:
			return nil, unavailable(b, fmt.Sprintf("unknown backend %q", b), nil)
		}
	}
}

type entry struct {
	rec     Recognizer
	refs    int
	retired bool
}

// Registry lazily builds and caches one recognizer per backend.
//
// Invalidate swaps in an empty cache instead of mutating handles in place.
// Handles borrowed before the swap stay usable and are closed once their
// last borrower releases them.
type Registry struct {
	factory Factory

	mu         sync.Mutex
	settings   Settings
	generation uint64
	cache      map[Backend]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry(settings Settings, factory Factory) *Registry {
	return &Registry{
		factory:  factory,
		settings: settings,
		cache:    map[Backend]*entry{},
	}
}

// Get returns the cached recognizer for b, building it on first use. The
// caller must invoke release when its call on the recognizer has returned.
func (r *Registry) Get(b Backend) (Recognizer, func(), error) {
	r.mu.Lock()
	if e, ok := r.cache[b]; ok {
		e.refs++
		r.mu.Unlock()
		return e.rec, r.releaser(e), nil
	}
	snapshot := r.settings
	gen := r.generation
	r.mu.Unlock()

	// Construction may load a model; keep it outside the lock.
	rec, err := r.factory(b, snapshot)
	if err != nil {
		if _, ok := KindOf(err); !ok {
			err = unavailable(b, "construct", err)
		}
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.cache[b]; ok && r.generation == gen {
		// Lost a construction race; use the winner.
		closeRecognizer(rec)
		e.refs++
		return e.rec, r.releaser(e), nil
	}
	e := &entry{rec: rec, refs: 1}
	if r.generation != gen {
		// Settings changed mid-build: serve this call, never cache it.
		e.retired = true
		return rec, r.releaser(e), nil
	}
	next := make(map[Backend]*entry, len(r.cache)+1)
	for k, v := range r.cache {
		next[k] = v
	}
	next[b] = e
	r.cache = next
	return rec, r.releaser(e), nil
}

func (r *Registry) releaser(e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			e.refs--
			done := e.retired && e.refs == 0
			r.mu.Unlock()
			if done {
				closeRecognizer(e.rec)
			}
		})
	}
}

// Invalidate installs a new settings snapshot and drops every cached handle.
func (r *Registry) Invalidate(settings Settings) {
	r.mu.Lock()
	old := r.cache
	r.settings = settings
	r.generation++
	r.cache = map[Backend]*entry{}
	var idle []Recognizer
	for _, e := range old {
		e.retired = true
		if e.refs == 0 {
			idle = append(idle, e.rec)
		}
	}
	r.mu.Unlock()
	for _, rec := range idle {
		closeRecognizer(rec)
	}
}

// Generation counts Invalidate calls.
func (r *Registry) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Close releases every idle cached handle.
func (r *Registry) Close() {
	r.Invalidate(r.currentSettings())
}

func (r *Registry) currentSettings() Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

func closeRecognizer(rec Recognizer) {
	if c, ok := rec.(io.Closer); ok {
		_ = c.Close()
	}
}
