package profile

import (
	"sort"
	"sync"
	"time"
)

// Summary is a snapshot of one named scope.
type Summary struct {
	Name   string
	Calls  uint64
	Last   time.Duration
	MeanMS float64
	P95MS  float64
	MaxMS  float64
}

// Recorder aggregates scope durations by name. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	scopes map[string]*scope
	now    func() time.Time
}

type scope struct {
	calls   uint64
	last    time.Duration
	window  LatencyWindow
	started map[uint64]time.Time
	nextID  uint64
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		scopes: make(map[string]*scope),
		now:    time.Now,
	}
}

var defaultRecorder = NewRecorder()

// Default returns the process-wide recorder.
func Default() *Recorder {
	return defaultRecorder
}

func (r *Recorder) get(name string) *scope {
	s, ok := r.scopes[name]
	if !ok {
		s = &scope{started: make(map[uint64]time.Time)}
		r.scopes[name] = s
	}
	return s
}

// Start opens a measurement of name and returns its token for Stop.
// Overlapping measurements of the same name are tracked independently.
func (r *Recorder) Start(name string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.get(name)
	s.nextID++
	s.started[s.nextID] = r.now()
	return s.nextID
}

// Stop closes the measurement opened by Start. Unknown tokens are ignored.
func (r *Recorder) Stop(name string, token uint64) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.scopes[name]
	if !ok {
		return 0
	}
	t0, ok := s.started[token]
	if !ok {
		return 0
	}
	delete(s.started, token)

	d := r.now().Sub(t0)
	s.calls++
	s.last = d
	s.window.AddSample(float64(d) / float64(time.Millisecond))
	return d
}

// Scope starts a measurement and returns the function that stops it,
// for use with defer:
//
//	defer rec.Scope("shm-bridge cam0")()
func (r *Recorder) Scope(name string) func() time.Duration {
	token := r.Start(name)
	return func() time.Duration { return r.Stop(name, token) }
}

// Summary returns the snapshot for name.
func (r *Recorder) Summary(name string) (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.scopes[name]
	if !ok {
		return Summary{Name: name}, false
	}
	return s.summary(name), true
}

// Summaries returns snapshots of all scopes sorted by name.
func (r *Recorder) Summaries() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Summary, 0, len(r.scopes))
	for name, s := range r.scopes {
		out = append(out, s.summary(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Forget drops the history of name.
func (r *Recorder) Forget(name string) {
	r.mu.Lock()
	delete(r.scopes, name)
	r.mu.Unlock()
}

func (s *scope) summary(name string) Summary {
	mean, p95, max := s.window.GetStats()
	return Summary{
		Name:   name,
		Calls:  s.calls,
		Last:   s.last,
		MeanMS: mean,
		P95MS:  p95,
		MaxMS:  max,
	}
}
