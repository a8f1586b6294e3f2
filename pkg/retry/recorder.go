package retry

import "sync"

// Recorder is an append-only multicast log of attempt outcomes.
//
// Every published value is appended to the history and then handed to each
// subscriber in publish order. Subscribers only see values published after
// they subscribed. A subscriber must not publish to the same recorder.
type Recorder[T any] struct {
	pubMu sync.Mutex // serializes publish and notification

	mu      sync.RWMutex
	history []T
	subs    map[int]func(index int, v T)
	nextID  int
	closed  bool
}

// NewRecorder creates an empty recorder
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{
		subs: make(map[int]func(int, T)),
	}
}

// Publish appends v and notifies subscribers.
// It returns false when the recorder is closed.
func (r *Recorder[T]) Publish(v T) bool {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	index := len(r.history)
	r.history = append(r.history, v)

	// notify in subscription order
	subs := make([]func(int, T), 0, len(r.subs))
	for id := 0; id < r.nextID; id++ {
		if fn, ok := r.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(index, v)
	}
	return true
}

// Subscribe registers fn for every future publication.
// The returned function removes the subscription; it is safe to call more than once.
func (r *Recorder[T]) Subscribe(fn func(index int, v T)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || fn == nil {
		return func() {}
	}

	id := r.nextID
	r.nextID++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// History returns a copy of every published value in order
func (r *Recorder[T]) History() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, len(r.history))
	copy(out, r.history)
	return out
}

// Len returns the number of published values
func (r *Recorder[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.history)
}

// Close drops all subscribers and rejects further publications
func (r *Recorder[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.subs = make(map[int]func(int, T))
}

// Closed reports whether Close was called
func (r *Recorder[T]) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
