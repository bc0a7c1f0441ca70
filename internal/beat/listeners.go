package beat

import (
	"slices"
	"sync"
)

// Event describes one fired beat.
type Event struct {
	// Count is the detector's beat count including this beat
	Count uint64
	// Time is the tick time the beat fired at, in seconds
	Time float64
	// Energy is the band energy that fired
	Energy float64
	// Band is the band the beat was detected in
	Band int
}

// Listener is called synchronously for every fired beat, from the goroutine
// calling Process. Must be fast and non-blocking.
type Listener func(Event)

// Handle identifies a registered listener. The zero Handle is never issued.
type Handle uint64

type registration struct {
	handle   Handle
	listener Listener
}

// Registry is an ordered list of beat listeners. Dispatch works on a snapshot
// taken when the beat fires, so listeners added or removed while a dispatch
// is running only take effect from the next beat.
type Registry struct {
	mu      sync.Mutex
	next    Handle
	entries []registration
}

// Add registers l and returns its handle. A nil listener is ignored and gets
// the zero handle.
func (r *Registry) Add(l Listener) Handle {
	if l == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	// Fresh slice so a snapshot handed out earlier is never written to.
	entries := make([]registration, len(r.entries), len(r.entries)+1)
	copy(entries, r.entries)
	r.entries = append(entries, registration{handle: r.next, listener: l})
	return r.next
}

// Remove unregisters the listener behind h. Unknown handles are ignored.
func (r *Registry) Remove(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.IndexFunc(r.entries, func(e registration) bool { return e.handle == h })
	if i < 0 {
		return
	}
	r.entries = slices.Concat(r.entries[:i], r.entries[i+1:])
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Dispatch delivers ev to every listener registered when Dispatch was
// called, in registration order.
func (r *Registry) Dispatch(ev Event) {
	r.mu.Lock()
	snapshot := r.entries
	r.mu.Unlock()

	for _, e := range snapshot {
		e.listener(ev)
	}
}
