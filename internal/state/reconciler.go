package state

import (
	"sync"
	"time"
)

// reconciler arms one cancellable timer per (thing name, operation).
// Re-arming an armed key replaces its timer; a push match cancels the
// timer so the redundant poll is usually skipped entirely.
type reconciler struct {
	timeout time.Duration
	fire    func(key opKey, deviceID string)

	mu     sync.Mutex
	timers map[opKey]*time.Timer
}

func newReconciler(timeout time.Duration, fire func(key opKey, deviceID string)) *reconciler {
	return &reconciler{
		timeout: timeout,
		fire:    fire,
		timers:  make(map[opKey]*time.Timer),
	}
}

// arm schedules the reconciliation poll for key, replacing any timer a
// superseded command left behind.
func (r *reconciler) arm(key opKey, deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[key]; ok {
		t.Stop()
	}

	r.timers[key] = time.AfterFunc(r.timeout, func() {
		r.mu.Lock()
		delete(r.timers, key)
		r.mu.Unlock()

		r.fire(key, deviceID)
	})
}

// cancel stops the timer for key if one is armed. A timer whose callback
// already started cannot be stopped; the callback is idempotent, so the
// late poll is harmless.
func (r *reconciler) cancel(key opKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
}

// stopAll cancels every armed timer.
func (r *reconciler) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, t := range r.timers {
		t.Stop()
		delete(r.timers, key)
	}
}
