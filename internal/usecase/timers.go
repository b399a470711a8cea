package usecase

import (
	"sync"
	"time"
)

// timerSet tracks pending deferred actions (tail capture, paste keystroke,
// clipboard restore) so that a cancel can sweep all of them at once. Fired
// timers deregister themselves.
//
// cancelAll cannot stop a function that is already executing, so every
// scheduled function must additionally check the generation clock before it
// touches anything.
type timerSet struct {
	mu     sync.Mutex
	nextID uint64
	timers map[uint64]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[uint64]*time.Timer)}
}

func (ts *timerSet) schedule(d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.nextID++
	id := ts.nextID
	ts.timers[id] = time.AfterFunc(d, func() {
		ts.remove(id)
		fn()
	})
}

func (ts *timerSet) remove(id uint64) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.timers, id)
}

func (ts *timerSet) cancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for id, timer := range ts.timers {
		timer.Stop()
		delete(ts.timers, id)
	}
}

func (ts *timerSet) pending() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.timers)
}
