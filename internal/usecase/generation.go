package usecase

import "sync"

// generationClock invalidates deferred session work. Starting a new recording
// or cancelling bumps the counter; timers and waiter goroutines capture the
// value of their own session and compare it again right before acting.
type generationClock struct {
	mu  sync.Mutex
	gen uint64
}

func (g *generationClock) bump() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	return g.gen
}

func (g *generationClock) isCurrent(gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen == gen
}
