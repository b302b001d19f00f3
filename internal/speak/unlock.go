package speak

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// UnlockFunc performs the actual audio unlock: playing any sound in direct
// response to a user gesture so that later, non-gesture audio is permitted.
// In practice this is a silent-buffer playback issued to the client.
type UnlockFunc func(ctx context.Context) error

// Gate tracks the page session's audio-unlock state. Unlock happens at most
// once per session; callers that arrive while the unlock is still in flight
// wait for that same unlock to resolve rather than starting another one.
type Gate struct {
	sf singleflight.Group

	mu       sync.Mutex
	unlocked bool
}

// NewGate returns a locked [Gate].
func NewGate() *Gate {
	return &Gate{}
}

// Unlocked reports whether the unlock already succeeded.
func (g *Gate) Unlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked
}

// Ensure runs fn unless the gate is already unlocked. Concurrent callers
// share a single in-flight unlock. A failed unlock leaves the gate locked so
// a later request retries; strategies that can play without an unlocked
// audio subsystem may still proceed after an unlock failure.
func (g *Gate) Ensure(ctx context.Context, fn UnlockFunc) error {
	g.mu.Lock()
	if g.unlocked {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	_, err, _ := g.sf.Do("unlock", func() (any, error) {
		if err := fn(ctx); err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.unlocked = true
		g.mu.Unlock()
		return nil, nil
	})
	return err
}
