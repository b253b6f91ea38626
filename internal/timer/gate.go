package timer

import "context"

// gate serializes every service operation. It is a 1-slot channel rather
// than a sync.Mutex so a caller waiting for its turn can be aborted through
// its context. A cancelled acquire never leaves the gate held.
type gate chan struct{}

func newGate() gate { return make(gate, 1) }

func (g gate) acquire(ctx context.Context) error {
	select {
	case g <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g gate) release() { <-g }
