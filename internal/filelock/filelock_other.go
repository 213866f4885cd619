//go:build !unix

package filelock

import "sync"

var processLocks sync.Map // dir string -> *sync.Mutex

// Lock is a held in-process exclusive lock, the non-Unix fallback for
// platforms without flock. Only guards against concurrent goroutines in
// this process, not concurrent processes.
type Lock struct {
	mu *sync.Mutex
}

// Acquire blocks until an exclusive in-process lock for dir is held.
func Acquire(dir string) (*Lock, error) {
	v, _ := processLocks.LoadOrStore(dir, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return &Lock{mu: mu}, nil
}

// Release unlocks.
func (l *Lock) Release() error {
	l.mu.Unlock()
	return nil
}
