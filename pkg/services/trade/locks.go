package trade

import "sync"

// tradeLocks hands out one mutex per trade so state transitions serialize.
// Every transition re-reads the trade under its lock, so a writer that saw
// pending can never overwrite a terminal status written in between.
type tradeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTradeLocks() *tradeLocks {
	return &tradeLocks{locks: make(map[string]*sync.Mutex)}
}

func (t *tradeLocks) get(tradeID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[tradeID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[tradeID] = lock
	}
	return lock
}

// lock acquires a single trade's mutex and returns the release func.
func (t *tradeLocks) lock(tradeID string) func() {
	lock := t.get(tradeID)
	lock.Lock()
	return lock.Unlock
}
