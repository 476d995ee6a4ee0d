package ledger

import "sync"

// playerLocks hands out one mutex per player so all mutating operations on a
// single account serialize. Mutexes are never removed; the set of players is
// bounded by the player base.
type playerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPlayerLocks() *playerLocks {
	return &playerLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *playerLocks) get(playerID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[playerID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[playerID] = lock
	}
	return lock
}

// lock acquires a single player's mutex and returns the release func.
func (p *playerLocks) lock(playerID string) func() {
	lock := p.get(playerID)
	lock.Lock()
	return lock.Unlock
}

// lockPair acquires both players' mutexes in ascending id order, so two
// concurrent swaps touching the same pair can never deadlock.
func (p *playerLocks) lockPair(a, b string) func() {
	if a == b {
		return p.lock(a)
	}
	if b < a {
		a, b = b, a
	}

	first := p.get(a)
	second := p.get(b)
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}
