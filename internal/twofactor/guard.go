package twofactor

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// ReplayTTL outlives the widest window so a consumed step cannot be reused
// while it is still acceptable.
const ReplayTTL = (2*MaxWindow + 2) * Period * time.Second

// MemoryReplayGuard is a process-local ReplayGuard.
type MemoryReplayGuard struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{used: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryReplayGuard) MarkUsed(_ context.Context, userID string, step int64) (bool, error) {
	now := g.now()
	key := userID + ":" + strconv.FormatInt(step, 10)

	g.mu.Lock()
	defer g.mu.Unlock()
	for k, exp := range g.used {
		if !now.Before(exp) {
			delete(g.used, k)
		}
	}
	if _, ok := g.used[key]; ok {
		return false, nil
	}
	g.used[key] = now.Add(ReplayTTL)
	return true, nil
}

// UserLock is a mutex per user id. Entries are dropped once unused.
type UserLock struct {
	mu    sync.Mutex
	locks map[string]*userEntry
}

type userEntry struct {
	mu   sync.Mutex
	refs int
}

func NewUserLock() *UserLock {
	return &UserLock{locks: make(map[string]*userEntry)}
}

// Lock blocks until userID is free and returns the unlock func.
func (l *UserLock) Lock(userID string) func() {
	l.mu.Lock()
	e, ok := l.locks[userID]
	if !ok {
		e = &userEntry{}
		l.locks[userID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

func (l *UserLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
