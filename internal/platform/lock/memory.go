package lock

import (
	"context"
	"sync"
)

// numShards spreads the key table across independent mutexes so unrelated
// keys do not contend on bookkeeping.
const numShards = 128

type memoryEntry struct {
	ch   chan struct{}
	refs int
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// Memory is an in-process Locker. Each key gets a one-slot channel that is
// dropped again once nobody holds or waits for it.
type Memory struct {
	shards [numShards]memoryShard
}

// NewMemory constructs an in-process locker.
func NewMemory() *Memory {
	m := &Memory{}
	for i := range m.shards {
		m.shards[i].entries = make(map[string]*memoryEntry)
	}
	return m
}

func (m *Memory) acquireEntry(key string) (*memoryShard, *memoryEntry) {
	sh := &m.shards[hashKey(key)%numShards]
	sh.mu.Lock()
	e, ok := sh.entries[key]
	if !ok {
		e = &memoryEntry{ch: make(chan struct{}, 1)}
		sh.entries[key] = e
	}
	e.refs++
	sh.mu.Unlock()
	return sh, e
}

func (sh *memoryShard) releaseEntry(key string, e *memoryEntry) {
	sh.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(sh.entries, key)
	}
	sh.mu.Unlock()
}

// Lock waits for key until ctx is done.
func (m *Memory) Lock(ctx context.Context, key string) (Unlock, error) {
	sh, e := m.acquireEntry(key)
	select {
	case e.ch <- struct{}{}:
		return m.unlocker(sh, key, e), nil
	case <-ctx.Done():
		sh.releaseEntry(key, e)
		return nil, ctx.Err()
	}
}

// TryLock enters key only if it is free.
func (m *Memory) TryLock(ctx context.Context, key string) (Unlock, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	sh, e := m.acquireEntry(key)
	select {
	case e.ch <- struct{}{}:
		return m.unlocker(sh, key, e), true, nil
	default:
		sh.releaseEntry(key, e)
		return nil, false, nil
	}
}

func (m *Memory) unlocker(sh *memoryShard, key string, e *memoryEntry) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			sh.releaseEntry(key, e)
		})
	}
}

// hashKey uses FNV-1a for better hash distribution than simple multiply-add.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
