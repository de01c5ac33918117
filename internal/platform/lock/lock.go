// Package lock provides keyed exclusive sections.
//
// Callers hold a section for the duration of a read-check-write sequence on
// one key (a fingerprint, a complaint id). Distinct keys never block each
// other. The in-memory Locker serves a single process; the Redis Locker
// extends exclusivity across replicas.
package lock

import (
	"context"
	"sort"
)

// Unlock releases a section. It is safe to call once.
type Unlock func()

// Locker enters an exclusive section for key, waiting until ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// TryLocker enters a section only if it is free right now.
type TryLocker interface {
	TryLock(ctx context.Context, key string) (Unlock, bool, error)
}

// All enters the sections for every key in a stable order so two callers
// locking overlapping key sets cannot deadlock. Duplicate keys are entered once.
func All(ctx context.Context, l Locker, keys ...string) (Unlock, error) {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	held := make([]Unlock, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, k := range sorted {
		unlock, err := l.Lock(ctx, k)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, unlock)
	}
	return release, nil
}
