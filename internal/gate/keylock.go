package gate

import (
	"hash/fnv"
	"sync"
)

// keyLocks is a fixed pool of mutexes keyed by string. Keys that hash to
// the same shard share a lock.
type keyLocks struct {
	shards [256]sync.Mutex
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyLocks) lock(key string) func() {
	mu := k.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (k *keyLocks) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &k.shards[h.Sum32()%256]
}
