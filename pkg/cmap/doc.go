// Package cmap provides a concurrent map sharded by key hash.
//
// Each shard has its own RWMutex, so readers and writers of different
// keys rarely contend. Upsert runs a merge function under the shard lock,
// which gives last-writer-wins stores an atomic read-modify-write.
//
// Usage:
//
//	m := cmap.New[string, domain.PeerRecord]()
//	m.Set("east", rec)
//	val, ok := m.Get("east")
package cmap
