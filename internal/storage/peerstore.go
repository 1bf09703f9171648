package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
)

var peerPrefix = []byte("peer/")

func peerKey(name string) []byte {
	return append(append([]byte(nil), peerPrefix...), name...)
}

// PeerStore keeps PeerRecords in a KVEngine, one JSON value per peer.
type PeerStore struct {
	kv KVEngine
}

// NewPeerStore creates a PeerStore over kv.
func NewPeerStore(kv KVEngine) *PeerStore {
	return &PeerStore{kv: kv}
}

// LoadPeers returns every stored record sorted by name.
func (s *PeerStore) LoadPeers(ctx context.Context) ([]domain.PeerRecord, error) {
	var (
		out    []domain.PeerRecord
		decErr error
	)
	err := s.kv.Scan(ctx, peerPrefix, func(key, value []byte) bool {
		var r domain.PeerRecord
		if err := json.Unmarshal(value, &r); err != nil {
			decErr = fmt.Errorf("decode %s: %w", key, err)
			return false
		}
		out = append(out, r)
		return true
	})
	if err != nil {
		return nil, domain.ErrPeerStore.WithCause(err)
	}
	if decErr != nil {
		return nil, domain.ErrPeerStore.WithCause(decErr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// StorePeer creates or replaces the record of r.Name.
func (s *PeerStore) StorePeer(ctx context.Context, r domain.PeerRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode peer record: %w", err)
	}
	if err := s.kv.Set(ctx, peerKey(r.Name), data); err != nil {
		return domain.ErrPeerStore.WithCause(err)
	}
	return nil
}

// DeletePeer removes the record of name.
func (s *PeerStore) DeletePeer(ctx context.Context, name string) error {
	if err := s.kv.Delete(ctx, peerKey(name)); err != nil {
		return domain.ErrPeerStore.WithCause(err)
	}
	return nil
}

// SharedStore is the cluster-wide peer registry behind a cache.
type SharedStore interface {
	LoadPeers(ctx context.Context) ([]domain.PeerRecord, error)
	StorePeer(ctx context.Context, r domain.PeerRecord) error
}

// CachedPeerStore writes every record it sees through to a local
// PeerStore and serves the cached records when the shared store fails.
type CachedPeerStore struct {
	shared SharedStore
	cache  *PeerStore
	logger *slog.Logger

	mu    sync.Mutex
	stale bool
}

// NewCachedPeerStore wraps shared with a local cache.
func NewCachedPeerStore(shared SharedStore, cache *PeerStore, logger *slog.Logger) *CachedPeerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedPeerStore{shared: shared, cache: cache, logger: logger}
}

// LoadPeers loads from the shared store and refreshes the cache. On
// failure the cached records are returned.
func (s *CachedPeerStore) LoadPeers(ctx context.Context) ([]domain.PeerRecord, error) {
	records, err := s.shared.LoadPeers(ctx)
	if err != nil {
		cached, cerr := s.cache.LoadPeers(ctx)
		if cerr != nil {
			return nil, err
		}
		s.setStale(true)
		s.logger.Warn("shared peer store unavailable, using cached records", "error", err, "records", len(cached))
		return cached, nil
	}
	s.setStale(false)

	for _, r := range records {
		if cerr := s.cache.StorePeer(ctx, r); cerr != nil {
			s.logger.Warn("peer cache write failed", "peer", r.Name, "error", cerr)
		}
	}
	return records, nil
}

// StorePeer writes r to the shared store and the cache.
func (s *CachedPeerStore) StorePeer(ctx context.Context, r domain.PeerRecord) error {
	if err := s.shared.StorePeer(ctx, r); err != nil {
		return err
	}
	if err := s.cache.StorePeer(ctx, r); err != nil {
		s.logger.Warn("peer cache write failed", "peer", r.Name, "error", err)
	}
	return nil
}

// Stale reports whether the last load was served from the cache.
func (s *CachedPeerStore) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

func (s *CachedPeerStore) setStale(v bool) {
	s.mu.Lock()
	s.stale = v
	s.mu.Unlock()
}
