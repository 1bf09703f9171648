package memory

import (
	"context"
	"sort"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/pkg/cmap"
)

// Store is an in-memory PeerStore.
type Store struct {
	peers *cmap.Map[string, domain.PeerRecord]
}

// New creates an empty store.
func New() *Store {
	return &Store{peers: cmap.New[string, domain.PeerRecord]()}
}

// LoadPeers returns every record sorted by name.
func (s *Store) LoadPeers(ctx context.Context) ([]domain.PeerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := s.peers.Values()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// StorePeer writes r unless a record with a newer Updated time is
// already stored.
func (s *Store) StorePeer(ctx context.Context, r domain.PeerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	s.peers.Upsert(r.Name, r, func(existing domain.PeerRecord, exists bool) domain.PeerRecord {
		if exists && existing.Updated.After(r.Updated) {
			return existing
		}
		return r
	})
	return nil
}

// Peer returns the record of name.
func (s *Store) Peer(name string) (domain.PeerRecord, bool) {
	return s.peers.Get(name)
}

// Touch moves the Updated time of a stored record, for simulating
// stale peers.
func (s *Store) Touch(name string, fn func(*domain.PeerRecord)) bool {
	r, ok := s.peers.Get(name)
	if !ok {
		return false
	}
	fn(&r)
	s.peers.Set(name, r)
	return true
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return s.peers.Count()
}
