package clusterserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/spaolacci/murmur3"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/telemetry/logger"
)

const gossipUpdateTimeout = 5 * time.Second

// GossipConfig configures a GossipStore.
type GossipConfig struct {
	// Name is the local peer name. Gossip members use the same name.
	Name string

	// BindAddr and BindPort are the gossip listen address. Port 0 picks
	// a free port.
	BindAddr string
	BindPort int

	// Seeds are gossip addresses (host:port) of existing members.
	Seeds []string

	// OnChange is called from memberlist goroutines when a member joins
	// or leaves.
	OnChange func()

	Logger *slog.Logger
}

// GossipStore is a PeerStore on top of memberlist. Each peer publishes its
// own PeerRecord as gossip node metadata; LoadPeers reads the metadata of
// every member currently alive.
type GossipStore struct {
	name     string
	list     *memberlist.Memberlist
	logger   *slog.Logger
	onChange func()

	mu      sync.Mutex
	meta    []byte
	shut    bool
	digests map[string]uint64
}

// NewGossipStore starts gossip and joins the seeds, if any.
func NewGossipStore(cfg GossipConfig) (*GossipStore, error) {
	if cfg.Name == "" {
		return nil, domain.ErrPeerNameRequired
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	g := &GossipStore{
		name:     cfg.Name,
		logger:   log.With("component", "gossip"),
		onChange: cfg.OnChange,
		digests:  make(map[string]uint64),
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.Name
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	mlConfig.Delegate = &metaDelegate{store: g}
	mlConfig.Events = &memberEvents{store: g}
	mlConfig.Logger = logger.StdLogger("memberlist", g.logger)

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}
	g.list = ml

	if len(cfg.Seeds) > 0 {
		n, err := ml.Join(cfg.Seeds)
		if err != nil {
			_ = ml.Shutdown()
			return nil, fmt.Errorf("join gossip seeds: %w", err)
		}
		g.logger.Info("joined gossip cluster", "seeds", cfg.Seeds, "contacted", n)
	} else {
		g.logger.Info("started gossip (no seeds)")
	}
	return g, nil
}

// Addr returns the gossip address other members can join.
func (g *GossipStore) Addr() string {
	n := g.list.LocalNode()
	return net.JoinHostPort(n.Addr.String(), strconv.Itoa(int(n.Port)))
}

// LoadPeers returns the records published by live members.
func (g *GossipStore) LoadPeers(ctx context.Context) ([]domain.PeerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	members := g.list.Members()
	out := make([]domain.PeerRecord, 0, len(members))
	for _, m := range members {
		if len(m.Meta) == 0 {
			continue
		}
		var r domain.PeerRecord
		if err := json.Unmarshal(m.Meta, &r); err != nil {
			g.logger.Warn("ignoring member with unreadable record", "member", m.Name, "error", err)
			continue
		}
		if r.Name != m.Name {
			g.logger.Warn("ignoring member publishing another peer's record", "member", m.Name, "peer", r.Name)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// StorePeer publishes r. Only the local peer's record can be written.
func (g *GossipStore) StorePeer(ctx context.Context, r domain.PeerRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Name != g.name {
		return domain.ErrPeerInvalid.WithDetails("gossip store only publishes " + g.name)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode peer record: %w", err)
	}
	if len(data) > memberlist.MetaMaxSize {
		return domain.ErrPeerInvalid.WithDetails(fmt.Sprintf("record exceeds %d bytes", memberlist.MetaMaxSize))
	}

	g.mu.Lock()
	g.meta = data
	g.mu.Unlock()

	timeout := gossipUpdateTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if err := g.list.UpdateNode(timeout); err != nil {
		return domain.ErrPeerStore.WithCause(err)
	}
	return nil
}

// Leave announces departure to the other members.
func (g *GossipStore) Leave(timeout time.Duration) error {
	if err := g.list.Leave(timeout); err != nil {
		return fmt.Errorf("leave gossip: %w", err)
	}
	return nil
}

// Shutdown stops gossip. It is safe to call more than once.
func (g *GossipStore) Shutdown() error {
	g.mu.Lock()
	if g.shut {
		g.mu.Unlock()
		return nil
	}
	g.shut = true
	g.mu.Unlock()

	if err := g.list.Shutdown(); err != nil {
		return fmt.Errorf("shutdown memberlist: %w", err)
	}
	g.logger.Info("gossip stopped")
	return nil
}

func (g *GossipStore) changed() {
	if g.onChange != nil {
		g.onChange()
	}
}

// metaDelegate serves the local record as node metadata.
type metaDelegate struct {
	store *GossipStore
}

func (d *metaDelegate) NodeMeta(limit int) []byte {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	if len(d.store.meta) > limit {
		return nil
	}
	return d.store.meta
}

func (d *metaDelegate) NotifyMsg([]byte)                           {}
func (d *metaDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (d *metaDelegate) LocalState(join bool) []byte                { return nil }
func (d *metaDelegate) MergeRemoteState(buf []byte, join bool)     {}

// memberEvents turns membership changes into store change notifications.
type memberEvents struct {
	store *GossipStore
}

func (e *memberEvents) NotifyJoin(n *memberlist.Node) {
	e.store.logger.Debug("gossip member joined", "member", n.Name, "addr", n.Address())
	e.store.setDigest(n.Name, targetDigest(n.Meta))
	e.store.changed()
}

func (e *memberEvents) NotifyLeave(n *memberlist.Node) {
	e.store.logger.Debug("gossip member left", "member", n.Name)
	e.store.mu.Lock()
	delete(e.store.digests, n.Name)
	e.store.mu.Unlock()
	e.store.changed()
}

// NotifyUpdate reports a change only when the member's dial target or
// active flag moved. Refresh timestamps alone are ignored.
func (e *memberEvents) NotifyUpdate(n *memberlist.Node) {
	if e.store.setDigest(n.Name, targetDigest(n.Meta)) {
		e.store.logger.Debug("gossip member record changed", "member", n.Name)
		e.store.changed()
	}
}

// setDigest records the digest of a member and reports whether it differs
// from the previous one.
func (g *GossipStore) setDigest(name string, digest uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev, ok := g.digests[name]
	g.digests[name] = digest
	return !ok || prev != digest
}

// targetDigest hashes the parts of a published record that require the
// other peers to act. Empty or unreadable metadata hashes to 0.
func targetDigest(meta []byte) uint64 {
	var r domain.PeerRecord
	if len(meta) == 0 || json.Unmarshal(meta, &r) != nil {
		return 0
	}
	h := murmur3.New64()
	fmt.Fprintf(h, "%s|%s|%d|%t", r.Name, r.InternalHost, r.Port, r.Active)
	return h.Sum64()
}
