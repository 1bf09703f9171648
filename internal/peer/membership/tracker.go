package membership

import (
	"log/slog"
	"sort"
	"time"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/peer/wire"
	"github.com/yndnr/zonemesh-go/internal/telemetry/metric"
)

// Link is the tracker's view of a peer channel.
type Link interface {
	Send(msg *wire.Message) bool
	SetTarget(addr string)
	Close()
}

// Dialer opens an outbound link to remote at addr.
type Dialer func(remote, addr string) Link

// Events receives peer transitions on the control loop.
type Events interface {
	// PeerUp is called when the channel to name becomes established.
	PeerUp(name string)

	// PeerLost is called when an established channel is lost or the peer
	// leaves the live set.
	PeerLost(name string)
}

type entry struct {
	link     Link
	outbound bool
	up       bool
}

// Tracker maintains the live-peer set, the leader and one link per peer.
type Tracker struct {
	self    domain.PeerRecord
	refresh time.Duration
	dial    Dialer
	events  Events
	logger  *slog.Logger
	metrics *metric.Registry

	live   map[string]domain.PeerRecord
	links  map[string]*entry
	leader string
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	Self            domain.PeerRecord
	RefreshInterval time.Duration
	Dial            Dialer
	Events          Events
	Logger          *slog.Logger
	Metrics         *metric.Registry
}

// NewTracker creates a tracker. Until the first Apply the local peer is
// the only live peer and therefore the leader.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		self:    cfg.Self,
		refresh: cfg.RefreshInterval,
		dial:    cfg.Dial,
		events:  cfg.Events,
		logger:  logger.With("component", "membership"),
		metrics: cfg.Metrics,
		live:    make(map[string]domain.PeerRecord),
		links:   make(map[string]*entry),
		leader:  cfg.Self.Name,
	}
}

// Self returns the local peer name.
func (t *Tracker) Self() string { return t.self.Name }

// Leader returns the smallest live peer name, self included.
func (t *Tracker) Leader() string { return t.leader }

// IsLeader reports whether the local peer leads.
func (t *Tracker) IsLeader() bool { return t.leader == t.self.Name }

// Peers returns the live peers other than self, plus any peer with an
// established channel not yet seen in the store, in sorted order.
func (t *Tracker) Peers() []string {
	out := make([]string, 0, len(t.live)+len(t.links))
	for name := range t.live {
		out = append(out, name)
	}
	for name, e := range t.links {
		if _, ok := t.live[name]; !ok && e.up {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Records returns the live peer records, self included, sorted by name.
func (t *Tracker) Records() []domain.PeerRecord {
	out := make([]domain.PeerRecord, 0, len(t.live)+1)
	out = append(out, t.self)
	for _, r := range t.live {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PeerRegion returns the region of self or a live peer.
func (t *Tracker) PeerRegion(name string) (string, bool) {
	if name == t.self.Name {
		return t.self.Region, true
	}
	r, ok := t.live[name]
	return r.Region, ok
}

// Established reports whether the channel to name is up.
func (t *Tracker) Established(name string) bool {
	e, ok := t.links[name]
	return ok && e.up
}

// EstablishedCount returns the number of established channels.
func (t *Tracker) EstablishedCount() int {
	n := 0
	for _, e := range t.links {
		if e.up {
			n++
		}
	}
	return n
}

// Send queues msg on the channel to peer.
func (t *Tracker) Send(peer string, msg *wire.Message) bool {
	e, ok := t.links[peer]
	if !ok || !e.up {
		return false
	}
	return e.link.Send(msg)
}

// Apply replaces the live set with the live records in records.
func (t *Tracker) Apply(records []domain.PeerRecord, now time.Time) {
	next := make(map[string]domain.PeerRecord, len(records))
	for _, r := range records {
		if r.Name == t.self.Name || !r.IsLive(now, t.refresh) {
			continue
		}
		if prev, ok := next[r.Name]; ok && prev.Updated.After(r.Updated) {
			continue
		}
		next[r.Name] = r
	}

	for name := range t.live {
		if _, ok := next[name]; !ok {
			t.logger.Info("peer left", "peer", name)
			t.drop(name)
		}
	}
	for name := range t.links {
		if _, ok := next[name]; !ok {
			t.logger.Info("closing channel to peer without a live record", "peer", name)
			t.drop(name)
		}
	}

	for name, r := range next {
		prev, known := t.live[name]
		t.live[name] = r
		if !known {
			t.logger.Info("peer joined", "peer", name, "region", r.Region, "addr", r.InternalAddr())
		}
		if !t.dials(name) {
			continue
		}
		e, ok := t.links[name]
		switch {
		case !ok:
			t.links[name] = &entry{link: t.dial(name, r.InternalAddr()), outbound: true}
		case e.outbound && known && !prev.SameTarget(&r):
			t.logger.Info("peer moved", "peer", name, "addr", r.InternalAddr())
			e.link.SetTarget(r.InternalAddr())
		}
	}

	t.electLeader()
}

func (t *Tracker) electLeader() {
	leader := t.self.Name
	for name := range t.live {
		if name < leader {
			leader = name
		}
	}
	if leader != t.leader {
		t.logger.Info("leader changed", "leader", leader, "previous", t.leader)
		t.leader = leader
	}
}

// dials reports whether the local peer opens the channel to name.
func (t *Tracker) dials(name string) bool {
	return t.self.Name < name
}

// drop forgets a peer and closes its channel.
func (t *Tracker) drop(name string) {
	delete(t.live, name)
	e, ok := t.links[name]
	if !ok {
		return
	}
	delete(t.links, name)
	e.link.Close()
	t.lost(name, e)
}

func (t *Tracker) lost(name string, e *entry) {
	if !e.up {
		return
	}
	e.up = false
	t.metrics.ChannelEvent("down")
	if t.events != nil {
		t.events.PeerLost(name)
	}
}

// Attach registers an authenticated inbound link from name. It reports
// false when the link was refused; the caller must close it.
func (t *Tracker) Attach(name string, link Link) bool {
	if name == t.self.Name {
		return false
	}
	if e, ok := t.links[name]; ok {
		if e.outbound {
			t.logger.Warn("refusing inbound channel, dialing this peer already", "peer", name)
			return false
		}
		t.logger.Info("inbound channel replaced", "peer", name)
		delete(t.links, name)
		e.link.Close()
		t.metrics.ChannelEvent("replaced")
		t.lost(name, e)
	}
	t.links[name] = &entry{link: link}
	return true
}

// Known reports whether name is in the live set.
func (t *Tracker) Known(name string) bool {
	_, ok := t.live[name]
	return ok
}

// LinkUp records that link to name is established.
func (t *Tracker) LinkUp(name string, link Link) {
	e, ok := t.links[name]
	if !ok || e.link != link {
		return
	}
	e.up = true
	t.metrics.ChannelEvent("up")
	t.logger.Debug("channel up", "peer", name, "outbound", e.outbound)
	if t.events != nil {
		t.events.PeerUp(name)
	}
}

// LinkDown records that link to name lost its connection. final is true
// when the link will not reconnect.
func (t *Tracker) LinkDown(name string, link Link, final bool) {
	e, ok := t.links[name]
	if !ok || e.link != link {
		return
	}
	if final {
		delete(t.links, name)
	}
	t.lost(name, e)
}

// Close closes every link.
func (t *Tracker) Close() {
	for name, e := range t.links {
		delete(t.links, name)
		e.link.Close()
	}
}
