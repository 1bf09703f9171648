package clusterserver

import (
	"context"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/peer/placement"
	"github.com/yndnr/zonemesh-go/internal/peer/rpc"
	"github.com/yndnr/zonemesh-go/internal/peer/wire"
	"github.com/yndnr/zonemesh-go/internal/telemetry/metric"
	"github.com/yndnr/zonemesh-go/pkg/handle"
)

// PeerStatus is a live peer as seen by this node.
type PeerStatus struct {
	Record      domain.PeerRecord `json:"record"`
	Self        bool              `json:"self"`
	Leader      bool              `json:"leader"`
	Established bool              `json:"established"`
}

// Snapshot is a consistent copy of the node's view of the cluster.
type Snapshot struct {
	Self      string                `json:"self"`
	Leader    string                `json:"leader"`
	Peers     []PeerStatus          `json:"peers"`
	Sessions  []domain.SessionInfo  `json:"sessions"`
	Instances []domain.InstanceInfo `json:"instances"`
}

// RegisterObject adds an application shared object. Objects must be
// registered on every peer under the same id. methods adds the object's
// methods; on a running node it runs on the control loop together with the
// registration, so no call sees a half-built method table.
func (n *Node) RegisterObject(ctx context.Context, id uint32, name string, methods func(*rpc.Object)) error {
	register := func() error {
		obj, err := n.registry.Register(id, name)
		if err != nil {
			return err
		}
		if methods != nil {
			methods(obj)
		}
		return nil
	}
	if !n.running.Load() {
		return register()
	}
	var err error
	if cerr := n.do(ctx, func() { err = register() }); cerr != nil {
		return cerr
	}
	return err
}

// Dispatch runs fn on the control loop with the RPC dispatcher. Request
// callbacks issued from fn also run on the control loop.
func (n *Node) Dispatch(ctx context.Context, fn func(d *rpc.Dispatcher)) error {
	return n.do(ctx, func() { fn(n.rpc) })
}

// Collect issues a request from the control loop and waits for its
// collated results.
func (n *Node) Collect(ctx context.Context, fn func(d *rpc.Dispatcher, cb rpc.Callback)) (rpc.Results, error) {
	return await(ctx, n, func(done func(rpc.Results)) {
		fn(n.rpc, rpc.Callback(done))
	})
}

// AddSession registers a session owned by this peer.
func (n *Node) AddSession(ctx context.Context, id domain.SessionID, name string) (handle.Handle, error) {
	var (
		h   handle.Handle
		err error
	)
	if cerr := n.do(ctx, func() { h, err = n.dir.AddSession(id, name) }); cerr != nil {
		return handle.Handle{}, cerr
	}
	return h, err
}

// RenameSession changes the display name of a local session.
func (n *Node) RenameSession(ctx context.Context, id domain.SessionID, name string) error {
	var err error
	if cerr := n.do(ctx, func() { err = n.dir.RenameSession(id, name) }); cerr != nil {
		return cerr
	}
	return err
}

// RemoveSession removes a local session.
func (n *Node) RemoveSession(ctx context.Context, id domain.SessionID) error {
	var err error
	if cerr := n.do(ctx, func() { err = n.dir.RemoveSession(id) }); cerr != nil {
		return cerr
	}
	return err
}

// LocalSession resolves a local session handle.
func (n *Node) LocalSession(ctx context.Context, h handle.Handle) (domain.SessionInfo, bool, error) {
	var (
		info domain.SessionInfo
		ok   bool
	)
	if err := n.do(ctx, func() { info, ok = n.dir.LocalSession(h) }); err != nil {
		return domain.SessionInfo{}, false, err
	}
	return info, ok, nil
}

// GetSessionInfo resolves a session by display name, asking the other
// peers when it is not cached.
func (n *Node) GetSessionInfo(ctx context.Context, name string) (domain.SessionInfo, bool, error) {
	type found struct {
		info domain.SessionInfo
		ok   bool
	}
	r, err := await(ctx, n, func(done func(found)) {
		n.dir.GetSessionInfo(name, func(info domain.SessionInfo, ok bool) {
			done(found{info, ok})
		})
	})
	return r.info, r.ok, err
}

// CreateInstance starts a new instance of zone owned by this peer.
func (n *Node) CreateInstance(ctx context.Context, zone domain.ZoneID) (domain.InstanceInfo, error) {
	if _, ok := n.cfg.Zones[zone]; !ok {
		return domain.InstanceInfo{}, domain.ErrZoneUnknown
	}
	inv := wire.Invocation{Object: placement.ObjectID, Method: placement.MethodCreateInstance, Args: wire.Args{wire.Uint(uint64(zone))}}
	results, err := n.Collect(ctx, func(d *rpc.Dispatcher, cb rpc.Callback) {
		d.RequestPeer(n.self.Name, inv, cb)
	})
	if err != nil {
		return domain.InstanceInfo{}, err
	}
	args := results[n.self.Name]
	if !args.Bool(0) {
		return domain.InstanceInfo{}, domain.ErrPlacementFailed.WithDetails("leader did not allocate an instance id")
	}
	id := domain.InstanceID(args.Uint(1))
	var (
		info domain.InstanceInfo
		ok   bool
	)
	if err := n.do(ctx, func() { info, ok = n.dir.Instance(id) }); err != nil {
		return domain.InstanceInfo{}, err
	}
	if !ok {
		return domain.InstanceInfo{}, domain.ErrInstanceNotFound
	}
	return info, nil
}

// UpdateInstance replaces the record of a local instance.
func (n *Node) UpdateInstance(ctx context.Context, info domain.InstanceInfo) error {
	var err error
	if cerr := n.do(ctx, func() { err = n.dir.UpdateInstance(info) }); cerr != nil {
		return cerr
	}
	return err
}

// RemoveInstance removes a local instance.
func (n *Node) RemoveInstance(ctx context.Context, id domain.InstanceID) error {
	var err error
	if cerr := n.do(ctx, func() { err = n.dir.RemoveInstance(id) }); cerr != nil {
		return cerr
	}
	return err
}

// ReserveInstancePlace finds an instance for the session's user and
// reserves a place in it.
func (n *Node) ReserveInstancePlace(ctx context.Context, req placement.Request) (placement.Placement, error) {
	type outcome struct {
		p   placement.Placement
		err error
	}
	r, err := await(ctx, n, func(done func(outcome)) {
		n.planner.ReserveInstancePlace(req, func(p placement.Placement, err error) {
			done(outcome{p, err})
		})
	})
	if err != nil {
		return placement.Placement{}, err
	}
	return r.p, r.err
}

// CancelReservation returns the session's reserved place, if any.
func (n *Node) CancelReservation(ctx context.Context, session domain.SessionID) error {
	return n.do(ctx, func() { n.planner.CancelReservation(session) })
}

// ConfirmPlace turns the session's reservation into a used place.
func (n *Node) ConfirmPlace(ctx context.Context, session domain.SessionID) error {
	type outcome struct{ err error }
	r, err := await(ctx, n, func(done func(outcome)) {
		n.planner.ConfirmPlace(session, func(err error) { done(outcome{err}) })
	})
	if err != nil {
		return err
	}
	return r.err
}

// ReleasePlace returns a confirmed place after the user left the instance.
func (n *Node) ReleasePlace(ctx context.Context, session domain.SessionID, id domain.InstanceID) error {
	var err error
	if cerr := n.do(ctx, func() { err = n.planner.ReleasePlace(session, id) }); cerr != nil {
		return cerr
	}
	return err
}

// Snapshot copies the node's view of the cluster.
func (n *Node) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := n.do(ctx, func() {
		s.Self = n.self.Name
		s.Leader = n.tracker.Leader()
		for _, r := range n.tracker.Records() {
			s.Peers = append(s.Peers, PeerStatus{
				Record:      r,
				Self:        r.Name == n.self.Name,
				Leader:      r.Name == s.Leader,
				Established: n.tracker.Established(r.Name),
			})
		}
		s.Sessions = n.dir.Sessions()
		s.Instances = n.dir.Instances()
	})
	if err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Stats reports node gauges for metrics scrapes. A stopped or busy node
// reports zeros.
func (n *Node) Stats() metric.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()
	s, _ := await(ctx, n, func(done func(metric.Stats)) {
		done(metric.Stats{
			LivePeers:     len(n.tracker.Peers()),
			Channels:      n.tracker.EstablishedCount(),
			Leader:        n.tracker.IsLeader(),
			Sessions:      len(n.dir.Sessions()),
			LocalSessions: n.dir.LocalSessionCount(),
			Instances:     len(n.dir.Instances()),
		})
	})
	return s
}
