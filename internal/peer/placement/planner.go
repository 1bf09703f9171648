package placement

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/peer/directory"
	"github.com/yndnr/zonemesh-go/internal/peer/rpc"
	"github.com/yndnr/zonemesh-go/internal/peer/wire"
	"github.com/yndnr/zonemesh-go/internal/telemetry/metric"
	"github.com/yndnr/zonemesh-go/pkg/handle"
)

// ObjectID is the shared object id of the planner.
const ObjectID uint32 = 2

// Remote methods.
const (
	MethodReservePlace      = "reservePlace"
	MethodCancelReservation = "cancelPlaceReservation"
	MethodConfirmPlace      = "confirmPlace"
	MethodReleasePlace      = "releasePlace"
	MethodCreateInstance    = "createInstance"
	MethodAllocateInstance  = "allocateInstance"
)

// DefaultReservationTimeout is how long a reserved place is held.
const DefaultReservationTimeout = 5 * time.Second

// Timer is a stoppable pending callback.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules fn on the control loop after d.
type AfterFunc func(d time.Duration, fn func()) Timer

// Dispatcher is the subset of rpc.Dispatcher used by the planner.
type Dispatcher interface {
	InvokePeer(peer string, inv wire.Invocation)
	RequestPeer(peer string, inv wire.Invocation, cb rpc.Callback)
	RequestLead(inv wire.Invocation, cb rpc.Callback)
	RequestAll(inv wire.Invocation, cb rpc.Callback)
}

// Regions resolves the region of self or a live peer.
type Regions interface {
	PeerRegion(name string) (string, bool)
}

// Config configures a Planner.
type Config struct {
	Self   string
	Region string

	// Zones maps zone ids to their maximum population.
	Zones map[domain.ZoneID]int32

	ReservationTimeout time.Duration
	AfterFunc          AfterFunc

	// IntN returns a uniform random number in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int

	Logger  *slog.Logger
	Metrics *metric.Registry
}

// Request describes a user needing a place.
type Request struct {
	// Session is the local session of the user.
	Session domain.SessionID

	Zone domain.ZoneID

	// Region is the preferred region; empty means any.
	Region string

	// Instance, when set, names the instance to join directly.
	Instance domain.InstanceID
}

// Placement is a granted reservation.
type Placement struct {
	Instance domain.InstanceID
	Owner    string
}

// Result receives the outcome of a placement.
type Result func(Placement, error)

// held is a reservation seen from the owning peer. gen tells a stale
// expiry apart from the current reservation.
type held struct {
	instance domain.InstanceID
	peer     string
	gen      uint64
	timer    Timer
}

// seat is a confirmed place on a local instance.
type seat struct {
	session  domain.SessionID
	instance domain.InstanceID
}

// outstanding is a reservation seen from the requesting peer.
type outstanding struct {
	seq      uint64
	owner    string
	instance domain.InstanceID
	granted  bool
}

// Planner finds and reserves places. It is confined to the control loop.
type Planner struct {
	cfg     Config
	dir     *directory.Directory
	rpc     Dispatcher
	regions Regions
	logger  *slog.Logger
	metrics *metric.Registry

	seq       uint64
	requested map[domain.SessionID]*outstanding
	held      map[domain.SessionID]*held
	gen       uint64
	seats     map[seat]struct{}
	offsets   map[domain.ZoneID]uint32
}

// New creates a planner.
func New(cfg Config, dir *directory.Directory, d Dispatcher, regions Regions) *Planner {
	if cfg.ReservationTimeout <= 0 {
		cfg.ReservationTimeout = DefaultReservationTimeout
	}
	if cfg.IntN == nil {
		cfg.IntN = rand.IntN
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Planner{
		cfg:       cfg,
		dir:       dir,
		rpc:       d,
		regions:   regions,
		logger:    logger.With("component", "placement"),
		metrics:   cfg.Metrics,
		requested: make(map[domain.SessionID]*outstanding),
		held:      make(map[domain.SessionID]*held),
		seats:     make(map[seat]struct{}),
		offsets:   make(map[domain.ZoneID]uint32),
	}
	dir.Subscribe(p.onDirectoryEvent)
	return p
}

// Capacity returns the maximum population of zone.
func (p *Planner) Capacity(zone domain.ZoneID) (int32, bool) {
	c, ok := p.cfg.Zones[zone]
	return c, ok
}

// ReserveInstancePlace finds an instance for the user and reserves a place
// in it. A previous reservation of the same session is cancelled first.
func (p *Planner) ReserveInstancePlace(req Request, cb Result) {
	h, ok := p.dir.SessionHandle(req.Session)
	if !ok {
		cb(Placement{}, domain.ErrSessionNotFound)
		return
	}
	if req.Instance == 0 {
		if _, ok := p.cfg.Zones[req.Zone]; !ok {
			cb(Placement{}, domain.ErrZoneUnknown)
			return
		}
	}

	p.CancelReservation(req.Session)
	p.seq++
	o := &outstanding{seq: p.seq}
	p.requested[req.Session] = o

	if req.Instance != 0 {
		info, ok := p.dir.Instance(req.Instance)
		if !ok {
			p.fail(req.Session, o, cb, domain.ErrInstanceNotFound)
			return
		}
		p.reserveOn(info.Owner, info.ID, req, h, o, cb)
		return
	}

	if info, ok := p.pick(req.Zone, req.Region); ok {
		p.reserveOn(info.Owner, info.ID, req, h, o, cb)
		return
	}
	p.createAndReserve(req, h, o, cb)
}

// pick selects among the instances with the most open places, preferring
// the requested region.
func (p *Planner) pick(zone domain.ZoneID, region string) (domain.InstanceInfo, bool) {
	group := p.dir.ZoneGroup(zone)
	if len(group) == 0 {
		return domain.InstanceInfo{}, false
	}
	top := group[len(group)-1].Open
	if top <= 0 {
		return domain.InstanceInfo{}, false
	}

	var run, inRegion []domain.InstanceInfo
	for i := len(group) - 1; i >= 0 && group[i].Open == top; i-- {
		run = append(run, group[i])
		if region != "" && group[i].Region == region {
			inRegion = append(inRegion, group[i])
		}
	}
	if len(inRegion) > 0 {
		run = inRegion
	}
	return run[p.cfg.IntN(len(run))], true
}

func (p *Planner) createAndReserve(req Request, h handle.Handle, o *outstanding, cb Result) {
	inv := wire.Invocation{Object: directory.ObjectID, Method: directory.MethodSessionCount}
	p.rpc.RequestAll(inv, func(results rpc.Results) {
		if !p.current(req.Session, o) {
			cb(Placement{}, domain.ErrReservationLost)
			return
		}
		target, ok := p.leastLoaded(results, req.Region)
		if !ok {
			p.fail(req.Session, o, cb, domain.ErrPlacementFailed)
			return
		}
		p.logger.Debug("creating instance", "zone", req.Zone, "peer", target)

		create := wire.Invocation{Object: ObjectID, Method: MethodCreateInstance, Args: wire.Args{wire.Uint(uint64(req.Zone))}}
		p.rpc.RequestPeer(target, create, func(results rpc.Results) {
			if !p.current(req.Session, o) {
				cb(Placement{}, domain.ErrReservationLost)
				return
			}
			reply, ok := results[target]
			if !ok || !reply.Bool(0) {
				p.fail(req.Session, o, cb, domain.ErrPlacementFailed)
				return
			}
			p.reserveOn(target, domain.InstanceID(reply.Uint(1)), req, h, o, cb)
		})
	})
}

// leastLoaded returns the answering peer with the fewest local sessions,
// restricted to region when any peer there answered. Ties go to the
// smallest name.
func (p *Planner) leastLoaded(results rpc.Results, region string) (string, bool) {
	peers := results.Peers()
	if region != "" {
		var inRegion []string
		for _, peer := range peers {
			if r, ok := p.regions.PeerRegion(peer); ok && r == region {
				inRegion = append(inRegion, peer)
			}
		}
		if len(inRegion) > 0 {
			peers = inRegion
		}
	}

	best, bestCount := "", int64(0)
	for _, peer := range peers {
		args := results[peer]
		if len(args) == 0 {
			continue
		}
		if n := args.Int(0); best == "" || n < bestCount {
			best, bestCount = peer, n
		}
	}
	return best, best != ""
}

func (p *Planner) reserveOn(owner string, id domain.InstanceID, req Request, h handle.Handle, o *outstanding, cb Result) {
	o.owner, o.instance = owner, id
	inv := reservationInvocation(MethodReservePlace, req.Session, id)
	p.rpc.RequestPeer(owner, inv, func(results rpc.Results) {
		reply, answered := results[owner]
		granted := answered && reply.Bool(0)

		if !p.current(req.Session, o) {
			if granted {
				p.rpc.InvokePeer(owner, reservationInvocation(MethodCancelReservation, req.Session, id))
			}
			cb(Placement{}, domain.ErrReservationLost)
			return
		}
		if !granted {
			delete(p.requested, req.Session)
			if !answered {
				cb(Placement{}, domain.ErrPlacementFailed)
				return
			}
			cb(Placement{}, domain.ErrInstanceFull)
			return
		}
		if _, ok := p.dir.LocalSession(h); !ok {
			p.logger.Debug("session gone before reservation completed", "session", req.Session, "instance", id.String())
			delete(p.requested, req.Session)
			p.rpc.InvokePeer(owner, reservationInvocation(MethodCancelReservation, req.Session, id))
			cb(Placement{}, domain.ErrReservationLost)
			return
		}
		o.granted = true
		cb(Placement{Instance: id, Owner: owner}, nil)
	})
}

// CancelReservation drops the session's reservation, if any, returning
// the place to its instance.
func (p *Planner) CancelReservation(session domain.SessionID) {
	o, ok := p.requested[session]
	if !ok {
		return
	}
	delete(p.requested, session)
	if o.owner != "" {
		p.rpc.InvokePeer(o.owner, reservationInvocation(MethodCancelReservation, session, o.instance))
	}
}

// ConfirmPlace turns the session's reservation into a used place. cb
// receives ErrReservationLost if the owner no longer holds it.
func (p *Planner) ConfirmPlace(session domain.SessionID, cb func(error)) {
	o, ok := p.requested[session]
	if !ok || !o.granted {
		cb(domain.ErrReservationLost)
		return
	}
	delete(p.requested, session)
	owner := o.owner
	p.rpc.RequestPeer(owner, reservationInvocation(MethodConfirmPlace, session, o.instance), func(results rpc.Results) {
		if !results[owner].Bool(0) {
			cb(domain.ErrReservationLost)
			return
		}
		cb(nil)
	})
}

// ReleasePlace returns a confirmed place after the user left instance.
func (p *Planner) ReleasePlace(session domain.SessionID, id domain.InstanceID) error {
	info, ok := p.dir.Instance(id)
	if !ok {
		return domain.ErrInstanceNotFound
	}
	p.rpc.InvokePeer(info.Owner, reservationInvocation(MethodReleasePlace, session, id))
	return nil
}

// Outstanding reports whether session holds an unconfirmed reservation.
func (p *Planner) Outstanding(session domain.SessionID) (Placement, bool) {
	o, ok := p.requested[session]
	if !ok || !o.granted {
		return Placement{}, false
	}
	return Placement{Instance: o.instance, Owner: o.owner}, true
}

func (p *Planner) current(session domain.SessionID, o *outstanding) bool {
	cur, ok := p.requested[session]
	return ok && cur.seq == o.seq
}

func (p *Planner) fail(session domain.SessionID, o *outstanding, cb Result, err error) {
	if p.current(session, o) {
		delete(p.requested, session)
	}
	cb(Placement{}, err)
}

func (p *Planner) onDirectoryEvent(ev directory.Event) {
	switch {
	case ev.Kind == directory.SessionRemoved && ev.Session.Owner == p.cfg.Self:
		p.CancelReservation(ev.Session.ID)
	case ev.Kind == directory.InstanceRemoved && ev.Instance.Owner == p.cfg.Self:
		for s := range p.seats {
			if s.instance == ev.Instance.ID {
				delete(p.seats, s)
			}
		}
	}
}

func reservationInvocation(method string, session domain.SessionID, id domain.InstanceID) wire.Invocation {
	return wire.Invocation{Object: ObjectID, Method: method, Args: wire.Args{
		wire.Uint(uint64(session)),
		wire.Uint(uint64(id)),
	}}
}
