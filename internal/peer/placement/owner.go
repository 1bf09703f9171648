package placement

import (
	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/peer/rpc"
	"github.com/yndnr/zonemesh-go/internal/peer/wire"
	"github.com/yndnr/zonemesh-go/internal/telemetry/metric"
)

// Register exposes the planner as a shared object.
func (p *Planner) Register(reg *rpc.Registry) error {
	obj, err := reg.Register(ObjectID, "placement")
	if err != nil {
		return err
	}
	obj.Func(MethodReservePlace, p.onReservePlace).
		Action(MethodCancelReservation, p.onCancelReservation).
		Func(MethodConfirmPlace, p.onConfirmPlace).
		Action(MethodReleasePlace, p.onReleasePlace).
		Method(MethodCreateInstance, p.onCreateInstance).
		Func(MethodAllocateInstance, p.onAllocateInstance)
	return nil
}

func reservationArgs(args wire.Args) (domain.SessionID, domain.InstanceID) {
	return domain.SessionID(args.Uint(0)), domain.InstanceID(args.Uint(1))
}

// onReservePlace takes one place of a local instance for a user. A user
// holds at most one reservation here; a new one replaces the old.
func (p *Planner) onReservePlace(call rpc.Call) wire.Args {
	session, id := reservationArgs(call.Args)
	reject := wire.Args{wire.Bool(false)}

	if cur, ok := p.held[session]; ok {
		if cur.instance == id {
			cur.timer.Stop()
			cur.gen = p.nextGen()
			cur.timer = p.startTimer(session, cur.gen)
			return wire.Args{wire.Bool(true), wire.Uint(uint64(id))}
		}
		p.returnPlace(session, metric.ReservationCancelled)
	}

	info, ok := p.dir.Instance(id)
	if !ok || info.Owner != p.cfg.Self {
		p.metrics.Reservation(metric.ReservationRejected)
		return reject
	}
	if !info.Take() {
		p.metrics.Reservation(metric.ReservationRejected)
		return reject
	}
	if err := p.dir.UpdateInstance(info); err != nil {
		p.logger.Error("reserve place failed", "instance", id.String(), "error", err)
		return reject
	}

	gen := p.nextGen()
	p.held[session] = &held{instance: id, peer: call.From, gen: gen, timer: p.startTimer(session, gen)}
	p.metrics.Reservation(metric.ReservationGranted)
	p.logger.Debug("place reserved", "session", session, "instance", id.String(), "peer", call.From, "open", info.Open)
	return wire.Args{wire.Bool(true), wire.Uint(uint64(id))}
}

func (p *Planner) nextGen() uint64 {
	p.gen++
	return p.gen
}

// startTimer expires the reservation of session made as generation gen.
// An expiry already queued on the loop when the timer is stopped finds a
// different generation and does nothing.
func (p *Planner) startTimer(session domain.SessionID, gen uint64) Timer {
	return p.cfg.AfterFunc(p.cfg.ReservationTimeout, func() {
		if cur, ok := p.held[session]; ok && cur.gen == gen {
			p.logger.Debug("reservation expired", "session", session, "instance", cur.instance.String())
			p.returnPlace(session, metric.ReservationExpired)
		}
	})
}

func (p *Planner) onCancelReservation(call rpc.Call) {
	session, id := reservationArgs(call.Args)
	if cur, ok := p.held[session]; ok && cur.instance == id {
		p.returnPlace(session, metric.ReservationCancelled)
	}
}

// returnPlace drops the reservation of session and gives its place back.
func (p *Planner) returnPlace(session domain.SessionID, outcome string) {
	cur, ok := p.held[session]
	if !ok {
		return
	}
	delete(p.held, session)
	cur.timer.Stop()
	p.give(cur.instance)
	p.metrics.Reservation(outcome)
}

func (p *Planner) give(id domain.InstanceID) {
	info, ok := p.dir.Instance(id)
	if !ok || info.Owner != p.cfg.Self {
		return
	}
	if !info.Give() {
		return
	}
	if err := p.dir.UpdateInstance(info); err != nil {
		p.logger.Error("return place failed", "instance", id.String(), "error", err)
	}
}

func (p *Planner) onConfirmPlace(call rpc.Call) wire.Args {
	session, id := reservationArgs(call.Args)
	cur, ok := p.held[session]
	if !ok || cur.instance != id {
		return wire.Args{wire.Bool(false)}
	}
	delete(p.held, session)
	cur.timer.Stop()
	p.seats[seat{session: session, instance: id}] = struct{}{}
	p.metrics.Reservation(metric.ReservationConfirmed)
	return wire.Args{wire.Bool(true)}
}

// onReleasePlace returns the place session occupies in instance id. A
// session without a reservation or confirmed place there releases nothing.
func (p *Planner) onReleasePlace(call rpc.Call) {
	session, id := reservationArgs(call.Args)
	if cur, ok := p.held[session]; ok && cur.instance == id {
		p.returnPlace(session, metric.ReservationReleased)
		return
	}
	s := seat{session: session, instance: id}
	if _, ok := p.seats[s]; !ok {
		p.logger.Debug("release without a place", "session", session, "instance", id.String(), "peer", call.From)
		return
	}
	delete(p.seats, s)
	p.give(id)
	p.metrics.Reservation(metric.ReservationReleased)
}

// onCreateInstance creates a local instance of a zone, asking the leader
// for its id. The reply carries ok and the new instance id.
func (p *Planner) onCreateInstance(call rpc.Call, reply rpc.Reply) {
	zone := domain.ZoneID(call.Args.Uint(0))
	capacity, ok := p.cfg.Zones[zone]
	if !ok {
		p.logger.Warn("create instance of unknown zone", "zone", zone, "peer", call.From)
		reply(wire.Args{wire.Bool(false)})
		return
	}

	alloc := wire.Invocation{Object: ObjectID, Method: MethodAllocateInstance, Args: wire.Args{wire.Uint(uint64(zone))}}
	p.rpc.RequestLead(alloc, func(results rpc.Results) {
		offset := uint32(results.Single().Uint(0))
		if offset == 0 {
			reply(wire.Args{wire.Bool(false)})
			return
		}
		info := domain.InstanceInfo{
			ID:       domain.NewInstanceID(zone, offset),
			Owner:    p.cfg.Self,
			Region:   p.cfg.Region,
			Open:     capacity,
			Capacity: capacity,
		}
		if err := p.dir.AddInstance(info); err != nil {
			p.logger.Error("create instance failed", "instance", info.ID.String(), "error", err)
			reply(wire.Args{wire.Bool(false)})
			return
		}
		p.logger.Info("instance created", "instance", info.ID.String(), "capacity", capacity)
		reply(wire.Args{wire.Bool(true), wire.Uint(uint64(info.ID))})
	})
}

// onAllocateInstance hands out the next instance offset of a zone. It runs
// on the leader; the counter is seeded from the directory so a new leader
// does not reuse known ids.
func (p *Planner) onAllocateInstance(call rpc.Call) wire.Args {
	zone := domain.ZoneID(call.Args.Uint(0))
	next := p.offsets[zone]
	if known := p.dir.MaxOffset(zone); known > next {
		next = known
	}
	next++
	p.offsets[zone] = next
	return wire.Args{wire.Uint(uint64(next))}
}

// Held returns the number of reservations held on local instances.
func (p *Planner) Held() int {
	return len(p.held)
}

// Seated returns the number of confirmed places on local instances.
func (p *Planner) Seated() int {
	return len(p.seats)
}
