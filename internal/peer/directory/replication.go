package directory

import (
	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/peer/rpc"
	"github.com/yndnr/zonemesh-go/internal/peer/wire"
)

// Register exposes the directory as a shared object.
func (d *Directory) Register(reg *rpc.Registry) error {
	obj, err := reg.Register(ObjectID, "directory")
	if err != nil {
		return err
	}
	obj.Action(MethodSessionAdded, d.onSessionAdded).
		Action(MethodSessionUpdated, d.onSessionUpdated).
		Action(MethodSessionRemoved, d.onSessionRemoved).
		Action(MethodInstanceAdded, d.onInstanceAdded).
		Action(MethodInstanceUpdated, d.onInstanceUpdated).
		Action(MethodInstanceRemoved, d.onInstanceRemoved).
		Func(MethodFindSession, d.onFindSession).
		Func(MethodSessionCount, func(rpc.Call) wire.Args {
			return wire.Args{wire.Int(int64(d.LocalSessionCount()))}
		})
	return nil
}

func sessionInvocation(method string, s *domain.SessionInfo) wire.Invocation {
	return wire.Invocation{Object: ObjectID, Method: method, Args: sessionArgs(s)}
}

func sessionArgs(s *domain.SessionInfo) wire.Args {
	return wire.Args{wire.Uint(uint64(s.ID)), wire.String(s.Name), wire.String(s.Owner)}
}

func parseSession(args wire.Args) *domain.SessionInfo {
	return &domain.SessionInfo{
		ID:    domain.SessionID(args.Uint(0)),
		Name:  args.String(1),
		Owner: args.String(2),
	}
}

func instanceInvocation(method string, i *domain.InstanceInfo) wire.Invocation {
	return wire.Invocation{Object: ObjectID, Method: method, Args: wire.Args{
		wire.Uint(uint64(i.ID)),
		wire.String(i.Owner),
		wire.String(i.Region),
		wire.Int(int64(i.Open)),
		wire.Int(int64(i.Capacity)),
	}}
}

func parseInstance(args wire.Args) *domain.InstanceInfo {
	info := &domain.InstanceInfo{
		ID:       domain.InstanceID(args.Uint(0)),
		Owner:    args.String(1),
		Region:   args.String(2),
		Open:     int32(args.Int(3)),
		Capacity: int32(args.Int(4)),
	}
	clampOpen(info)
	return info
}

// ---- remote changes ----

func (d *Directory) onSessionAdded(call rpc.Call) {
	info := parseSession(call.Args)
	if !d.acceptFrom(call.From, info.Owner, "session", info.ID) {
		return
	}
	if cur, ok := d.sessions[info.ID]; ok && cur.Owner == d.self {
		d.logger.Warn("peer claims a session owned locally", "peer", call.From, "session", info.ID)
		return
	}
	d.putSession(info)
	d.emit(SessionAdded, info, nil)
}

func (d *Directory) onSessionUpdated(call rpc.Call) {
	info := parseSession(call.Args)
	if !d.acceptFrom(call.From, info.Owner, "session", info.ID) {
		return
	}
	cur, ok := d.sessions[info.ID]
	if !ok || cur.Owner != info.Owner {
		return
	}
	d.putSession(info)
	d.emit(SessionUpdated, info, nil)
}

func (d *Directory) onSessionRemoved(call rpc.Call) {
	info := parseSession(call.Args)
	cur, ok := d.sessions[info.ID]
	if !ok || cur.Owner != call.From {
		return
	}
	d.deleteSession(cur)
	d.emit(SessionRemoved, cur, nil)
}

func (d *Directory) onInstanceAdded(call rpc.Call) {
	info := parseInstance(call.Args)
	if !d.acceptFrom(call.From, info.Owner, "instance", info.ID) {
		return
	}
	if cur, ok := d.instances[info.ID]; ok && cur.Owner == d.self {
		d.logger.Warn("peer claims an instance owned locally", "peer", call.From, "instance", info.ID.String())
		return
	}
	if cur, ok := d.instances[info.ID]; ok {
		*cur = *info
		info = cur
	} else {
		d.putInstance(info)
	}
	d.emit(InstanceAdded, nil, info)
}

func (d *Directory) onInstanceUpdated(call rpc.Call) {
	info := parseInstance(call.Args)
	if !d.acceptFrom(call.From, info.Owner, "instance", info.ID) {
		return
	}
	cur, ok := d.instances[info.ID]
	if !ok || cur.Owner != info.Owner {
		return
	}
	*cur = *info
	d.emit(InstanceUpdated, nil, cur)
}

func (d *Directory) onInstanceRemoved(call rpc.Call) {
	info := parseInstance(call.Args)
	cur, ok := d.instances[info.ID]
	if !ok || cur.Owner != call.From {
		return
	}
	d.deleteInstance(cur)
	d.emit(InstanceRemoved, nil, cur)
}

func (d *Directory) onFindSession(call rpc.Call) wire.Args {
	info, ok := d.byName[domain.NameKey(call.Args.String(0))]
	if !ok || info.Owner != d.self {
		return wire.Args{wire.Bool(false)}
	}
	return append(wire.Args{wire.Bool(true)}, sessionArgs(info)...)
}

func (d *Directory) acceptFrom(sender, owner, kind string, id any) bool {
	if sender == owner && owner != d.self {
		return true
	}
	d.logger.Debug("ignoring change from non-owner", "peer", sender, "owner", owner, "kind", kind, "id", id)
	return false
}

// ---- membership hooks ----

// Purge removes every record owned by peer, as if the peer had removed
// them itself. Listeners see the removals.
func (d *Directory) Purge(peer string) {
	if peer == d.self {
		return
	}
	sessions, instances := 0, 0
	for _, s := range d.Sessions() {
		if s.Owner != peer {
			continue
		}
		cur := d.sessions[s.ID]
		d.deleteSession(cur)
		d.emit(SessionRemoved, cur, nil)
		sessions++
	}
	for _, i := range d.Instances() {
		if i.Owner != peer {
			continue
		}
		cur := d.instances[i.ID]
		d.deleteInstance(cur)
		d.emit(InstanceRemoved, nil, cur)
		instances++
	}
	if sessions+instances > 0 {
		d.logger.Info("purged records of lost peer", "peer", peer, "sessions", sessions, "instances", instances)
	}
}

// Resync sends every locally owned record to peer.
func (d *Directory) Resync(peer string) {
	for _, s := range d.Sessions() {
		if s.Owner == d.self {
			d.rpc.InvokePeer(peer, sessionInvocation(MethodSessionAdded, &s))
		}
	}
	for _, i := range d.Instances() {
		if i.Owner == d.self {
			d.rpc.InvokePeer(peer, instanceInvocation(MethodInstanceAdded, &i))
		}
	}
}

// ---- lookup ----

// GetSessionInfo resolves a session by display name. Cached records answer
// immediately; otherwise the other peers are asked and a positive answer
// is cached. cb receives ok=false when no peer knows the name.
func (d *Directory) GetSessionInfo(name string, cb func(domain.SessionInfo, bool)) {
	if info, ok := d.SessionByName(name); ok {
		cb(info, true)
		return
	}
	inv := wire.Invocation{Object: ObjectID, Method: MethodFindSession, Args: wire.Args{wire.String(name)}}
	d.rpc.RequestOthers(inv, func(results rpc.Results) {
		for _, peer := range results.Peers() {
			args := results[peer]
			if !args.Bool(0) {
				continue
			}
			info := parseSession(args[1:])
			if info.Owner != peer {
				continue
			}
			if _, known := d.sessions[info.ID]; !known {
				d.putSession(info)
				d.emit(SessionAdded, info, nil)
			}
			cb(*info, true)
			return
		}
		cb(domain.SessionInfo{}, false)
	})
}
