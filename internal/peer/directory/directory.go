package directory

import (
	"log/slog"
	"sort"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/peer/rpc"
	"github.com/yndnr/zonemesh-go/internal/peer/wire"
	"github.com/yndnr/zonemesh-go/pkg/handle"
)

// ObjectID is the shared object id of the directory.
const ObjectID uint32 = 1

// Replicated methods.
const (
	MethodSessionAdded    = "sessionAdded"
	MethodSessionUpdated  = "sessionUpdated"
	MethodSessionRemoved  = "sessionRemoved"
	MethodInstanceAdded   = "instanceAdded"
	MethodInstanceUpdated = "instanceUpdated"
	MethodInstanceRemoved = "instanceRemoved"
	MethodFindSession     = "findSession"
	MethodSessionCount    = "sessionCount"
)

// Dispatcher is the subset of rpc.Dispatcher used for replication.
type Dispatcher interface {
	InvokeOthers(inv wire.Invocation)
	InvokePeer(peer string, inv wire.Invocation)
	RequestOthers(inv wire.Invocation, cb rpc.Callback)
}

// EventKind identifies a directory change.
type EventKind int

const (
	SessionAdded EventKind = iota
	SessionUpdated
	SessionRemoved
	InstanceAdded
	InstanceUpdated
	InstanceRemoved
)

func (k EventKind) String() string {
	switch k {
	case SessionAdded:
		return "session_added"
	case SessionUpdated:
		return "session_updated"
	case SessionRemoved:
		return "session_removed"
	case InstanceAdded:
		return "instance_added"
	case InstanceUpdated:
		return "instance_updated"
	default:
		return "instance_removed"
	}
}

// Event describes one change. Exactly one of Session or Instance is set.
type Event struct {
	Kind     EventKind
	Session  *domain.SessionInfo
	Instance *domain.InstanceInfo
}

// Listener is notified of every change after it is applied.
type Listener func(Event)

// Directory holds the local view of all sessions and instances. It is
// confined to the control loop.
type Directory struct {
	self   string
	rpc    Dispatcher
	logger *slog.Logger

	sessions  map[domain.SessionID]*domain.SessionInfo
	byName    map[string]*domain.SessionInfo
	local     *handle.Table[domain.SessionID]
	handles   map[domain.SessionID]handle.Handle
	instances map[domain.InstanceID]*domain.InstanceInfo
	zones     map[domain.ZoneID]map[domain.InstanceID]*domain.InstanceInfo

	listeners []Listener
}

// New creates a directory for the local peer self.
func New(self string, d Dispatcher, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		self:      self,
		rpc:       d,
		logger:    logger.With("component", "directory"),
		sessions:  make(map[domain.SessionID]*domain.SessionInfo),
		byName:    make(map[string]*domain.SessionInfo),
		local:     handle.New[domain.SessionID](),
		handles:   make(map[domain.SessionID]handle.Handle),
		instances: make(map[domain.InstanceID]*domain.InstanceInfo),
		zones:     make(map[domain.ZoneID]map[domain.InstanceID]*domain.InstanceInfo),
	}
}

// Subscribe registers a change listener.
func (d *Directory) Subscribe(l Listener) {
	d.listeners = append(d.listeners, l)
}

func (d *Directory) emit(kind EventKind, s *domain.SessionInfo, i *domain.InstanceInfo) {
	if len(d.listeners) == 0 {
		return
	}
	ev := Event{Kind: kind}
	if s != nil {
		cp := *s
		ev.Session = &cp
	}
	if i != nil {
		cp := *i
		ev.Instance = &cp
	}
	for _, l := range d.listeners {
		l(ev)
	}
}

// ---- sessions owned by this peer ----

// AddSession registers a session owned by this peer and broadcasts it.
// A cached record of another owner is overwritten.
func (d *Directory) AddSession(id domain.SessionID, name string) (handle.Handle, error) {
	if existing, ok := d.sessions[id]; ok && existing.Owner == d.self {
		return handle.Handle{}, domain.ErrSessionConflict
	}
	info := &domain.SessionInfo{ID: id, Name: name, Owner: d.self}
	d.putSession(info)
	h := d.local.Insert(id)
	d.handles[id] = h

	d.emit(SessionAdded, info, nil)
	d.rpc.InvokeOthers(sessionInvocation(MethodSessionAdded, info))
	return h, nil
}

// RenameSession changes the display name of a local session.
func (d *Directory) RenameSession(id domain.SessionID, name string) error {
	info, err := d.ownedSession(id)
	if err != nil {
		return err
	}
	d.dropName(info)
	info.Name = name
	d.byName[info.NameKey()] = info

	d.emit(SessionUpdated, info, nil)
	d.rpc.InvokeOthers(sessionInvocation(MethodSessionUpdated, info))
	return nil
}

// RemoveSession removes a local session and broadcasts the removal.
func (d *Directory) RemoveSession(id domain.SessionID) error {
	info, err := d.ownedSession(id)
	if err != nil {
		return err
	}
	d.deleteSession(info)
	if h, ok := d.handles[id]; ok {
		d.local.Remove(h)
		delete(d.handles, id)
	}

	d.emit(SessionRemoved, info, nil)
	d.rpc.InvokeOthers(sessionInvocation(MethodSessionRemoved, info))
	return nil
}

// LocalSession resolves a handle to a live local session.
func (d *Directory) LocalSession(h handle.Handle) (domain.SessionInfo, bool) {
	id, ok := d.local.Get(h)
	if !ok {
		return domain.SessionInfo{}, false
	}
	info, ok := d.sessions[id]
	if !ok {
		return domain.SessionInfo{}, false
	}
	return *info, true
}

// SessionHandle returns the handle of a local session.
func (d *Directory) SessionHandle(id domain.SessionID) (handle.Handle, bool) {
	h, ok := d.handles[id]
	return h, ok
}

// LocalSessionCount returns the number of sessions owned by this peer.
func (d *Directory) LocalSessionCount() int {
	return d.local.Len()
}

func (d *Directory) ownedSession(id domain.SessionID) (*domain.SessionInfo, error) {
	info, ok := d.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if info.Owner != d.self {
		return nil, domain.ErrSessionNotOwned
	}
	return info, nil
}

// ---- session queries ----

// Session returns the record for id.
func (d *Directory) Session(id domain.SessionID) (domain.SessionInfo, bool) {
	info, ok := d.sessions[id]
	if !ok {
		return domain.SessionInfo{}, false
	}
	return *info, true
}

// SessionByName returns the record for a display name, case-insensitively.
func (d *Directory) SessionByName(name string) (domain.SessionInfo, bool) {
	info, ok := d.byName[domain.NameKey(name)]
	if !ok {
		return domain.SessionInfo{}, false
	}
	return *info, true
}

// SessionOwner implements rpc.SessionLocator.
func (d *Directory) SessionOwner(name string) (string, bool) {
	info, ok := d.byName[domain.NameKey(name)]
	if !ok {
		return "", false
	}
	return info.Owner, true
}

// Sessions returns all known sessions ordered by id.
func (d *Directory) Sessions() []domain.SessionInfo {
	out := make([]domain.SessionInfo, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) putSession(info *domain.SessionInfo) {
	if old, ok := d.sessions[info.ID]; ok {
		d.dropName(old)
	}
	d.sessions[info.ID] = info
	d.byName[info.NameKey()] = info
}

func (d *Directory) deleteSession(info *domain.SessionInfo) {
	delete(d.sessions, info.ID)
	d.dropName(info)
}

func (d *Directory) dropName(info *domain.SessionInfo) {
	if cur, ok := d.byName[info.NameKey()]; ok && cur.ID == info.ID {
		delete(d.byName, info.NameKey())
	}
}

// ---- instances owned by this peer ----

// AddInstance registers an instance owned by this peer and broadcasts it.
func (d *Directory) AddInstance(info domain.InstanceInfo) error {
	if info.Owner != d.self {
		return domain.ErrInstanceNotOwned
	}
	clampOpen(&info)
	rec := &info
	d.putInstance(rec)

	d.emit(InstanceAdded, nil, rec)
	d.rpc.InvokeOthers(instanceInvocation(MethodInstanceAdded, rec))
	return nil
}

// UpdateInstance replaces a local instance record and broadcasts it.
func (d *Directory) UpdateInstance(info domain.InstanceInfo) error {
	cur, ok := d.instances[info.ID]
	if !ok {
		return domain.ErrInstanceNotFound
	}
	if cur.Owner != d.self || info.Owner != d.self {
		return domain.ErrInstanceNotOwned
	}
	clampOpen(&info)
	*cur = info

	d.emit(InstanceUpdated, nil, cur)
	d.rpc.InvokeOthers(instanceInvocation(MethodInstanceUpdated, cur))
	return nil
}

// RemoveInstance removes a local instance and broadcasts the removal.
func (d *Directory) RemoveInstance(id domain.InstanceID) error {
	cur, ok := d.instances[id]
	if !ok {
		return domain.ErrInstanceNotFound
	}
	if cur.Owner != d.self {
		return domain.ErrInstanceNotOwned
	}
	d.deleteInstance(cur)

	d.emit(InstanceRemoved, nil, cur)
	d.rpc.InvokeOthers(instanceInvocation(MethodInstanceRemoved, cur))
	return nil
}

// ---- instance queries ----

// Instance returns the record for id.
func (d *Directory) Instance(id domain.InstanceID) (domain.InstanceInfo, bool) {
	info, ok := d.instances[id]
	if !ok {
		return domain.InstanceInfo{}, false
	}
	return *info, true
}

// Instances returns all known instances ordered by id.
func (d *Directory) Instances() []domain.InstanceInfo {
	out := make([]domain.InstanceInfo, 0, len(d.instances))
	for _, i := range d.instances {
		out = append(out, *i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ZoneGroup returns the instances of zone ordered by open places
// ascending, then region, then id.
func (d *Directory) ZoneGroup(zone domain.ZoneID) []domain.InstanceInfo {
	group := d.zones[zone]
	out := make([]domain.InstanceInfo, 0, len(group))
	for _, i := range group {
		out = append(out, *i)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Open != out[b].Open {
			return out[a].Open < out[b].Open
		}
		if out[a].Region != out[b].Region {
			return out[a].Region < out[b].Region
		}
		return out[a].ID < out[b].ID
	})
	return out
}

// MaxOffset returns the highest instance offset known for zone.
func (d *Directory) MaxOffset(zone domain.ZoneID) uint32 {
	var highest uint32
	for id := range d.zones[zone] {
		if off := id.Offset(); off > highest {
			highest = off
		}
	}
	return highest
}

func (d *Directory) putInstance(info *domain.InstanceInfo) {
	d.instances[info.ID] = info
	zone := info.ID.Zone()
	group, ok := d.zones[zone]
	if !ok {
		group = make(map[domain.InstanceID]*domain.InstanceInfo)
		d.zones[zone] = group
	}
	group[info.ID] = info
}

func (d *Directory) deleteInstance(info *domain.InstanceInfo) {
	delete(d.instances, info.ID)
	zone := info.ID.Zone()
	if group, ok := d.zones[zone]; ok {
		delete(group, info.ID)
		if len(group) == 0 {
			delete(d.zones, zone)
		}
	}
}

func clampOpen(info *domain.InstanceInfo) {
	if info.Capacity < 0 {
		info.Capacity = 0
	}
	if info.Open < 0 {
		info.Open = 0
	}
	if info.Open > info.Capacity {
		info.Open = info.Capacity
	}
}
