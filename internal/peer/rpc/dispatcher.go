package rpc

import (
	"log/slog"
	"sort"

	"github.com/yndnr/zonemesh-go/internal/peer/wire"
	"github.com/yndnr/zonemesh-go/internal/telemetry/metric"
)

// Transport is the dispatcher's view of the cluster.
type Transport interface {
	// Self returns the local peer name.
	Self() string

	// Leader returns the current leader name.
	Leader() string

	// Peers returns the live peers other than self.
	Peers() []string

	// Send queues msg on the channel to peer. It reports false when the
	// peer is unknown or its channel is not established.
	Send(peer string, msg *wire.Message) bool
}

// SessionLocator resolves the peer owning a session.
type SessionLocator interface {
	SessionOwner(name string) (peer string, ok bool)
}

// Results maps peer names to their replies. Peers that were lost or
// unreachable before answering are absent.
type Results map[string]wire.Args

// Single returns the only reply, or nil when there is none.
func (r Results) Single() wire.Args {
	for _, args := range r {
		return args
	}
	return nil
}

// Peers returns the answering peers in sorted order.
func (r Results) Peers() []string {
	out := make([]string, 0, len(r))
	for p := range r {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Callback receives the collated replies of a Request exactly once.
type Callback func(Results)

type pendingRequest struct {
	id        uint32
	method    string
	remaining map[string]struct{}
	results   Results
	callback  Callback
	lost      bool
}

// Options configures a Dispatcher.
type Options struct {
	Sessions SessionLocator
	Logger   *slog.Logger
	Metrics  *metric.Registry
}

// Dispatcher routes Actions and Requests and collates replies.
type Dispatcher struct {
	registry  *Registry
	transport Transport
	sessions  SessionLocator
	logger    *slog.Logger
	metrics   *metric.Registry

	nextID  uint32
	pending map[uint32]*pendingRequest
}

// NewDispatcher creates a dispatcher over registry and transport.
func NewDispatcher(registry *Registry, transport Transport, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:  registry,
		transport: transport,
		sessions:  opts.Sessions,
		logger:    logger,
		metrics:   opts.Metrics,
		pending:   make(map[uint32]*pendingRequest),
	}
}

// SetSessionLocator sets the locator used for session routing.
func (d *Dispatcher) SetSessionLocator(s SessionLocator) {
	d.sessions = s
}

// Registry returns the shared object registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Pending returns the number of outstanding requests.
func (d *Dispatcher) Pending() int {
	return len(d.pending)
}

// Invoke runs inv on the local peer only.
func (d *Dispatcher) Invoke(inv wire.Invocation) {
	d.execute(d.transport.Self(), "", inv, nil)
}

// InvokeOthers sends inv to every live peer except self.
func (d *Dispatcher) InvokeOthers(inv wire.Invocation) {
	msg := &wire.Message{Type: wire.MsgExecute, Invocation: inv}
	for _, p := range d.transport.Peers() {
		d.send(p, msg)
	}
}

// InvokeAll runs inv locally and on every other live peer.
func (d *Dispatcher) InvokeAll(inv wire.Invocation) {
	d.InvokeOthers(inv)
	d.Invoke(inv)
}

// InvokeLead runs inv on the leader.
func (d *Dispatcher) InvokeLead(inv wire.Invocation) {
	self, leader := d.transport.Self(), d.transport.Leader()
	if leader == self {
		d.execute(self, "", inv, nil)
		return
	}
	d.send(leader, &wire.Message{Type: wire.MsgExecuteLead, Invocation: inv})
}

// InvokePeer runs inv on the named peer. Unknown peers are ignored.
func (d *Dispatcher) InvokePeer(peer string, inv wire.Invocation) {
	if peer == d.transport.Self() {
		d.execute(peer, "", inv, nil)
		return
	}
	d.send(peer, &wire.Message{Type: wire.MsgExecute, Invocation: inv})
}

// InvokeSession runs inv on the peer owning session. Unknown sessions
// are ignored.
func (d *Dispatcher) InvokeSession(session string, inv wire.Invocation) {
	owner, ok := d.sessionOwner(session)
	if !ok {
		d.logger.Debug("invoke on unknown session dropped", "session", session, "method", inv.Method)
		return
	}
	if owner == d.transport.Self() {
		d.execute(owner, session, inv, nil)
		return
	}
	d.send(owner, &wire.Message{Type: wire.MsgExecuteSession, Session: session, Invocation: inv})
}

// Request runs inv locally and delivers the reply under the local name.
func (d *Dispatcher) Request(inv wire.Invocation, cb Callback) {
	d.request(inv, cb, []string{d.transport.Self()}, wire.MsgRequest, "")
}

// RequestOthers sends inv to every other live peer. With no other peers
// cb fires immediately with empty Results.
func (d *Dispatcher) RequestOthers(inv wire.Invocation, cb Callback) {
	d.request(inv, cb, d.transport.Peers(), wire.MsgRequest, "")
}

// RequestAll runs inv on self and every other live peer.
func (d *Dispatcher) RequestAll(inv wire.Invocation, cb Callback) {
	targets := append([]string{d.transport.Self()}, d.transport.Peers()...)
	d.request(inv, cb, targets, wire.MsgRequest, "")
}

// RequestLead runs inv on the leader.
func (d *Dispatcher) RequestLead(inv wire.Invocation, cb Callback) {
	d.request(inv, cb, []string{d.transport.Leader()}, wire.MsgRequestLead, "")
}

// RequestPeer runs inv on the named peer. If the peer is not reachable cb
// fires immediately with empty Results.
func (d *Dispatcher) RequestPeer(peer string, inv wire.Invocation, cb Callback) {
	d.request(inv, cb, []string{peer}, wire.MsgRequest, "")
}

// RequestSession runs inv on the peer owning session. If the session is
// unknown cb fires immediately with empty Results.
func (d *Dispatcher) RequestSession(session string, inv wire.Invocation, cb Callback) {
	owner, ok := d.sessionOwner(session)
	if !ok {
		cb(Results{})
		return
	}
	d.request(inv, cb, []string{owner}, wire.MsgRequestSession, session)
}

func (d *Dispatcher) request(inv wire.Invocation, cb Callback, targets []string, msgType wire.MessageType, session string) {
	self := d.transport.Self()

	d.nextID++
	if d.nextID == 0 {
		d.nextID++
	}
	pr := &pendingRequest{
		id:        d.nextID,
		method:    inv.Method,
		remaining: make(map[string]struct{}, len(targets)),
		results:   make(Results, len(targets)),
		callback:  cb,
	}
	for _, t := range targets {
		pr.remaining[t] = struct{}{}
	}
	if len(pr.remaining) == 0 {
		cb(pr.results)
		return
	}
	d.pending[pr.id] = pr
	d.metrics.SetPending(len(d.pending))

	local := false
	msg := &wire.Message{Type: msgType, ID: pr.id, Session: session, Invocation: inv}
	for _, t := range targets {
		if t == self {
			local = true
			continue
		}
		if !d.send(t, msg) {
			d.drop(pr, t)
		}
	}
	if local {
		d.execute(self, session, inv, func(args wire.Args) {
			d.answer(pr.id, self, args)
		})
	}
	d.maybeComplete(pr)
}

// HandleMessage processes a message received from peer.
func (d *Dispatcher) HandleMessage(from string, msg *wire.Message) {
	d.metrics.MessageReceived(msg.Type.String())

	switch msg.Type {
	case wire.MsgExecute, wire.MsgExecuteLead:
		d.execute(from, "", msg.Invocation, nil)

	case wire.MsgRequest, wire.MsgRequestLead:
		d.execute(from, "", msg.Invocation, d.responder(from, msg.ID))

	case wire.MsgExecuteSession:
		if d.ownsSession(msg.Session) {
			d.execute(from, msg.Session, msg.Invocation, nil)
		}

	case wire.MsgRequestSession:
		reply := d.responder(from, msg.ID)
		if !d.ownsSession(msg.Session) {
			reply(nil)
			return
		}
		d.execute(from, msg.Session, msg.Invocation, reply)

	case wire.MsgResponse:
		d.answer(msg.ID, from, msg.Args)

	default:
		d.logger.Debug("ignoring message", "from", from, "type", msg.Type.String())
	}
}

// PeerLost resolves every pending request still waiting on peer as if the
// peer had answered, without adding a result for it.
func (d *Dispatcher) PeerLost(peer string) {
	for _, pr := range d.sortedPending() {
		if _, ok := pr.remaining[peer]; !ok {
			continue
		}
		d.logger.Debug("peer lost with request in flight", "peer", peer, "request_id", pr.id, "method", pr.method)
		d.drop(pr, peer)
		d.maybeComplete(pr)
	}
}

func (d *Dispatcher) sortedPending() []*pendingRequest {
	out := make([]*pendingRequest, 0, len(d.pending))
	for _, pr := range d.pending {
		out = append(out, pr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (d *Dispatcher) responder(to string, id uint32) Reply {
	return d.once(func(args wire.Args) {
		d.send(to, &wire.Message{Type: wire.MsgResponse, ID: id, Args: args})
	})
}

func (d *Dispatcher) once(fn Reply) Reply {
	done := false
	return func(args wire.Args) {
		if done {
			return
		}
		done = true
		fn(args)
	}
}

// execute runs inv against the local registry. reply is nil for Actions.
// Unknown targets are a no-op for Actions and an empty reply for Requests.
func (d *Dispatcher) execute(from, session string, inv wire.Invocation, reply Reply) {
	if reply == nil {
		reply = func(wire.Args) {}
	} else {
		reply = d.once(reply)
	}

	h, ok := d.registry.Lookup(inv.Object, inv.Method)
	if !ok {
		d.logger.Debug("unknown invocation target", "from", from, "object", inv.Object, "method", inv.Method)
		reply(nil)
		return
	}
	h(Call{From: from, Session: session, Args: inv.Args}, reply)
}

func (d *Dispatcher) answer(id uint32, from string, args wire.Args) {
	pr, ok := d.pending[id]
	if !ok {
		d.logger.Debug("response for unknown request", "from", from, "request_id", id)
		return
	}
	if _, ok := pr.remaining[from]; !ok {
		d.logger.Debug("unexpected responder", "from", from, "request_id", id)
		return
	}
	delete(pr.remaining, from)
	pr.results[from] = args
	d.maybeComplete(pr)
}

func (d *Dispatcher) drop(pr *pendingRequest, peer string) {
	delete(pr.remaining, peer)
	pr.lost = true
}

func (d *Dispatcher) maybeComplete(pr *pendingRequest) {
	if len(pr.remaining) > 0 {
		return
	}
	if _, ok := d.pending[pr.id]; !ok {
		return
	}
	delete(d.pending, pr.id)
	d.metrics.SetPending(len(d.pending))
	d.metrics.RequestResolved(pr.lost)
	pr.callback(pr.results)
}

func (d *Dispatcher) send(peer string, msg *wire.Message) bool {
	if !d.transport.Send(peer, msg) {
		d.logger.Debug("peer unreachable", "peer", peer, "type", msg.Type.String(), "method", msg.Invocation.Method)
		return false
	}
	d.metrics.MessageSent(msg.Type.String())
	return true
}

func (d *Dispatcher) sessionOwner(name string) (string, bool) {
	if d.sessions == nil {
		return "", false
	}
	return d.sessions.SessionOwner(name)
}

func (d *Dispatcher) ownsSession(name string) bool {
	owner, ok := d.sessionOwner(name)
	return ok && owner == d.transport.Self()
}
