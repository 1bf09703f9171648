package rpc

import (
	"fmt"
	"sort"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/peer/wire"
)

// Call is the context of one invocation.
type Call struct {
	// From is the calling peer; the local peer name for local calls.
	From string

	// Session is the target session name for session-routed calls.
	Session string

	Args wire.Args
}

// Reply delivers the result of a call. Only the first invocation counts.
type Reply func(wire.Args)

// Handler implements one method. It may call reply synchronously or keep
// it and call it later from the control loop.
type Handler func(call Call, reply Reply)

// Func is a method that returns its result directly.
type Func func(call Call) wire.Args

// Object is a registered shared object.
type Object struct {
	id      uint32
	name    string
	methods map[string]Handler
}

// ID returns the object id.
func (o *Object) ID() uint32 { return o.id }

// Name returns the object name used in logs.
func (o *Object) Name() string { return o.name }

// Method registers a callback-style method.
func (o *Object) Method(name string, h Handler) *Object {
	o.methods[name] = h
	return o
}

// Func registers a value-returning method; its result is sent back
// automatically.
func (o *Object) Func(name string, f Func) *Object {
	return o.Method(name, func(call Call, reply Reply) {
		reply(f(call))
	})
}

// Action registers a method without a result. Requests to it are
// answered with an empty argument list.
func (o *Object) Action(name string, f func(call Call)) *Object {
	return o.Method(name, func(call Call, reply Reply) {
		f(call)
		reply(nil)
	})
}

// Methods returns the registered method names in sorted order.
func (o *Object) Methods() []string {
	out := make([]string, 0, len(o.methods))
	for m := range o.methods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Registry maps object ids to shared objects. Objects are never removed.
type Registry struct {
	objects map[uint32]*Object
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{objects: make(map[uint32]*Object)}
}

// Register adds a shared object under id and returns it for method
// registration.
func (r *Registry) Register(id uint32, name string) (*Object, error) {
	if existing, ok := r.objects[id]; ok {
		return nil, domain.ErrObjectRegistered.WithDetails(
			fmt.Sprintf("object %d already registered as %s", id, existing.name))
	}
	o := &Object{id: id, name: name, methods: make(map[string]Handler)}
	r.objects[id] = o
	return o, nil
}

// Lookup finds the handler for inv.
func (r *Registry) Lookup(object uint32, method string) (Handler, bool) {
	o, ok := r.objects[object]
	if !ok {
		return nil, false
	}
	h, ok := o.methods[method]
	return h, ok
}

// Object returns the registered object with id.
func (r *Registry) Object(id uint32) (*Object, bool) {
	o, ok := r.objects[id]
	return o, ok
}
