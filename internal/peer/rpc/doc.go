// Package rpc implements the shared object registry and the dispatcher
// that routes invocations between peers.
//
// A shared object is registered once at startup under a stable id, with
// an explicit table of remotely invokable methods. Each method is a
// closure that receives the call context and a one-shot Reply; methods
// that simply compute a value are adapted with Object.Func.
//
// The Dispatcher turns a local call into an Action (no reply) or a
// Request (replies collated per peer and delivered once to a Callback).
// Targets are: the local peer, all other live peers, self plus others,
// the leader, a named peer, or the peer owning a named session.
//
// Registry and Dispatcher are confined to the node control loop and do
// no locking.
package rpc
