// Package directory implements the replicated session and instance
// directory.
//
// Every peer owns the SessionInfo and InstanceInfo records it creates and
// broadcasts each change to all other live peers. Receivers overwrite
// their cached copy; changes whose sender does not match the record owner
// are ignored. When a peer is lost its records are purged locally, and
// when a channel comes up each side resends the records it owns.
//
// Sessions are indexed by id and by lower-cased display name. Instances
// are grouped per zone for placement queries. Local sessions are also
// held in a generation-counted handle table so that callbacks can detect
// a session that went away while they were pending.
package directory
