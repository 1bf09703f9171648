// Package memory provides an in-memory peer store.
//
// Store holds PeerRecords in a sharded concurrent map and is safe for use
// by many peers of the same process, which makes it the shared registry
// of multi-node tests and single-host development clusters. Writes are
// last-writer-wins on the record's Updated timestamp.
package memory
