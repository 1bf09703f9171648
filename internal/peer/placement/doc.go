// Package placement seats users in zone instances across the cluster.
//
// A placement first looks for an existing instance of the zone with the
// most open places, preferring the requested region, and picks uniformly
// at random among equally open candidates. When every instance is full,
// the least loaded peer in the region creates a new instance; the leader
// allocates its id. The chosen owner then reserves one place for the user
// for a limited time, until the session confirms or releases it.
//
// Placement is not transactional across peers. Concurrent placements may
// create more instances than needed; that only leaves spare capacity.
package placement
