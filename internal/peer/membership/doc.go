// Package membership tracks live peers and the channels to them.
//
// A Refresher periodically writes the local PeerRecord to the peer store
// and reads every record back. The Tracker turns those records into the
// live-peer set and the leader, opens channels to new peers, retargets
// channels whose address changed and closes channels to peers that are
// no longer live.
//
// Between any two peers there is exactly one channel: the peer whose name
// sorts first dials, the other accepts. The Tracker runs on the control
// loop; the Refresher does its store I/O on its own goroutine and posts
// the result.
package membership
