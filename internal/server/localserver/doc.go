// Package localserver serves the admin API on a Unix domain socket.
//
// Access is controlled by file system permissions: the socket is created
// with mode 0600, so only the server's user (and root) can connect. The
// handler mounted on the socket normally skips the IP allow list that
// guards the TCP admin listener.
//
// A stale socket left by a crashed process is removed on Listen. A socket
// that still accepts connections belongs to a running server and makes
// Listen fail instead.
package localserver
