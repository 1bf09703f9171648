package clusterserver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/yndnr/zonemesh-go/internal/peer/channel"
	"github.com/yndnr/zonemesh-go/internal/peer/wire"
)

// links connects channel goroutines and membership transitions to the
// control loop.
type links struct {
	n *Node
}

// ChannelUp registers inbound channels with the tracker on first
// establishment and marks the link up.
func (l *links) ChannelUp(c *channel.Channel) {
	n := l.n
	ok := n.loop.Post(func() {
		if c.Role() == channel.RoleInbound {
			if !n.tracker.Attach(c.Remote(), c) {
				c.Close()
				return
			}
			if !n.tracker.Known(c.Remote()) {
				n.logger.Info("inbound channel from peer not yet in the store", "remote", c.Remote())
				n.refresher.Trigger()
			}
		}
		n.tracker.LinkUp(c.Remote(), c)
	})
	if !ok {
		c.Close()
	}
}

func (l *links) ChannelDown(c *channel.Channel, err error) {
	final := c.State() == channel.StateClosed
	l.n.logger.Debug("channel down", "remote", c.Remote(), "final", final, "error", err)
	l.n.loop.Post(func() {
		l.n.tracker.LinkDown(c.Remote(), c, final)
	})
}

func (l *links) ChannelMessage(c *channel.Channel, msg *wire.Message) {
	l.n.loop.Post(func() {
		l.n.rpc.HandleMessage(c.Remote(), msg)
	})
}

// PeerUp resends locally owned records to a newly connected peer.
func (l *links) PeerUp(name string) {
	l.n.dir.Resync(name)
}

// PeerLost resolves requests waiting on the peer and forgets its records.
func (l *links) PeerLost(name string) {
	l.n.rpc.PeerLost(name)
	l.n.dir.Purge(name)
}

const acceptRetryDelay = 100 * time.Millisecond

// acceptLoop accepts peer connections until the listener is closed.
// Handshakes beyond the admission rate are refused by closing the
// connection.
func (n *Node) acceptLoop(ctx context.Context) {
	events := &links{n: n}
	for {
		conn, err := n.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			n.logger.Warn("accept failed", "error", err)
			time.Sleep(acceptRetryDelay)
			continue
		}
		if !n.limiter.Allow() {
			n.logger.Warn("inbound handshake rate exceeded, dropping connection", "remote_addr", conn.RemoteAddr().String())
			n.metrics.HandshakeFailed()
			conn.Close()
			continue
		}
		go func() {
			if _, err := channel.Accept(conn, n.chanCfg, events); err != nil {
				n.metrics.HandshakeFailed()
				n.logger.Warn("inbound handshake failed", "remote_addr", conn.RemoteAddr().String(), "error", err)
			}
		}()
	}
}
