package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/yndnr/zonemesh-go/internal/peer/wire"
	"github.com/yndnr/zonemesh-go/pkg/crypto/adaptive"
)

// Role tells which side opened the connection.
type Role int

const (
	RoleOutbound Role = iota
	RoleInbound
)

func (r Role) String() string {
	if r == RoleInbound {
		return "inbound"
	}
	return "outbound"
}

// State is the lifecycle state of a Channel.
type State int

const (
	StateConnecting State = iota
	StateHandshaking
	StateEstablished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	default:
		return "closed"
	}
}

// Default timings.
const (
	DefaultBackoff          = 5 * time.Second
	DefaultDialTimeout      = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultQueueSize        = 1024
	closeWriteTimeout       = time.Second
)

var (
	// ErrSelfConnect is returned when a handshake names the local peer.
	ErrSelfConnect = errors.New("channel: handshake from self")

	// ErrWrongPeer is returned when the dialed address answers with another name.
	ErrWrongPeer = errors.New("channel: unexpected peer")
)

// Config configures channels of one peer.
type Config struct {
	// Self is the local peer name sent in the handshake.
	Self string

	// Secret is the cluster shared secret.
	Secret string

	// Cipher selects the record AEAD. Every peer must use the same one.
	Cipher adaptive.CipherType

	// Backoff is the fixed delay before an outbound channel redials.
	Backoff time.Duration

	// DialTimeout bounds one connection attempt.
	DialTimeout time.Duration

	// HandshakeTimeout bounds key exchange plus handshake.
	HandshakeTimeout time.Duration

	// QueueSize is the outbound message queue capacity.
	QueueSize int

	// Dial overrides net.Dialer (tests).
	Dial func(ctx context.Context, addr string) (net.Conn, error)

	// Logger for logging.
	Logger *slog.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Cipher == "" {
		out.Cipher = adaptive.CipherChaCha20
	}
	if out.Backoff <= 0 {
		out.Backoff = DefaultBackoff
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = DefaultDialTimeout
	}
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if out.QueueSize <= 0 {
		out.QueueSize = DefaultQueueSize
	}
	if out.Dial == nil {
		timeout := out.DialTimeout
		out.Dial = func(ctx context.Context, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Handler receives channel events. Methods are called from channel
// goroutines and must hand work off instead of blocking.
type Handler interface {
	// ChannelUp is called each time the channel reaches Established.
	ChannelUp(c *Channel)

	// ChannelDown is called when an established connection ends. If
	// c.State() is StateClosed the channel is finished for good.
	ChannelDown(c *Channel, err error)

	// ChannelMessage delivers one message, in receive order.
	ChannelMessage(c *Channel, msg *wire.Message)
}

// Channel is the connection to exactly one remote peer.
type Channel struct {
	cfg     Config
	role    Role
	remote  string
	handler Handler
	logger  *slog.Logger

	mu     sync.Mutex
	state  State
	target string
	sc     *secureConn
	outbox chan []byte

	closeCh   chan struct{}
	closeOnce sync.Once
	doneCh    chan struct{}
}

func newChannel(cfg Config, role Role, remote string, h Handler) *Channel {
	return &Channel{
		cfg:     cfg,
		role:    role,
		remote:  remote,
		handler: h,
		logger:  cfg.Logger.With("remote", remote, "role", role.String()),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Dial starts an outbound channel to remote at addr. Connection attempts
// run in the background until Close.
func Dial(remote, addr string, cfg Config, h Handler) *Channel {
	c := newChannel(cfg.withDefaults(), RoleOutbound, remote, h)
	c.target = addr
	go c.dialLoop()
	return c
}

// Accept runs the accepting side of the handshake on conn and, on
// success, starts serving the channel. conn is closed on failure without
// any response.
func Accept(conn net.Conn, cfg Config, h Handler) (*Channel, error) {
	cfg = cfg.withDefaults()

	_ = conn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout))
	sc, hs, err := handshakeServer(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	c := newChannel(cfg, RoleInbound, hs.Sender, h)
	c.target = conn.RemoteAddr().String()
	go func() {
		defer close(c.doneCh)
		err := c.serve(sc)
		byOwner := c.closed()
		c.finish()
		if !byOwner {
			c.down(err)
		}
	}()
	return c, nil
}

// handshakeServer authenticates the dialing peer and answers with the
// local handshake. Nothing is written back when authentication fails.
func handshakeServer(conn net.Conn, cfg Config) (*secureConn, wire.Handshake, error) {
	sc, err := secureServer(conn, cfg.Cipher)
	if err != nil {
		return nil, wire.Handshake{}, err
	}
	frame, err := sc.ReadRecord()
	if err != nil {
		return nil, wire.Handshake{}, err
	}
	hs, err := wire.DecodeHandshake(frame, cfg.Secret)
	if err != nil {
		return nil, wire.Handshake{}, protocolError(err)
	}
	if hs.Sender == cfg.Self {
		return nil, wire.Handshake{}, protocolError(ErrSelfConnect)
	}

	reply, err := wire.Handshake{Secret: cfg.Secret, Sender: cfg.Self}.Encode()
	if err != nil {
		return nil, wire.Handshake{}, err
	}
	if err := sc.WriteRecord(reply); err != nil {
		return nil, wire.Handshake{}, err
	}
	return sc, hs, nil
}

// handshakeClient authenticates to the accepting peer and checks that the
// answer comes from the expected remote.
func handshakeClient(conn net.Conn, cfg Config, remote string) (*secureConn, error) {
	sc, err := secureClient(conn, cfg.Cipher)
	if err != nil {
		return nil, err
	}
	frame, err := wire.Handshake{Secret: cfg.Secret, Sender: cfg.Self}.Encode()
	if err != nil {
		return nil, err
	}
	if err := sc.WriteRecord(frame); err != nil {
		return nil, err
	}

	reply, err := sc.ReadRecord()
	if err != nil {
		return nil, err
	}
	hs, err := wire.DecodeHandshake(reply, cfg.Secret)
	if err != nil {
		return nil, protocolError(err)
	}
	if hs.Sender != remote {
		return nil, protocolError(fmt.Errorf("%w: expected %q, got %q", ErrWrongPeer, remote, hs.Sender))
	}
	return sc, nil
}

// Remote returns the remote peer name.
func (c *Channel) Remote() string { return c.remote }

// Role returns which side opened the channel.
func (c *Channel) Role() Role { return c.role }

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Target returns the address being dialed (outbound) or the remote
// address (inbound).
func (c *Channel) Target() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// SetTarget changes the dial address of an outbound channel. A live
// connection to the old address is dropped so the next attempt uses addr.
func (c *Channel) SetTarget(addr string) {
	c.mu.Lock()
	if c.role != RoleOutbound || c.target == addr {
		c.mu.Unlock()
		return
	}
	c.target = addr
	sc := c.sc
	c.mu.Unlock()

	c.logger.Info("peer address changed", "target", addr)
	if sc != nil {
		sc.Close()
	}
}

// Send queues msg for delivery. It reports false when the channel is not
// established or the queue is full; delivery is never guaranteed.
func (c *Channel) Send(msg *wire.Message) bool {
	frame, err := msg.Encode()
	if err != nil {
		c.logger.Error("encode message failed", "type", msg.Type.String(), "error", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateEstablished || c.outbox == nil {
		return false
	}
	select {
	case c.outbox <- frame:
		return true
	default:
		c.logger.Warn("outbound queue full, dropping message", "type", msg.Type.String())
		return false
	}
}

// Close releases the channel. It does not block: the writer goroutine
// sends a best-effort Close message, bounded by closeWriteTimeout, and
// then drops the connection.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)

		c.mu.Lock()
		sc := c.sc
		c.mu.Unlock()

		// Unblocks a writer stuck on a peer that stopped reading.
		if sc != nil {
			_ = sc.conn.SetWriteDeadline(time.Now().Add(closeWriteTimeout))
		}
	})
}

// Done is closed when the channel reached StateClosed and its goroutines exited.
func (c *Channel) Done() <-chan struct{} {
	return c.doneCh
}

func (c *Channel) closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = s
	}
	c.mu.Unlock()
}

func (c *Channel) finish() {
	c.Close()
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
}

func (c *Channel) down(err error) {
	if c.handler != nil {
		c.handler.ChannelDown(c, err)
	}
}

func (c *Channel) dialLoop() {
	defer close(c.doneCh)

	for !c.closed() {
		established, err := c.connectOnce()
		if errors.Is(err, ErrProtocol) {
			c.logger.Error("protocol violation, closing channel", "error", err)
			byOwner := c.closed()
			c.finish()
			if !byOwner {
				c.down(err)
			}
			return
		}
		if c.closed() {
			break
		}
		if established {
			c.down(err)
		}
		c.logger.Debug("channel attempt ended, retrying", "error", err, "backoff", c.cfg.Backoff)

		t := time.NewTimer(c.cfg.Backoff)
		select {
		case <-t.C:
		case <-c.closeCh:
			t.Stop()
		}
	}
	c.finish()
}

// connectOnce dials, handshakes and serves one connection. It returns
// when the connection ends; established tells whether ChannelUp fired.
func (c *Channel) connectOnce() (established bool, err error) {
	c.setState(StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	conn, err := c.cfg.Dial(ctx, c.Target())
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	c.setState(StateHandshaking)
	_ = conn.SetDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	sc, err := handshakeClient(conn, c.cfg, c.remote)
	if err != nil {
		conn.Close()
		return false, fmt.Errorf("handshake: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	return true, c.serve(sc)
}

// serve runs an established connection until it fails or is closed.
func (c *Channel) serve(sc *secureConn) error {
	outbox := make(chan []byte, c.cfg.QueueSize)

	c.mu.Lock()
	if c.closed() {
		c.mu.Unlock()
		sc.Close()
		return net.ErrClosed
	}
	c.sc = sc
	c.outbox = outbox
	c.state = StateEstablished
	c.mu.Unlock()

	c.logger.Info("peer channel established")
	if c.handler != nil {
		c.handler.ChannelUp(c)
	}

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(sc, outbox, stop)
	}()

	err := c.readLoop(sc)

	c.mu.Lock()
	c.sc = nil
	c.outbox = nil
	c.mu.Unlock()

	close(stop)
	sc.Close()
	<-writerDone

	c.logger.Info("peer channel lost", "error", err)
	return err
}

func (c *Channel) readLoop(sc *secureConn) error {
	for {
		frame, err := sc.ReadRecord()
		if err != nil {
			return err
		}
		msg, err := wire.DecodeMessage(frame)
		if err != nil {
			return protocolError(err)
		}
		if msg.Type == wire.MsgClose {
			return io.EOF
		}
		if c.handler != nil {
			c.handler.ChannelMessage(c, msg)
		}
	}
}

func (c *Channel) writeLoop(sc *secureConn, outbox <-chan []byte, stop <-chan struct{}) {
	for {
		select {
		case frame := <-outbox:
			if err := sc.WriteRecord(frame); err != nil {
				sc.Close()
				return
			}
		case <-stop:
			return
		case <-c.closeCh:
			c.sendClose(sc, outbox)
			return
		}
	}
}

// sendClose flushes queued frames and a Close message, then closes the
// connection so the read loop ends.
func (c *Channel) sendClose(sc *secureConn, outbox <-chan []byte) {
	defer sc.Close()
	_ = sc.conn.SetWriteDeadline(time.Now().Add(closeWriteTimeout))
	for {
		select {
		case frame := <-outbox:
			if err := sc.WriteRecord(frame); err != nil {
				return
			}
			continue
		default:
		}
		break
	}
	if frame, err := (&wire.Message{Type: wire.MsgClose}).Encode(); err == nil {
		_ = sc.WriteRecord(frame)
	}
}
