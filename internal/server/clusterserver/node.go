package clusterserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/infra/eventloop"
	"github.com/yndnr/zonemesh-go/internal/peer/channel"
	"github.com/yndnr/zonemesh-go/internal/peer/directory"
	"github.com/yndnr/zonemesh-go/internal/peer/membership"
	"github.com/yndnr/zonemesh-go/internal/peer/placement"
	"github.com/yndnr/zonemesh-go/internal/peer/rpc"
	"github.com/yndnr/zonemesh-go/internal/telemetry/metric"
)

const statsTimeout = time.Second

// Node is one server process of the cluster. It owns the peer listener,
// the control loop and every component confined to it. Exported methods
// are safe for concurrent use; they hand work to the control loop.
type Node struct {
	cfg     Config
	self    domain.PeerRecord
	logger  *slog.Logger
	metrics *metric.Registry

	ln      net.Listener
	limiter *rate.Limiter
	chanCfg channel.Config

	loop      *eventloop.Loop
	registry  *rpc.Registry
	tracker   *membership.Tracker
	rpc       *rpc.Dispatcher
	dir       *directory.Directory
	planner   *placement.Planner
	refresher *membership.Refresher

	running  atomic.Bool
	ready    atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New opens the peer listener and builds the node. Nothing runs until
// Start.
func New(cfg Config) (*Node, error) {
	cfg = cfg.withDefaults()
	if cfg.Self.Name == "" {
		return nil, domain.ErrPeerNameRequired
	}
	if cfg.Store == nil {
		return nil, domain.ErrPeerStore.WithDetails("no peer store configured")
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	self := cfg.Self
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	if self.InternalHost == "" {
		self.InternalHost = host
	}
	if self.Port == 0 {
		self.Port, _ = strconv.Atoi(port)
	}
	if err := self.Validate(); err != nil {
		ln.Close()
		return nil, err
	}

	logger := cfg.Logger.With("peer", self.Name)
	n := &Node{
		cfg:     cfg,
		self:    self,
		logger:  logger,
		metrics: cfg.Metrics,
		ln:      ln,
		limiter: rate.NewLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst),
		chanCfg: channel.Config{
			Self:             self.Name,
			Secret:           cfg.Secret,
			Cipher:           cfg.Cipher,
			Backoff:          cfg.ReconnectBackoff,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Logger:           logger,
		},
	}
	if err := n.build(); err != nil {
		ln.Close()
		return nil, err
	}

	if n.metrics != nil {
		if err := n.metrics.Register(metric.NewCollector(n.Stats)); err != nil {
			ln.Close()
			return nil, fmt.Errorf("register node collector: %w", err)
		}
	}
	return n, nil
}

func (n *Node) build() error {
	events := &links{n: n}

	n.loop = eventloop.New(eventloop.DefaultQueueSize, n.logger)
	n.tracker = membership.NewTracker(membership.TrackerConfig{
		Self:            n.self,
		RefreshInterval: n.cfg.RefreshInterval,
		Dial: func(remote, addr string) membership.Link {
			return channel.Dial(remote, addr, n.chanCfg, events)
		},
		Events:  events,
		Logger:  n.logger,
		Metrics: n.metrics,
	})

	n.registry = rpc.NewRegistry()
	n.rpc = rpc.NewDispatcher(n.registry, n.tracker, rpc.Options{Logger: n.logger, Metrics: n.metrics})
	n.dir = directory.New(n.self.Name, n.rpc, n.logger)
	n.rpc.SetSessionLocator(n.dir)

	n.planner = placement.New(placement.Config{
		Self:               n.self.Name,
		Region:             n.self.Region,
		Zones:              n.cfg.Zones,
		ReservationTimeout: n.cfg.ReservationTimeout,
		AfterFunc: func(d time.Duration, fn func()) placement.Timer {
			return n.loop.AfterFunc(d, fn)
		},
		Logger:  n.logger,
		Metrics: n.metrics,
	}, n.dir, n.rpc, n.tracker)

	if err := n.dir.Register(n.registry); err != nil {
		return err
	}
	if err := n.planner.Register(n.registry); err != nil {
		return err
	}

	n.refresher = membership.NewRefresher(membership.RefresherConfig{
		Self:              n.self,
		Store:             n.cfg.Store,
		RefreshInterval:   n.cfg.RefreshInterval,
		FirstRefreshDelay: n.cfg.FirstRefreshDelay,
		Logger:            n.logger,
		Apply: func(records []domain.PeerRecord, now time.Time) {
			n.loop.Post(func() {
				n.tracker.Apply(records, now)
				n.ready.Store(true)
			})
		},
	})
	return nil
}

// Name returns the local peer name.
func (n *Node) Name() string { return n.self.Name }

// Self returns the local peer record as published.
func (n *Node) Self() domain.PeerRecord { return n.self }

// Addr returns the peer listener address.
func (n *Node) Addr() net.Addr { return n.ln.Addr() }

// Ready reports whether the first membership refresh has been applied.
func (n *Node) Ready() bool { return n.ready.Load() }

// Start runs the control loop, the listener and the refresher.
func (n *Node) Start(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return errors.New("clusterserver: node already started")
	}
	ctx, n.cancel = context.WithCancel(ctx)

	n.wg.Add(3)
	go func() {
		defer n.wg.Done()
		if err := n.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, eventloop.ErrStopped) {
			n.logger.Error("control loop stopped", "error", err)
		}
	}()
	go func() {
		defer n.wg.Done()
		n.acceptLoop(ctx)
	}()
	go func() {
		<-ctx.Done()
		n.ln.Close()
	}()
	go func() {
		defer n.wg.Done()
		_ = n.refresher.Run(ctx)
	}()

	n.logger.Info("peer node started",
		"addr", n.ln.Addr().String(),
		"region", n.self.Region,
		"refresh_interval", n.cfg.RefreshInterval)
	return nil
}

// Shutdown marks the peer inactive in the store, closes every channel and
// stops the node.
func (n *Node) Shutdown(ctx context.Context) error {
	var err error
	n.stopOnce.Do(func() {
		if derr := n.refresher.Deregister(ctx); derr != nil {
			n.logger.Warn("deregister failed", "error", derr)
		}
		n.ln.Close()

		if n.running.Load() {
			_ = n.loop.Call(ctx, n.tracker.Close)
			n.cancel()
		}
		n.loop.Stop()

		done := make(chan struct{})
		go func() {
			n.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			n.logger.Info("peer node stopped")
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

// Refresh runs one membership refresh immediately.
func (n *Node) Refresh(ctx context.Context) error {
	return n.refresher.Refresh(ctx)
}

// TriggerRefresh schedules a membership refresh without waiting for it.
// Safe to call before Start and from any goroutine.
func (n *Node) TriggerRefresh() {
	n.refresher.Trigger()
}

// do runs fn on the control loop and waits for it.
func (n *Node) do(ctx context.Context, fn func()) error {
	if !n.running.Load() {
		return domain.ErrNotRunning
	}
	if err := n.loop.Call(ctx, fn); err != nil {
		if errors.Is(err, eventloop.ErrStopped) {
			return domain.ErrNotRunning
		}
		return err
	}
	return nil
}

// await starts an asynchronous control loop operation and waits for its
// completion callback.
func await[T any](ctx context.Context, n *Node, start func(done func(T))) (T, error) {
	var zero T
	ch := make(chan T, 1)
	done := func(v T) {
		select {
		case ch <- v:
		default:
		}
	}
	if err := n.do(ctx, func() { start(done) }); err != nil {
		return zero, err
	}
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-n.loop.Done():
		return zero, domain.ErrNotRunning
	}
}
