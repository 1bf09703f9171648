package membership

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
)

// Default timings.
const (
	DefaultRefreshInterval   = 60 * time.Second
	DefaultFirstRefreshDelay = 5 * time.Second
	storeTimeout             = 10 * time.Second
)

// PeerStore is the shared, eventually consistent peer registry.
type PeerStore interface {
	// LoadPeers returns every known record, live or not.
	LoadPeers(ctx context.Context) ([]domain.PeerRecord, error)

	// StorePeer creates or replaces the record of r.Name.
	StorePeer(ctx context.Context, r domain.PeerRecord) error
}

// ApplyFunc hands loaded records to the control loop.
type ApplyFunc func(records []domain.PeerRecord, now time.Time)

// RefresherConfig configures a Refresher.
type RefresherConfig struct {
	Self              domain.PeerRecord
	Store             PeerStore
	Apply             ApplyFunc
	RefreshInterval   time.Duration
	FirstRefreshDelay time.Duration
	Now               func() time.Time
	Logger            *slog.Logger
}

// Refresher publishes the local record and polls the store.
type Refresher struct {
	cfg     RefresherConfig
	logger  *slog.Logger
	trigger chan struct{}

	mu   sync.Mutex
	self domain.PeerRecord
}

// NewRefresher creates a refresher.
func NewRefresher(cfg RefresherConfig) *Refresher {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.FirstRefreshDelay < 0 {
		cfg.FirstRefreshDelay = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		cfg:     cfg,
		logger:  logger.With("component", "refresher"),
		trigger: make(chan struct{}, 1),
		self:    cfg.Self,
	}
}

// Trigger requests a refresh as soon as possible.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes after the first delay and then every interval until ctx
// is done.
func (r *Refresher) Run(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.FirstRefreshDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-r.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		if err := r.Refresh(ctx); err != nil {
			r.logger.Warn("membership refresh failed", "error", err)
		}
		timer.Reset(r.cfg.RefreshInterval)
	}
}

// Refresh writes the local record, loads all records and applies them.
func (r *Refresher) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	now := r.cfg.Now()
	r.mu.Lock()
	r.self.Active = true
	r.self.Updated = now
	self := r.self
	r.mu.Unlock()

	if err := r.cfg.Store.StorePeer(ctx, self); err != nil {
		return fmt.Errorf("store self: %w", err)
	}
	records, err := r.cfg.Store.LoadPeers(ctx)
	if err != nil {
		return fmt.Errorf("load peers: %w", err)
	}
	r.cfg.Apply(records, now)
	return nil
}

// Deregister marks the local record inactive so other peers drop it
// without waiting for the liveness cutoff.
func (r *Refresher) Deregister(ctx context.Context) error {
	r.mu.Lock()
	r.self.Active = false
	r.self.Updated = r.cfg.Now()
	self := r.self
	r.mu.Unlock()

	if err := r.cfg.Store.StorePeer(ctx, self); err != nil {
		return fmt.Errorf("deregister: %w", err)
	}
	r.logger.Info("peer marked inactive", "peer", self.Name)
	return nil
}
