// Package tests holds end-to-end tests that run several peers in one
// process over loopback sockets.
package tests

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/zonemesh-go/internal/cli/connection"
	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/server/clusterserver"
	"github.com/yndnr/zonemesh-go/internal/server/httpserver"
	"github.com/yndnr/zonemesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/zonemesh-go/internal/storage"
	"github.com/yndnr/zonemesh-go/internal/telemetry/metric"
)

type testPeer struct {
	node   *clusterserver.Node
	gossip *clusterserver.GossipStore
	admin  *connection.Client
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startPeer runs a peer whose registry is memberlist gossip cached in an
// in-memory Badger engine, with its admin API on a test server.
func startPeer(t *testing.T, name string, seeds ...string) *testPeer {
	t.Helper()
	log := quietLogger()

	engine, err := storage.NewBadgerEngine(storage.KVConfig{InMemory: true, Badger: storage.DefaultBadgerConfig()}, log)
	if err != nil {
		t.Fatalf("%s: badger: %v", name, err)
	}
	t.Cleanup(func() { engine.Close() })

	var node atomic.Pointer[clusterserver.Node]
	gossip, err := clusterserver.NewGossipStore(clusterserver.GossipConfig{
		Name:     name,
		BindAddr: "127.0.0.1",
		Seeds:    seeds,
		Logger:   log,
		OnChange: func() {
			if n := node.Load(); n != nil {
				n.TriggerRefresh()
			}
		},
	})
	if err != nil {
		t.Fatalf("%s: gossip: %v", name, err)
	}
	t.Cleanup(func() { gossip.Shutdown() })

	metrics := metric.NewRegistry()
	n, err := clusterserver.New(clusterserver.Config{
		Self:              domain.PeerRecord{Name: name, Region: "eu", InternalHost: "127.0.0.1"},
		ListenAddr:        "127.0.0.1:0",
		Secret:            "zmk_integration",
		RefreshInterval:   300 * time.Millisecond,
		FirstRefreshDelay: time.Millisecond,
		ReconnectBackoff:  50 * time.Millisecond,
		HandshakeTimeout:  2 * time.Second,
		Zones:             map[domain.ZoneID]int32{1: 4},
		Store:             storage.NewCachedPeerStore(gossip, storage.NewPeerStore(engine), log),
		Logger:            log,
		Metrics:           metrics,
	})
	if err != nil {
		t.Fatalf("%s: node: %v", name, err)
	}
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("%s: start: %v", name, err)
	}
	node.Store(n)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n.Shutdown(ctx)
	})

	srv := httptest.NewServer(httpserver.NewRouter(httpserver.RouterConfig{
		Node:     n,
		Logger:   log,
		Gatherer: metrics.Gatherer(),
	}))
	t.Cleanup(srv.Close)

	return &testPeer{node: n, gossip: gossip, admin: connection.NewClient(srv.URL)}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func peersOf(p *testPeer) (handler.PeersResponse, error) {
	var resp handler.PeersResponse
	err := p.admin.Get(context.Background(), "/v1/peers", &resp)
	return resp, err
}

// TestCluster_ThreeGossipPeers starts three peers that find each other
// only through gossip and checks the result through the admin API.
func TestCluster_ThreeGossipPeers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	base := startPeer(t, "base")
	east := startPeer(t, "east", base.gossip.Addr())
	west := startPeer(t, "west", base.gossip.Addr())
	peers := map[string]*testPeer{"base": base, "east": east, "west": west}

	waitFor(t, "every peer to see two established channels", func() bool {
		for _, p := range peers {
			resp, err := peersOf(p)
			if err != nil || len(resp.Peers) != 3 || resp.Leader != "base" {
				return false
			}
			for _, v := range resp.Peers {
				if !v.Self && !v.Established {
					return false
				}
			}
		}
		return true
	})

	var ready map[string]string
	if err := west.admin.Get(context.Background(), "/ready", &ready); err != nil || ready["status"] != "ready" {
		t.Fatalf("west not ready: %v %v", ready, err)
	}

	ctx := context.Background()
	if _, err := east.node.AddSession(ctx, 42, "Alice"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "session visible from west's admin API", func() bool {
		var s handler.SessionView
		err := west.admin.Get(ctx, "/v1/sessions/alice", &s)
		return err == nil && s.Owner == "east" && s.ID == 42
	})

	info, err := west.node.CreateInstance(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "instance visible from base's admin API", func() bool {
		var instances []handler.InstanceView
		err := base.admin.Get(ctx, "/v1/instances?zone=1", &instances)
		return err == nil && len(instances) == 1 && instances[0].ID == info.ID.String() && instances[0].Owner == "west"
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := east.node.Shutdown(shutdownCtx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "east to leave base's view with its session", func() bool {
		resp, err := peersOf(base)
		if err != nil || len(resp.Peers) != 2 {
			return false
		}
		var sessions []handler.SessionView
		err = base.admin.Get(ctx, "/v1/sessions", &sessions)
		return err == nil && len(sessions) == 0
	})
}
