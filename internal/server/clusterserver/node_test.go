package clusterserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/peer/placement"
	"github.com/yndnr/zonemesh-go/internal/peer/rpc"
	"github.com/yndnr/zonemesh-go/internal/peer/wire"
	"github.com/yndnr/zonemesh-go/internal/storage/memory"
	"github.com/yndnr/zonemesh-go/internal/telemetry/metric"
)

const (
	testZone   domain.ZoneID = 7
	testObject uint32        = 100
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(name, region string, store *memory.Store) Config {
	return Config{
		Self:              domain.PeerRecord{Name: name, Region: region, InternalHost: "127.0.0.1"},
		ListenAddr:        "127.0.0.1:0",
		Secret:            "zmk_test-secret",
		RefreshInterval:   200 * time.Millisecond,
		FirstRefreshDelay: time.Millisecond,
		ReconnectBackoff:  20 * time.Millisecond,
		HandshakeTimeout:  time.Second,
		Zones:             map[domain.ZoneID]int32{testZone: 2},
		Store:             store,
		Logger:            quietLogger(),
	}
}

func startNode(t *testing.T, cfg Config) *Node {
	t.Helper()
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%s): %v", cfg.Self.Name, err)
	}
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("Start(%s): %v", cfg.Self.Name, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = n.Shutdown(ctx)
	})
	return n
}

func startCluster(t *testing.T, names ...string) (map[string]*Node, *memory.Store) {
	t.Helper()
	store := memory.New()
	nodes := make(map[string]*Node, len(names))
	for _, name := range names {
		nodes[name] = startNode(t, testConfig(name, "eu", store))
	}
	waitConverged(t, nodes)
	return nodes, store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// waitConverged waits until every node has an established channel to
// every other node.
func waitConverged(t *testing.T, nodes map[string]*Node) {
	t.Helper()
	waitFor(t, "channels established", func() bool {
		for _, n := range nodes {
			s, err := n.Snapshot(context.Background())
			if err != nil || len(s.Peers) != len(nodes) {
				return false
			}
			for _, p := range s.Peers {
				if !p.Self && !p.Established {
					return false
				}
			}
		}
		return true
	})
}

func TestNode_ClusterConverges(t *testing.T) {
	nodes, _ := startCluster(t, "base", "east", "west")

	for name, n := range nodes {
		s, err := n.Snapshot(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if s.Leader != "base" {
			t.Errorf("%s: leader = %q, want base", name, s.Leader)
		}
		if !n.Ready() {
			t.Errorf("%s: not ready", name)
		}
		stats := n.Stats()
		if stats.LivePeers != 2 || stats.Channels != 2 || stats.Leader != (name == "base") {
			t.Errorf("%s: stats = %+v", name, stats)
		}
	}
}

func TestNode_SessionReplication(t *testing.T) {
	nodes, _ := startCluster(t, "base", "east", "west")
	ctx := context.Background()

	if _, err := nodes["east"].AddSession(ctx, 42, "Alice"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "session replicated", func() bool {
		info, ok, err := nodes["west"].GetSessionInfo(ctx, "alice")
		return err == nil && ok && info.Owner == "east" && info.ID == 42
	})

	if err := nodes["west"].RemoveSession(ctx, 42); !errors.Is(err, domain.ErrSessionNotOwned) {
		t.Errorf("remove on non-owner: %v", err)
	}
	if err := nodes["east"].RemoveSession(ctx, 42); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "session removal replicated", func() bool {
		s, err := nodes["base"].Snapshot(ctx)
		return err == nil && len(s.Sessions) == 0
	})
}

func TestNode_PlacementEndToEnd(t *testing.T) {
	nodes, _ := startCluster(t, "base", "east")
	ctx := context.Background()

	if _, err := nodes["east"].AddSession(ctx, 1, "alice"); err != nil {
		t.Fatal(err)
	}
	p, err := nodes["east"].ReserveInstancePlace(ctx, placement.Request{Session: 1, Zone: testZone})
	if err != nil {
		t.Fatalf("ReserveInstancePlace: %v", err)
	}
	if p.Instance.Zone() != testZone {
		t.Errorf("placement = %+v", p)
	}
	if err := nodes["east"].ConfirmPlace(ctx, 1); err != nil {
		t.Fatalf("ConfirmPlace: %v", err)
	}

	waitFor(t, "instance replicated with one place taken", func() bool {
		for _, n := range nodes {
			s, err := n.Snapshot(ctx)
			if err != nil || len(s.Instances) != 1 || s.Instances[0].Open != 1 {
				return false
			}
		}
		return true
	})

	if err := nodes["east"].ReleasePlace(ctx, 1, p.Instance); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "place released", func() bool {
		s, err := nodes["base"].Snapshot(ctx)
		return err == nil && len(s.Instances) == 1 && s.Instances[0].Open == 2
	})
}

func TestNode_CreateInstance(t *testing.T) {
	nodes, _ := startCluster(t, "base", "east")
	ctx := context.Background()

	first, err := nodes["east"].CreateInstance(ctx, testZone)
	if err != nil {
		t.Fatal(err)
	}
	second, err := nodes["base"].CreateInstance(ctx, testZone)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Errorf("leader allocated %s twice", first.ID)
	}
	if first.Owner != "east" || first.Open != 2 || first.Capacity != 2 {
		t.Errorf("first = %+v", first)
	}
	if _, err := nodes["east"].CreateInstance(ctx, testZone+1); !errors.Is(err, domain.ErrZoneUnknown) {
		t.Errorf("unknown zone: %v", err)
	}
}

// A request waiting on a peer that goes away completes with the answers
// of the remaining peers.
func TestNode_RequestCompletesWhenPeerLost(t *testing.T) {
	nodes, _ := startCluster(t, "base", "east", "west")
	ctx := context.Background()

	var (
		mu      sync.Mutex
		stalled []rpc.Reply
	)
	for name, n := range nodes {
		self := name
		err := n.Dispatch(ctx, func(d *rpc.Dispatcher) {
			obj, err := d.Registry().Register(testObject, "echo")
			if err != nil {
				t.Error(err)
				return
			}
			if self == "west" {
				obj.Method("name", func(_ rpc.Call, reply rpc.Reply) {
					mu.Lock()
					stalled = append(stalled, reply)
					mu.Unlock()
				})
				return
			}
			obj.Func("name", func(rpc.Call) wire.Args { return wire.Args{wire.String(self)} })
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	type outcome struct {
		results rpc.Results
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := nodes["base"].Collect(ctx, func(d *rpc.Dispatcher, cb rpc.Callback) {
			d.RequestAll(wire.Invocation{Object: testObject, Method: "name"}, cb)
		})
		done <- outcome{r, err}
	}()

	waitFor(t, "west to receive the request", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(stalled) == 1
	})
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := nodes["west"].Shutdown(shutdownCtx); err != nil {
		t.Fatal(err)
	}

	select {
	case o := <-done:
		if o.err != nil {
			t.Fatal(o.err)
		}
		peers := o.results.Peers()
		if len(peers) != 2 || peers[0] != "base" || peers[1] != "east" {
			t.Errorf("answering peers = %v, want [base east]", peers)
		}
		if got := o.results["east"].String(0); got != "east" {
			t.Errorf("east answered %q", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("request never completed")
	}
}

func TestNode_RegisterObjectWhileServing(t *testing.T) {
	nodes, _ := startCluster(t, "base", "east")
	ctx := context.Background()
	const pingObject uint32 = 200

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			_, _ = nodes["base"].Collect(ctx, func(d *rpc.Dispatcher, cb rpc.Callback) {
				d.RequestAll(wire.Invocation{Object: pingObject, Method: "ping"}, cb)
			})
		}
	}()

	for name, n := range nodes {
		self := name
		err := n.RegisterObject(ctx, pingObject, "ping", func(o *rpc.Object) {
			o.Func("ping", func(rpc.Call) wire.Args { return wire.Args{wire.String(self)} })
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, "both peers to answer ping", func() bool {
		r, err := nodes["base"].Collect(ctx, func(d *rpc.Dispatcher, cb rpc.Callback) {
			d.RequestAll(wire.Invocation{Object: pingObject, Method: "ping"}, cb)
		})
		return err == nil && r["base"].String(0) == "base" && r["east"].String(0) == "east"
	})
	close(stop)
	<-done

	err := nodes["east"].RegisterObject(ctx, pingObject, "again", nil)
	if !errors.Is(err, domain.ErrObjectRegistered) {
		t.Errorf("duplicate RegisterObject error = %v, want ErrObjectRegistered", err)
	}
}

func TestNode_ShutdownMarksInactive(t *testing.T) {
	nodes, store := startCluster(t, "base", "east")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := nodes["east"].Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	r, ok := store.Peer("east")
	if !ok || r.Active {
		t.Errorf("east record after shutdown = %+v", r)
	}
	waitFor(t, "base to drop east", func() bool {
		s, err := nodes["base"].Snapshot(ctx)
		return err == nil && len(s.Peers) == 1
	})

	if _, err := nodes["east"].AddSession(ctx, 1, "late"); !errors.Is(err, domain.ErrNotRunning) {
		t.Errorf("AddSession after shutdown: %v", err)
	}
}

func TestNode_WrongSecretNeverConnects(t *testing.T) {
	store := memory.New()
	base := startNode(t, testConfig("base", "eu", store))
	cfg := testConfig("east", "eu", store)
	cfg.Secret = "zmk_other"
	reg := metric.NewRegistry()
	cfg.Metrics = reg
	east := startNode(t, cfg)

	waitFor(t, "east to refuse the handshake", func() bool {
		return testutil.ToFloat64(reg.HandshakeFailures) >= 1
	})

	for _, n := range []*Node{base, east} {
		s, err := n.Snapshot(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		for _, p := range s.Peers {
			if !p.Self && p.Established {
				t.Errorf("%s established a channel to %s with a mismatched secret", n.Name(), p.Record.Name)
			}
		}
	}
}

func TestNode_NotStarted(t *testing.T) {
	n, err := New(testConfig("base", "eu", memory.New()))
	if err != nil {
		t.Fatal(err)
	}
	defer n.Shutdown(context.Background())

	if _, err := n.AddSession(context.Background(), 1, "x"); !errors.Is(err, domain.ErrNotRunning) {
		t.Errorf("AddSession before Start: %v", err)
	}
	if n.Self().Port == 0 {
		t.Error("listener port not published in the peer record")
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
		want error
	}{
		{"no name", func(c *Config) { c.Self.Name = "" }, domain.ErrPeerNameRequired},
		{"no store", func(c *Config) { c.Store = nil }, domain.ErrPeerStore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("base", "eu", memory.New())
			tt.edit(&cfg)
			if _, err := New(cfg); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}
