package directory

import (
	"errors"
	"sort"
	"testing"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/peer/rpc"
	"github.com/yndnr/zonemesh-go/internal/peer/wire"
)

type envelope struct {
	from, to string
	msg      *wire.Message
}

type cluster struct {
	t     *testing.T
	peers map[string]*member
	queue []envelope
}

type member struct {
	name string
	c    *cluster
	rpc  *rpc.Dispatcher
	dir  *Directory
	seen []Event
}

func newCluster(t *testing.T, names ...string) *cluster {
	c := &cluster{t: t, peers: make(map[string]*member)}
	for _, name := range names {
		m := &member{name: name, c: c}
		reg := rpc.NewRegistry()
		m.rpc = rpc.NewDispatcher(reg, m, rpc.Options{})
		m.dir = New(name, m.rpc, nil)
		m.rpc.SetSessionLocator(m.dir)
		if err := m.dir.Register(reg); err != nil {
			t.Fatalf("Register: %v", err)
		}
		m.dir.Subscribe(func(ev Event) { m.seen = append(m.seen, ev) })
		c.peers[name] = m
	}
	return c
}

func (m *member) Self() string { return m.name }

func (m *member) Leader() string {
	names := append([]string{m.name}, m.Peers()...)
	sort.Strings(names)
	return names[0]
}

func (m *member) Peers() []string {
	var out []string
	for name := range m.c.peers {
		if name != m.name {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (m *member) Send(peer string, msg *wire.Message) bool {
	if _, ok := m.c.peers[peer]; !ok {
		return false
	}
	m.c.queue = append(m.c.queue, envelope{from: m.name, to: peer, msg: msg})
	return true
}

func (c *cluster) flush() {
	for len(c.queue) > 0 {
		e := c.queue[0]
		c.queue = c.queue[1:]
		c.peers[e.to].rpc.HandleMessage(e.from, e.msg)
	}
}

func (c *cluster) dir(name string) *Directory { return c.peers[name].dir }

func TestDirectory_SessionReplication(t *testing.T) {
	c := newCluster(t, "base", "east", "west")
	east := c.dir("east")

	h, err := east.AddSession(10, "Alice")
	if err != nil {
		t.Fatalf("AddSession: %v", err)
	}
	c.flush()

	for _, name := range []string{"base", "west"} {
		info, ok := c.dir(name).SessionByName("alice")
		if !ok || info.ID != 10 || info.Owner != "east" {
			t.Errorf("%s: SessionByName = %+v, %v", name, info, ok)
		}
	}
	if owner, ok := c.dir("base").SessionOwner("ALICE"); !ok || owner != "east" {
		t.Errorf("SessionOwner = %q, %v", owner, ok)
	}

	if err := east.RenameSession(10, "Alicia"); err != nil {
		t.Fatalf("RenameSession: %v", err)
	}
	c.flush()
	if _, ok := c.dir("base").SessionByName("alice"); ok {
		t.Error("old name still indexed after rename")
	}
	if info, ok := c.dir("base").SessionByName("alicia"); !ok || info.ID != 10 {
		t.Errorf("renamed session not indexed: %+v", info)
	}

	if err := east.RemoveSession(10); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}
	c.flush()
	for _, name := range []string{"base", "east", "west"} {
		if _, ok := c.dir(name).Session(10); ok {
			t.Errorf("%s still has session 10", name)
		}
		if _, ok := c.dir(name).SessionByName("alicia"); ok {
			t.Errorf("%s still indexes alicia", name)
		}
	}
	if _, ok := east.LocalSession(h); ok {
		t.Error("handle must be invalid after removal")
	}
}

func TestDirectory_LocalSessionErrors(t *testing.T) {
	c := newCluster(t, "base", "east")
	east, base := c.dir("east"), c.dir("base")

	if _, err := east.AddSession(1, "a"); err != nil {
		t.Fatal(err)
	}
	c.flush()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate add", func() error { _, err := east.AddSession(1, "b"); return err }(), domain.ErrSessionConflict},
		{"rename unknown", east.RenameSession(2, "x"), domain.ErrSessionNotFound},
		{"remove unknown", east.RemoveSession(2), domain.ErrSessionNotFound},
		{"rename foreign", base.RenameSession(1, "x"), domain.ErrSessionNotOwned},
		{"remove foreign", base.RemoveSession(1), domain.ErrSessionNotOwned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("got %v, want %v", tt.err, tt.want)
			}
		})
	}
}

func TestDirectory_IgnoresNonOwner(t *testing.T) {
	c := newCluster(t, "base", "east", "west")
	base := c.dir("base")

	// west forwards a record claiming east as owner.
	spoof := sessionInvocation(MethodSessionAdded, &domain.SessionInfo{ID: 5, Name: "mallory", Owner: "east"})
	c.peers["west"].rpc.InvokePeer("base", spoof)
	c.flush()
	if _, ok := base.Session(5); ok {
		t.Fatal("record accepted from a peer that does not own it")
	}

	if _, err := c.dir("east").AddSession(5, "eve"); err != nil {
		t.Fatal(err)
	}
	c.flush()

	update := sessionInvocation(MethodSessionUpdated, &domain.SessionInfo{ID: 5, Name: "x", Owner: "west"})
	c.peers["west"].rpc.InvokePeer("base", update)
	remove := sessionInvocation(MethodSessionRemoved, &domain.SessionInfo{ID: 5})
	c.peers["west"].rpc.InvokePeer("base", remove)
	c.flush()

	if info, ok := base.Session(5); !ok || info.Name != "eve" || info.Owner != "east" {
		t.Errorf("session 5 = %+v, %v", info, ok)
	}

	unknown := sessionInvocation(MethodSessionUpdated, &domain.SessionInfo{ID: 6, Name: "ghost", Owner: "west"})
	c.peers["west"].rpc.InvokePeer("base", unknown)
	c.flush()
	if _, ok := base.Session(6); ok {
		t.Error("update for an unknown record must be ignored")
	}
}

func TestDirectory_IdempotentOverwrite(t *testing.T) {
	c := newCluster(t, "base", "east")
	base := c.dir("base")
	east := c.peers["east"].rpc

	// Superseded updates arriving again leave the last broadcast in place.
	east.InvokePeer("base", sessionInvocation(MethodSessionAdded, &domain.SessionInfo{ID: 3, Name: "one", Owner: "east"}))
	east.InvokePeer("base", sessionInvocation(MethodSessionUpdated, &domain.SessionInfo{ID: 3, Name: "two", Owner: "east"}))
	east.InvokePeer("base", sessionInvocation(MethodSessionAdded, &domain.SessionInfo{ID: 3, Name: "two", Owner: "east"}))
	c.flush()

	if info, _ := base.Session(3); info.Name != "two" {
		t.Errorf("name = %q, want two", info.Name)
	}
	if _, ok := base.SessionByName("one"); ok {
		t.Error("stale name index entry")
	}
	if len(base.Sessions()) != 1 {
		t.Errorf("Sessions() = %v", base.Sessions())
	}
}

func TestDirectory_InstanceReplication(t *testing.T) {
	c := newCluster(t, "base", "east")
	east, base := c.dir("east"), c.dir("base")

	id := domain.NewInstanceID(4, 1)
	if err := east.AddInstance(domain.InstanceInfo{ID: id, Owner: "east", Region: "eu", Open: 10, Capacity: 10}); err != nil {
		t.Fatal(err)
	}
	c.flush()
	if got, ok := base.Instance(id); !ok || got.Open != 10 || got.Owner != "east" {
		t.Fatalf("base instance = %+v, %v", got, ok)
	}

	info, _ := east.Instance(id)
	info.Take()
	if err := east.UpdateInstance(info); err != nil {
		t.Fatal(err)
	}
	c.flush()
	if got, _ := base.Instance(id); got.Open != 9 {
		t.Errorf("open = %d, want 9", got.Open)
	}

	if err := base.UpdateInstance(info); !errors.Is(err, domain.ErrInstanceNotOwned) {
		t.Errorf("foreign update: %v", err)
	}
	if err := base.AddInstance(domain.InstanceInfo{ID: id, Owner: "east"}); !errors.Is(err, domain.ErrInstanceNotOwned) {
		t.Errorf("foreign add: %v", err)
	}

	if err := east.RemoveInstance(id); err != nil {
		t.Fatal(err)
	}
	c.flush()
	if _, ok := base.Instance(id); ok {
		t.Error("instance still cached after removal")
	}
	if len(base.ZoneGroup(4)) != 0 {
		t.Error("zone group not emptied")
	}
}

func TestDirectory_OpenClamped(t *testing.T) {
	c := newCluster(t, "base")
	d := c.dir("base")
	id := domain.NewInstanceID(1, 1)

	if err := d.AddInstance(domain.InstanceInfo{ID: id, Owner: "base", Open: 12, Capacity: 8}); err != nil {
		t.Fatal(err)
	}
	if got, _ := d.Instance(id); got.Open != 8 {
		t.Errorf("open = %d, want clamped to 8", got.Open)
	}
	if err := d.UpdateInstance(domain.InstanceInfo{ID: id, Owner: "base", Open: -3, Capacity: 8}); err != nil {
		t.Fatal(err)
	}
	if got, _ := d.Instance(id); got.Open != 0 {
		t.Errorf("open = %d, want clamped to 0", got.Open)
	}
}

func TestDirectory_ZoneGroupOrder(t *testing.T) {
	c := newCluster(t, "base")
	d := c.dir("base")
	add := func(off uint32, region string, open int32) {
		if err := d.AddInstance(domain.InstanceInfo{ID: domain.NewInstanceID(9, off), Owner: "base", Region: region, Open: open, Capacity: 10}); err != nil {
			t.Fatal(err)
		}
	}
	add(1, "us", 3)
	add(2, "eu", 3)
	add(3, "eu", 0)
	add(4, "eu", 7)
	add(5, "ap", 3)

	var got []uint32
	for _, i := range d.ZoneGroup(9) {
		got = append(got, i.ID.Offset())
	}
	want := []uint32{3, 5, 2, 1, 4}
	if len(got) != len(want) {
		t.Fatalf("ZoneGroup = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ZoneGroup = %v, want %v", got, want)
		}
	}
	if d.MaxOffset(9) != 5 || d.MaxOffset(10) != 0 {
		t.Errorf("MaxOffset = %d / %d", d.MaxOffset(9), d.MaxOffset(10))
	}
}

func TestDirectory_PurgeAndResync(t *testing.T) {
	c := newCluster(t, "base", "east")
	east, base := c.dir("east"), c.dir("base")

	if _, err := east.AddSession(1, "a"); err != nil {
		t.Fatal(err)
	}
	if err := east.AddInstance(domain.InstanceInfo{ID: domain.NewInstanceID(2, 1), Owner: "east", Open: 1, Capacity: 4}); err != nil {
		t.Fatal(err)
	}
	if _, err := base.AddSession(2, "b"); err != nil {
		t.Fatal(err)
	}
	c.flush()

	c.peers["base"].seen = nil
	base.Purge("east")

	if len(base.Sessions()) != 1 || len(base.Instances()) != 0 {
		t.Fatalf("after purge: sessions=%v instances=%v", base.Sessions(), base.Instances())
	}
	var kinds []EventKind
	for _, ev := range c.peers["base"].seen {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 2 || kinds[0] != SessionRemoved || kinds[1] != InstanceRemoved {
		t.Errorf("purge events = %v", kinds)
	}

	base.Purge("base")
	if _, ok := base.Session(2); !ok {
		t.Error("purging self must not drop local records")
	}

	east.Resync("base")
	c.flush()
	if _, ok := base.Session(1); !ok {
		t.Error("session not restored by resync")
	}
	if _, ok := base.Instance(domain.NewInstanceID(2, 1)); !ok {
		t.Error("instance not restored by resync")
	}
}

func TestDirectory_GetSessionInfo(t *testing.T) {
	c := newCluster(t, "base", "east", "west")

	// A record that was never broadcast to base, as after a missed message.
	west := c.dir("west")
	west.putSession(&domain.SessionInfo{ID: 77, Name: "Zed", Owner: "west"})
	west.handles[77] = west.local.Insert(77)

	var got domain.SessionInfo
	var found, calls = false, 0
	c.dir("base").GetSessionInfo("zed", func(info domain.SessionInfo, ok bool) {
		got, found = info, ok
		calls++
	})
	c.flush()

	if calls != 1 || !found || got.ID != 77 || got.Owner != "west" {
		t.Fatalf("GetSessionInfo = %+v, %v (calls=%d)", got, found, calls)
	}
	if _, ok := c.dir("base").SessionByName("zed"); !ok {
		t.Error("answer not cached")
	}

	calls = 0
	c.dir("base").GetSessionInfo("nobody", func(_ domain.SessionInfo, ok bool) {
		found = ok
		calls++
	})
	c.flush()
	if calls != 1 || found {
		t.Errorf("unknown name: found=%v calls=%d", found, calls)
	}
}

func TestDirectory_SessionCount(t *testing.T) {
	c := newCluster(t, "base", "east")
	for i := domain.SessionID(1); i <= 3; i++ {
		if _, err := c.dir("east").AddSession(i, "u"+string(rune('a'+i))); err != nil {
			t.Fatal(err)
		}
	}
	c.flush()

	var results rpc.Results
	inv := wire.Invocation{Object: ObjectID, Method: MethodSessionCount}
	c.peers["base"].rpc.RequestAll(inv, func(r rpc.Results) { results = r })
	c.flush()

	if results["east"].Int(0) != 3 || results["base"].Int(0) != 0 {
		t.Errorf("session counts = %v", results)
	}
}
