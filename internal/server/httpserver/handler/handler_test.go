package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/server/clusterserver"
)

type fakeNode struct {
	ready    bool
	snapshot clusterserver.Snapshot
	err      error
}

func (f *fakeNode) Name() string { return "base" }
func (f *fakeNode) Ready() bool  { return f.ready }

func (f *fakeNode) Snapshot(context.Context) (clusterserver.Snapshot, error) {
	return f.snapshot, f.err
}

func (f *fakeNode) GetSessionInfo(_ context.Context, name string) (domain.SessionInfo, bool, error) {
	if f.err != nil {
		return domain.SessionInfo{}, false, f.err
	}
	for _, s := range f.snapshot.Sessions {
		if strings.EqualFold(s.Name, name) {
			return s, true, nil
		}
	}
	return domain.SessionInfo{}, false, nil
}

func sampleNode() *fakeNode {
	return &fakeNode{
		ready: true,
		snapshot: clusterserver.Snapshot{
			Self:   "base",
			Leader: "base",
			Peers: []clusterserver.PeerStatus{
				{Record: domain.PeerRecord{Name: "base", Region: "eu", InternalHost: "10.0.0.1", Port: 5343}, Self: true, Leader: true},
				{Record: domain.PeerRecord{Name: "east", Region: "us", InternalHost: "10.0.0.2", Port: 5343}, Established: true},
			},
			Sessions: []domain.SessionInfo{
				{ID: 1, Name: "alice", Owner: "base"},
				{ID: 2, Name: "bob", Owner: "east"},
			},
			Instances: []domain.InstanceInfo{
				{ID: domain.NewInstanceID(7, 1), Owner: "base", Open: 3, Capacity: 4},
				{ID: domain.NewInstanceID(8, 1), Owner: "east", Open: 0, Capacity: 4},
			},
		},
	}
}

func serve(t *testing.T, node Node, target string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	h := New(node, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s: body is not a response envelope: %v (%q)", target, err, rec.Body.String())
	}
	return rec, resp
}

func TestHandler_Status(t *testing.T) {
	notReady := sampleNode()
	notReady.ready = false
	stopped := sampleNode()
	stopped.err = domain.ErrNotRunning
	slow := sampleNode()
	slow.err = context.DeadlineExceeded
	broken := sampleNode()
	broken.err = errors.New("boom")

	tests := []struct {
		name   string
		node   Node
		target string
		status int
		code   string
	}{
		{"health", sampleNode(), "/health", http.StatusOK, "OK"},
		{"ready", sampleNode(), "/ready", http.StatusOK, "OK"},
		{"not ready", notReady, "/ready", http.StatusServiceUnavailable, "ZM-SYS-5030"},
		{"peers", sampleNode(), "/v1/peers", http.StatusOK, "OK"},
		{"node stopped", stopped, "/v1/peers", http.StatusServiceUnavailable, "ZM-RPC-5030"},
		{"node slow", slow, "/v1/sessions", http.StatusGatewayTimeout, "ZM-SYS-5040"},
		{"internal error", broken, "/v1/instances", http.StatusInternalServerError, "ZM-SYS-5000"},
		{"unknown session", sampleNode(), "/v1/sessions/carol", http.StatusNotFound, "ZM-SESS-4040"},
		{"bad zone", sampleNode(), "/v1/instances?zone=x", http.StatusBadRequest, "ZM-ARG-4001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := serve(t, tt.node, tt.target)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}

func decodeData[T any](t *testing.T, resp Response) T {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatal(err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestHandler_Peers(t *testing.T) {
	_, resp := serve(t, sampleNode(), "/v1/peers")
	peers := decodeData[PeersResponse](t, resp)
	if peers.Self != "base" || peers.Leader != "base" || len(peers.Peers) != 2 {
		t.Fatalf("peers = %+v", peers)
	}
	east := peers.Peers[1]
	if east.InternalAddr != "10.0.0.2:5343" || !east.Established || east.Self {
		t.Errorf("east = %+v", east)
	}
}

func TestHandler_Sessions(t *testing.T) {
	tests := []struct {
		target string
		want   []string
	}{
		{"/v1/sessions", []string{"alice", "bob"}},
		{"/v1/sessions?owner=east", []string{"bob"}},
		{"/v1/sessions?owner=west", nil},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			_, resp := serve(t, sampleNode(), tt.target)
			got := decodeData[[]SessionView](t, resp)
			if len(got) != len(tt.want) {
				t.Fatalf("sessions = %+v, want %v", got, tt.want)
			}
			for i, name := range tt.want {
				if got[i].Name != name {
					t.Errorf("sessions[%d] = %q, want %q", i, got[i].Name, name)
				}
			}
		})
	}

	_, resp := serve(t, sampleNode(), "/v1/sessions/Alice")
	if s := decodeData[SessionView](t, resp); s.ID != 1 || s.Owner != "base" {
		t.Errorf("GET /v1/sessions/Alice = %+v", s)
	}
}

func TestHandler_Instances(t *testing.T) {
	_, resp := serve(t, sampleNode(), "/v1/instances?zone=8")
	got := decodeData[[]InstanceView](t, resp)
	if len(got) != 1 || got[0].Zone != 8 || got[0].Owner != "east" || got[0].Open != 0 {
		t.Errorf("instances = %+v", got)
	}

	_, resp = serve(t, sampleNode(), "/v1/instances")
	if got := decodeData[[]InstanceView](t, resp); len(got) != 2 {
		t.Errorf("all instances = %+v", got)
	}
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"ZM-PEER-4001", http.StatusBadRequest},
		{"ZM-SESS-4030", http.StatusForbidden},
		{"ZM-INST-4040", http.StatusNotFound},
		{"ZM-INST-4091", http.StatusConflict},
		{"ZM-INST-4100", http.StatusGone},
		{"ZM-RPC-5030", http.StatusServiceUnavailable},
		{"ZM-PEER-5001", http.StatusInternalServerError},
		{"garbage", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := errorCodeToHTTPStatus(tt.code); got != tt.want {
				t.Errorf("errorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}
