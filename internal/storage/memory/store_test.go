package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
)

var t0 = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func rec(name string, updated time.Time) domain.PeerRecord {
	return domain.PeerRecord{Name: name, InternalHost: "127.0.0.1", Port: 7000, Active: true, Updated: updated}
}

func TestStore_LastWriterWins(t *testing.T) {
	s := New()
	ctx := context.Background()

	tests := []struct {
		name    string
		write   domain.PeerRecord
		wantAt  time.Time
		wantAct bool
	}{
		{"insert", rec("east", t0), t0, true},
		{"newer replaces", rec("east", t0.Add(time.Minute)), t0.Add(time.Minute), true},
		{"older ignored", rec("east", t0), t0.Add(time.Minute), true},
		{"same time replaces", func() domain.PeerRecord {
			r := rec("east", t0.Add(time.Minute))
			r.Active = false
			return r
		}(), t0.Add(time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.StorePeer(ctx, tt.write); err != nil {
				t.Fatal(err)
			}
			got, ok := s.Peer("east")
			if !ok || !got.Updated.Equal(tt.wantAt) || got.Active != tt.wantAct {
				t.Errorf("stored = %+v", got)
			}
		})
	}
}

func TestStore_LoadSorted(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, n := range []string{"west", "base", "east"} {
		if err := s.StorePeer(ctx, rec(n, t0)); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.LoadPeers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Name != "base" || got[2].Name != "west" {
		t.Errorf("LoadPeers = %v", got)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d", s.Len())
	}
}

func TestStore_Errors(t *testing.T) {
	s := New()
	if err := s.StorePeer(context.Background(), domain.PeerRecord{}); !errors.Is(err, domain.ErrPeerNameRequired) {
		t.Errorf("invalid record: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.LoadPeers(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled load: %v", err)
	}
}

func TestStore_Touch(t *testing.T) {
	s := New()
	_ = s.StorePeer(context.Background(), rec("east", t0))
	if !s.Touch("east", func(r *domain.PeerRecord) { r.Updated = t0.Add(-time.Hour) }) {
		t.Fatal("Touch failed")
	}
	if got, _ := s.Peer("east"); !got.Updated.Equal(t0.Add(-time.Hour)) {
		t.Errorf("Updated = %v", got.Updated)
	}
	if s.Touch("ghost", func(*domain.PeerRecord) {}) {
		t.Error("Touch of unknown peer succeeded")
	}
}
