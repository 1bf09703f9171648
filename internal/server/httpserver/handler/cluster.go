package handler

import (
	"net/http"
	"strconv"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
)

func (h *Handler) handlePeers(w http.ResponseWriter, r *http.Request) {
	s, err := h.node.Snapshot(r.Context())
	if err != nil {
		h.handleNodeError(w, r, err)
		return
	}
	resp := PeersResponse{Self: s.Self, Leader: s.Leader, Peers: make([]PeerView, 0, len(s.Peers))}
	for _, p := range s.Peers {
		resp.Peers = append(resp.Peers, PeerView{
			Name:         p.Record.Name,
			Region:       p.Record.Region,
			InternalAddr: p.Record.InternalAddr(),
			ExternalHost: p.Record.ExternalHost,
			Updated:      p.Record.Updated,
			Self:         p.Self,
			Leader:       p.Leader,
			Established:  p.Established,
		})
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleListSessions lists the cached session directory. ?owner= filters
// by owning peer.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s, err := h.node.Snapshot(r.Context())
	if err != nil {
		h.handleNodeError(w, r, err)
		return
	}
	owner := r.URL.Query().Get("owner")
	out := make([]SessionView, 0, len(s.Sessions))
	for _, info := range s.Sessions {
		if owner != "" && info.Owner != owner {
			continue
		}
		out = append(out, sessionView(info))
	}
	h.writeJSON(w, r, http.StatusOK, out)
}

// handleGetSession resolves a session by name, asking the other peers
// when it is not cached.
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, ok, err := h.node.GetSessionInfo(r.Context(), r.PathValue("name"))
	if err != nil {
		h.handleNodeError(w, r, err)
		return
	}
	if !ok {
		h.writeError(w, r, http.StatusNotFound, domain.ErrSessionNotFound.Code, domain.ErrSessionNotFound.Message)
		return
	}
	h.writeJSON(w, r, http.StatusOK, sessionView(info))
}

// handleListInstances lists known instances. ?zone= filters by zone id.
func (h *Handler) handleListInstances(w http.ResponseWriter, r *http.Request) {
	var (
		zone    domain.ZoneID
		hasZone bool
	)
	if v := r.URL.Query().Get("zone"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "ZM-ARG-4001", "zone must be an unsigned integer")
			return
		}
		zone, hasZone = domain.ZoneID(n), true
	}

	s, err := h.node.Snapshot(r.Context())
	if err != nil {
		h.handleNodeError(w, r, err)
		return
	}
	out := make([]InstanceView, 0, len(s.Instances))
	for _, info := range s.Instances {
		if hasZone && info.ID.Zone() != zone {
			continue
		}
		out = append(out, instanceView(info))
	}
	h.writeJSON(w, r, http.StatusOK, out)
}
