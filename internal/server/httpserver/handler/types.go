package handler

import (
	"time"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
)

// Response is the standard API response envelope.
// All JSON responses use it except /metrics.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Peer    string `json:"peer"`
	Version string `json:"version"`
}

// PeerView is one entry of GET /v1/peers.
type PeerView struct {
	Name         string    `json:"name"`
	Region       string    `json:"region,omitempty"`
	InternalAddr string    `json:"internal_addr"`
	ExternalHost string    `json:"external_host,omitempty"`
	Updated      time.Time `json:"updated"`
	Self         bool      `json:"self"`
	Leader       bool      `json:"leader"`
	Established  bool      `json:"established"`
}

// PeersResponse is the body of GET /v1/peers.
type PeersResponse struct {
	Self   string     `json:"self"`
	Leader string     `json:"leader"`
	Peers  []PeerView `json:"peers"`
}

// SessionView is one session as reported by the admin API.
type SessionView struct {
	ID    domain.SessionID `json:"id"`
	Name  string           `json:"name"`
	Owner string           `json:"owner"`
}

// InstanceView is one instance as reported by the admin API.
type InstanceView struct {
	ID       string        `json:"id"`
	Zone     domain.ZoneID `json:"zone"`
	Owner    string        `json:"owner"`
	Region   string        `json:"region,omitempty"`
	Open     int32         `json:"open"`
	Capacity int32         `json:"capacity"`
}

func sessionView(s domain.SessionInfo) SessionView {
	return SessionView{ID: s.ID, Name: s.Name, Owner: s.Owner}
}

func instanceView(i domain.InstanceInfo) InstanceView {
	return InstanceView{
		ID:       i.ID.String(),
		Zone:     i.ID.Zone(),
		Owner:    i.Owner,
		Region:   i.Region,
		Open:     i.Open,
		Capacity: i.Capacity,
	}
}
