// Package domain defines the core domain models for ZoneMesh.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
// Codes follow the format ZM-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "ZM-INST-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Peer Errors (PEER)
// ============================================================================

var (
	// ErrPeerNameRequired indicates a peer record without a name.
	ErrPeerNameRequired = NewDomainError("ZM-PEER-4001", "peer name is required")

	// ErrPeerInvalid indicates a malformed peer record.
	ErrPeerInvalid = NewDomainError("ZM-PEER-4002", "invalid peer record")

	// ErrPeerUnknown indicates the named peer is not live.
	ErrPeerUnknown = NewDomainError("ZM-PEER-4040", "peer not live")

	// ErrPeerStore indicates the peer store could not be read or written.
	ErrPeerStore = NewDomainError("ZM-PEER-5001", "peer store error")
)

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrSessionNotFound indicates the requested session was not found.
	ErrSessionNotFound = NewDomainError("ZM-SESS-4040", "session not found")

	// ErrSessionNotOwned indicates a mutation of a session owned by another peer.
	ErrSessionNotOwned = NewDomainError("ZM-SESS-4030", "session owned by another peer")

	// ErrSessionConflict indicates the session id is already registered.
	ErrSessionConflict = NewDomainError("ZM-SESS-4090", "session id conflict")
)

// ============================================================================
// Instance Errors (INST)
// ============================================================================

var (
	// ErrInstanceNotFound indicates the zone instance is unknown.
	ErrInstanceNotFound = NewDomainError("ZM-INST-4040", "instance not found")

	// ErrInstanceNotOwned indicates a mutation of an instance owned by another peer.
	ErrInstanceNotOwned = NewDomainError("ZM-INST-4030", "instance owned by another peer")

	// ErrInstanceFull indicates no open place is left in the instance.
	ErrInstanceFull = NewDomainError("ZM-INST-4091", "instance full")

	// ErrZoneUnknown indicates the zone has no configured population.
	ErrZoneUnknown = NewDomainError("ZM-INST-4041", "zone not configured")

	// ErrPlacementFailed indicates no seat could be found or created.
	ErrPlacementFailed = NewDomainError("ZM-INST-5030", "placement failed")

	// ErrReservationLost indicates the requester vanished before the reservation completed.
	ErrReservationLost = NewDomainError("ZM-INST-4100", "reservation cancelled, session gone")

	// ErrReservationPending indicates the user already has a placement in flight.
	ErrReservationPending = NewDomainError("ZM-INST-4092", "placement already in progress")
)

// ============================================================================
// RPC Errors (RPC)
// ============================================================================

var (
	// ErrObjectRegistered indicates a shared object id registered twice.
	ErrObjectRegistered = NewDomainError("ZM-RPC-4090", "shared object already registered")

	// ErrNotRunning indicates the node is not running.
	ErrNotRunning = NewDomainError("ZM-RPC-5030", "node not running")
)
