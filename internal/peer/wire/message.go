package wire

import (
	"encoding/binary"
	"fmt"
)

// MessageType is the payload tag of a steady-state frame.
type MessageType uint8

const (
	MsgClose MessageType = iota
	MsgExecute
	MsgRequest
	MsgResponse
	MsgExecuteLead
	MsgRequestLead
	MsgExecuteSession
	MsgRequestSession
)

var messageTypeNames = [...]string{
	MsgClose:          "close",
	MsgExecute:        "execute",
	MsgRequest:        "request",
	MsgResponse:       "response",
	MsgExecuteLead:    "execute_lead",
	MsgRequestLead:    "request_lead",
	MsgExecuteSession: "execute_session",
	MsgRequestSession: "request_session",
}

func (t MessageType) String() string {
	if int(t) < len(messageTypeNames) {
		return messageTypeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// HasID reports whether the message carries a request id.
func (t MessageType) HasID() bool {
	switch t {
	case MsgRequest, MsgResponse, MsgRequestLead, MsgRequestSession:
		return true
	}
	return false
}

// HasInvocation reports whether the message carries an invocation.
func (t MessageType) HasInvocation() bool {
	return t != MsgClose && t != MsgResponse
}

// HasSession reports whether the message is routed by session name.
func (t MessageType) HasSession() bool {
	return t == MsgExecuteSession || t == MsgRequestSession
}

// Invocation describes one call of a method on a shared object.
type Invocation struct {
	Object uint32
	Method string
	Args   Args
}

func (inv Invocation) String() string {
	return fmt.Sprintf("%d.%s/%d", inv.Object, inv.Method, len(inv.Args))
}

// Message is one steady-state peer message.
//
// Which fields are meaningful depends on Type: ID for requests and
// responses, Session for session-routed calls, Invocation for everything
// but Close and Response, Args for Response.
type Message struct {
	Type       MessageType
	ID         uint32
	Session    string
	Invocation Invocation
	Args       Args
}

// Encode returns the framed message.
func (m *Message) Encode() ([]byte, error) {
	if m.Type > MsgRequestSession {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, m.Type)
	}
	p := []byte{byte(m.Type)}
	if m.Type.HasSession() {
		p = appendString(p, m.Session)
	}
	if m.Type.HasID() {
		p = binary.BigEndian.AppendUint32(p, m.ID)
	}
	switch {
	case m.Type == MsgResponse:
		p = appendBlob(p, AppendArgs(nil, m.Args))
	case m.Type.HasInvocation():
		p = binary.BigEndian.AppendUint32(p, m.Invocation.Object)
		p = appendString(p, m.Invocation.Method)
		p = appendBlob(p, AppendArgs(nil, m.Invocation.Args))
	}
	return EncodeFrame(p)
}

// DecodeMessage parses a framed message.
func DecodeMessage(frame []byte) (*Message, error) {
	p, err := DecodeFrame(frame)
	if err != nil {
		return nil, err
	}
	r := reader{buf: p}
	m := &Message{Type: MessageType(r.u8())}
	if r.err != nil {
		return nil, r.err
	}
	if m.Type > MsgRequestSession {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, m.Type)
	}
	if m.Type.HasSession() {
		m.Session = r.string()
	}
	if m.Type.HasID() {
		m.ID = r.u32()
	}
	var args []byte
	switch {
	case m.Type == MsgResponse:
		args = r.blob()
	case m.Type.HasInvocation():
		m.Invocation.Object = r.u32()
		m.Invocation.Method = r.string()
		args = r.blob()
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(r.buf) != 0 {
		return nil, ErrTrailingBytes
	}

	decoded, err := ConsumeArgs(args)
	if err != nil {
		return nil, err
	}
	if m.Type == MsgResponse {
		m.Args = decoded
	} else {
		m.Invocation.Args = decoded
	}
	return m, nil
}
