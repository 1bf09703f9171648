package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/yndnr/zonemesh-go/pkg/token"
)

const (
	// Magic opens every frame ("WTPR").
	Magic uint32 = 0x57545052

	// Version is the only protocol version spoken.
	Version uint32 = 1

	// HeaderSize is magic + version + length.
	HeaderSize = 12

	// MaxPayload bounds a single frame payload.
	MaxPayload = 16 << 20
)

var (
	ErrBadMagic      = errors.New("wire: bad magic")
	ErrBadVersion    = errors.New("wire: unsupported version")
	ErrBadSecret     = errors.New("wire: shared secret mismatch")
	ErrFrameTooLarge = errors.New("wire: frame too large")
	ErrTruncated     = errors.New("wire: truncated frame")
	ErrUnknownType   = errors.New("wire: unknown message type")
	ErrTrailingBytes = errors.New("wire: trailing bytes after message")
)

// EncodeFrame wraps payload in the frame header.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint32(buf[4:8], Version)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(payload)))
	return append(buf, payload...), nil
}

// DecodeFrame validates the header and returns the payload.
//
// A magic or version mismatch is reported with ErrBadMagic / ErrBadVersion;
// callers treat both as fatal for the channel.
func DecodeFrame(frame []byte) ([]byte, error) {
	if len(frame) < HeaderSize {
		return nil, ErrTruncated
	}
	if m := binary.BigEndian.Uint32(frame[0:4]); m != Magic {
		return nil, fmt.Errorf("%w: %#08x", ErrBadMagic, m)
	}
	if v := binary.BigEndian.Uint32(frame[4:8]); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	n := binary.BigEndian.Uint32(frame[8:12])
	if n > MaxPayload {
		return nil, ErrFrameTooLarge
	}
	if uint32(len(frame)-HeaderSize) != n {
		return nil, ErrTruncated
	}
	return frame[HeaderSize:], nil
}

// Handshake is the first frame sent by the dialing peer once transport
// encryption is established.
type Handshake struct {
	Secret string
	Sender string
}

// Encode returns the handshake frame.
func (h Handshake) Encode() ([]byte, error) {
	var p []byte
	p = appendString(p, h.Secret)
	p = appendString(p, h.Sender)
	return EncodeFrame(p)
}

// DecodeHandshake parses a handshake frame and checks it against secret.
func DecodeHandshake(frame []byte, secret string) (Handshake, error) {
	p, err := DecodeFrame(frame)
	if err != nil {
		return Handshake{}, err
	}
	r := reader{buf: p}
	var h Handshake
	h.Secret = r.string()
	h.Sender = r.string()
	if r.err != nil {
		return Handshake{}, r.err
	}
	if !token.Equal(h.Secret, secret) {
		return Handshake{}, ErrBadSecret
	}
	if h.Sender == "" {
		return Handshake{}, fmt.Errorf("%w: empty sender", ErrTruncated)
	}
	return h, nil
}

func appendString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

func appendBlob(b []byte, blob []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(blob)))
	return append(b, blob...)
}

// reader consumes big-endian fields and remembers the first error.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf) < n {
		r.err = ErrTruncated
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) blob() []byte {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	if n > MaxPayload {
		r.err = ErrFrameTooLarge
		return nil
	}
	return r.take(int(n))
}

func (r *reader) string() string {
	return string(r.blob())
}
