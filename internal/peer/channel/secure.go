package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/yndnr/zonemesh-go/internal/peer/wire"
	"github.com/yndnr/zonemesh-go/pkg/crypto/adaptive"
)

// ErrProtocol marks failures that must not be retried.
var ErrProtocol = errors.New("channel: protocol violation")

const (
	dirInitiator byte = 'I'
	dirResponder byte = 'R'
)

// maxRecord bounds a sealed record: one maximal frame plus the AEAD tag.
const maxRecord = wire.HeaderSize + wire.MaxPayload + 64

// secureConn seals frames onto a net.Conn.
type secureConn struct {
	conn    net.Conn
	send    adaptive.Cipher
	recv    adaptive.Cipher
	sendDir byte
	recvDir byte

	wmu     sync.Mutex
	sendSeq uint64
	recvSeq uint64
}

func protocolError(err error) error {
	return fmt.Errorf("%w: %v", ErrProtocol, err)
}

// secureClient runs the key exchange as the dialing side.
func secureClient(conn net.Conn, cipherType adaptive.CipherType) (*secureConn, error) {
	eph, err := adaptive.GenerateEphemeral()
	if err != nil {
		return nil, err
	}
	defer eph.Destroy()

	local := eph.Public()
	if _, err := conn.Write(local); err != nil {
		return nil, fmt.Errorf("send public key: %w", err)
	}
	remote := make([]byte, adaptive.PublicKeySize)
	if _, err := io.ReadFull(conn, remote); err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}

	return newSecureConn(conn, eph, remote, append(local, remote...), true, cipherType)
}

// secureServer runs the key exchange as the accepting side.
func secureServer(conn net.Conn, cipherType adaptive.CipherType) (*secureConn, error) {
	remote := make([]byte, adaptive.PublicKeySize)
	if _, err := io.ReadFull(conn, remote); err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}

	eph, err := adaptive.GenerateEphemeral()
	if err != nil {
		return nil, err
	}
	defer eph.Destroy()

	local := eph.Public()
	if _, err := conn.Write(local); err != nil {
		return nil, fmt.Errorf("send public key: %w", err)
	}

	return newSecureConn(conn, eph, remote, append(remote, local...), false, cipherType)
}

func newSecureConn(conn net.Conn, eph *adaptive.Ephemeral, remote, transcript []byte, initiator bool, cipherType adaptive.CipherType) (*secureConn, error) {
	shared, err := eph.Shared(remote)
	if err != nil {
		return nil, protocolError(err)
	}
	send, recv, err := adaptive.DeriveSession(shared, transcript, initiator, cipherType)
	if err != nil {
		return nil, err
	}

	sc := &secureConn{conn: conn, send: send, recv: recv}
	if initiator {
		sc.sendDir, sc.recvDir = dirInitiator, dirResponder
	} else {
		sc.sendDir, sc.recvDir = dirResponder, dirInitiator
	}
	return sc, nil
}

func aad(dir byte, seq uint64) []byte {
	var b [9]byte
	b[0] = dir
	binary.BigEndian.PutUint64(b[1:], seq)
	return b[:]
}

// WriteRecord seals and writes one frame. Safe for concurrent use.
func (s *secureConn) WriteRecord(frame []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	sealed := s.send.Seal(s.sendSeq, frame, aad(s.sendDir, s.sendSeq))
	s.sendSeq++

	buf := make([]byte, 4, 4+len(sealed))
	binary.BigEndian.PutUint32(buf, uint32(len(sealed)))
	buf = append(buf, sealed...)
	_, err := s.conn.Write(buf)
	return err
}

// ReadRecord reads and opens one frame. Must be called from one goroutine.
func (s *secureConn) ReadRecord() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(s.conn, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxRecord {
		return nil, protocolError(wire.ErrFrameTooLarge)
	}
	sealed := make([]byte, n)
	if _, err := io.ReadFull(s.conn, sealed); err != nil {
		return nil, err
	}

	frame, err := s.recv.Open(s.recvSeq, sealed, aad(s.recvDir, s.recvSeq))
	if err != nil {
		return nil, protocolError(err)
	}
	s.recvSeq++
	return frame, nil
}

func (s *secureConn) Close() error {
	return s.conn.Close()
}
