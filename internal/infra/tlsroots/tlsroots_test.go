package tlsroots

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writePair writes a self-signed certificate for 127.0.0.1 named cn and
// returns the file paths and the certificate PEM.
func writePair(t *testing.T, dir, cn string) (certFile, keyFile string, certPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	certFile = filepath.Join(dir, "admin.crt")
	keyFile = filepath.Join(dir, "admin.key")
	if err := os.WriteFile(certFile, certPEM, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile, certPEM
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func servedName(t *testing.T, r *CertReloader) string {
	t.Helper()
	cert, err := r.GetCertificate(nil)
	if err != nil || cert == nil {
		t.Fatalf("GetCertificate() = %v, %v", cert, err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	return leaf.Subject.CommonName
}

func TestPool_AddCertPEM(t *testing.T) {
	_, _, certPEM := writePair(t, t.TempDir(), "ca")
	keyOnly := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte{1, 2, 3}})
	broken := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("not der")})

	tests := []struct {
		name    string
		data    []byte
		wantErr error
		anyErr  bool
	}{
		{"certificate", certPEM, nil, false},
		{"certificate after a key block", append(keyOnly, certPEM...), nil, false},
		{"no certificate", keyOnly, ErrNoCertsFound, true},
		{"empty", nil, ErrNoCertsFound, true},
		{"unparsable certificate", broken, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEmptyPool().AddCertPEM(tt.data)
			if (err != nil) != tt.anyErr {
				t.Fatalf("AddCertPEM() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("AddCertPEM() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPool_AddCertFile(t *testing.T) {
	certFile, _, _ := writePair(t, t.TempDir(), "ca")
	p := NewPool()
	if err := p.AddCertFile(certFile); err != nil {
		t.Fatal(err)
	}
	if err := p.AddCertFile(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("missing file accepted")
	}
	cfg := p.ClientConfig()
	if cfg.RootCAs == nil || cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("ClientConfig() = %+v", cfg)
	}
}

func TestNewCertReloader_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.pem")
	if err := os.WriteFile(bad, []byte("invalid"), 0o600); err != nil {
		t.Fatal(err)
	}
	tests := []struct{ name, cert, key string }{
		{"invalid pair", bad, bad},
		{"missing files", filepath.Join(dir, "none.crt"), filepath.Join(dir, "none.key")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCertReloader(tt.cert, tt.key); err == nil {
				t.Error("NewCertReloader() accepted an unusable pair")
			}
		})
	}
}

func TestCertReloader_ReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, _ := writePair(t, dir, "first")

	r, err := NewCertReloader(certFile, keyFile, WithLogger(quiet()), WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	r.StartAsync()
	defer r.Stop()

	if got := servedName(t, r); got != "first" {
		t.Fatalf("served %q, want first", got)
	}

	// Unrelated files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	writePair(t, dir, "rotated")
	deadline := time.Now().Add(5 * time.Second)
	for servedName(t, r) != "rotated" {
		if time.Now().After(deadline) {
			t.Fatal("certificate was not reloaded")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestCertReloader_StopTwice(t *testing.T) {
	certFile, keyFile, _ := writePair(t, t.TempDir(), "x")
	r, err := NewCertReloader(certFile, keyFile, WithLogger(quiet()))
	if err != nil {
		t.Fatal(err)
	}
	r.StartAsync()
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestServerAndClientConfig_Handshake(t *testing.T) {
	certFile, keyFile, certPEM := writePair(t, t.TempDir(), "admin")
	r, err := NewCertReloader(certFile, keyFile, WithLogger(quiet()))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	ln, err := tls.Listen("tcp", "127.0.0.1:0", r.ServerConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				conn.(*tls.Conn).Handshake()
				conn.Close()
			}()
		}
	}()

	pool := NewEmptyPool()
	if err := pool.AddCertPEM(certPEM); err != nil {
		t.Fatal(err)
	}
	conn, err := tls.Dial("tcp", ln.Addr().String(), pool.ClientConfig())
	if err != nil {
		t.Fatalf("handshake with trusted pool: %v", err)
	}
	conn.Close()

	if conn, err := tls.Dial("tcp", ln.Addr().String(), NewEmptyPool().ClientConfig()); err == nil {
		conn.Close()
		t.Error("handshake succeeded without trusting the certificate")
	}
}
