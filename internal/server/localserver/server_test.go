package localserver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func unixClient(path string) *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", path)
			},
		},
	}
}

func startServer(t *testing.T, path string) *Server {
	t.Helper()
	s := New(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok "+r.URL.Path)
	}))
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		if err := <-errCh; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return s
}

func TestServer_ServesOverSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zm.sock")
	startServer(t, path)

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != socketMode {
		t.Errorf("socket mode = %v, want %v", fi.Mode().Perm(), socketMode)
	}

	resp, err := unixClient(path).Get("http://local/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok /health" {
		t.Errorf("body = %q", body)
	}
}

func TestServer_ShutdownRemovesSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zm.sock")
	s := New(path, http.NotFoundHandler())
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Errorf("Serve after shutdown = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket still present: %v", err)
	}
}

func TestListen_Existing(t *testing.T) {
	t.Run("stale socket is replaced", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "zm.sock")
		ln, err := net.Listen("unix", path)
		if err != nil {
			t.Fatal(err)
		}
		ln.(*net.UnixListener).SetUnlinkOnClose(false)
		ln.Close()

		startServer(t, path)
	})

	t.Run("live socket is refused", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "zm.sock")
		startServer(t, path)

		err := New(path, http.NotFoundHandler()).Listen()
		if !errors.Is(err, ErrSocketInUse) {
			t.Errorf("Listen on live socket = %v, want ErrSocketInUse", err)
		}
	})

	t.Run("regular file is kept", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "zm.sock")
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := New(path, http.NotFoundHandler()).Listen(); err == nil {
			t.Error("Listen over a regular file succeeded")
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("regular file removed: %v", err)
		}
	})
}

func TestServe_BeforeListen(t *testing.T) {
	if err := New("unused.sock", http.NotFoundHandler()).Serve(); err == nil {
		t.Error("Serve without Listen succeeded")
	}
}
