package mirror

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func gzipPayload(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte("fake rootfs archive contents")); err != nil {
		t.Fatalf("gzip write failed: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close failed: %v", err)
	}
	return buf.Bytes()
}

func TestFetchHTTP(t *testing.T) {
	payload := gzipPayload(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "alarm.tar.gz")
	f := NewFetcher("us-east-1", 1, nil)

	res, err := f.Fetch(context.Background(), srv.URL+"/alarm.tar.gz", dest)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	want := sha256.Sum256(payload)
	if res.SHA256 != hex.EncodeToString(want[:]) {
		t.Errorf("sha256 mismatch: got %s", res.SHA256)
	}
	if res.Size != int64(len(payload)) {
		t.Errorf("size = %d, want %d", res.Size, len(payload))
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("downloaded contents differ from served payload")
	}
}

func TestFetchHTTPNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "alarm.tar.gz")
	f := NewFetcher("us-east-1", 0, nil)

	_, err := f.Fetch(context.Background(), srv.URL+"/missing.tar.gz", dest)
	if err == nil {
		t.Fatal("expected error for 404")
	}

	var terr *TransferError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransferError, got %T: %v", err, err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("no file should exist after failed fetch")
	}
}

func TestFetchHTTPAbortedMidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.Write([]byte{0x1f, 0x8b, 0x08, 0x00})
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		panic(http.ErrAbortHandler)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "alarm.tar.gz")
	f := NewFetcher("us-east-1", 0, nil)

	_, err := f.Fetch(context.Background(), srv.URL+"/alarm.tar.gz", dest)
	if err == nil {
		t.Fatal("expected error for aborted transfer")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("partial file should be removed after aborted transfer")
	}
}

func TestFetchRejectsNonArchiveBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>mirror is down</html>"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "alarm.tar.gz")
	f := NewFetcher("us-east-1", 0, nil)

	_, err := f.Fetch(context.Background(), srv.URL+"/alarm.tar.gz", dest)
	if err == nil {
		t.Fatal("expected error for non-gzip body")
	}
	if !strings.Contains(err.Error(), "gzip") {
		t.Errorf("error should mention gzip, got %q", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("bad archive should be removed")
	}
}

func TestFetchUnsupportedScheme(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "alarm.tar.gz")
	f := NewFetcher("us-east-1", 0, nil)

	_, err := f.Fetch(context.Background(), "ftp://example.com/alarm.tar.gz", dest)
	if err == nil || !strings.Contains(err.Error(), "unsupported mirror scheme") {
		t.Fatalf("expected unsupported scheme error, got %v", err)
	}
}

func TestFetchCanceledContext(t *testing.T) {
	payload := gzipPayload(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "alarm.tar.gz")
	f := NewFetcher("us-east-1", 0, nil)

	_, err := f.Fetch(ctx, srv.URL+"/alarm.tar.gz", dest)
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("no file should exist after canceled fetch")
	}
}
