package objstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sketchcraft.ai/internal/media/cache"
)

func TestClientPut_SignsPathStyleRequest(t *testing.T) {
	var (
		gotPath, gotAuth, gotType, gotHash string
		gotBody                            []byte
	)
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotHash = r.Header.Get("x-amz-content-sha256")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer ts.Close()

	c, err := New(Config{Endpoint: ts.URL, Bucket: "media", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	if err := c.Put(context.Background(), "/cache/imagen/boat__realistic/0.png", []byte("PNG"), "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if gotPath != "/media/cache/imagen/boat__realistic/0.png" {
		t.Fatalf("path = %q", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AK/20260102/auto/s3/aws4_request,") {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotType != "image/png" || string(gotBody) != "PNG" || gotHash != sha256Hex([]byte("PNG")) {
		t.Fatalf("type=%q body=%q hash=%q", gotType, gotBody, gotHash)
	}
}

func TestClientPut_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "AccessDenied", http.StatusForbidden)
	}))
	defer ts.Close()
	c, err := New(Config{Endpoint: ts.URL, Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = c.Put(context.Background(), "k.png", []byte("x"), "")
	if err == nil || !strings.Contains(err.Error(), "status=403") {
		t.Fatalf("err = %v", err)
	}
	if err := c.Put(context.Background(), "  ", nil, ""); err == nil {
		t.Fatalf("empty key accepted")
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{Endpoint: "r2.example.com", Bucket: "b"}); err == nil {
		t.Fatalf("expected error")
	}
}

type fakeUploader struct {
	mu    sync.Mutex
	keys  []string
	fails int
}

func (f *fakeUploader) PutFile(ctx context.Context, key, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("flaky")
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirror_UploadsRelativeKeys(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "imagen", "boat__realistic", "0.png")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("PNG"), 0o644); err != nil {
		t.Fatal(err)
	}

	up := &fakeUploader{fails: 1}
	m := NewMirror(up, MirrorConfig{Root: root, Prefix: "/pool/", Workers: 1, Sleep: func(time.Duration) {}})
	m.RecordMedia(cache.Entry{Path: p})
	m.Enqueue(filepath.Join(t.TempDir(), "elsewhere.png"))
	m.Close()

	if len(up.keys) != 1 || up.keys[0] != "pool/imagen/boat__realistic/0.png" {
		t.Fatalf("keys = %v", up.keys)
	}
	st := m.Stats()
	if st.EnqueuedTotal != 2 || st.UploadSuccessTotal != 1 || st.UploadFailTotal != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"a/0.PNG":   "image/png",
		"v.mp4":     "video/mp4",
		"err.json":  "application/json",
		"frames.db": "application/octet-stream",
	}
	for in, want := range cases {
		if got := contentType(in); got != want {
			t.Fatalf("%s: %q", in, got)
		}
	}
}
