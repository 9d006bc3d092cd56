package artifact

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sciagent/sci-agent/api"
)

func newStore(t *testing.T, handler http.HandlerFunc) (*Store, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	workspace := t.TempDir()
	client := api.NewClient(nil, api.Config{Endpoint: srv.URL})
	return &Store{Client: client, BuildUUID: "build-1", Workspace: workspace}, workspace
}

func TestStoreAddUploadsUnderBuildUUID(t *testing.T) {
	var gotPath string
	var gotBody []byte
	store, workspace := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "url": "https://store/build-1/out.txt"}) //nolint:errcheck
	})

	if err := os.WriteFile(filepath.Join(workspace, "out.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}

	art, url, err := store.Add(context.Background(), "out.txt", "")
	if err != nil {
		t.Fatalf("Add() = %v", err)
	}
	if art.Filename != "out.txt" {
		t.Fatalf("Filename = %q, want out.txt", art.Filename)
	}
	if url != "https://store/build-1/out.txt" {
		t.Fatalf("url = %q", url)
	}
	if gotPath != "/f/build-1/out.txt" {
		t.Fatalf("path = %q, want /f/build-1/out.txt", gotPath)
	}
	if string(gotBody) != "hello" {
		t.Fatalf("body = %q, want hello", gotBody)
	}
}

func TestStoreAddRemoteOverride(t *testing.T) {
	var gotPath string
	store, workspace := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "url": "u"}) //nolint:errcheck
	})
	os.WriteFile(filepath.Join(workspace, "out.txt"), []byte("hello"), 0o644) //nolint:errcheck

	if _, _, err := store.Add(context.Background(), "out.txt", "renamed.txt"); err != nil {
		t.Fatalf("Add() = %v", err)
	}
	if gotPath != "/f/build-1/renamed.txt" {
		t.Fatalf("path = %q, want /f/build-1/renamed.txt", gotPath)
	}
}

func TestStoreAddNonOkStatus(t *testing.T) {
	store, workspace := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "error"}) //nolint:errcheck
	})
	os.WriteFile(filepath.Join(workspace, "out.txt"), []byte("hello"), 0o644) //nolint:errcheck

	_, _, err := store.Add(context.Background(), "out.txt", "")
	if err == nil {
		t.Fatal("Add() = nil, want ArtifactError")
	}
	var ae *ArtifactError
	if !asArtifactError(err, &ae) {
		t.Fatalf("Add() = %v, want *ArtifactError", err)
	}
}

func TestStoreGetCreatesParentDirs(t *testing.T) {
	store, workspace := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("downloaded")) //nolint:errcheck
	})

	if err := store.Get(context.Background(), "nested/out.txt", ""); err != nil {
		t.Fatalf("Get() = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(workspace, "nested", "out.txt"))
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if string(got) != "downloaded" {
		t.Fatalf("contents = %q, want downloaded", got)
	}
}

func TestStoreCreateZipCollectsMatchingFiles(t *testing.T) {
	store, workspace := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "url": "u"}) //nolint:errcheck
	})

	if err := os.MkdirAll(filepath.Join(workspace, "logs"), 0o755); err != nil {
		t.Fatalf("MkdirAll() = %v", err)
	}
	os.WriteFile(filepath.Join(workspace, "logs", "a.log"), []byte("a"), 0o644) //nolint:errcheck
	os.WriteFile(filepath.Join(workspace, "logs", "b.log"), []byte("b"), 0o644) //nolint:errcheck
	os.WriteFile(filepath.Join(workspace, "other.txt"), []byte("c"), 0o644)     //nolint:errcheck

	art, url, err := store.CreateZip(context.Background(), "out.zip", "logs/*.log", true)
	if err != nil {
		t.Fatalf("CreateZip() = %v", err)
	}
	if art.Filename != "out.zip" {
		t.Fatalf("Filename = %q, want out.zip", art.Filename)
	}
	if url != "u" {
		t.Fatalf("url = %q, want u", url)
	}

	zr, err := zip.OpenReader(filepath.Join(workspace, "out.zip"))
	if err != nil {
		t.Fatalf("OpenReader() = %v", err)
	}
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["logs/a.log"] || !names["logs/b.log"] {
		t.Fatalf("names = %v, want logs/a.log and logs/b.log", names)
	}
	if names["other.txt"] {
		t.Fatalf("names = %v, should not contain other.txt", names)
	}
}

func TestStoreCreateZipNoUpload(t *testing.T) {
	store, workspace := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upload should not have been attempted")
	})
	os.WriteFile(filepath.Join(workspace, "a.log"), []byte("a"), 0o644) //nolint:errcheck

	art, url, err := store.CreateZip(context.Background(), "out.zip", "*.log", false)
	if err != nil {
		t.Fatalf("CreateZip() = %v", err)
	}
	if url != "" {
		t.Fatalf("url = %q, want empty", url)
	}
	if art.Filename != "out.zip" {
		t.Fatalf("Filename = %q, want out.zip", art.Filename)
	}
	if _, err := os.Stat(filepath.Join(workspace, "out.zip")); err != nil {
		t.Fatalf("Stat(out.zip) = %v", err)
	}
}

func asArtifactError(err error, target **ArtifactError) bool {
	ae, ok := err.(*ArtifactError)
	if ok {
		*target = ae
	}
	return ok
}
