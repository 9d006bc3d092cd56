// Package artifact implements upload/download of build-result files named
// by build UUID, plus glob-based zip packaging of a set of workspace files
// into a single artifact.
package artifact

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"drjosh.dev/zzglob"
	"github.com/sciagent/sci-agent/api"
)

// ArtifactError is returned when the storage service rejects an upload or
// download.
type ArtifactError struct {
	Op     string
	Status string
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact: %s failed: %s", e.Op, e.Status)
}

// Artifact identifies a file stored on the storage service, relative to its
// build.
type Artifact struct {
	Filename string
}

// Store uploads and downloads artifacts for one build, addressed by
// BuildUUID on the storage service.
type Store struct {
	Client    *api.Client
	BuildUUID string
	Workspace string
}

type uploadResult struct {
	Status string `json:"status"`
	URL    string `json:"url"`
}

// Add uploads localFilename (relative to the workspace unless absolute) to
// the storage service under remoteFilename (defaulting to localFilename's
// path relative to the workspace) and returns the stored Artifact and its
// URL.
func (s *Store) Add(ctx context.Context, localFilename, remoteFilename string) (*Artifact, string, error) {
	local := localFilename
	if !filepath.IsAbs(local) {
		local = filepath.Join(s.Workspace, local)
	}
	local, err := filepath.Abs(local)
	if err != nil {
		return nil, "", fmt.Errorf("artifact: resolve %q: %w", localFilename, err)
	}

	if remoteFilename == "" {
		remoteFilename, err = filepath.Rel(s.Workspace, local)
		if err != nil {
			return nil, "", fmt.Errorf("artifact: relativize %q: %w", local, err)
		}
	}

	f, err := os.Open(local)
	if err != nil {
		return nil, "", fmt.Errorf("artifact: open %q: %w", local, err)
	}
	defer f.Close()

	path := fmt.Sprintf("/f/%s/%s", s.BuildUUID, remoteFilename)
	req, err := s.Client.NewRequest(ctx, http.MethodPut, path, nil, f)
	if err != nil {
		return nil, "", fmt.Errorf("artifact: build upload request: %w", err)
	}

	var result uploadResult
	if _, err := s.Client.Do(req, &result); err != nil {
		return nil, "", fmt.Errorf("artifact: upload %q: %w", remoteFilename, err)
	}
	if result.Status != "ok" {
		return nil, "", &ArtifactError{Op: "upload " + remoteFilename, Status: result.Status}
	}

	return &Artifact{Filename: remoteFilename}, result.URL, nil
}

// Get downloads remoteFilename into localFilename (defaulting to
// remoteFilename under the workspace), creating any missing parent
// directories.
func (s *Store) Get(ctx context.Context, remoteFilename, localFilename string) error {
	if localFilename == "" {
		localFilename = filepath.Join(s.Workspace, remoteFilename)
	}
	if err := os.MkdirAll(filepath.Dir(localFilename), 0o755); err != nil {
		return fmt.Errorf("artifact: create parent dirs for %q: %w", localFilename, err)
	}

	path := fmt.Sprintf("/f/%s/%s", s.BuildUUID, remoteFilename)
	req, err := s.Client.NewRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return fmt.Errorf("artifact: build download request: %w", err)
	}

	out, err := os.Create(localFilename)
	if err != nil {
		return fmt.Errorf("artifact: create %q: %w", localFilename, err)
	}
	defer out.Close()

	if _, err := s.Client.Do(req, &api.RawBody{Writer: out}); err != nil {
		return fmt.Errorf("artifact: download %q: %w", remoteFilename, err)
	}
	return nil
}

// CreateZip collects every file under the workspace matching glob into a
// deflate-compressed archive at zipFilename (workspace-relative), using
// workspace-relative names inside the archive. When upload is true, the
// resulting zip is also uploaded as an artifact.
func (s *Store) CreateZip(ctx context.Context, zipFilename, glob string, upload bool) (*Artifact, string, error) {
	zipPath := filepath.Join(s.Workspace, zipFilename)
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return nil, "", fmt.Errorf("artifact: create parent dirs for %q: %w", zipPath, err)
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return nil, "", fmt.Errorf("artifact: create %q: %w", zipPath, err)
	}

	zw := zip.NewWriter(out)
	pattern, err := zzglob.Parse(filepath.Join(s.Workspace, glob))
	if err != nil {
		zw.Close()
		out.Close()
		return nil, "", fmt.Errorf("artifact: parse glob %q: %w", glob, err)
	}

	walkDirFunc := func(path string, d fs.DirEntry, err error) error {
		if err != nil || d == nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.Workspace, path)
		if err != nil {
			return err
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: filepath.ToSlash(rel), Method: zip.Deflate})
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	}
	walkErr := zzglob.MultiGlob(ctx, []*zzglob.Pattern{pattern}, walkDirFunc)

	closeErr := zw.Close()
	if err := out.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if walkErr != nil {
		return nil, "", fmt.Errorf("artifact: zip %q: %w", glob, walkErr)
	}
	if closeErr != nil {
		return nil, "", fmt.Errorf("artifact: finalize %q: %w", zipPath, closeErr)
	}

	if !upload {
		return &Artifact{Filename: zipFilename}, "", nil
	}
	return s.Add(ctx, zipPath, "")
}
