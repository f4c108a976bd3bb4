// Package workspace implements the read_file/write_file/upload file
// operations. There is no multi-codebase/owner model here (unlike the
// container runtime this is adapted from): a Workspace is a single root on
// the sandboxed host, and every path a caller supplies is resolved and
// guarded against traversal relative to that root if the path is relative,
// or used as-is (still traversal-checked) when absolute.
package workspace

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rexsandbox/rex-runtime/pkg/types"
)

// Workspace resolves and guards file operations rooted at Root.
type Workspace struct {
	Root string
}

// New builds a Workspace rooted at root. An empty root means callers must
// supply absolute paths, which are then used unvalidated against a root
// (spec.md's file ops operate directly against the sandboxed host
// filesystem rather than a fenced subtree).
func New(root string) *Workspace {
	return &Workspace{Root: root}
}

// resolve cleans path and, when the Workspace has a root, joins it and
// verifies the result did not escape the root via "..".
func (w *Workspace) resolve(path string) (string, error) {
	if path == "" {
		return "", &types.FileOpError{Op: "resolve", Path: path, Err: errEmptyPath}
	}

	if w.Root == "" {
		return filepath.Clean(path), nil
	}

	full := filepath.Clean(path)
	if !filepath.IsAbs(full) {
		full = filepath.Join(w.Root, full)
	}
	rel, err := filepath.Rel(filepath.Clean(w.Root), full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &types.FileOpError{Op: "resolve", Path: path, Err: errPathTraversal}
	}
	return full, nil
}

// ReadFile reads path entirely as UTF-8 bytes.
func (w *Workspace) ReadFile(path string) (string, error) {
	full, err := w.resolve(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return "", &types.FileOpError{Op: "read_file", Path: path, Err: err}
	}
	return string(data), nil
}

// WriteFile writes content to path, creating missing parent directories
// (mode 0755) and always overwriting an existing file.
func (w *Workspace) WriteFile(path, content string) error {
	full, err := w.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return &types.FileOpError{Op: "write_file", Path: path, Err: err}
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return &types.FileOpError{Op: "write_file", Path: path, Err: err}
	}
	return nil
}

// UploadFile writes the raw bytes of an uploaded file to targetPath,
// overwriting and creating parent directories as needed.
func (w *Workspace) UploadFile(targetPath string, r io.Reader) (int64, error) {
	full, err := w.resolve(targetPath)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return 0, &types.FileOpError{Op: "upload", Path: targetPath, Err: err}
	}

	f, err := os.Create(full)
	if err != nil {
		return 0, &types.FileOpError{Op: "upload", Path: targetPath, Err: err}
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return n, &types.FileOpError{Op: "upload", Path: targetPath, Err: err}
	}
	return n, nil
}

// UploadTarGz extracts a gzip-compressed tar stream into targetPath,
// creating it as a directory if needed. Entries that would escape
// targetPath are rejected outright.
func (w *Workspace) UploadTarGz(targetPath string, r io.Reader) (int64, error) {
	full, err := w.resolve(targetPath)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(full, 0755); err != nil {
		return 0, &types.FileOpError{Op: "upload", Path: targetPath, Err: err}
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, &types.FileOpError{Op: "upload", Path: targetPath, Err: err}
	}
	defer gz.Close()

	var total int64
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, &types.FileOpError{Op: "upload", Path: targetPath, Err: err}
		}

		entryPath := filepath.Join(full, filepath.Clean(hdr.Name))
		if rel, relErr := filepath.Rel(full, entryPath); relErr != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return total, &types.FileOpError{Op: "upload", Path: hdr.Name, Err: errPathTraversal}
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(entryPath, 0755); err != nil {
				return total, &types.FileOpError{Op: "upload", Path: hdr.Name, Err: err}
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(entryPath), 0755); err != nil {
				return total, &types.FileOpError{Op: "upload", Path: hdr.Name, Err: err}
			}
			f, err := os.OpenFile(entryPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return total, &types.FileOpError{Op: "upload", Path: hdr.Name, Err: err}
			}
			n, copyErr := io.Copy(f, tr)
			f.Close()
			total += n
			if copyErr != nil {
				return total, &types.FileOpError{Op: "upload", Path: hdr.Name, Err: copyErr}
			}
		}
	}
	return total, nil
}
