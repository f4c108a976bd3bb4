package workspace_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rexsandbox/rex-runtime/internal/workspace"
	"github.com/rexsandbox/rex-runtime/pkg/types"
)

func TestWorkspace_WriteThenReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	ws := workspace.New(root)

	if err := ws.WriteFile("sub/dir/f.txt", "hello world"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ws.ReadFile("sub/dir/f.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != "hello world" {
		t.Errorf("ReadFile = %q, want %q", got, "hello world")
	}
}

func TestWorkspace_WriteOverwrites(t *testing.T) {
	root := t.TempDir()
	ws := workspace.New(root)

	ws.WriteFile("f.txt", "first")
	if err := ws.WriteFile("f.txt", "second"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, _ := ws.ReadFile("f.txt")
	if got != "second" {
		t.Errorf("ReadFile = %q, want %q", got, "second")
	}
}

func TestWorkspace_ReadMissingFileFails(t *testing.T) {
	ws := workspace.New(t.TempDir())

	_, err := ws.ReadFile("nope.txt")
	var opErr *types.FileOpError
	if !errors.As(err, &opErr) {
		t.Fatalf("err = %v, want *types.FileOpError", err)
	}
}

func TestWorkspace_PathTraversalRejected(t *testing.T) {
	ws := workspace.New(t.TempDir())

	err := ws.WriteFile("../../etc/passwd", "pwned")
	var opErr *types.FileOpError
	if !errors.As(err, &opErr) {
		t.Fatalf("err = %v, want *types.FileOpError", err)
	}
}

func TestWorkspace_UploadFile_ByteIdentical(t *testing.T) {
	root := t.TempDir()
	ws := workspace.New(root)

	payload := bytes.Repeat([]byte("x"), 1024)
	n, err := ws.UploadFile("f", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("n = %d, want %d", n, len(payload))
	}

	got, err := ws.ReadFile("f")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != string(payload) {
		t.Error("uploaded content does not round-trip byte-identically")
	}
}

func TestWorkspace_UploadTarGz_ExtractsFiles(t *testing.T) {
	root := t.TempDir()
	ws := workspace.New(root)

	var archive bytes.Buffer
	gz := gzip.NewWriter(&archive)
	tw := tar.NewWriter(gz)
	content := []byte("nested content")
	if err := tw.WriteHeader(&tar.Header{Name: "a/b.txt", Mode: 0644, Size: int64(len(content))}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	tw.Write(content)
	tw.Close()
	gz.Close()

	if _, err := ws.UploadTarGz("extracted", &archive); err != nil {
		t.Fatalf("UploadTarGz: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "extracted", "a", "b.txt"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("extracted content = %q, want %q", got, content)
	}
}
