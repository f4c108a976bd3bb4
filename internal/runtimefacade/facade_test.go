package runtimefacade_test

import (
	"context"
	"strings"
	"testing"

	"github.com/rexsandbox/rex-runtime/internal/registry"
	"github.com/rexsandbox/rex-runtime/internal/runtimefacade"
	"github.com/rexsandbox/rex-runtime/pkg/types"
)

func newFacade(t *testing.T) *runtimefacade.Facade {
	t.Helper()
	reg := registry.New(nil)
	f := runtimefacade.New(reg, t.TempDir())
	return f
}

func TestFacade_IsAlive(t *testing.T) {
	f := newFacade(t)
	if got := f.IsAlive(); !got.OK {
		t.Errorf("IsAlive().OK = false, want true")
	}
}

func TestFacade_CreateRunClose(t *testing.T) {
	f := newFacade(t)
	ctx := context.Background()

	if _, err := f.CreateSession(ctx, types.CreateBashSessionRequest{Session: "s"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	obs, err := f.RunInSession(ctx, types.BashAction{Session: "s", Command: "echo hi"})
	if err != nil {
		t.Fatalf("RunInSession: %v", err)
	}
	if obs.Output != "hi\n" {
		t.Errorf("Output = %q, want %q", obs.Output, "hi\n")
	}

	if _, err := f.CloseSession(types.CloseBashSessionRequest{Session: "s"}); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
}

func TestFacade_Execute(t *testing.T) {
	f := newFacade(t)

	resp, err := f.Execute(context.Background(), types.Command{Argv: []string{"echo", "exec"}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Stdout != "exec\n" {
		t.Errorf("Stdout = %q, want %q", resp.Stdout, "exec\n")
	}
}

func TestFacade_WriteThenReadFile(t *testing.T) {
	f := newFacade(t)

	if _, err := f.WriteFile(types.WriteFileRequest{Path: "x.txt", Content: "abc"}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	resp, err := f.ReadFile(types.ReadFileRequest{Path: "x.txt"})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if resp.Content != "abc" {
		t.Errorf("Content = %q, want %q", resp.Content, "abc")
	}
}

func TestFacade_Upload(t *testing.T) {
	f := newFacade(t)

	resp, err := f.Upload("u.txt", strings.NewReader("uploaded"), false)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if resp.Size != int64(len("uploaded")) {
		t.Errorf("Size = %d, want %d", resp.Size, len("uploaded"))
	}
}

func TestFacade_Close_IsIdempotent(t *testing.T) {
	f := newFacade(t)
	if !f.Close().OK {
		t.Error("first Close().OK = false")
	}
	if !f.Close().OK {
		t.Error("second Close().OK = false")
	}
}
