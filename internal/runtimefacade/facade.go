// Package runtimefacade is the stateless dispatcher that routes
// create/run/close/execute/read/write/upload calls to the session registry,
// the one-shot executor, or the workspace — the in-process equivalent of the
// teacher's gRPC service layer, called directly by the HTTP handlers instead
// of through a generated stub.
package runtimefacade

import (
	"context"
	"io"
	"time"

	"github.com/rexsandbox/rex-runtime/internal/oneshot"
	"github.com/rexsandbox/rex-runtime/internal/registry"
	"github.com/rexsandbox/rex-runtime/internal/workspace"
	"github.com/rexsandbox/rex-runtime/pkg/types"
)

// Facade wires the registry, one-shot executor, and workspace together.
type Facade struct {
	registry  *registry.Registry
	workspace *workspace.Workspace
}

// New builds a Facade. root is the workspace's file-ops root (may be empty,
// meaning callers must supply absolute paths).
func New(reg *registry.Registry, root string) *Facade {
	return &Facade{registry: reg, workspace: workspace.New(root)}
}

// IsAlive always reports true: the process being reachable proves it.
func (f *Facade) IsAlive() types.IsAliveResponse {
	return types.IsAliveResponse{OK: true}
}

// CreateSession delegates to the registry.
func (f *Facade) CreateSession(ctx context.Context, req types.CreateBashSessionRequest) (types.CreateSessionResponse, error) {
	cfg := types.SessionConfig{
		Shell:          req.Shell,
		StartupSources: req.StartupSource,
		Env:            req.Env,
	}
	if _, err := f.registry.Create(ctx, req.Session, cfg); err != nil {
		return types.CreateSessionResponse{}, err
	}
	return types.CreateSessionResponse{Session: req.Session}, nil
}

// RunInSession looks up the session and runs the command in it.
func (f *Facade) RunInSession(ctx context.Context, action types.BashAction) (types.BashObservation, error) {
	sess, err := f.registry.Get(action.Session)
	if err != nil {
		return types.BashObservation{}, err
	}
	return sess.Run(ctx, action)
}

// CloseSession delegates to the registry.
func (f *Facade) CloseSession(req types.CloseBashSessionRequest) (types.CloseSessionResponse, error) {
	if err := f.registry.Remove(req.Session); err != nil {
		return types.CloseSessionResponse{}, err
	}
	return types.CloseSessionResponse{Session: req.Session}, nil
}

// Execute runs a one-shot command, independent of any session.
func (f *Facade) Execute(ctx context.Context, cmd types.Command) (types.CommandResponse, error) {
	req := oneshot.Request{
		Argv:    cmd.Argv,
		Env:     cmd.Env,
		Cwd:     cmd.Cwd,
		Stdin:   cmd.Stdin,
		Timeout: time.Duration(cmd.Timeout * float64(time.Second)),
	}
	if cmd.Shell {
		req.Shell = cmd.Raw
	}
	return oneshot.Run(ctx, req)
}

// ReadFile reads an entire file as UTF-8.
func (f *Facade) ReadFile(req types.ReadFileRequest) (types.ReadFileResponse, error) {
	content, err := f.workspace.ReadFile(req.Path)
	if err != nil {
		return types.ReadFileResponse{}, err
	}
	return types.ReadFileResponse{Content: content}, nil
}

// WriteFile writes content, creating parent directories and overwriting.
func (f *Facade) WriteFile(req types.WriteFileRequest) (types.WriteFileResponse, error) {
	if err := f.workspace.WriteFile(req.Path, req.Content); err != nil {
		return types.WriteFileResponse{}, err
	}
	return types.WriteFileResponse{Path: req.Path}, nil
}

// Upload writes an uploaded file (or extracts a tar.gz archive) to
// targetPath.
func (f *Facade) Upload(targetPath string, r io.Reader, isArchive bool) (types.UploadResponse, error) {
	var (
		n   int64
		err error
	)
	if isArchive {
		n, err = f.workspace.UploadTarGz(targetPath, r)
	} else {
		n, err = f.workspace.UploadFile(targetPath, r)
	}
	if err != nil {
		return types.UploadResponse{}, err
	}
	return types.UploadResponse{Path: targetPath, Size: n}, nil
}

// Close calls registry.CloseAll; idempotent.
func (f *Facade) Close() types.CloseResponse {
	f.registry.CloseAll()
	return types.CloseResponse{OK: true}
}
