// Package oneshot runs a single command in a fresh child process, unrelated
// to any persistent session: argv or a shell string, optional stdin, a
// captured stdout/stderr pair, and a timeout enforced by killing the whole
// process group.
package oneshot

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rexsandbox/rex-runtime/pkg/types"
)

// Request describes a one-shot command per spec.md's "One-Shot Command".
type Request struct {
	Argv    []string
	Shell   string // non-empty: run via `sh -c <Shell>`; Argv is ignored
	Env     map[string]string
	Cwd     string
	Timeout time.Duration
	Stdin   string
}

// Run executes req and never returns an error for a non-zero exit or a
// timeout — both are reported through the returned CommandResponse, exactly
// as spec.md §4.5 requires. An error is only returned when the command could
// not be started at all (e.g. the binary doesn't exist).
func Run(ctx context.Context, req Request) (types.CommandResponse, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if req.Shell != "" {
		cmd = exec.CommandContext(runCtx, "/bin/sh", "-c", req.Shell)
	} else {
		if len(req.Argv) == 0 {
			return types.CommandResponse{}, errEmptyCommand
		}
		cmd = exec.CommandContext(runCtx, req.Argv[0], req.Argv[1:]...)
	}

	if req.Cwd != "" {
		cmd.Dir = req.Cwd
	}

	cmd.Env = os.Environ()
	for k, v := range req.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}

	if goruntime.GOOS == "linux" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
	// On expiry kill the whole group, so grandchildren holding the output
	// pipes cannot keep Wait blocked past the timeout.
	cmd.Cancel = func() error {
		killProcessGroup(cmd, goruntime.GOOS == "linux")
		return nil
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startErr := cmd.Start()
	if startErr != nil {
		return types.CommandResponse{}, startErr
	}

	waitErr := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd, goruntime.GOOS == "linux")
		return types.CommandResponse{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: nil,
			Success:  false,
		}, nil
	}

	exitCode := 0
	success := true
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			success = exitCode == 0
		} else {
			return types.CommandResponse{}, waitErr
		}
	}

	return types.CommandResponse{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: &exitCode,
		Success:  success,
	}, nil
}

func killProcessGroup(cmd *exec.Cmd, hasOwnPgid bool) {
	if cmd.Process == nil {
		return
	}
	if hasOwnPgid {
		if pgid, err := unix.Getpgid(cmd.Process.Pid); err == nil {
			unix.Kill(-pgid, unix.SIGKILL)
			return
		}
	}
	cmd.Process.Kill()
}

var errEmptyCommand = errors.New("oneshot: empty command")
