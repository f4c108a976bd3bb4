// Package bashsession implements the persistent interactive Bash session
// state machine: prompt synchronization, sentinel-based end-of-command
// detection, output sanitization, and timeout-with-interrupt recovery.
package bashsession

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rexsandbox/rex-runtime/internal/bashcheck"
	"github.com/rexsandbox/rex-runtime/internal/logging"
	"github.com/rexsandbox/rex-runtime/internal/ptyio"
	"github.com/rexsandbox/rex-runtime/pkg/types"
)

const (
	defaultPS1 = "SWE-REX-PS1>"
	defaultPS2 = "SWE-REX-PS2>"

	startupTimeout  = 10 * time.Second
	recoveryTimeout = 5 * time.Second
	pollInterval    = 200 * time.Millisecond

	quitByte byte = 0x04 // Ctrl-D
)

// Options configures prompt strings and the startup grace period; all
// fields have workable zero values.
type Options struct {
	PS1             string
	PS2             string
	StartupTimeout  time.Duration
	RecoveryTimeout time.Duration
}

// Session is one long-lived interactive Bash shell attached to a PTY.
type Session struct {
	name string
	cfg  types.SessionConfig
	opts Options

	runMu sync.Mutex // held for the duration of a run_in_session call

	mu      sync.Mutex // guards the fields below
	pty     *ptyio.PTY
	started bool
	failed  bool
	closed  bool
}

// New constructs a Session that has not yet been started.
func New(name string, cfg types.SessionConfig, opts Options) *Session {
	if opts.PS1 == "" {
		opts.PS1 = defaultPS1
	}
	if opts.PS2 == "" {
		opts.PS2 = defaultPS2
	}
	if opts.StartupTimeout == 0 {
		opts.StartupTimeout = startupTimeout
	}
	if opts.RecoveryTimeout == 0 {
		opts.RecoveryTimeout = recoveryTimeout
	}
	return &Session{name: name, cfg: cfg, opts: opts}
}

// Name returns the session's caller-chosen name.
func (s *Session) Name() string { return s.name }

// Failed reports whether the shell died or was abandoned after an
// unrecovered timeout.
func (s *Session) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Start spawns the shell, runs the configured startup sources, and
// synchronizes on the PS1 prompt.
func (s *Session) Start(ctx context.Context) error {
	shell := s.cfg.Shell
	if shell == "" {
		shell = "/bin/bash"
	}

	env := buildEnv(s.cfg.Env, s.opts.PS1, s.opts.PS2)
	argv := []string{shell, "--norc", "--noprofile", "-i"}

	p, err := ptyio.Spawn(argv, env, "")
	if err != nil {
		return fmt.Errorf("bashsession: spawn %s: %w", shell, err)
	}

	s.mu.Lock()
	s.pty = p
	s.mu.Unlock()

	init := "stty -echo -icanon 2>/dev/null\n" +
		"bind 'set enable-bracketed-paste off' 2>/dev/null; shopt -u histexpand 2>/dev/null; set +H 2>/dev/null\n"
	if _, err := p.Write([]byte(init)); err != nil {
		s.markFailed()
		return fmt.Errorf("bashsession: init write: %w", err)
	}

	for _, src := range s.cfg.StartupSources {
		_, code, err := s.execSentineled(ctx, "source "+shellQuote(src), s.opts.StartupTimeout)
		if err != nil {
			s.markFailed()
			return err
		}
		if code != 0 {
			s.markFailed()
			return &types.SessionNotInitializedError{Session: s.name}
		}
	}

	// Prompt sync: run a no-op through the same sentinel path so we confirm
	// PS1 is really what we expect before declaring the session usable.
	if _, _, err := s.execSentineled(ctx, ":", s.opts.StartupTimeout); err != nil {
		s.markFailed()
		return err
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *Session) markFailed() {
	s.mu.Lock()
	s.failed = true
	s.mu.Unlock()
}

// Run executes one command per the session's Run semantics (spec ~4.2).
func (s *Session) Run(ctx context.Context, action types.BashAction) (types.BashObservation, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	started, failed := s.started, s.failed
	s.mu.Unlock()
	if !started || failed {
		return types.BashObservation{}, &types.SessionNotInitializedError{Session: s.name}
	}

	timeout := s.cfg.DefaultTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if action.Timeout > 0 {
		timeout = time.Duration(action.Timeout * float64(time.Second))
	}

	if action.IsInteractiveQuit {
		if _, err := s.pty.Write([]byte{quitByte}); err != nil {
			return types.BashObservation{}, err
		}
		if action.Command == "" {
			out, err := s.readInteractive(timeout)
			return types.BashObservation{Output: out, SessionType: "bash"}, err
		}
	}

	if action.IsInteractiveCommand || action.IsInteractiveQuit {
		if _, err := s.pty.Write([]byte(action.Command + "\n")); err != nil {
			return types.BashObservation{}, err
		}
		out, err := s.readInteractive(timeout)
		return types.BashObservation{Output: out, SessionType: "bash"}, err
	}

	if err := bashcheck.Check(action.Command); err != nil {
		return types.BashObservation{}, err
	}

	raw, exitCode, err := s.execSentineled(ctx, action.Command, timeout)
	if err != nil {
		return types.BashObservation{}, err
	}

	output := sanitize(raw, action.Command, s.opts.PS2)
	code := exitCode
	obs := types.BashObservation{Output: output, ExitCode: &code, SessionType: "bash"}

	if action.Check == types.CheckRaise && exitCode != 0 {
		return obs, &types.NonZeroExitCodeError{Command: action.Command, ExitCode: exitCode, Output: output}
	}
	return obs, nil
}

// Close sends `exit`, waits briefly, and force-terminates the shell if it
// has not exited on its own.
func (s *Session) Close() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	p := s.pty
	s.mu.Unlock()

	if p == nil {
		return nil
	}

	p.Write([]byte("exit\n"))
	time.Sleep(100 * time.Millisecond)
	return p.Terminate()
}

// readInteractive writes nothing; it reads whatever is available for up to
// timeout and returns it unsanitized of sentinel logic (there is none to
// strip — interactive mode never wraps the command).
func (s *Session) readInteractive(timeout time.Duration) (string, error) {
	var buf strings.Builder
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		res, err := s.pty.ReadNonBlocking(4096, pollOrRemaining(deadline))
		if err != nil {
			return buf.String(), err
		}
		buf.Write(res.Data)
		if res.EOF {
			s.markFailed()
			break
		}
	}
	return strings.ReplaceAll(buf.String(), "\r\n", "\n"), nil
}

// execSentineled wraps command with the SOUT/SCODE sentinel pair, writes it,
// and polls until both are observed followed by the PS1 prompt, or until
// timeout triggers the interrupt-then-recover sequence.
func (s *Session) execSentineled(ctx context.Context, command string, timeout time.Duration) (output string, exitCode int, err error) {
	soutNonce := randomNonce()
	scodeNonce := randomNonce()

	wrapped := command + "\n" +
		"EC=$?; echo SOUT:" + soutNonce + "; echo SCODE:" + scodeNonce + ":$EC\n"

	if _, werr := s.pty.Write([]byte(wrapped)); werr != nil {
		return "", 0, werr
	}

	soutMarker := "SOUT:" + soutNonce
	scodeMarker := "SCODE:" + scodeNonce + ":"

	var buf strings.Builder
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		res, rerr := s.pty.ReadNonBlocking(4096, pollOrRemaining(deadline))
		if rerr != nil {
			return "", 0, rerr
		}
		buf.Write(res.Data)

		if res.EOF {
			s.markFailed()
			return "", 0, &types.SessionNotInitializedError{Session: s.name}
		}

		current := buf.String()
		if out, code, ok := extractSentinel(current, soutMarker, scodeMarker, s.opts.PS1); ok {
			return out, code, nil
		}
	}

	return s.recoverFromTimeout(command, timeout, buf.String())
}

// extractSentinel looks for the SCODE line followed by the PS1 prompt at
// the buffer's tail, per the spec's read-loop contract. The last occurrence
// of each marker is used, so a terminal echo of the wrapper line (whose
// SCODE marker is followed by "$EC", not digits) is skipped. The PS1 prompt
// that the shell prints between the command and the sentinel line is
// dropped from the returned output.
func extractSentinel(buf, soutMarker, scodeMarker, ps1 string) (output string, exitCode int, ok bool) {
	if !strings.HasSuffix(buf, ps1) {
		return "", 0, false
	}

	scodeIdx := strings.LastIndex(buf, scodeMarker)
	if scodeIdx == -1 {
		return "", 0, false
	}

	after := buf[scodeIdx+len(scodeMarker):]
	end := 0
	if end < len(after) && after[end] == '-' {
		end++
	}
	for end < len(after) && after[end] >= '0' && after[end] <= '9' {
		end++
	}
	if end == 0 {
		return "", 0, false
	}
	code, convErr := strconv.Atoi(after[:end])
	if convErr != nil {
		return "", 0, false
	}

	soutIdx := strings.LastIndex(buf[:scodeIdx], soutMarker)
	if soutIdx == -1 {
		return "", 0, false
	}

	return strings.TrimSuffix(buf[:soutIdx], ps1), code, true
}

// recoverFromTimeout runs the SIGINT-then-wait-for-prompt recovery sequence
// and builds the appropriate CommandTimeoutError.
func (s *Session) recoverFromTimeout(command string, timeout time.Duration, partial string) (string, int, error) {
	// Ctrl-C through the PTY: the terminal sends SIGINT to its foreground
	// process group (the running job, which bash's job control keeps apart
	// from the shell's own group) and discards the queued sentinel line.
	if _, err := s.pty.Write([]byte{0x03}); err != nil {
		logging.Warn("failed to deliver SIGINT during recovery",
			logging.String("session", s.name), logging.Err(err))
	}

	var buf strings.Builder
	buf.WriteString(partial)
	deadline := time.Now().Add(s.opts.RecoveryTimeout)

	for time.Now().Before(deadline) {
		res, err := s.pty.ReadNonBlocking(4096, pollOrRemaining(deadline))
		if err != nil {
			break
		}
		buf.WriteString(string(res.Data))
		if res.EOF {
			break
		}
		if strings.HasSuffix(buf.String(), s.opts.PS1) {
			return "", 0, &types.CommandTimeoutError{
				Command:       command,
				Timeout:       timeout,
				Recovered:     true,
				PartialOutput: sanitize(buf.String(), command, s.opts.PS2),
			}
		}
	}

	s.pty.Terminate()
	s.markFailed()
	return "", 0, &types.CommandTimeoutError{
		Command:       command,
		Timeout:       timeout,
		Recovered:     false,
		PartialOutput: sanitize(buf.String(), command, s.opts.PS2),
	}
}

func pollOrRemaining(deadline time.Time) time.Duration {
	if remaining := time.Until(deadline); remaining < pollInterval {
		if remaining <= 0 {
			return 0
		}
		return remaining
	}
	return pollInterval
}

func buildEnv(extra map[string]string, ps1, ps2 string) []string {
	env := append([]string(nil), os.Environ()...)
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	env = append(env, "PS1="+ps1, "PS2="+ps2)
	return env
}

func shellQuote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
