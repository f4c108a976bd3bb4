package bashsession_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rexsandbox/rex-runtime/internal/bashsession"
	"github.com/rexsandbox/rex-runtime/pkg/types"
)

func newStartedSession(t *testing.T) *bashsession.Session {
	t.Helper()
	s := bashsession.New("test-session", types.SessionConfig{}, bashsession.Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSession_HelloWorld(t *testing.T) {
	s := newStartedSession(t)

	obs, err := s.Run(context.Background(), types.BashAction{Command: "echo hello", Session: "test-session"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if obs.Output != "hello\n" {
		t.Errorf("Output = %q, want %q", obs.Output, "hello\n")
	}
	if obs.ExitCode == nil || *obs.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", obs.ExitCode)
	}
}

func TestSession_StatePersistence(t *testing.T) {
	s := newStartedSession(t)
	ctx := context.Background()

	if _, err := s.Run(ctx, types.BashAction{Command: "export X=42"}); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	obs, err := s.Run(ctx, types.BashAction{Command: "echo $X"})
	if err != nil {
		t.Fatalf("echo failed: %v", err)
	}
	if obs.Output != "42\n" {
		t.Errorf("Output = %q, want %q", obs.Output, "42\n")
	}
}

func TestSession_NonZeroExitWithRaise(t *testing.T) {
	s := newStartedSession(t)

	_, err := s.Run(context.Background(), types.BashAction{Command: "false", Check: types.CheckRaise})
	var nz *types.NonZeroExitCodeError
	if !errors.As(err, &nz) {
		t.Fatalf("err = %v, want *types.NonZeroExitCodeError", err)
	}
	if nz.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", nz.ExitCode)
	}
}

func TestSession_TimeoutRecovers(t *testing.T) {
	s := newStartedSession(t)
	ctx := context.Background()

	_, err := s.Run(ctx, types.BashAction{Command: "sleep 30", Timeout: 1})
	var timeoutErr *types.CommandTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %v, want *types.CommandTimeoutError", err)
	}
	if !timeoutErr.Recovered {
		t.Fatalf("Recovered = false, want true")
	}

	obs, err := s.Run(ctx, types.BashAction{Command: "echo ok"})
	if err != nil {
		t.Fatalf("post-timeout Run failed: %v", err)
	}
	if obs.Output != "ok\n" {
		t.Errorf("Output = %q, want %q", obs.Output, "ok\n")
	}
}

func TestSession_IncorrectSyntaxRejectedThenSessionUsable(t *testing.T) {
	s := newStartedSession(t)
	ctx := context.Background()

	_, err := s.Run(ctx, types.BashAction{Command: `echo "unterminated`})
	var syntaxErr *types.BashIncorrectSyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("err = %v, want *types.BashIncorrectSyntaxError", err)
	}

	obs, err := s.Run(ctx, types.BashAction{Command: "echo ok"})
	if err != nil {
		t.Fatalf("Run after rejected syntax failed: %v", err)
	}
	if obs.Output != "ok\n" {
		t.Errorf("Output = %q, want %q", obs.Output, "ok\n")
	}
}

func TestSession_MultiLineHeredoc(t *testing.T) {
	s := newStartedSession(t)

	obs, err := s.Run(context.Background(), types.BashAction{Command: "cat <<EOF\nline1\nline2\nEOF"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if obs.Output != "line1\nline2\n" {
		t.Errorf("Output = %q, want %q", obs.Output, "line1\nline2\n")
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s := bashsession.New("close-test", types.SessionConfig{}, bashsession.Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}

func TestSession_RunBeforeStartFails(t *testing.T) {
	s := bashsession.New("not-started", types.SessionConfig{}, bashsession.Options{})

	_, err := s.Run(context.Background(), types.BashAction{Command: "echo hi"})
	var notInit *types.SessionNotInitializedError
	if !errors.As(err, &notInit) {
		t.Fatalf("err = %v, want *types.SessionNotInitializedError", err)
	}
}

func TestSession_ConcurrentSessionsDoNotBlockEachOther(t *testing.T) {
	s1 := newStartedSession(t)
	s2 := bashsession.New("session-2", types.SessionConfig{}, bashsession.Options{})
	if err := s2.Start(context.Background()); err != nil {
		t.Fatalf("Start s2: %v", err)
	}
	t.Cleanup(func() { s2.Close() })

	const sleepFor = "sleep 1"
	start := time.Now()

	done := make(chan struct{}, 2)
	go func() {
		s1.Run(context.Background(), types.BashAction{Command: sleepFor})
		done <- struct{}{}
	}()
	go func() {
		s2.Run(context.Background(), types.BashAction{Command: sleepFor})
		done <- struct{}{}
	}()
	<-done
	<-done

	elapsed := time.Since(start)
	if elapsed > 1800*time.Millisecond {
		t.Errorf("concurrent sleeps took %v, want well under 2x a single sleep", elapsed)
	}
}
