// Package ptyio owns a single child process attached to a pseudo-terminal
// and provides non-blocking reads and blocking writes over it.
package ptyio

import (
	"errors"
	"io"
	"os"
	"os/exec"
	goruntime "runtime"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// ErrClosed is returned by Write/Read/Signal once Terminate has run.
var ErrClosed = errors.New("ptyio: closed")

// SignalKind selects which signal Signal delivers to the child process group.
type SignalKind int

const (
	SignalInterrupt SignalKind = iota
	SignalKill
)

// ReadResult is returned by ReadNonBlocking.
type ReadResult struct {
	Data []byte
	// EOF is true once the child side of the PTY has closed; Data may still
	// hold a final partial read alongside EOF.
	EOF bool
}

// PTY wraps a child process and its pseudo-terminal master file descriptor.
type PTY struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	master     *os.File
	hasOwnPgid bool
	closed     bool

	pending []byte // buffered partial UTF-8 continuation bytes across calls
}

// Spawn starts argv[0] with the remaining argv as arguments, attached to a
// freshly allocated PTY. env replaces the process environment entirely when
// non-nil; cwd sets the working directory when non-empty.
func Spawn(argv []string, env []string, cwd string) (*PTY, error) {
	if len(argv) == 0 {
		return nil, errors.New("ptyio: empty argv")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if env != nil {
		cmd.Env = env
	}
	if cwd != "" {
		cmd.Dir = cwd
	}

	// pty.Start runs the child with Setsid, which already makes it the leader
	// of its own process group; also asking for Setpgid would make the
	// child's setpgid call fail with EPERM.
	hasOwnPgid := goruntime.GOOS == "linux"

	master, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}

	return &PTY{cmd: cmd, master: master, hasOwnPgid: hasOwnPgid}, nil
}

// Write appends bytes to the PTY master's input. Writes are expected to be
// small (a wrapped command line), so a blocking write is acceptable.
func (p *PTY) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	return p.master.Write(b)
}

// ReadNonBlocking returns whatever bytes are currently available, up to
// maxBytes. If nothing is available it waits up to timeout before returning
// an empty, non-EOF result. Partial trailing UTF-8 sequences are held back
// and prefixed onto the next call's result.
func (p *PTY) ReadNonBlocking(maxBytes int, timeout time.Duration) (ReadResult, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ReadResult{}, ErrClosed
	}
	master := p.master
	p.mu.Unlock()

	_ = master.SetReadDeadline(time.Now().Add(timeout))

	buf := make([]byte, maxBytes)
	n, err := master.Read(buf)

	p.mu.Lock()
	defer p.mu.Unlock()

	if n > 0 {
		p.pending = append(p.pending, buf[:n]...)
	}

	out, eof := p.drainCompleteRunes(err)
	return ReadResult{Data: out, EOF: eof}, nil
}

// drainCompleteRunes splits p.pending at the last complete rune boundary,
// returning the complete prefix and keeping any trailing partial sequence
// buffered for the next read. Must be called with p.mu held.
func (p *PTY) drainCompleteRunes(readErr error) (out []byte, eof bool) {
	// Linux reports a closed PTY slave as EIO on the master rather than EOF.
	eof = errors.Is(readErr, io.EOF) || errors.Is(readErr, syscall.EIO)

	if len(p.pending) == 0 {
		return nil, eof
	}

	if eof {
		// Nothing more is coming; flush everything, valid or not.
		out = p.pending
		p.pending = nil
		return out, true
	}

	cut := len(p.pending)
	for i := 1; i <= 4 && i <= len(p.pending); i++ {
		if utf8.RuneStart(p.pending[len(p.pending)-i]) {
			if !utf8.FullRune(p.pending[len(p.pending)-i:]) {
				cut = len(p.pending) - i
			}
			break
		}
	}

	out = append(out, p.pending[:cut]...)
	p.pending = append([]byte(nil), p.pending[cut:]...)
	return out, false
}

// Signal delivers SIGINT or SIGKILL to the child's process group when the
// child owns one (Linux), or directly to the child process otherwise —
// kill(-pgid) against a group the process does not own can hit the parent's
// group on Darwin.
func (p *PTY) Signal(kind SignalKind) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.cmd.Process == nil {
		return ErrClosed
	}

	sig := unix.SIGINT
	if kind == SignalKill {
		sig = unix.SIGKILL
	}

	if p.hasOwnPgid {
		if pgid, err := unix.Getpgid(p.cmd.Process.Pid); err == nil {
			return unix.Kill(-pgid, sig)
		}
	}
	return p.cmd.Process.Signal(sig)
}

// Terminate attempts SIGTERM, waits briefly, then SIGKILL, then closes the
// PTY master. Safe to call more than once.
func (p *PTY) Terminate() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cmd := p.cmd
	master := p.master
	hasOwnPgid := p.hasOwnPgid
	p.mu.Unlock()

	if cmd.Process != nil {
		if hasOwnPgid {
			if pgid, err := unix.Getpgid(cmd.Process.Pid); err == nil {
				unix.Kill(-pgid, unix.SIGTERM)
			}
		} else {
			cmd.Process.Signal(unix.SIGTERM)
		}

		done := make(chan struct{})
		go func() { cmd.Wait(); close(done) }()

		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
			if hasOwnPgid {
				if pgid, err := unix.Getpgid(cmd.Process.Pid); err == nil {
					unix.Kill(-pgid, unix.SIGKILL)
				} else {
					cmd.Process.Kill()
				}
			} else {
				cmd.Process.Kill()
			}
			<-done
		}
	}

	return master.Close()
}
