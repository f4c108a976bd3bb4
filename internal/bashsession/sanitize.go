package bashsession

import (
	"regexp"
	"strings"
)

var csiEscape = regexp.MustCompile("\x1b\\[[0-9;?]*[a-zA-Z]")

// sanitize strips everything in raw output that is chrome rather than the
// command's own output: the echoed command at the head, PS2 continuation
// prompts, CRLF noise, and terminal control sequences.
func sanitize(raw, command, ps2 string) string {
	s := raw

	// Echo suppression: depending on PTY mode the shell may or may not echo
	// the command back. Try to strip it from the head; if absent, leave the
	// output unchanged rather than attempting a fuzzy match.
	if strings.HasPrefix(s, command) {
		s = s[len(command):]
		s = strings.TrimPrefix(s, "\r\n")
		s = strings.TrimPrefix(s, "\n")
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "")

	if ps2 != "" {
		lines := strings.Split(s, "\n")
		for i, line := range lines {
			// A multi-line command leaves one PS2 per continuation line, all
			// printed ahead of the first output line.
			for strings.HasPrefix(line, ps2) {
				line = line[len(ps2):]
			}
			lines[i] = line
		}
		s = strings.Join(lines, "\n")
	}

	s = stripControlSequences(s)
	return s
}

// stripControlSequences removes backspace-erase pairs, BEL, and ANSI CSI
// cursor-motion sequences that would otherwise leak into captured output.
func stripControlSequences(s string) string {
	for strings.Contains(s, "\b") {
		idx := strings.Index(s, "\b")
		if idx > 0 {
			s = s[:idx-1] + s[idx+1:]
		} else {
			s = s[1:]
		}
	}
	s = strings.ReplaceAll(s, "\x07", "")
	s = csiEscape.ReplaceAllString(s, "")
	return s
}
