// Package bashcheck rejects syntactically incomplete Bash commands before
// they reach a live session, so an unclosed quote or open heredoc can never
// wedge the shell into PS2 continuation mode.
package bashcheck

import (
	"strings"

	"github.com/rexsandbox/rex-runtime/pkg/types"
	"mvdan.cc/sh/v3/syntax"
)

// Check parses command as a Bash program and returns a
// *types.BashIncorrectSyntaxError when the parser reports that the input
// ends too abruptly to be complete — an open quote, an open heredoc, a
// trailing pipe/&&/||/backslash continuation, or an unterminated
// substitution. A parse error that is NOT of that "incomplete" shape (a
// plain syntax mistake bash would reject synchronously at the prompt) is not
// rejected here; only errors that would make bash itself wait for more
// input are in scope.
func Check(command string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(false))

	_, err := parser.Parse(strings.NewReader(command), "")
	if err == nil {
		return nil
	}

	if perr, ok := err.(syntax.ParseError); ok {
		if perr.Incomplete {
			return &types.BashIncorrectSyntaxError{Command: command, Err: err}
		}
		return nil
	}

	// Any other parser failure (e.g. a premature EOF the parser couldn't
	// attribute to a specific token) is conservatively treated as
	// incomplete: false positives are cheaper than a wedged session.
	return &types.BashIncorrectSyntaxError{Command: command, Err: err}
}
