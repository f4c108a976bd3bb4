package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rexsandbox/rex-runtime/pkg/types"
)

// errorEnvelope is the wire shape of every application error response
// (spec.md §6): a typed, reconstructable application error distinguished from
// a transport failure by the deliberately non-standard HTTP 511 status. A
// request with the wrong method gets a plain-text 405 instead.
type errorEnvelope struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
	Extra     any    `json:"extra,omitempty"`
}

const applicationErrorStatus = 511

// writeError maps err to its taxonomy kind and writes the envelope.
func writeError(w http.ResponseWriter, err error) {
	kind, extra := classify(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(applicationErrorStatus)
	json.NewEncoder(w).Encode(errorEnvelope{
		ErrorKind: kind,
		Message:   err.Error(),
		Extra:     extra,
	})
}

func classify(err error) (kind string, extra any) {
	var (
		sessionExists   *types.SessionExistsError
		sessionNotFound *types.SessionDoesNotExistError
		notInitialized  *types.SessionNotInitializedError
		syntaxErr       *types.BashIncorrectSyntaxError
		timeoutErr      *types.CommandTimeoutError
		nonZeroExit     *types.NonZeroExitCodeError
		noExitCode      *types.NoExitCodeError
		deploymentNotUp *types.DeploymentNotStartedError
		fileOpErr       *types.FileOpError
	)

	switch {
	case errors.As(err, &sessionExists):
		return "SessionExistsError", nil
	case errors.As(err, &sessionNotFound):
		return "SessionDoesNotExistError", nil
	case errors.As(err, &notInitialized):
		return "SessionNotInitializedError", nil
	case errors.As(err, &syntaxErr):
		return "BashIncorrectSyntaxError", nil
	case errors.As(err, &timeoutErr):
		return "CommandTimeoutError", map[string]any{
			"recovered":      timeoutErr.Recovered,
			"partial_output": timeoutErr.PartialOutput,
			"timeout":        timeoutErr.Timeout.Seconds(),
		}
	case errors.As(err, &nonZeroExit):
		return "NonZeroExitCodeError", map[string]any{
			"exit_code": nonZeroExit.ExitCode,
			"output":    nonZeroExit.Output,
		}
	case errors.As(err, &noExitCode):
		return "NoExitCodeError", nil
	case errors.As(err, &deploymentNotUp):
		return "DeploymentNotStartedError", nil
	case errors.As(err, &fileOpErr):
		return "FileOpError", map[string]any{"op": fileOpErr.Op, "path": fileOpErr.Path}
	case errors.Is(err, errUnauthorized):
		return "AuthenticationError", nil
	default:
		return "InternalError", nil
	}
}
