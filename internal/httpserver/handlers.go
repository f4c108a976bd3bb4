package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rexsandbox/rex-runtime/pkg/types"
)

const maxRequestBody = 64 << 20 // 64 MiB; bounds arbitrary client JSON bodies

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleIsAlive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.facade.IsAlive())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req types.CreateBashSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.facade.CreateSession(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleRunInSession(w http.ResponseWriter, r *http.Request) {
	var action types.BashAction
	if !decodeJSON(w, r, &action) {
		return
	}
	obs, err := s.facade.RunInSession(r.Context(), action)
	if err != nil {
		// Some errors (NonZeroExitCodeError, CommandTimeoutError) still
		// carry a partial observation; the error envelope is authoritative
		// for the client either way, per spec.md §6.
		writeError(w, err)
		return
	}
	writeJSON(w, obs)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	var req types.CloseBashSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.facade.CloseSession(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var cmd types.Command
	if !decodeJSON(w, r, &cmd) {
		return
	}
	resp, err := s.facade.Execute(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	var req types.ReadFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.facade.ReadFile(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req types.WriteFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.facade.WriteFile(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

// handleUpload accepts a multipart form with fields `file`, `target_path`,
// and `unzip` (per spec.md §6). `unzip` selects tar.gz extraction instead of
// a raw file write.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, err)
		return
	}

	targetPath := r.FormValue("target_path")
	isArchive, _ := strconv.ParseBool(r.FormValue("unzip"))

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, err)
		return
	}
	defer file.Close()

	resp, err := s.facade.Upload(targetPath, file, isArchive)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.facade.Close())
}
