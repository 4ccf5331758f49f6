package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summaries, err := s.deps.Store.List(ctx, 100)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Prompt   string `json:"prompt"`
		Domain   string `json:"domain"`
		Provider string `json:"provider"`
		Model    string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Prompt == "" || body.Domain == "" {
		writeError(w, http.StatusBadRequest, "prompt and domain are required")
		return
	}

	sessCtx, err := s.deps.Runner.Start(ctx, body.Prompt, body.Domain, body.Provider, body.Model)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sessCtx.Export())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	sessCtx, err := s.deps.Runner.Status(ctx, id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessCtx.Export())
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	sessCtx, err := s.deps.Runner.Resume(ctx, id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, sessCtx.Export())
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := s.deps.Runner.Cancel(ctx, id); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "session_id": id})
}
