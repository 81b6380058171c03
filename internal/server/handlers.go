package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ShayCichocki/chunkd/internal/orchestrator"
	"github.com/ShayCichocki/chunkd/pkg/models"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: msg}})
}

// writeErr maps orchestrator errors onto the API's error envelope.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	var verr *orchestrator.ValidationError
	var serr *orchestrator.InvalidStateError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "invalid_argument", verr.Msg)
	case errors.Is(err, orchestrator.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, orchestrator.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &serr):
		writeError(w, http.StatusConflict, "invalid_state", serr.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "malformed JSON body")
		return false
	}
	return true
}

type injectRequest struct {
	Chunk    string `json:"chunk"`
	Priority int    `json:"priority"`
}

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if !decode(w, r, &req) {
		return
	}
	unit, err := s.orch.Inject(req.Chunk, req.Priority)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, unit)
}

func (s *Server) handleListWorkUnits(w http.ResponseWriter, _ *http.Request) {
	units, err := s.store.ListWorkUnits()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"work_units": units})
}

func (s *Server) handleGetWorkUnit(w http.ResponseWriter, r *http.Request) {
	chunk := chi.URLParam(r, "chunk")
	unit, err := s.store.GetWorkUnit(chunk)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if unit == nil {
		s.writeErr(w, orchestrator.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

type priorityRequest struct {
	Priority *int `json:"priority"`
}

func (s *Server) handleSetPriority(w http.ResponseWriter, r *http.Request) {
	var req priorityRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Priority == nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "priority is required")
		return
	}
	unit, err := s.orch.SetPriority(chi.URLParam(r, "chunk"), *req.Priority)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

type answerRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	unit, err := s.orch.Answer(chi.URLParam(r, "chunk"), req.Text)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

type resolveRequest struct {
	Peer    string `json:"peer"`
	Verdict string `json:"verdict"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Peer == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "peer is required")
		return
	}
	chunk := chi.URLParam(r, "chunk")
	if err := s.orch.Resolve(chunk, req.Peer, models.ResolveVerdict(req.Verdict)); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	unit, err := s.orch.Retry(chi.URLParam(r, "chunk"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

func (s *Server) handleListConflicts(w http.ResponseWriter, _ *http.Request) {
	conflicts, err := s.store.ListConflicts()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

func (s *Server) handleConflictsFor(w http.ResponseWriter, r *http.Request) {
	conflicts, err := s.store.ListConflictsFor(chi.URLParam(r, "chunk"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

type analyzeRequest struct {
	ChunkA string `json:"chunk_a"`
	ChunkB string `json:"chunk_b"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ChunkA == "" || req.ChunkB == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "chunk_a and chunk_b are required")
		return
	}
	analysis, err := s.orch.AnalyzePair(r.Context(), req.ChunkA, req.ChunkB)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleAttention(w http.ResponseWriter, _ *http.Request) {
	items, err := s.orch.ListAttention()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attention": items})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	settings, err := s.orch.Settings()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if !decode(w, r, &req) {
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_argument", "no settings given")
		return
	}
	for key, value := range req {
		if err := s.orch.UpdateSetting(key, value); err != nil {
			s.writeErr(w, err)
			return
		}
	}
	settings, err := s.orch.Settings()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
