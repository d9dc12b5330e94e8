package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"code-playground/internal/playground"
	"code-playground/internal/session"
)

func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	st := session.New(req.Beginner != nil && *req.Beginner)
	if !h.applySession(w, r, st, req) {
		return
	}
	if err := h.sessions.Save(r.Context(), st); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) HandleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	st, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	if req.Beginner != nil {
		st.Beginner = *req.Beginner
	}
	if !h.applySession(w, r, st, req) {
		return
	}
	if err := h.sessions.Save(r.Context(), st); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRunSession runs the session's code buffer.
func (h *Handlers) HandleRunSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	rep, err := h.svc.Run(r.Context(), playground.Request{
		Code:       st.Code,
		Explain:    st.Beginner,
		SessionID:  st.ID,
		ClientIP:   clientIP(r),
		APIKeyHash: APIKeyHash(r.Context()),
	})
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// applySession selects an example first so an explicit code field wins.
func (h *Handlers) applySession(w http.ResponseWriter, r *http.Request, st *session.State, req SessionRequest) bool {
	if req.Example != nil {
		if err := st.SelectExample(*req.Example); err != nil {
			writeError(w, err.Error(), "VALIDATION_ERROR", http.StatusBadRequest, r)
			return false
		}
	}
	if req.Code != nil {
		st.SetCode(*req.Code)
	}
	return true
}

func (h *Handlers) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, "session not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}
	log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("session store failed")
	writeError(w, "session store failed", "INTERNAL", http.StatusInternalServerError, r)
}
