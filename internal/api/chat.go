package api

import (
	"errors"
	"net/http"

	"remit/internal/assistant"
	"remit/internal/settlement"
)

type chatRequest struct {
	Message string              `json:"message"`
	History []assistant.Message `json:"history"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return
	}

	reply, err := s.assistant.Ask(r.Context(), req.Message, req.History)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
	case errors.Is(err, assistant.ErrEmptyMessage), errors.Is(err, assistant.ErrMessageLength):
		s.writeError(w, http.StatusBadRequest, settlement.KindValidation, err.Error())
	case errors.Is(err, assistant.ErrNotConfigured):
		s.writeError(w, http.StatusServiceUnavailable, settlement.KindConfiguration, "The assistant is not available.")
	default:
		s.writeError(w, http.StatusServiceUnavailable, settlement.KindSystem, "The assistant is temporarily unavailable. Please try again later.")
	}
}

func (s *Server) chatSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"suggestions": s.assistant.Suggestions(locale(r)),
	})
}
