package api

import (
	"net/http"

	"remit/internal/models"
	"remit/internal/settlement"
	"remit/internal/utils"

	"github.com/go-chi/chi/v5"
)

func (s *Server) listTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := s.store.ListTransfersByUser(r.Context(), callerID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if transfers == nil {
		transfers = []models.Transfer{}
	}
	writeJSON(w, http.StatusOK, transfers)
}

func (s *Server) createTransfer(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return
	}

	t, err := s.settlement.CreateTransfer(r.Context(), callerID(r), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) getTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := utils.GetIDFromPath(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, settlement.KindValidation, "Invalid transfer ID")
		return
	}

	t, err := s.store.GetTransfer(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, err, "Transfer")
		return
	}
	if t.UserID != callerID(r) {
		s.writeError(w, http.StatusForbidden, settlement.KindAuthorization, "Access denied")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) payTransfer(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return
	}

	receipt, err := s.settlement.SettleTransfer(r.Context(), chi.URLParam(r, "id"), req.PaymentToken, callerID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}
