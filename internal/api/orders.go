package api

import (
	"net/http"

	"remit/internal/models"
	"remit/internal/settlement"
	"remit/internal/utils"

	"github.com/go-chi/chi/v5"
)

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.ListOrdersByUser(r.Context(), callerID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// createOrder stores the order and, when a payment token is supplied, settles
// it in the same request. A failed charge still reports the stored order ID so
// the client can retry payment.
func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return
	}

	order, err := s.settlement.CreateOrder(r.Context(), callerID(r), req.Items, req.Shipping, req.Currency, req.PaymentToken)
	if err != nil {
		status, resp := s.errorBody(r, err)
		if order != nil {
			resp.OrderID = order.ID
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := utils.GetIDFromPath(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, settlement.KindValidation, "Invalid order ID")
		return
	}

	o, err := s.store.GetOrder(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, err, "Order")
		return
	}
	if o.UserID != callerID(r) {
		s.writeError(w, http.StatusForbidden, settlement.KindAuthorization, "Access denied")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) payOrder(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return
	}

	receipt, err := s.settlement.SettleOrder(r.Context(), chi.URLParam(r, "id"), req.PaymentToken, callerID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}
