package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"remit/internal/settlement"
	"remit/internal/store"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	OrderID   int64  `json:"order_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind settlement.Kind, message string) {
	writeJSON(w, status, errorResponse{
		Error:     string(kind),
		Message:   message,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(kind settlement.Kind) int {
	switch kind {
	case settlement.KindValidation, settlement.KindAmountValidation,
		settlement.KindAlreadyProcessed, settlement.KindPayment:
		return http.StatusBadRequest
	case settlement.KindNotFound:
		return http.StatusNotFound
	case settlement.KindAuthorization:
		return http.StatusForbidden
	case settlement.KindConfiguration:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorBody classifies err. Only settlement errors carry a user-facing message;
// everything else is reported as a generic system error.
func (s *Server) errorBody(r *http.Request, err error) (int, errorResponse) {
	resp := errorResponse{Timestamp: s.now().UTC().Format(time.RFC3339)}

	var sErr *settlement.Error
	if errors.As(err, &sErr) {
		resp.Error = string(sErr.Kind)
		resp.Message = sErr.Message
		if sErr.Kind == settlement.KindPayment {
			resp.Reason = string(sErr.Reason)
		}
		status := statusFor(sErr.Kind)
		if status >= 500 || sErr.Err != nil {
			s.logger.Warn("request failed",
				zap.String("path", r.URL.Path),
				zap.String("kind", string(sErr.Kind)),
				zap.Error(err))
		}
		return status, resp
	}

	s.logger.Error("unhandled error", zap.String("path", r.URL.Path), zap.Error(err))
	resp.Error = string(settlement.KindSystem)
	resp.Message = "An unexpected error occurred. Please try again later."
	return http.StatusInternalServerError, resp
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := s.errorBody(r, err)
	writeJSON(w, status, resp)
}

// respondStoreError handles errors from direct store calls in CRUD handlers.
func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, settlement.KindNotFound, what+" not found")
	case errors.Is(err, store.ErrDuplicate):
		s.writeError(w, http.StatusBadRequest, settlement.KindValidation, what+" already exists")
	case errors.Is(err, store.ErrInvalidReference):
		s.writeError(w, http.StatusBadRequest, settlement.KindValidation, what+" references a record that does not exist")
	default:
		s.respondError(w, r, err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func (s *Server) invalidBody(w http.ResponseWriter) {
	s.writeError(w, http.StatusBadRequest, settlement.KindValidation, "Invalid request body")
}
