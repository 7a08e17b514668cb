package api

import (
	"errors"
	"net/http"
	"strings"

	"remit/internal/middleware"
	"remit/internal/models"
	"remit/internal/settlement"
	"remit/internal/store"
	"remit/internal/utils"

	"go.uber.org/zap"
)

const minPasswordLen = 8

func callerID(r *http.Request) int64 {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return 0
	}
	return claims.UserID
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, settlement.KindValidation, "Missing required fields")
		return
	}
	if !utils.IsEmail(req.Email) {
		s.writeError(w, http.StatusBadRequest, settlement.KindValidation, "Invalid email address")
		return
	}
	if len(req.Password) < minPasswordLen {
		s.writeError(w, http.StatusBadRequest, settlement.KindValidation, "Password must be at least 8 characters")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	u := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        strings.TrimSpace(req.Phone),
		Role:         models.RoleUser,
	}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.writeError(w, http.StatusBadRequest, settlement.KindValidation, "Email or username already registered")
			return
		}
		s.respondError(w, r, err)
		return
	}

	token, err := s.userAuth.GenerateToken(u.ID, u.Role)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.logger.Info("user registered", zap.Int64("user_id", u.ID))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token": token,
		"user":  u,
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return
	}

	u, err := s.store.GetUserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.respondError(w, r, err)
		return
	}
	if u == nil || !utils.CheckPasswordHash(req.Password, u.PasswordHash) {
		s.writeError(w, http.StatusUnauthorized, settlement.KindAuthorization, "Invalid credentials")
		return
	}

	token, err := s.userAuth.GenerateToken(u.ID, u.Role)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.LoginResponse{Token: token, Role: u.Role, UserID: u.ID})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.GetUserByID(r.Context(), callerID(r))
	if err != nil {
		s.respondStoreError(w, r, err, "User")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return
	}

	u, err := s.store.GetUserByID(r.Context(), callerID(r))
	if err != nil {
		s.respondStoreError(w, r, err, "User")
		return
	}
	if req.FirstName != nil {
		u.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		u.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Phone != nil {
		u.Phone = strings.TrimSpace(*req.Phone)
	}

	if err := s.store.UpdateUserProfile(r.Context(), u); err != nil {
		s.respondStoreError(w, r, err, "User")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return
	}
	if len(req.NewPassword) < minPasswordLen {
		s.writeError(w, http.StatusBadRequest, settlement.KindValidation, "Password must be at least 8 characters")
		return
	}

	u, err := s.store.GetUserByID(r.Context(), callerID(r))
	if err != nil {
		s.respondStoreError(w, r, err, "User")
		return
	}
	if !utils.CheckPasswordHash(req.CurrentPassword, u.PasswordHash) {
		s.writeError(w, http.StatusBadRequest, settlement.KindValidation, "Current password is incorrect")
		return
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.UpdateUserPassword(r.Context(), u.ID, hash); err != nil {
		s.respondStoreError(w, r, err, "User")
		return
	}

	s.logger.Info("password changed", zap.Int64("user_id", u.ID))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req models.AdminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.invalidBody(w)
		return
	}

	a, err := s.store.GetAdminByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.respondError(w, r, err)
		return
	}
	if a == nil || !a.Active || !utils.CheckPasswordHash(req.Password, a.PasswordHash) {
		s.writeError(w, http.StatusUnauthorized, settlement.KindAuthorization, "Invalid credentials")
		return
	}

	token, err := s.adminAuth.GenerateToken(a.ID, a.Role)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.logger.Info("admin logged in", zap.Int64("admin_id", a.ID))
	writeJSON(w, http.StatusOK, models.LoginResponse{Token: token, Role: a.Role, UserID: a.ID})
}
