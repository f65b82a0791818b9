// Package api exposes the HTTP surface. Handlers stay thin: they decode typed
// request structs, call a service and map the error kind to a status code.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ozanyurt/caseflow/internal/apperr"
	"github.com/ozanyurt/caseflow/internal/auth"
	"github.com/ozanyurt/caseflow/internal/cases"
	"github.com/ozanyurt/caseflow/internal/config"
	"github.com/ozanyurt/caseflow/internal/model"
	"github.com/ozanyurt/caseflow/internal/signing"
	"github.com/ozanyurt/caseflow/internal/users"
)

type contextKey string

const claimsKey contextKey = "claims"

// Server wires services into HTTP routes.
type Server struct {
	cfg    *config.Config
	auth   *auth.Service
	tokens *auth.TokenManager
	cases  *cases.Service
	users  *users.Service
	signer *signing.Signer
	log    *slog.Logger
	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, authSvc *auth.Service, tokens *auth.TokenManager,
	caseSvc *cases.Service, userSvc *users.Service, signer *signing.Signer, log *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		auth:   authSvc,
		tokens: tokens,
		cases:  caseSvc,
		users:  userSvc,
		signer: signer,
		log:    log.With("component", "api"),
	}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /healthz", s.handleHealth)

		mux.HandleFunc("POST /auth/register", s.handleRegister)
		mux.HandleFunc("POST /auth/login", s.handleLogin)
		mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
		mux.HandleFunc("POST /auth/verify-otp", s.handleVerifyOTP)
		mux.HandleFunc("POST /auth/resend-otp", s.handleResendOTP)
		mux.HandleFunc("POST /auth/forgot-password", s.handleForgotPassword)
		mux.HandleFunc("POST /auth/verify-reset-otp", s.handleVerifyResetOTP)
		mux.HandleFunc("POST /auth/reset-password", s.handleResetPassword)

		mux.Handle("POST /cases", s.authenticated(s.handleCreateCase))
		mux.Handle("GET /cases", s.authenticated(s.handleListCases))
		mux.Handle("GET /cases/stats", s.authenticated(s.handleCaseStats))
		mux.Handle("DELETE /cases", s.authenticated(s.handleDeleteCases))
		mux.Handle("GET /cases/{id}", s.authenticated(s.handleGetCase))
		mux.HandleFunc("GET /cases/{id}/download", s.handleDownload)
		mux.Handle("POST /cases/{id}/download-link", s.authenticated(s.handleDownloadLink))

		mux.Handle("GET /users/me", s.authenticated(s.handleProfile))
		mux.Handle("POST /users/me/image", s.authenticated(s.handleProfileImage))

		mux.Handle("GET /admin/stats", s.adminOnly(s.handleDashboard))
		mux.Handle("GET /admin/users", s.adminOnly(s.handleListUsers))
		mux.Handle("DELETE /admin/users/{id}", s.adminOnly(s.handleDeleteUser))

		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.logging(mux),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info("api listening", "address", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- middleware ---

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(started))
	})
}

func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.bearerClaims(r)
		if err != nil {
			s.respondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func (s *Server) adminOnly(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.bearerClaims(r)
		if err != nil {
			s.respondError(w, err)
			return
		}
		if claims.Role != string(model.RoleAdmin) {
			s.respondError(w, apperr.E(apperr.KindAuth, "api.admin", apperr.ErrInvalidToken))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func (s *Server) bearerClaims(r *http.Request) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return nil, apperr.E(apperr.KindAuth, "api.auth", apperr.ErrInvalidToken)
	}
	return s.tokens.Parse(header[len(prefix):], auth.TypeAccess)
}

func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}

// --- auth handlers ---

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	result, err := s.auth.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	result, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pair)
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"userId"`
		OTPCode string `json:"otpCode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	pair, err := s.auth.VerifyEmail(r.Context(), req.UserID, req.OTPCode)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pair)
}

func (s *Server) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	superseded, err := s.auth.ResendOTP(r.Context(), req.Email)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"superseded": superseded})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "reset code sent"})
}

func (s *Server) handleVerifyResetOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"userId"`
		OTPCode string `json:"otpCode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	token, err := s.auth.VerifyResetOTP(r.Context(), req.UserID, req.OTPCode)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"resetToken": token})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResetToken  string `json:"resetToken"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.auth.ResetPassword(r.Context(), req.ResetToken, req.NewPassword); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// --- case handlers ---

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadSize); err != nil {
		s.respondError(w, apperr.E(apperr.KindValidation, "api.create", fmt.Errorf("parse form: %w", err)))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, apperr.Errorf(apperr.KindValidation, "api.create", "file is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadSize+1))
	if err != nil {
		s.respondError(w, apperr.E(apperr.KindValidation, "api.create", err))
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadSize {
		s.respondError(w, apperr.Errorf(apperr.KindValidation, "api.create", "file exceeds %d bytes", s.cfg.MaxUploadSize))
		return
	}
	created, err := s.cases.Create(r.Context(), claims.UserID,
		r.FormValue("title"), r.FormValue("description"),
		header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	items, err := s.cases.List(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	detail, err := s.cases.Get(r.Context(), claimsFrom(r).UserID, r.PathValue("id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// handleDownload accepts either a Bearer access token or a signed expiring
// link issued by handleDownloadLink.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("id")
	var ownerID string
	if sig := r.URL.Query().Get("signature"); sig != "" {
		if !s.signer.Validate(caseID, r.URL.Query().Get("expires"), sig) {
			s.respondError(w, apperr.E(apperr.KindAuth, "api.download", apperr.ErrInvalidToken))
			return
		}
		ownerID = r.URL.Query().Get("owner")
	} else {
		claims, err := s.bearerClaims(r)
		if err != nil {
			s.respondError(w, err)
			return
		}
		ownerID = claims.UserID
	}
	stream, name, err := s.cases.Download(r.Context(), ownerID, caseID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	defer stream.Close()
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, stream); err != nil {
		s.log.Warn("download aborted", "case_id", caseID, "error", err)
	}
}

func (s *Server) handleDownloadLink(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	caseID := r.PathValue("id")
	// Ownership check before handing out a link.
	if _, err := s.cases.Get(r.Context(), claims.UserID, caseID); err != nil {
		s.respondError(w, err)
		return
	}
	expires := time.Now().Add(s.cfg.SignedURLTTL).Unix()
	sig := s.signer.Sign(caseID, expires)
	url := fmt.Sprintf("/cases/%s/download?owner=%s&expires=%d&signature=%s",
		caseID, claims.UserID, expires, sig)
	respondJSON(w, http.StatusOK, map[string]string{
		"url":     url,
		"expires": strconv.FormatInt(expires, 10),
	})
}

func (s *Server) handleDeleteCases(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaseIDs []string `json:"caseIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	result, err := s.cases.DeleteBatch(r.Context(), claimsFrom(r).UserID, req.CaseIDs)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cases.RecomputeStats(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// --- user handlers ---

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.users.Profile(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleProfileImage(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadSize); err != nil {
		s.respondError(w, apperr.E(apperr.KindValidation, "api.image", fmt.Errorf("parse form: %w", err)))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, apperr.Errorf(apperr.KindValidation, "api.image", "image is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, apperr.E(apperr.KindValidation, "api.image", err))
		return
	}
	locator, err := s.users.UploadProfileImage(r.Context(), claims.UserID,
		header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"profileImageUrl": locator})
}

// --- admin handlers ---

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.users.Dashboard(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.ListUsers(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ---

func decodeJSON(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return apperr.E(apperr.KindValidation, "api.decode", fmt.Errorf("invalid json body: %w", err))
	}
	return nil
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusFor(apperr.KindOf(err))
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
		// Internal detail stays out of the response body.
		respondJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
