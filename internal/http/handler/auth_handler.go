package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/account-auth-service/internal/http/response"
	"github.com/sandeepkv93/account-auth-service/internal/observability"
	"github.com/sandeepkv93/account-auth-service/internal/service"
)

const maxBodyBytes = 1 << 20

type AuthHandler struct {
	authSvc service.AuthServiceInterface
}

func NewAuthHandler(authSvc service.AuthServiceInterface) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "register", status, time.Since(start))
	}()

	var in service.RegisterInput
	if !decodeJSON(w, r, &in) {
		status = "failure"
		return
	}
	user, err := h.authSvc.Register(r.Context(), in)
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.register.failed", "reason", string(service.AsError(err).Kind))
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.register.success", "user_id", user.ID)
	response.Success(w, r, http.StatusCreated, service.MsgRegistered, user)
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "verify", status, time.Since(start))
	}()

	var in service.VerifyInput
	if !decodeJSON(w, r, &in) {
		status = "failure"
		return
	}
	res, err := h.authSvc.VerifyUser(r.Context(), in.Token)
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.verify.failed", "reason", string(service.AsError(err).Kind))
		writeServiceError(w, r, err)
		return
	}
	if res.AlreadyVerified {
		observability.Audit(r, "auth.verify.already_verified", "user_id", res.User.ID)
		response.Success(w, r, http.StatusOK, service.MsgAlreadyVerified, nil)
		return
	}
	observability.Audit(r, "auth.verify.success", "user_id", res.User.ID)
	response.Success(w, r, http.StatusOK, service.MsgVerified, res.User)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login", status, time.Since(start))
	}()

	var in service.LoginInput
	if !decodeJSON(w, r, &in) {
		status = "failure"
		return
	}
	res, err := h.authSvc.Login(r.Context(), in)
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.login.failed", "reason", string(service.AsError(err).Kind))
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.login.success", "user_id", res.User.ID)
	response.Success(w, r, http.StatusOK, service.MsgOK, res)
}

func (h *AuthHandler) RecoverPassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "recover_password", status, time.Since(start))
	}()

	var in service.RecoverPasswordInput
	if !decodeJSON(w, r, &in) {
		status = "failure"
		return
	}
	if err := h.authSvc.RecoverPassword(r.Context(), in); err != nil {
		status = "failure"
		observability.Audit(r, "auth.recover_password.failed", "reason", string(service.AsError(err).Kind))
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.recover_password.requested")
	response.Success(w, r, http.StatusOK, service.MsgRecoverRequested, nil)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "reset_password", status, time.Since(start))
	}()

	var in service.ResetPasswordInput
	if !decodeJSON(w, r, &in) {
		status = "failure"
		return
	}
	user, err := h.authSvc.ResetPassword(r.Context(), in)
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.reset_password.failed", "reason", string(service.AsError(err).Kind))
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.reset_password.success", "user_id", user.ID)
	response.Success(w, r, http.StatusOK, service.MsgPasswordChanged, user)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "me", status, time.Since(start))
	}()

	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		status = "failure"
		response.Error(w, r, http.StatusUnauthorized, service.MsgUnauthenticated, nil)
		return
	}
	user, err := h.authSvc.Me(r.Context(), caller)
	if err != nil {
		status = "failure"
		writeServiceError(w, r, err)
		return
	}
	response.Success(w, r, http.StatusOK, service.MsgOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "logout", status, time.Since(start))
	}()

	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		status = "failure"
		observability.Audit(r, "auth.logout.failed", "reason", "missing_auth_context")
		response.Error(w, r, http.StatusUnauthorized, service.MsgUnauthenticated, nil)
		return
	}
	if err := h.authSvc.Logout(r.Context(), caller); err != nil {
		status = "failure"
		observability.Audit(r, "auth.logout.failed", "user_id", caller.UserID, "reason", string(service.AsError(err).Kind))
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.logout.success", "user_id", caller.UserID)
	response.Success(w, r, http.StatusOK, service.MsgLoggedOut, nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "refresh", status, time.Since(start))
	}()

	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		status = "failure"
		observability.Audit(r, "auth.refresh.failed", "reason", "missing_auth_context")
		response.Error(w, r, http.StatusUnauthorized, service.MsgUnauthenticated, nil)
		return
	}
	res, err := h.authSvc.Refresh(r.Context(), caller)
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.refresh.failed", "user_id", caller.UserID, "reason", string(service.AsError(err).Kind))
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.refresh.success", "user_id", caller.UserID)
	response.Success(w, r, http.StatusOK, service.MsgTokenRefreshed, res)
}

// decodeJSON treats an empty body as an empty object so field validation
// reports what is missing.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	response.Error(w, r, http.StatusBadRequest, "Malformed JSON body", nil)
	return false
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := service.AsError(err)
	if svcErr.Kind == service.KindInternal {
		slog.ErrorContext(r.Context(), "auth operation failed", "path", r.URL.Path, "error", err)
	}
	response.Error(w, r, service.StatusCode(svcErr.Kind), svcErr.Message, svcErr.Fields)
}
