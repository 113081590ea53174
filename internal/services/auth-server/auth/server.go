package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
	"github.com/NordCoder/Gatekeeper/internal/domain/autherr"
	"github.com/NordCoder/Gatekeeper/internal/obs"
)

const maxJSONBodyBytes = 1 << 20

type ctxKey int

const principalKey ctxKey = 1

// WithPrincipal stores the authenticated request in ctx.
func WithPrincipal(ctx context.Context, r *Request) context.Context {
	return context.WithValue(ctx, principalKey, r)
}

func PrincipalFromCtx(ctx context.Context) (*Request, bool) {
	r, ok := ctx.Value(principalKey).(*Request)
	return r, ok && r != nil && r.Account != nil
}

// Server exposes the usecase over HTTP/JSON.
type Server struct {
	uc  *Usecase
	log *zap.Logger
}

func NewServer(uc *Usecase, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{uc: uc, log: log}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)

	mux.Handle("POST /api/auth/logout", s.protected(false, s.handleLogout))
	mux.Handle("GET /api/auth/me", s.protected(false, s.handleMe))
	mux.Handle("GET /api/auth/session", s.protected(false, s.handleSession))
	mux.Handle("PUT /api/auth/password", s.protected(false, s.handleChangePassword))

	admin := RequireRole(account.RoleAdministrator)
	mux.Handle("POST /api/admin/accounts/{id}/deactivate", s.protected(true, s.handleDeactivate, admin))
	mux.Handle("POST /api/admin/accounts/{id}/unlock", s.protected(true, s.handleUnlock, admin))
	mux.Handle("DELETE /api/admin/accounts/{id}", s.protected(true, s.handleDelete, admin))
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind    autherr.Kind `json:"kind"`
	Message string       `json:"message"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body RegisterInput
	if !s.decode(w, r, &body, false) {
		return
	}
	res, err := s.uc.Register(r.Context(), body)
	if err != nil {
		s.writeErr(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: res})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !s.decode(w, r, &body, false) {
		return
	}
	res, err := s.uc.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeErr(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: res})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !s.decode(w, r, &body, false) {
		return
	}
	pair, err := s.uc.Refresh(r.Context(), strings.TrimSpace(body.RefreshToken))
	if err != nil {
		s.writeErr(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: pair})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, p *Request) {
	var body refreshRequest
	if !s.decode(w, r, &body, true) {
		return
	}
	if err := s.uc.Logout(r.Context(), p.Bearer, strings.TrimSpace(body.RefreshToken), p.Account.ID); err != nil {
		s.writeErr(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, p *Request) {
	v, err := s.uc.Me(r.Context(), p.Account.ID)
	if err != nil {
		s.writeErr(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: v})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, p *Request) {
	snap, err := s.uc.CurrentSession(r.Context(), p.Account.ID)
	if err != nil {
		s.writeErr(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: snap})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, p *Request) {
	var body changePasswordRequest
	if !s.decode(w, r, &body, false) {
		return
	}
	pair, err := s.uc.ChangeCredential(r.Context(), p.Account.ID, body.CurrentPassword, body.NewPassword)
	if err != nil {
		s.writeErr(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: pair})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request, p *Request) {
	v, err := s.uc.Deactivate(r.Context(), p.Account.ID, r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: v})
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request, p *Request) {
	v, err := s.uc.Unlock(r.Context(), p.Account.ID, r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: v})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, p *Request) {
	if err := s.uc.Delete(r.Context(), p.Account.ID, r.PathValue("id")); err != nil {
		s.writeErr(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

type protectedHandler func(w http.ResponseWriter, r *http.Request, p *Request)

// protected runs the authentication pipeline plus extra stages before h.
func (s *Server) protected(adminRoute bool, h protectedHandler, extra ...Stage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.uc.Authenticate(r.Context(), BearerToken(r.Header.Get("Authorization")), extra...)
		if err != nil {
			// A missing caller is an auth failure even on admin routes.
			s.writeErr(w, r, err, adminRoute && autherr.KindOf(err) != autherr.KindUserNotFound)
			return
		}
		h(w, r.WithContext(WithPrincipal(r.Context(), p)), p)
	})
}

// decode reads a JSON body and runs its Validate method when it has one.
// With optional set an empty body is accepted.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		s.writeErr(w, r, autherr.InvalidInput("invalid json body"), false)
		return false
	}
	if v, ok := dst.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			s.writeErr(w, r, err, false)
			return false
		}
	}
	return true
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error, adminRoute bool) {
	kind, msg := autherr.Public(err)
	if kind == autherr.KindInfrastructure {
		sentry.CaptureException(err)
		obs.WithTrace(r.Context(), s.log).Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, StatusFor(kind, adminRoute), envelope{Error: &errorBody{Kind: kind, Message: msg}})
}

// StatusFor maps an error kind to an HTTP status. UserNotFound is a 404 only
// when an administrator addresses another account.
func StatusFor(kind autherr.Kind, adminRoute bool) int {
	switch kind {
	case autherr.KindInvalidInput:
		return http.StatusBadRequest
	case autherr.KindConflict:
		return http.StatusConflict
	case autherr.KindAccountLocked:
		return http.StatusLocked
	case autherr.KindForbidden:
		return http.StatusForbidden
	case autherr.KindUserNotFound:
		if adminRoute {
			return http.StatusNotFound
		}
		return http.StatusUnauthorized
	case autherr.KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
