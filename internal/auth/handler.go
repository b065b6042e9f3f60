package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/desacikupa/umkmdesa/internal/telemetry/metrics"
	"github.com/desacikupa/umkmdesa/internal/telemetry/tracing"
	"github.com/desacikupa/umkmdesa/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	msgLoginFieldsRequired = "Email dan password harus diisi"
	msgInvalidCredentials  = "Email atau password salah"
	msgLoginFailed         = "Terjadi kesalahan saat login"
	msgUnauthorized        = "Unauthorized"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User *SessionUser `json:"user"`
}

type userByEmailFinder interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

type tokenIssuer interface {
	Issue(claims Claims) (string, error)
	TTL() time.Duration
}

type Handler struct {
	users          userByEmailFinder
	tokens         tokenIssuer
	metricsManager *metrics.Manager
	secureCookies  bool
}

func NewHandler(
	users userByEmailFinder,
	tokens tokenIssuer,
	metricsManager *metrics.Manager,
	secureCookies bool,
) *Handler {
	return &Handler{
		users:          users,
		tokens:         tokens,
		metricsManager: metricsManager,
		secureCookies:  secureCookies,
	}
}

// SetupRoutes registers the auth routes. loginMiddleware (e.g. rate limiting) is applied
// to the login route only.
func (handler *Handler) SetupRoutes(router *mux.Router, loginMiddleware ...mux.MiddlewareFunc) {
	loginRouter := router.Path("/api/auth/login").Subrouter()
	loginRouter.HandleFunc("", handler.handleLogin).Methods("POST", "OPTIONS").Name("login")
	loginRouter.Use(loginMiddleware...)

	router.HandleFunc("/api/auth/logout", handler.handleLogout).Methods("POST", "OPTIONS").Name("logout")
	router.HandleFunc("/api/auth/me", handler.handleMe).Methods("GET", "OPTIONS").Name("me")
}

func (handler *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.auth.login")
	defer span.End()

	var loginReq loginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
		log.Tracef("login, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, msgLoginFieldsRequired, http.StatusBadRequest)
		return
	}

	if loginReq.Email == "" || loginReq.Password == "" {
		pkg.WriteJSONError(w, msgLoginFieldsRequired, http.StatusBadRequest)
		return
	}

	user, err := handler.users.FindByEmail(ctx, loginReq.Email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			log.Errorf("login, find user: %s", err)
			pkg.WriteJSONError(w, msgLoginFailed, http.StatusInternalServerError)
			return
		}
		// keep the response time of unknown emails close to wrong passwords
		VerifyPassword(loginReq.Password, dummyPasswordHash())
		log.Tracef("[email] failed login attempt for: %s", loginReq.Email)
		handler.metricsManager.LoginFailed()
		pkg.WriteJSONError(w, msgInvalidCredentials, http.StatusUnauthorized)
		return
	}

	if !VerifyPassword(loginReq.Password, user.PasswordHash) {
		log.Tracef("[password] failed login attempt for: %s", loginReq.Email)
		handler.metricsManager.LoginFailed()
		pkg.WriteJSONError(w, msgInvalidCredentials, http.StatusUnauthorized)
		return
	}

	token, err := handler.tokens.Issue(Claims{UserID: user.ID, Role: user.Role})
	if err != nil {
		log.Errorf("login, issue token: %s", err)
		pkg.WriteJSONError(w, msgLoginFailed, http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	handler.metricsManager.LoginSucceeded()
	log.Tracef("user [%s] logged in", user.ID)

	http.SetCookie(w, NewSessionCookie(token, handler.tokens.TTL(), handler.secureCookies))
	pkg.WriteJSONOK(w, userResponse{User: user.SessionUser()})
}

func (handler *Handler) handleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, ExpiredSessionCookie(handler.secureCookies))
	pkg.WriteSuccess(w)
}

func (handler *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		pkg.WriteJSONError(w, msgUnauthorized, http.StatusUnauthorized)
		return
	}
	pkg.WriteJSONOK(w, userResponse{User: user})
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

func dummyPasswordHash() string {
	dummyHashOnce.Do(func() {
		h, err := HashPassword("umkm-desa-dummy-password")
		if err != nil {
			log.Errorf("dummy password hash: %s", err)
			return
		}
		dummyHash = h
	})
	return dummyHash
}
