package middleware

import (
	"context"
	"net/http"

	"github.com/desacikupa/umkmdesa/internal/auth"
	"github.com/desacikupa/umkmdesa/internal/telemetry/tracing"
	"github.com/desacikupa/umkmdesa/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const msgUnauthorized = "Unauthorized"

type sessionResolver interface {
	Resolve(ctx context.Context, cookieValue string) (*auth.SessionUser, error)
}

// Session resolves the auth cookie of every request and stores the session user
// (or nothing) in the request context. It never rejects anonymous requests; that
// is the job of RequireRole.
func Session(resolver sessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.Header().Add("Allow", "GET, POST, PUT, DELETE, OPTIONS")
				w.WriteHeader(http.StatusOK)
				return
			}

			token := auth.TokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := tracing.GlobalTracer.Start(r.Context(), "middleware.session")
			user, err := resolver.Resolve(ctx, token)
			if err != nil {
				span.SetStatus(codes.Error, "resolve-session-err")
				span.RecordError(err)
				span.End()
				log.Errorf("[session middleware] %s: %s", r.URL.Path, err)
				pkg.WriteJSONError(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if user != nil {
				span.SetAttributes(attribute.String("user.id", user.ID))
			}
			span.End()

			next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
		})
	}
}

// RequireRole denies the request with a uniform 401 unless the session user satisfies
// the policy. Missing session and insufficient role look the same on the wire.
func RequireRole(policy auth.Policy) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := auth.UserFromContext(r.Context())
			if err := policy.Check(user); err != nil {
				if user == nil {
					log.Tracef("[no session] unauthorized => %s %s", r.Method, r.URL.Path)
				} else {
					log.Tracef("[role %s] unauthorized => %s %s", user.Role, r.Method, r.URL.Path)
				}
				pkg.WriteJSONError(w, msgUnauthorized, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Protect is RequireRole for a single handler func.
func Protect(policy auth.Policy, handlerFunc http.HandlerFunc) http.Handler {
	return RequireRole(policy)(handlerFunc)
}
