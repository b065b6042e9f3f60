package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/desacikupa/umkmdesa/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
)

type userByIDFinder interface {
	FindByID(ctx context.Context, id string) (*User, error)
}

type tokenVerifier interface {
	Verify(token string) (Claims, error)
}

// SessionResolver turns the raw auth cookie value into the current user.
type SessionResolver struct {
	users  userByIDFinder
	tokens tokenVerifier
}

func NewSessionResolver(users userByIDFinder, tokens tokenVerifier) *SessionResolver {
	return &SessionResolver{
		users:  users,
		tokens: tokens,
	}
}

// Resolve returns nil without an error when there is no valid session: the cookie is
// empty, the token is rejected, or its user no longer exists. A non-nil error means
// the credential store failed, and is never accompanied by a user.
func (s *SessionResolver) Resolve(ctx context.Context, cookieValue string) (_ *SessionUser, err error) {
	if cookieValue == "" {
		return nil, nil
	}

	ctx, span := tracing.GlobalTracer.Start(ctx, "auth.session.resolve")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	claims, err := s.tokens.Verify(cookieValue)
	if err != nil {
		log.Tracef("session resolve: %s", err)
		return nil, nil
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			log.Tracef("session resolve: user [%s] no longer exists", claims.UserID)
			return nil, nil
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	return user.SessionUser(), nil
}

type sessionUserCtxKey struct{}

func ContextWithUser(ctx context.Context, user *SessionUser) context.Context {
	return context.WithValue(ctx, sessionUserCtxKey{}, user)
}

// UserFromContext returns the session user set by the session middleware, or nil.
func UserFromContext(ctx context.Context) *SessionUser {
	user, _ := ctx.Value(sessionUserCtxKey{}).(*SessionUser)
	return user
}
