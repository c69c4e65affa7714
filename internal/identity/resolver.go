// Package identity maps inbound credentials to stable user identifiers.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/observability"
)

// AnonymousUserID is the well-known placeholder for unauthenticated
// callers in permissive mode. It has no ledger row, so the preflight
// check is the actual gate for anonymous traffic.
const AnonymousUserID = "00000000-0000-0000-0000-000000000000"

// Mode controls what happens when no credential resolves.
type Mode string

const (
	// ModePermissive degrades to the anonymous placeholder. Downstream
	// affordability checks reject the request instead of the resolver.
	ModePermissive Mode = "permissive"

	// ModeStrict rejects requests with no usable identity.
	ModeStrict Mode = "strict"
)

// Resolver implements domain.Resolver. Precedence: explicit id from
// the request body, then the bearer credential, then the anonymous
// placeholder (permissive mode only).
type Resolver struct {
	mode      Mode
	jwtSecret []byte
	cache     *Cache
}

// NewResolver creates a resolver. cache may be nil; jwtSecret may be
// empty, in which case bearer tokens are always treated opaquely.
func NewResolver(mode Mode, jwtSecret []byte, cache *Cache) *Resolver {
	if mode == "" {
		mode = ModePermissive
	}
	return &Resolver{
		mode:      mode,
		jwtSecret: jwtSecret,
		cache:     cache,
	}
}

// Resolve returns a user ID for the request. In permissive mode it
// never fails; in strict mode it returns ErrUnauthenticated when
// neither an explicit id nor a bearer credential is present.
func (r *Resolver) Resolve(ctx context.Context, explicitID, bearer string) (string, error) {
	if id := strings.TrimSpace(explicitID); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			r.remember(ctx, id)
			return id, nil
		}
		observability.FromContext(ctx).Warn("ignoring malformed explicit id",
			zap.String("id", id))
	}

	if token := strings.TrimSpace(bearer); token != "" {
		id := r.fromBearer(ctx, token)
		r.remember(ctx, id)
		return id, nil
	}

	if r.mode == ModeStrict {
		return "", domain.ErrUnauthenticated
	}

	// Fallback convenience only: a previously seen valid identifier,
	// never a security boundary.
	if r.cache != nil {
		if id, err := r.cache.LastKnownUser(ctx); err == nil && id != "" {
			return id, nil
		}
	}

	return AnonymousUserID, nil
}

// fromBearer extracts an identifier from a bearer credential. If the
// token validates as a signed JWT, its subject claim is the user ID;
// otherwise the raw token is treated opaquely as the identifier.
func (r *Resolver) fromBearer(ctx context.Context, token string) string {
	if len(r.jwtSecret) == 0 {
		return token
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return r.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return token
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		observability.FromContext(ctx).Warn("valid token without subject claim")
		return token
	}

	return sub
}

func (r *Resolver) remember(ctx context.Context, id string) {
	if r.cache == nil || id == "" || id == AnonymousUserID {
		return
	}
	if err := r.cache.RememberUser(ctx, id); err != nil {
		observability.FromContext(ctx).Debug("identity cache write failed",
			zap.Error(err))
	}
}
