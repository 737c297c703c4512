// Package auth resolves bearer tokens to farmer identities.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/agroshakti/agroshakti-backend/internal/db/models"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AnonymousUserID is the identity used when no verifier is configured.
const AnonymousUserID = "anonymous"

type Identity struct {
	UserID string
	Role   Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Verifier resolves a presented token. Session issuance lives elsewhere.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type staticEntry struct {
	token    []byte
	identity Identity
}

// StaticVerifier checks tokens against a fixed list.
type StaticVerifier struct {
	entries []staticEntry
}

// ParseStaticTokens parses "token:user[:role],token:user[:role]".
func ParseStaticTokens(list string) (*StaticVerifier, error) {
	v := &StaticVerifier{}
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid token entry %q: want token:user[:role]", redact(parts[0]))
		}
		token, user := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if token == "" || user == "" {
			return nil, fmt.Errorf("invalid token entry %q: empty token or user", redact(token))
		}
		if len(user) > models.MaxUserIDLength {
			return nil, fmt.Errorf("invalid token entry %q: user id longer than %d characters", redact(token), models.MaxUserIDLength)
		}
		role := RoleUser
		if len(parts) == 3 {
			switch r := Role(strings.ToLower(strings.TrimSpace(parts[2]))); r {
			case RoleUser, RoleAdmin:
				role = r
			default:
				return nil, fmt.Errorf("invalid role %q for user %s", parts[2], user)
			}
		}
		v.entries = append(v.entries, staticEntry{token: []byte(token), identity: Identity{UserID: user, Role: role}})
	}
	return v, nil
}

// Len reports how many tokens are configured.
func (v *StaticVerifier) Len() int {
	return len(v.entries)
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	candidate := []byte(token)
	for _, e := range v.entries {
		if subtle.ConstantTimeCompare(candidate, e.token) == 1 {
			return e.identity, nil
		}
	}
	return Identity{}, ErrUnauthorized
}

func redact(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
