package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/solomon-wilson/hrmis-sub002/generic"
)

// Claim names carried in access tokens.
const (
	ClaimUserID     = "user_id"
	ClaimEmployeeID = "employee_id"
	ClaimRoles      = "roles"
	ClaimRole       = "role"
)

var ErrInvalidClaims = errors.New("invalid token claims")

// NewJWTAuth builds the HS256 token verifier used by the API.
func NewJWTAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil, jwt.WithAcceptableSkew(30*time.Second))
}

// IssueToken signs an access token for the actor.
func IssueToken(ja *jwtauth.JWTAuth, actor Actor, ttl time.Duration) (string, error) {
	roles := make([]string, len(actor.Roles))
	for i, r := range actor.Roles {
		roles[i] = string(r)
	}
	claims := map[string]interface{}{
		ClaimUserID:     actor.ID,
		ClaimEmployeeID: string(actor.EmployeeID),
		ClaimRoles:      roles,
	}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, ttl)

	_, token, err := ja.Encode(claims)
	return token, err
}

// FromClaims maps decoded JWT claims onto an Actor. Either a "roles" list or
// a single "role" string is accepted.
func FromClaims(claims map[string]interface{}) (Actor, error) {
	var a Actor

	id, _ := claims[ClaimUserID].(string)
	if id == "" {
		id, _ = claims[jwt.SubjectKey].(string)
	}
	if id == "" {
		return Actor{}, fmt.Errorf("%w: missing %s", ErrInvalidClaims, ClaimUserID)
	}
	a.ID = id

	if emp, ok := claims[ClaimEmployeeID].(string); ok {
		a.EmployeeID = generic.EmployeeID(emp)
	}

	switch roles := claims[ClaimRoles].(type) {
	case []interface{}:
		for _, r := range roles {
			if s, ok := r.(string); ok {
				a.Roles = append(a.Roles, Role(s))
			}
		}
	case []string:
		for _, s := range roles {
			a.Roles = append(a.Roles, Role(s))
		}
	}
	if role, ok := claims[ClaimRole].(string); ok && role != "" && !a.HasRole(Role(role)) {
		a.Roles = append(a.Roles, Role(role))
	}
	if len(a.Roles) == 0 {
		a.Roles = []Role{RoleEmployee}
	}
	return a, nil
}

// FromRequestContext reads the actor from the token jwtauth.Verifier stored
// in the request context.
func FromRequestContext(ctx context.Context) (Actor, error) {
	_, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
	return FromClaims(claims)
}

// =============================================================================
// CONTEXT
// =============================================================================

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored by WithActor.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
