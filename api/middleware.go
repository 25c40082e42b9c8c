package api

import (
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/solomon-wilson/hrmis-sub002/authz"
)

// Authenticator runs after jwtauth.Verifier, which has already checked the
// signature and expiry. It rejects requests without a token and stores the
// token's actor in the request context.
func Authenticator(next http.Handler) http.Handler {
	hfn := func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing token", err)
			return
		}
		if token == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing token", nil)
			return
		}
		actor, err := authz.FromClaims(claims)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid token claims", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.WithActor(r.Context(), actor)))
	}
	return http.HandlerFunc(hfn)
}

// actorOf returns the authenticated actor. Routes outside the authenticated
// group get an actor with no roles, which every capability check refuses.
func actorOf(r *http.Request) authz.Actor {
	a, _ := authz.ActorFrom(r.Context())
	return a
}
