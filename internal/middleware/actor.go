package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"tangled.org/arabica.social/sanctions/internal/moderation"
)

// DefaultActorHeader carries the authenticated actor id set by the upstream
// auth proxy.
const DefaultActorHeader = "X-Actor-ID"

type actorKey struct{}

// IdentityGetter looks an identity up by id.
type IdentityGetter interface {
	GetIdentity(ctx context.Context, id string) (*moderation.Identity, error)
}

// ActorMiddleware resolves the actor id in header to an identity and stores
// it in the request context. Requests without a known actor pass through
// unauthenticated; handlers decide whether that is allowed.
func ActorMiddleware(header string, identities IdentityGetter) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultActorHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(header))
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := identities.GetIdentity(r.Context(), id)
			if err != nil {
				log.Error().Err(err).Str("actor", id).Msg("Failed to resolve actor")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if identity == nil {
				log.Warn().Str("actor", id).Str("client_ip", GetClientIP(r)).Msg("Unknown actor id")
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), *identity)))
		})
	}
}

// ContextWithActor returns a copy of ctx carrying identity as the actor.
func ContextWithActor(ctx context.Context, identity moderation.Identity) context.Context {
	return context.WithValue(ctx, actorKey{}, identity)
}

// ActorFromContext returns the actor resolved by ActorMiddleware.
func ActorFromContext(ctx context.Context) (moderation.Identity, bool) {
	identity, ok := ctx.Value(actorKey{}).(moderation.Identity)
	return identity, ok
}
