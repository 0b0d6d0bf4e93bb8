package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"stablegate/pkg/domain"
	strutil "stablegate/pkg/platform/strings"
)

// ActorValidator validates a capability token and returns the claims it
// proves. The JWT implementation lives in internal/jwt_token.
type ActorValidator interface {
	ValidateToken(tokenString string) (*ActorClaims, error)
}

// ActorClaims are the claims the validator extracts from a capability token.
type ActorClaims struct {
	Address      string
	Capabilities []string
}

type contextKeyActor struct{}

// ContextKeyActor is exported for use in handlers.
var ContextKeyActor = contextKeyActor{}

// GetActor retrieves the authenticated actor from the context. The zero
// Actor (no address, no capabilities) means the request was unauthenticated;
// RequireActor guarantees handlers never see that.
func GetActor(ctx context.Context) domain.Actor {
	actor, ok := ctx.Value(ContextKeyActor).(domain.Actor)
	if !ok {
		return domain.Actor{}
	}
	return actor
}

// RequireActor authenticates the caller via its capability token and stores
// the resulting Actor in the request context. Capability checks themselves
// happen in the services; the middleware only establishes who is calling and
// which capabilities the token proves.
func RequireActor(validator ActorValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			addr, err := domain.ParseAddress(claims.Address)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed actor address",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid actor address")
				return
			}

			// Tokens are issued out-of-band, so the capability list is
			// external input: dedupe it and drop anything unknown.
			capValues := strutil.DedupeAndTrim(claims.Capabilities)
			caps := make([]domain.Capability, 0, len(capValues))
			for _, c := range capValues {
				cap := domain.Capability(c)
				if cap.IsValid() {
					caps = append(caps, cap)
				}
			}

			ctx = context.WithValue(ctx, ContextKeyActor, domain.NewActor(addr, caps...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
