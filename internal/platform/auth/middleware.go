package auth

import (
	"context"
	"net/http"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/hanko-field/orderdesk/internal/platform/httpx"
	"github.com/hanko-field/orderdesk/internal/platform/requestctx"
)

// ActorHeader carries the acting user when requests arrive through a trusted gateway.
const ActorHeader = "X-Actor-ID"

// TokenVerifier validates Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// ActorMiddleware records the request actor on the context. A bearer token is verified when a
// verifier is configured and its UID becomes the actor; otherwise the ActorHeader value is used.
// Invalid tokens are rejected with 401.
func ActorMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor := strings.TrimSpace(r.Header.Get(ActorHeader))

			if token, ok := extractBearerToken(r.Header.Get("Authorization")); ok && verifier != nil {
				verified, err := verifier.VerifyIDToken(ctx, token)
				if err != nil {
					respondVerificationError(ctx, w, err)
					return
				}
				actor = verified.UID
			}

			next.ServeHTTP(w, r.WithContext(requestctx.WithActor(ctx, actor)))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondVerificationError(ctx context.Context, w http.ResponseWriter, err error) {
	if firebaseauth.IsIDTokenExpired(err) {
		httpx.WriteError(ctx, w, httpx.NewError("token_expired", "firebase id token expired", http.StatusUnauthorized))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "firebase id token verification failed", http.StatusUnauthorized))
}
