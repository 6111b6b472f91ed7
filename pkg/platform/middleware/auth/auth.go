package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"trustscore/internal/platform/servicetoken"
	request "trustscore/pkg/platform/middleware/request"
	"trustscore/pkg/requestcontext"
)

// TokenValidator validates collaborator service tokens.
type TokenValidator interface {
	Validate(tokenString string) (*servicetoken.Claims, error)
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireServiceToken rejects requests without a valid collaborator bearer
// token and records the caller in the request context.
func RequireServiceToken(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithCaller(ctx, requestcontext.Caller{
				Name:       claims.Subject,
				Categories: claims.Categories,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
