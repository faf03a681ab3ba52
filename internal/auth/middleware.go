package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/clipshare/backend/internal/errors"
)

type contextKey string

const UserContextKey contextKey = "user"

type UserContext struct {
	UserID   uuid.UUID
	Email    string
	Username string
}

// Middleware authenticates requests by access token, accepted from the
// Authorization header or the accessToken cookie.
func Middleware(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := apperrors.GetRequestID(r.Context())

			tokenString := bearerToken(r)
			if tokenString == "" {
				if c, err := r.Cookie(accessTokenCookie); err == nil {
					tokenString = c.Value
				}
			}
			if tokenString == "" {
				apperrors.WriteError(w, requestID, apperrors.Unauthorized("missing access token"))
				return
			}

			claims, err := tokens.ValidateAccessToken(tokenString)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					apperrors.WriteError(w, requestID, apperrors.InvalidToken("access token has expired"))
					return
				}
				apperrors.WriteError(w, requestID, apperrors.InvalidToken("invalid access token"))
				return
			}

			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				apperrors.WriteError(w, requestID, apperrors.InvalidToken("invalid user id in token"))
				return
			}

			userCtx := &UserContext{
				UserID:   userID,
				Email:    claims.Email,
				Username: claims.Username,
			}

			ctx := context.WithValue(r.Context(), UserContextKey, userCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func GetUserFromContext(ctx context.Context) *UserContext {
	user, ok := ctx.Value(UserContextKey).(*UserContext)
	if !ok {
		return nil
	}
	return user
}
