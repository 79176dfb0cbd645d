// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/acadport/internal/model"
)

// SessionCookieName はセッションIDを保持するHTTP Only Cookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// SessionReader はセッションの検索に必要なインターフェース。
// identity.Gatewayの部分集合として定義する。
type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (*model.Session, *model.Identity, error)
}

// TokenParser はBearerトークンの検証に必要なインターフェース。
// 検証に成功した場合はIdentity IDを返す。
type TokenParser interface {
	ParseAccessToken(tokenString string) (string, error)
}

// NewSessionMiddleware はリクエストの認証を検証するミドルウェアを返す。
// HTTP Only CookieのセッションIDを優先し、Cookieがない場合は
// AuthorizationヘッダーのBearerトークンを検証する。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(reader SessionReader, parser TokenParser) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得
			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				session, identity, err := reader.GetSession(r.Context(), cookie.Value)
				if err != nil {
					slog.Error("failed to find session",
						slog.String("error", err.Error()),
					)
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				if session == nil || identity == nil {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}

				ctx := context.WithValue(r.Context(), userIDContextKey, identity.ID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// 2. Authorizationヘッダーのフォールバック
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			identityID, err := parser.ParseAccessToken(token)
			if err != nil {
				slog.Warn("invalid access token",
					slog.String("error", err.Error()),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, identityID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// Bearerスキームでない場合は空文字列を返す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
