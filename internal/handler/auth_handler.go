package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/acadport/internal/middleware"
	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/session"
)

// AuthFlowInterface は認証ハンドラーが必要とするサインアップ/サインインのフロー。
// session.Managerが実装する。
type AuthFlowInterface interface {
	SignUp(ctx context.Context, params session.SignUpParams) (*model.Session, *model.Identity, error)
	SignIn(ctx context.Context, email, password string) (*model.Session, *model.Identity, error)
}

// SessionGateway はセッションの取得と破棄に必要なインターフェース。
// identity.Gatewayの部分集合として定義する。
type SessionGateway interface {
	SignOut(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*model.Session, *model.Identity, error)
}

// RoleResolverInterface は現在ユーザーのロール解決に必要なインターフェース。
type RoleResolverInterface interface {
	Resolve(ctx context.Context, userID string) (model.Role, error)
}

// AuthMetrics は認証メトリクスの記録に必要なインターフェース。
type AuthMetrics interface {
	RecordSignIn(success bool)
	RecordSignUp(success bool)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	flow     AuthFlowInterface
	gateway  SessionGateway
	resolver RoleResolverInterface
	metrics  AuthMetrics
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(flow AuthFlowInterface, gateway SessionGateway, resolver RoleResolverInterface, metrics AuthMetrics, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		flow:     flow,
		gateway:  gateway,
		resolver: resolver,
		metrics:  metrics,
		config:   config,
	}
}

// signUpRequest はサインアップリクエストのボディ。
// ロールは指定できない。セルフサービスサインアップは常に学生になる。
type signUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	FullName    string `json:"full_name" validate:"required,max=200"`
	RollNo      string `json:"roll_no" validate:"required,max=50"`
	Department  string `json:"department" validate:"max=100"`
	YearOfStudy *int   `json:"year_of_study" validate:"omitempty,min=1,max=6"`
}

// signInRequest はサインインリクエストのボディ。
type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// authUserResponse は認証済みユーザー情報のAPIレスポンス。
type authUserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// authResponse はサインアップ/サインイン成功時のAPIレスポンス。
type authResponse struct {
	User        authUserResponse `json:"user"`
	AccessToken string           `json:"access_token"`
	ExpiresAt   string           `json:"expires_at"`
}

// SignUp はセルフサービスのサインアップを処理する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sess, ident, err := h.flow.SignUp(r.Context(), session.SignUpParams{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		RollNo:      req.RollNo,
		Department:  req.Department,
		YearOfStudy: req.YearOfStudy,
	})
	if err != nil {
		h.metrics.RecordSignUp(false)
		// Identity作成後の従属行挿入失敗。セッションは発行済みなので
		// Cookieを設定した上でエラーを報告する。
		if sess != nil {
			h.setSessionCookie(w, sess)
		}
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordSignUp(true)
	h.setSessionCookie(w, sess)
	h.writeAuthResponse(r.Context(), w, http.StatusCreated, sess, ident)
}

// SignIn はパスワード認証を処理する。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sess, ident, err := h.flow.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.RecordSignIn(false)
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordSignIn(true)
	h.setSessionCookie(w, sess)
	h.writeAuthResponse(r.Context(), w, http.StatusOK, sess, ident)
}

// SignOut はセッションを破棄する。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if signOutErr := h.gateway.SignOut(r.Context(), cookie.Value); signOutErr != nil {
			slog.Error("failed to sign out", slog.String("error", signOutErr.Error()))
			// サインアウト失敗してもCookieはクリアする
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のサインインユーザー情報と解決済みロールを返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		writeUnauthorized(w)
		return
	}

	sess, ident, err := h.gateway.GetSession(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to get session", slog.String("error", err.Error()))
		writeUnauthorized(w)
		return
	}
	if sess == nil || ident == nil {
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, h.toUserResponse(r.Context(), ident))
}

// setSessionCookie はセッションCookieを設定する（HTTP Only）。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sess *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieをクリアする。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// toUserResponse はIdentityと解決済みロールからユーザーレスポンスを組み立てる。
// ロール解決に失敗した場合は空ロールで返す（未割当の過渡状態と区別しない）。
func (h *AuthHandler) toUserResponse(ctx context.Context, ident *model.Identity) authUserResponse {
	resolved, err := h.resolver.Resolve(ctx, ident.ID)
	if err != nil {
		slog.Error("failed to resolve role",
			slog.String("user_id", ident.ID),
			slog.String("error", err.Error()),
		)
		resolved = ""
	}

	return authUserResponse{
		ID:       ident.ID,
		Email:    ident.Email,
		FullName: ident.Metadata.FullName,
		Role:     string(resolved),
	}
}

// writeAuthResponse は認証成功レスポンスを書き込む。
func (h *AuthHandler) writeAuthResponse(ctx context.Context, w http.ResponseWriter, statusCode int, sess *model.Session, ident *model.Identity) {
	writeJSON(w, statusCode, authResponse{
		User:        h.toUserResponse(ctx, ident),
		AccessToken: sess.AccessToken,
		ExpiresAt:   sess.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}
