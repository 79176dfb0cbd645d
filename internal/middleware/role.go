package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/acadport/internal/model"
)

// RoleRequirer はロール認可の検証に必要なインターフェース。
// role.Resolverの部分集合として定義する。
type RoleRequirer interface {
	Require(ctx context.Context, userID string, required model.Role) error
}

// NewRequireRoleMiddleware は指定ロールを持つユーザーのみを通すミドルウェアを返す。
// ロールは常にサーバー側のロールストアから解決し、トークンの申告は信用しない。
// セッションミドルウェアの後に配置する必要がある。
func NewRequireRoleMiddleware(requirer RoleRequirer, required model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if err := requirer.Require(r.Context(), userID, required); err != nil {
				var apiErr *model.APIError
				if asAPIError(err, &apiErr) {
					status := http.StatusForbidden
					if apiErr.Code == model.ErrCodeRoleNotAssigned {
						// 従属行作成前の過渡状態。クライアントは再試行できる。
						status = http.StatusConflict
					}
					WriteErrorResponse(w, status, apiErr)
					return
				}
				WriteInternalServerError(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
