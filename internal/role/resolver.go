// Package role は正となるロール解決を提供する。
package role

import (
	"context"
	"fmt"

	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/repository"
)

// Resolver はユーザーIDから認可ロールを解決する。
// データソースはuser_rolesテーブルのみで、IdPメタデータや
// JWTクレームのロール申告は一切参照しない。
type Resolver struct {
	roleRepo repository.RoleRepository
}

// NewResolver はResolverを生成する。
func NewResolver(roleRepo repository.RoleRepository) *Resolver {
	return &Resolver{roleRepo: roleRepo}
}

// Resolve は指定ユーザーのロールを返す。
// 割当が存在しない場合は空文字列を返す（エラーではない）。
// サインアップ直後の従属行作成前は未割当が正常な過渡状態として発生しうる。
func (r *Resolver) Resolve(ctx context.Context, userID string) (model.Role, error) {
	if userID == "" {
		return "", fmt.Errorf("user ID is required")
	}

	assignment, err := r.roleRepo.FindByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve role: %w", err)
	}
	if assignment == nil {
		return "", nil
	}

	return assignment.Role, nil
}

// Require は指定ユーザーがrequiredロールを持つことを確認する。
// 未割当の場合はROLE_NOT_ASSIGNED、不一致の場合はFORBIDDENエラーを返す。
func (r *Resolver) Require(ctx context.Context, userID string, required model.Role) error {
	resolved, err := r.Resolve(ctx, userID)
	if err != nil {
		return err
	}
	if resolved == "" {
		return model.NewRoleNotAssignedError()
	}
	if resolved != required {
		return model.NewForbiddenError(required)
	}
	return nil
}
