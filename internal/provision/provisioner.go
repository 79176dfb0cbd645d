// Package provision は管理者による教職員アカウント作成を提供する。
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/acadport/internal/identity"
	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/repository"
)

// プロビジョニングのステップ名
const (
	StepIdentity = "identity"
	StepUser     = "user"
	StepStaff    = "staff"
)

// StepError はどのステップで失敗したかを保持するプロビジョニングエラー。
// 完了済みのステップはロールバックされない。
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("provisioning failed at step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StaffParams は教職員アカウント作成の入力。
type StaffParams struct {
	FullName    string
	Email       string
	Password    string
	Department  string
	Designation string
	Subject     string
}

// Provisioner は教職員アカウントの多段階作成を実行する。
type Provisioner struct {
	gateway   identity.Gateway
	userRepo  repository.UserRepository
	staffRepo repository.StaffRepository
}

// NewProvisioner はProvisionerを生成する。
func NewProvisioner(
	gateway identity.Gateway,
	userRepo repository.UserRepository,
	staffRepo repository.StaffRepository,
) *Provisioner {
	return &Provisioner{
		gateway:   gateway,
		userRepo:  userRepo,
		staffRepo: staffRepo,
	}
}

// ProvisionStaff は教職員アカウントを3ステップで作成する:
// (1) IdP側アカウント作成（メール確認済み）、(2) UserRecord挿入、
// (3) StaffProfile挿入。途中で失敗した場合は失敗ステップを報告して
// 停止し、完了済みステップの補償削除は行わない。
// 全ステップ成功後の名簿への反映は、呼び出し側が教職員一覧を
// 再取得して観測する（プッシュ通知は存在しない）。
func (p *Provisioner) ProvisionStaff(ctx context.Context, params StaffParams) (*model.StaffProfile, error) {
	metadata := model.IdentityMetadata{
		FullName:   params.FullName,
		Role:       string(model.RoleStaff),
		Department: params.Department,
	}

	ident, err := p.gateway.AdminCreateUser(ctx, params.Email, params.Password, metadata)
	if err != nil {
		return nil, &StepError{Step: StepIdentity, Err: err}
	}

	now := time.Now()
	user := &model.User{
		ID:        ident.ID,
		Email:     params.Email,
		FullName:  params.FullName,
		Role:      model.RoleStaff,
		CreatedAt: now,
	}
	if err := p.userRepo.Create(ctx, user); err != nil {
		slog.Error("staff provisioning halted, identity left in place",
			slog.String("step", StepUser),
			slog.String("identity_id", ident.ID),
			slog.String("error", err.Error()),
		)
		return nil, &StepError{Step: StepUser, Err: err}
	}

	staff := &model.StaffProfile{
		ID:          uuid.New().String(),
		UserID:      ident.ID,
		Department:  params.Department,
		Designation: params.Designation,
		Subject:     params.Subject,
		CreatedAt:   now,
	}
	if err := p.staffRepo.Create(ctx, staff); err != nil {
		slog.Error("staff provisioning halted, identity and user left in place",
			slog.String("step", StepStaff),
			slog.String("identity_id", ident.ID),
			slog.String("error", err.Error()),
		)
		return nil, &StepError{Step: StepStaff, Err: err}
	}

	slog.Info("staff account provisioned",
		slog.String("user_id", ident.ID),
		slog.String("email", params.Email),
	)
	return staff, nil
}
