package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/provision"
)

// StaffProvisioner は教職員アカウントの多段階作成インターフェース。
// provision.Provisionerが実装する。
type StaffProvisioner interface {
	ProvisionStaff(ctx context.Context, params provision.StaffParams) (*model.StaffProfile, error)
}

// ProvisionMetrics はプロビジョニングメトリクスの記録に必要なインターフェース。
type ProvisionMetrics interface {
	RecordProvisionStepFailure(step string)
}

// ProvisionHandler は管理者による教職員アカウント作成のHTTPハンドラー。
type ProvisionHandler struct {
	provisioner StaffProvisioner
	metrics     ProvisionMetrics
}

// NewProvisionHandler はProvisionHandlerを生成する。
func NewProvisionHandler(provisioner StaffProvisioner, metrics ProvisionMetrics) *ProvisionHandler {
	return &ProvisionHandler{
		provisioner: provisioner,
		metrics:     metrics,
	}
}

// provisionStaffRequest は教職員アカウント作成リクエストのボディ。
type provisionStaffRequest struct {
	FullName    string `json:"full_name" validate:"required,max=200"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	Department  string `json:"department" validate:"max=100"`
	Designation string `json:"designation" validate:"max=100"`
	Subject     string `json:"subject" validate:"max=100"`
}

// staffProfileResponse は教職員プロフィールのAPIレスポンス。
type staffProfileResponse struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Department  string `json:"department"`
	Designation string `json:"designation"`
	Subject     string `json:"subject"`
}

// ProvisionStaff は教職員アカウントを作成する。
// POST /api/admin/staff
// 途中のステップで失敗した場合、完了済みのステップは補償されない。
// どのステップで失敗したかをレスポンスで報告する。
func (h *ProvisionHandler) ProvisionStaff(w http.ResponseWriter, r *http.Request) {
	var req provisionStaffRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	staff, err := h.provisioner.ProvisionStaff(r.Context(), provision.StaffParams{
		FullName:    req.FullName,
		Email:       req.Email,
		Password:    req.Password,
		Department:  req.Department,
		Designation: req.Designation,
		Subject:     req.Subject,
	})
	if err != nil {
		var stepErr *provision.StepError
		if errors.As(err, &stepErr) {
			h.metrics.RecordProvisionStepFailure(stepErr.Step)

			// IdPでのアカウント作成自体の失敗は元のエラーで報告する
			// （メールアドレス重複など、呼び出し側で対処可能なもの）
			var apiErr *model.APIError
			if stepErr.Step == provision.StepIdentity && errors.As(stepErr.Err, &apiErr) {
				writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
				return
			}

			slog.Error("staff provisioning halted",
				slog.String("step", stepErr.Step),
				slog.String("error", stepErr.Error()),
			)
			writeAPIErrorResponse(w, http.StatusInternalServerError,
				model.NewProvisionFailedError(stepErr.Step))
			return
		}

		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, staffProfileResponse{
		ID:          staff.ID,
		UserID:      staff.UserID,
		Department:  staff.Department,
		Designation: staff.Designation,
		Subject:     staff.Subject,
	})
}
