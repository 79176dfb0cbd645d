package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/acadport/internal/middleware"
	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/repository"
	"github.com/hitoshi/acadport/internal/security"
)

// LeaveStore は休暇申請ハンドラーが必要とする永続化インターフェース。
// repository.LeaveRequestRepositoryの部分集合として定義する。
type LeaveStore interface {
	Create(ctx context.Context, req *model.LeaveRequest) error
	FindByID(ctx context.Context, id string) (*model.LeaveRequest, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.LeaveRequest, error)
	ListByStatus(ctx context.Context, status model.LeaveStatus) ([]model.LeaveRequest, error)
	UpdateReview(ctx context.Context, id string, status model.LeaveStatus, reviewerID string) error
}

// StudentProfileFinder は所有ユーザーIDから学生プロフィールを引くインターフェース。
type StudentProfileFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.StudentProfile, error)
}

// StaffProfileFinder は所有ユーザーIDから教職員プロフィールを引くインターフェース。
// 審査者・記録者のカラムはstaff.idを参照するため、書き込み前に
// コンテキストのユーザーIDからプロフィールIDへ変換する必要がある。
type StaffProfileFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.StaffProfile, error)
}

// LeaveHandler は休暇申請のHTTPハンドラー。
type LeaveHandler struct {
	leaves    LeaveStore
	students  StudentProfileFinder
	staff     StaffProfileFinder
	resolver  RoleResolverInterface
	sanitizer security.ContentSanitizerService
	guard     security.SSRFGuardService
}

// NewLeaveHandler はLeaveHandlerを生成する。
func NewLeaveHandler(
	leaves LeaveStore,
	students StudentProfileFinder,
	staff StaffProfileFinder,
	resolver RoleResolverInterface,
	sanitizer security.ContentSanitizerService,
	guard security.SSRFGuardService,
) *LeaveHandler {
	return &LeaveHandler{
		leaves:    leaves,
		students:  students,
		staff:     staff,
		resolver:  resolver,
		sanitizer: sanitizer,
		guard:     guard,
	}
}

// submitLeaveRequest は休暇申請リクエストのボディ。
type submitLeaveRequest struct {
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"required,datetime=2006-01-02"`
	LeaveType   string `json:"leave_type" validate:"required,oneof=sick casual emergency other"`
	Reason      string `json:"reason" validate:"required,max=2000"`
	DocumentURL string `json:"document_url" validate:"omitempty,max=2048"`
}

// reviewLeaveRequest は休暇申請の審査リクエストのボディ。
type reviewLeaveRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

// leaveResponse は休暇申請のAPIレスポンス。
type leaveResponse struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	LeaveType   string `json:"leave_type"`
	Reason      string `json:"reason"`
	Status      string `json:"status"`
	ReviewedBy  string `json:"reviewed_by,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
	AppliedAt   string `json:"applied_at"`
}

// Submit は学生の休暇申請を受け付ける。
// POST /api/leave
func (h *LeaveHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req submitLeaveRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	startDate, _ := time.Parse("2006-01-02", req.StartDate)
	endDate, _ := time.Parse("2006-01-02", req.EndDate)
	if endDate.Before(startDate) {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationFailedError("終了日は開始日以降である必要があります"))
		return
	}

	// 添付資料URLは保存前にSSRFガードで検証する
	if req.DocumentURL != "" {
		if err := h.guard.ValidateURL(req.DocumentURL); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	student, err := h.students.FindByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if student == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewStudentNotFoundError())
		return
	}

	leave := &model.LeaveRequest{
		ID:          uuid.New().String(),
		StudentID:   student.ID,
		StartDate:   startDate,
		EndDate:     endDate,
		LeaveType:   req.LeaveType,
		Reason:      h.sanitizer.SanitizeText(req.Reason),
		Status:      model.LeavePending,
		DocumentURL: req.DocumentURL,
		AppliedAt:   time.Now(),
	}

	if err := h.leaves.Create(r.Context(), leave); err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("leave request submitted",
		slog.String("leave_id", leave.ID),
		slog.String("student_id", leave.StudentID),
	)
	writeJSON(w, http.StatusCreated, toLeaveResponse(leave))
}

// List は休暇申請の一覧を返す。
// GET /api/leave?status=
// 学生は自分の申請を新しい順に、教職員と管理者は指定状態
// （省略時はpending）の申請を古い順に取得する。
func (h *LeaveHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	resolved, err := h.resolver.Resolve(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var leaves []model.LeaveRequest
	switch resolved {
	case model.RoleStudent:
		student, err := h.students.FindByUserID(r.Context(), userID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if student == nil {
			writeAPIErrorResponse(w, http.StatusNotFound, model.NewStudentNotFoundError())
			return
		}
		leaves, err = h.leaves.ListByStudent(r.Context(), student.ID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

	case model.RoleStaff, model.RoleAdmin:
		status := model.LeaveStatus(r.URL.Query().Get("status"))
		if status == "" {
			status = model.LeavePending
		}
		switch status {
		case model.LeavePending, model.LeaveApproved, model.LeaveRejected:
		default:
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewValidationFailedError("statusはpending、approved、rejectedのいずれかです"))
			return
		}
		leaves, err = h.leaves.ListByStatus(r.Context(), status)
		if err != nil {
			handleServiceError(w, err)
			return
		}

	default:
		writeAPIErrorResponse(w, http.StatusConflict, model.NewRoleNotAssignedError())
		return
	}

	responses := make([]leaveResponse, 0, len(leaves))
	for i := range leaves {
		responses = append(responses, toLeaveResponse(&leaves[i]))
	}
	writeJSON(w, http.StatusOK, responses)
}

// Review は休暇申請を承認または却下する。
// PATCH /api/leave/{id}
func (h *LeaveHandler) Review(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	leaveID := chi.URLParam(r, "id")

	var req reviewLeaveRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	// reviewed_byにはユーザーIDではなく教職員プロフィールIDを記録する
	reviewer, err := h.staff.FindByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if reviewer == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewStaffNotFoundError())
		return
	}

	leave, err := h.leaves.FindByID(r.Context(), leaveID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if leave == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewLeaveNotFoundError(leaveID))
		return
	}
	if leave.Status != model.LeavePending {
		writeAPIErrorResponse(w, http.StatusConflict, model.NewLeaveAlreadyReviewedError())
		return
	}

	status := model.LeaveStatus(req.Status)
	if err := h.leaves.UpdateReview(r.Context(), leaveID, status, reviewer.ID); err != nil {
		// 事前チェック後に別の審査が確定した場合、ストア側の状態ガードが0件更新を報告する
		if errors.Is(err, repository.ErrLeaveAlreadyReviewed) {
			writeAPIErrorResponse(w, http.StatusConflict, model.NewLeaveAlreadyReviewedError())
			return
		}
		handleServiceError(w, err)
		return
	}

	leave.Status = status
	leave.ReviewedBy = reviewer.ID

	slog.Info("leave request reviewed",
		slog.String("leave_id", leaveID),
		slog.String("status", string(status)),
		slog.String("reviewed_by", reviewer.ID),
	)
	writeJSON(w, http.StatusOK, toLeaveResponse(leave))
}

// toLeaveResponse はmodel.LeaveRequestからAPIレスポンスに変換する。
func toLeaveResponse(leave *model.LeaveRequest) leaveResponse {
	return leaveResponse{
		ID:          leave.ID,
		StudentID:   leave.StudentID,
		StartDate:   leave.StartDate.Format("2006-01-02"),
		EndDate:     leave.EndDate.Format("2006-01-02"),
		LeaveType:   leave.LeaveType,
		Reason:      leave.Reason,
		Status:      string(leave.Status),
		ReviewedBy:  leave.ReviewedBy,
		DocumentURL: leave.DocumentURL,
		AppliedAt:   leave.AppliedAt.UTC().Format(time.RFC3339),
	}
}
