package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/acadport/internal/middleware"
	"github.com/hitoshi/acadport/internal/model"
)

// AttendanceStore は出席記録の作成インターフェース。
type AttendanceStore interface {
	Create(ctx context.Context, record *model.AttendanceRecord) error
}

// MarkStore は成績の作成インターフェース。
type MarkStore interface {
	Create(ctx context.Context, mark *model.Mark) error
}

// AcademicHandler は出席と成績の記録を処理するHTTPハンドラー。
// 教職員ロールのルートグループに配置される。
type AcademicHandler struct {
	attendance AttendanceStore
	marks      MarkStore
	staff      StaffProfileFinder
}

// NewAcademicHandler はAcademicHandlerを生成する。
func NewAcademicHandler(attendance AttendanceStore, marks MarkStore, staff StaffProfileFinder) *AcademicHandler {
	return &AcademicHandler{
		attendance: attendance,
		marks:      marks,
		staff:      staff,
	}
}

// markAttendanceRequest は出席記録リクエストのボディ。
type markAttendanceRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Status    string `json:"status" validate:"required,oneof=present absent late"`
}

// recordMarkRequest は成績記録リクエストのボディ。
type recordMarkRequest struct {
	StudentID     string  `json:"student_id" validate:"required,uuid"`
	Subject       string  `json:"subject" validate:"required,max=100"`
	ExamType      string  `json:"exam_type" validate:"required,max=50"`
	MarksObtained float64 `json:"marks_obtained" validate:"min=0"`
	MaxMarks      float64 `json:"max_marks" validate:"required,gt=0"`
}

// attendanceResponse は出席記録のAPIレスポンス。
type attendanceResponse struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	Date      string `json:"date"`
	Status    string `json:"status"`
	UpdatedBy string `json:"updated_by"`
}

// markResponse は成績のAPIレスポンス。
type markResponse struct {
	ID            string  `json:"id"`
	StudentID     string  `json:"student_id"`
	Subject       string  `json:"subject"`
	ExamType      string  `json:"exam_type"`
	MarksObtained float64 `json:"marks_obtained"`
	MaxMarks      float64 `json:"max_marks"`
	AddedBy       string  `json:"added_by"`
}

// MarkAttendance は出席記録を作成する。
// POST /api/attendance
func (h *AcademicHandler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req markAttendanceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	// updated_byにはユーザーIDではなく教職員プロフィールIDを記録する
	recorder, err := h.staff.FindByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if recorder == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewStaffNotFoundError())
		return
	}

	date, _ := time.Parse("2006-01-02", req.Date)
	record := &model.AttendanceRecord{
		ID:        uuid.New().String(),
		StudentID: req.StudentID,
		Date:      date,
		Status:    model.AttendanceStatus(req.Status),
		UpdatedBy: recorder.ID,
		CreatedAt: time.Now(),
	}

	if err := h.attendance.Create(r.Context(), record); err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("attendance marked",
		slog.String("student_id", record.StudentID),
		slog.String("date", req.Date),
		slog.String("status", req.Status),
	)
	writeJSON(w, http.StatusCreated, attendanceResponse{
		ID:        record.ID,
		StudentID: record.StudentID,
		Date:      req.Date,
		Status:    string(record.Status),
		UpdatedBy: record.UpdatedBy,
	})
}

// RecordMark は成績を作成する。
// POST /api/marks
func (h *AcademicHandler) RecordMark(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req recordMarkRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if req.MarksObtained > req.MaxMarks {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationFailedError("得点は満点を超えられません"))
		return
	}

	// added_byにはユーザーIDではなく教職員プロフィールIDを記録する
	recorder, err := h.staff.FindByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if recorder == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewStaffNotFoundError())
		return
	}

	mark := &model.Mark{
		ID:            uuid.New().String(),
		StudentID:     req.StudentID,
		Subject:       req.Subject,
		ExamType:      req.ExamType,
		MarksObtained: req.MarksObtained,
		MaxMarks:      req.MaxMarks,
		AddedBy:       recorder.ID,
		CreatedAt:     time.Now(),
	}

	if err := h.marks.Create(r.Context(), mark); err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("mark recorded",
		slog.String("student_id", mark.StudentID),
		slog.String("subject", mark.Subject),
	)
	writeJSON(w, http.StatusCreated, markResponse{
		ID:            mark.ID,
		StudentID:     mark.StudentID,
		Subject:       mark.Subject,
		ExamType:      mark.ExamType,
		MarksObtained: mark.MarksObtained,
		MaxMarks:      mark.MaxMarks,
		AddedBy:       mark.AddedBy,
	})
}
