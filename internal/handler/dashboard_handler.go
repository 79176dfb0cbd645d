package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/acadport/internal/dashboard"
	"github.com/hitoshi/acadport/internal/middleware"
)

// StudentDashboardLoader は学生ダッシュボードの組み立てインターフェース。
type StudentDashboardLoader interface {
	Load(ctx context.Context, userID string) *dashboard.StudentViewModel
}

// StaffDashboardLoader は教職員ダッシュボードの組み立てインターフェース。
type StaffDashboardLoader interface {
	Load(ctx context.Context, userID string) *dashboard.StaffViewModel
}

// AdminDashboardLoader は管理者ダッシュボードの組み立てインターフェース。
type AdminDashboardLoader interface {
	Load(ctx context.Context) *dashboard.AdminViewModel
}

// DashboardHandler はロール別ダッシュボードのHTTPハンドラー。
// アグリゲータは部分的な取得失敗を既定値で埋めるため、
// ここでは常に200でビューモデルを返す。
type DashboardHandler struct {
	student StudentDashboardLoader
	staff   StaffDashboardLoader
	admin   AdminDashboardLoader
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(student StudentDashboardLoader, staff StaffDashboardLoader, admin AdminDashboardLoader) *DashboardHandler {
	return &DashboardHandler{
		student: student,
		staff:   staff,
		admin:   admin,
	}
}

// Student は学生ダッシュボードを返す。
// GET /api/dashboard/student
func (h *DashboardHandler) Student(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, h.student.Load(r.Context(), userID))
}

// Staff は教職員ダッシュボードを返す。
// GET /api/dashboard/staff
func (h *DashboardHandler) Staff(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, h.staff.Load(r.Context(), userID))
}

// Admin は管理者ダッシュボードを返す。
// GET /api/dashboard/admin
func (h *DashboardHandler) Admin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.admin.Load(r.Context()))
}
