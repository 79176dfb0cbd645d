// Package dashboard はロール別ダッシュボードのビューモデル組み立てを提供する。
//
// すべてのアグリゲータは単一のLoad呼び出しでスナップショットを生成する。
// 取得エラーはログに記録して既定値にフォールバックし、ビューモデル自体は
// 常に生成される（部分的に欠けることはあっても全体が失敗することはない）。
package dashboard

import (
	"time"

	"github.com/hitoshi/acadport/internal/model"
)

// Metrics はアグリゲータが記録する計測のインターフェース。
type Metrics interface {
	// RecordDashboardLoad はダッシュボード組み立ての所要時間を記録する。
	RecordDashboardLoad(role string, duration time.Duration)
	// RecordStoreQueryError はストア読み取りの失敗を記録する。
	RecordStoreQueryError(query string)
}

// StudentProfileView は学生ダッシュボードのプロフィール表示部。
type StudentProfileView struct {
	FullName          string   `json:"full_name"`
	Email             string   `json:"email"`
	RollNo            string   `json:"roll_no"`
	Department        string   `json:"department,omitempty"`
	YearOfStudy       *int     `json:"year_of_study,omitempty"`
	AttendancePercent *float64 `json:"attendance_percentage,omitempty"`
}

// ActivityLine は出席記録から射影された活動フィードの1行。
// 永続化されない純粋な射影。
type ActivityLine struct {
	Date time.Time `json:"date"`
	Line string    `json:"line"`
}

// StudentViewModel は学生ダッシュボードのスナップショット。
type StudentViewModel struct {
	Profile     *StudentProfileView `json:"profile"`
	Marks       []model.Mark        `json:"marks"`
	Activity    []ActivityLine      `json:"activity"`
	PendingFees []model.Fee         `json:"pending_fees"`
}

// StaffProfileView は教職員ダッシュボードのプロフィール表示部。
type StaffProfileView struct {
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Department  string `json:"department,omitempty"`
	Designation string `json:"designation,omitempty"`
	Subject     string `json:"subject,omitempty"`
}

// StaffViewModel は教職員ダッシュボードのスナップショット。
// 3つのカウントは並行に取得され、同一瞬間の整合は保証しない。
type StaffViewModel struct {
	Profile         *StaffProfileView `json:"profile"`
	TotalStudents   int               `json:"total_students"`
	PendingRequests int               `json:"pending_requests"`
	UpcomingEvents  int               `json:"upcoming_events"`
}

// StaffRosterEntry は管理者ダッシュボードの教職員名簿の1行。
type StaffRosterEntry struct {
	UserID      string `json:"user_id"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Department  string `json:"department,omitempty"`
	Designation string `json:"designation,omitempty"`
	Subject     string `json:"subject,omitempty"`
}

// AdminViewModel は管理者ダッシュボードのスナップショット。
type AdminViewModel struct {
	TotalStudents   int                `json:"total_students"`
	TotalStaff      int                `json:"total_staff"`
	TotalEvents     int                `json:"total_events"`
	PendingRequests int                `json:"pending_requests"`
	StaffRoster     []StaffRosterEntry `json:"staff_roster"`
}
