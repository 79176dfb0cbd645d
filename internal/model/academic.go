// Package model はドメインモデルを定義する。
package model

import "time"

// AttendanceStatus は出席記録の状態を表す。
type AttendanceStatus string

const (
	// AttendancePresent は出席。
	AttendancePresent AttendanceStatus = "present"
	// AttendanceAbsent は欠席。
	AttendanceAbsent AttendanceStatus = "absent"
	// AttendanceLate は遅刻。
	AttendanceLate AttendanceStatus = "late"
)

// AttendanceRecord は学生の日次出席記録を表す。
// 運用上は(学生, 日付)ごとに1行だが、この層では一意性を強制しない。
type AttendanceRecord struct {
	ID        string
	StudentID string
	Date      time.Time
	Status    AttendanceStatus
	UpdatedBy string
	CreatedAt time.Time
}

// Mark は試験・課題の成績を表す。
type Mark struct {
	ID            string
	StudentID     string
	Subject       string
	ExamType      string
	MarksObtained float64
	MaxMarks      float64
	AddedBy       string
	CreatedAt     time.Time
}

// LeaveStatus は休暇申請の審査状態を表す。
type LeaveStatus string

const (
	// LeavePending は審査待ち。
	LeavePending LeaveStatus = "pending"
	// LeaveApproved は承認済み。
	LeaveApproved LeaveStatus = "approved"
	// LeaveRejected は却下。
	LeaveRejected LeaveStatus = "rejected"
)

// LeaveRequest は学生の休暇申請を表す。
// Reasonは保存前にサニタイズされる。DocumentURLは任意の添付資料URL。
type LeaveRequest struct {
	ID          string
	StudentID   string
	StartDate   time.Time
	EndDate     time.Time
	LeaveType   string
	Reason      string
	Status      LeaveStatus
	ReviewedBy  string
	DocumentURL string
	AppliedAt   time.Time
}

// Event は学内イベントを表す。
// ExternalRefは外部カレンダーフィードから取り込んだ際の重複排除キー。
// 手動作成のイベントでは空になる。
type Event struct {
	ID          string
	Name        string
	Description string
	Date        time.Time
	CreatedBy   string
	ExternalRef string
	CreatedAt   time.Time
}

// Fee は学生の納付金を表す。
type Fee struct {
	ID        string
	StudentID string
	FeeType   string
	Amount    float64
	DueDate   *time.Time
	Status    string
	CreatedAt time.Time
}

// Holiday は休日を表す。出席率の再計算時に休日は分母から除外される。
type Holiday struct {
	ID     string
	Name   string
	Date   time.Time
	IsGovt bool
}
