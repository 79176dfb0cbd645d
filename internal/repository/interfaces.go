// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/acadport/internal/model"
)

// IdentityRepository はIdP側プリンシパルの永続化インターフェース。
// IdPのローカル実装のみが使用する。アプリケーション層からは触らない。
type IdentityRepository interface {
	// Create はIdentityをパスワードハッシュとともに作成する。
	// メールアドレス重複の場合は一意制約違反エラーを返す（IsUniqueViolationで判定可能）。
	Create(ctx context.Context, identity *model.Identity, passwordHash string) error

	// FindByEmail はメールアドレスでIdentityを検索する。見つからない場合はnilを返す。
	// 認証用にパスワードハッシュも併せて返す。
	FindByEmail(ctx context.Context, email string) (*model.Identity, string, error)

	// FindByID は指定IDのIdentityを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)
}

// SessionRepository はIdPが発行したセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れまたは未検出の場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// UserRepository はアプリケーション側ユーザーレコードの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーレコードを作成する。
	Create(ctx context.Context, user *model.User) error
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// RoleRepository は正となるロール割当の永続化インターフェース。
// ロール解決の唯一のデータソース。
type RoleRepository interface {
	// Assign はユーザーにロールを割り当てる。
	Assign(ctx context.Context, userID string, role model.Role) error
	// FindByUserID は指定ユーザーのロール割当を取得する。
	// 割当が存在しない場合はnilを返す（エラーではない）。
	FindByUserID(ctx context.Context, userID string) (*model.RoleAssignment, error)
}

// StudentWithUser は学生プロフィールと表示用のユーザー情報を結合した構造体。
type StudentWithUser struct {
	model.StudentProfile
	FullName string
	Email    string
}

// StudentRepository は学生プロフィールの永続化インターフェース。
type StudentRepository interface {
	// Create は学生プロフィールを作成する。
	Create(ctx context.Context, student *model.StudentProfile) error
	// FindByUserID は所有ユーザーIDで学生プロフィールを検索する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.StudentProfile, error)
	// FindByUserIDWithUser は学生プロフィールをusersとJOINして取得する。見つからない場合はnilを返す。
	FindByUserIDWithUser(ctx context.Context, userID string) (*StudentWithUser, error)
	// Count は学生プロフィールの総数を返す。
	Count(ctx context.Context) (int, error)
	// ListIDs は全学生のIDを返す。出席率再計算ジョブが使用する。
	ListIDs(ctx context.Context) ([]string, error)
	// UpdateAttendancePercent は非正規化された出席率を更新する。
	UpdateAttendancePercent(ctx context.Context, studentID string, percent float64) error
}

// StaffWithUser は教職員プロフィールと表示用のユーザー情報を結合した構造体。
type StaffWithUser struct {
	model.StaffProfile
	FullName string
	Email    string
}

// StaffRepository は教職員プロフィールの永続化インターフェース。
type StaffRepository interface {
	// Create は教職員プロフィールを作成する。
	Create(ctx context.Context, staff *model.StaffProfile) error
	// FindByUserID は所有ユーザーIDで教職員プロフィールを検索する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.StaffProfile, error)
	// FindByUserIDWithUser は教職員プロフィールをusersとJOINして取得する。見つからない場合はnilを返す。
	FindByUserIDWithUser(ctx context.Context, userID string) (*StaffWithUser, error)
	// ListWithUsers は全教職員の名簿をusersとJOINして返す。
	ListWithUsers(ctx context.Context) ([]StaffWithUser, error)
	// Count は教職員プロフィールの総数を返す。
	Count(ctx context.Context) (int, error)
}

// AttendanceRepository は出席記録の永続化インターフェース。
type AttendanceRepository interface {
	// Create は出席記録を作成する。
	Create(ctx context.Context, record *model.AttendanceRecord) error
	// ListRecentByStudent は指定学生の出席記録を日付降順でlimit件まで返す。
	ListRecentByStudent(ctx context.Context, studentID string, limit int) ([]model.AttendanceRecord, error)
	// ListByStudentFrom は指定学生の指定日以降の出席記録を日付昇順で返す。
	// 出席率再計算ジョブが使用する。
	ListByStudentFrom(ctx context.Context, studentID string, from time.Time) ([]model.AttendanceRecord, error)
}

// MarkRepository は成績の永続化インターフェース。
type MarkRepository interface {
	// Create は成績を作成する。
	Create(ctx context.Context, mark *model.Mark) error
	// ListByStudent は指定学生の成績を保存順（created_at昇順）で返す。
	ListByStudent(ctx context.Context, studentID string) ([]model.Mark, error)
}

// LeaveRequestRepository は休暇申請の永続化インターフェース。
type LeaveRequestRepository interface {
	// Create は休暇申請を作成する。
	Create(ctx context.Context, req *model.LeaveRequest) error
	// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.LeaveRequest, error)
	// ListByStudent は指定学生の申請を申請日時降順で返す。
	ListByStudent(ctx context.Context, studentID string) ([]model.LeaveRequest, error)
	// ListByStatus は指定状態の申請を申請日時昇順で返す。
	ListByStatus(ctx context.Context, status model.LeaveStatus) ([]model.LeaveRequest, error)
	// CountByStatus は指定状態の申請数を返す。
	CountByStatus(ctx context.Context, status model.LeaveStatus) (int, error)
	// UpdateReview は審査待ちの申請に審査結果を記録する。
	// 対象が存在しないか既に審査済みの場合はErrLeaveAlreadyReviewedを返す。
	UpdateReview(ctx context.Context, id string, status model.LeaveStatus, reviewerID string) error
}

// EventRepository は学内イベントの永続化インターフェース。
type EventRepository interface {
	// Create はイベントを作成する。
	Create(ctx context.Context, event *model.Event) error
	// ListFrom は指定日以降のイベントを日付昇順でlimit件まで返す。
	ListFrom(ctx context.Context, from time.Time, limit int) ([]model.Event, error)
	// CountAll はイベントの総数を返す。
	CountAll(ctx context.Context) (int, error)
	// CountFrom は指定日以降のイベント数を返す。
	CountFrom(ctx context.Context, from time.Time) (int, error)
	// UpsertExternal は外部フィード由来のイベントをexternal_refで冪等にUPSERTする。
	// 新規挿入の場合はtrueを返す。
	UpsertExternal(ctx context.Context, event *model.Event) (bool, error)
}

// FeeRepository は納付金の永続化インターフェース。
type FeeRepository interface {
	// Create は納付金を作成する。
	Create(ctx context.Context, fee *model.Fee) error
	// ListPendingByStudent は指定学生の未納の納付金を期日昇順で返す。
	ListPendingByStudent(ctx context.Context, studentID string) ([]model.Fee, error)
}

// HolidayRepository は休日の永続化インターフェース。
type HolidayRepository interface {
	// Create は休日を作成する。
	Create(ctx context.Context, holiday *model.Holiday) error
	// ListFrom は指定日以降の休日を日付昇順で返す。
	ListFrom(ctx context.Context, from time.Time) ([]model.Holiday, error)
}
