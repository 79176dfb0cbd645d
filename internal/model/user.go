// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの認可ロールを表す。
// 認可判定にはuser_rolesテーブルに保存されたロールのみを使用し、
// IdP側メタデータのロール申告は信用しない。
type Role string

const (
	// RoleStudent は学生ロール。
	RoleStudent Role = "student"
	// RoleStaff は教職員ロール。
	RoleStaff Role = "staff"
	// RoleAdmin は管理者ロール。
	RoleAdmin Role = "admin"
)

// Valid はロール値が定義済みのものかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// User はアプリケーション側のユーザーレコードを表す。
// IDはIdP側IdentityのIDをそのまま使用する（サインアップ完了後は1:1対応）。
// PasswordHashは旧スキーマ互換のためのマーカー列で、認証には使用しない。
type User struct {
	ID           string
	Email        string
	FullName     string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// RoleAssignment はユーザーIDから認可ロールへの正式な対応付けを表す。
// 1ユーザーにつき正となるロールは高々1つ。
type RoleAssignment struct {
	UserID    string
	Role      Role
	CreatedAt time.Time
}

// StudentProfile は学生プロフィールを表す。
// AttendancePercentは非正規化された出席率で、attendanceテーブルとの
// 同期はワーカーの再計算ジョブに委ねる（読み取り側は値をそのまま信用する）。
type StudentProfile struct {
	ID                string
	UserID            string
	RollNo            string
	Department        string
	YearOfStudy       *int
	AttendancePercent *float64
	CreatedAt         time.Time
}

// StaffProfile は教職員プロフィールを表す。
type StaffProfile struct {
	ID          string
	UserID      string
	Department  string
	Designation string
	Subject     string
	CreatedAt   time.Time
}
