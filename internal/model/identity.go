// Package model はドメインモデルを定義する。
package model

import "time"

// IdentityMetadata はサインアップ時にIdPへ渡される任意メタデータ。
// Roleはクライアントが申告できる値のため、認可判定には使用しない
// （正となるロールはRoleAssignmentが保持する）。
type IdentityMetadata struct {
	FullName    string `json:"full_name"`
	Role        string `json:"role"`
	RollNo      string `json:"roll_no,omitempty"`
	Department  string `json:"department,omitempty"`
	YearOfStudy *int   `json:"year_of_study,omitempty"`
}

// Identity はIdPが発行する認証済みプリンシパルを表す。
// アプリケーションはサインアップ/サインアウト経由でのみ変更する。
type Identity struct {
	ID               string
	Email            string
	Metadata         IdentityMetadata
	EmailConfirmedAt *time.Time
	CreatedAt        time.Time
}

// Session はIdPが発行したログインセッションを表す。
// IDは不透明なセッショントークン。AccessTokenはHS256署名のJWTで、
// クレームのロールは参考情報に過ぎない。
type Session struct {
	ID          string
	IdentityID  string
	AccessToken string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
