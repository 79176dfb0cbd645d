// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, provision, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeEmailUnconfirmed     = "EMAIL_UNCONFIRMED"
	ErrCodeSessionNotFound      = "SESSION_NOT_FOUND"
	ErrCodeRoleNotAssigned      = "ROLE_NOT_ASSIGNED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeInvalidURL           = "INVALID_URL"
	ErrCodeSSRFBlocked          = "SSRF_BLOCKED"
	ErrCodeProvisionFailed      = "PROVISION_FAILED"
	ErrCodeStudentNotFound      = "STUDENT_NOT_FOUND"
	ErrCodeStaffNotFound        = "STAFF_NOT_FOUND"
	ErrCodeLeaveNotFound        = "LEAVE_NOT_FOUND"
	ErrCodeLeaveAlreadyReviewed = "LEAVE_ALREADY_REVIEWED"
)

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// メールアドレスの存在有無を推測させないため、詳細は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、サインインしてください。",
	}
}

// NewEmailUnconfirmedError はメール未確認エラーを生成する。
func NewEmailUnconfirmedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailUnconfirmed,
		Message:  "メールアドレスの確認が完了していません。",
		Category: "auth",
		Action:   "確認メールのリンクを開いてから再度サインインしてください。",
	}
}

// NewSessionNotFoundError はセッション未検出エラーを生成する。
func NewSessionNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  "セッションが見つからないか、期限切れです。",
		Category: "auth",
		Action:   "サインインし直してください。",
	}
}

// NewRoleNotAssignedError はロール未割当エラーを生成する。
// サインアップ直後の従属行作成前は正常な過渡状態として発生しうる。
func NewRoleNotAssignedError() *APIError {
	return &APIError{
		Code:     ErrCodeRoleNotAssigned,
		Message:  "ユーザーにロールが割り当てられていません。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。解決しない場合は管理者に連絡してください。",
	}
}

// NewForbiddenError はロール不一致による拒否エラーを生成する。
func NewForbiddenError(required Role) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作には %s ロールが必要です。", required),
		Category: "auth",
		Action:   "適切なロールを持つアカウントでサインインしてください。",
	}
}

// NewValidationFailedError は入力検証エラーを生成する。
func NewValidationFailedError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", detail),
		Category: "validation",
		Action:   "入力内容を修正して再度お試しください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewProvisionFailedError はアカウントプロビジョニング失敗エラーを生成する。
// どのステップで失敗したかをメッセージに含める。
func NewProvisionFailedError(step string) *APIError {
	return &APIError{
		Code:     ErrCodeProvisionFailed,
		Message:  fmt.Sprintf("スタッフアカウントの作成に失敗しました（ステップ: %s）。", step),
		Category: "provision",
		Action:   "完了済みのステップはロールバックされません。状態を確認してから再実行してください。",
	}
}

// NewStudentNotFoundError は学生プロフィール未検出エラーを生成する。
func NewStudentNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeStudentNotFound,
		Message:  "学生プロフィールが見つかりません。",
		Category: "validation",
		Action:   "学生として登録されたアカウントでサインインしてください。",
	}
}

// NewStaffNotFoundError は教職員プロフィール未検出エラーを生成する。
func NewStaffNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeStaffNotFound,
		Message:  "教職員プロフィールが見つかりません。",
		Category: "validation",
		Action:   "教職員として登録されたアカウントでサインインしてください。",
	}
}

// NewLeaveNotFoundError は休暇申請未検出エラーを生成する。
func NewLeaveNotFoundError(leaveID string) *APIError {
	return &APIError{
		Code:     ErrCodeLeaveNotFound,
		Message:  fmt.Sprintf("指定された休暇申請が見つかりません: %s", leaveID),
		Category: "validation",
		Action:   "申請IDを確認してください。",
	}
}

// NewLeaveAlreadyReviewedError は審査済み申請への再審査エラーを生成する。
func NewLeaveAlreadyReviewedError() *APIError {
	return &APIError{
		Code:     ErrCodeLeaveAlreadyReviewed,
		Message:  "この申請は既に審査済みです。",
		Category: "validation",
		Action:   "現在の申請状態を確認してください。",
	}
}
