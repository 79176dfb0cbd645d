package repository

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// ErrLeaveAlreadyReviewed は審査待ちでない休暇申請への審査更新を表す。
// UpdateReviewの状態ガードが0件更新を検出した場合に返される。
var ErrLeaveAlreadyReviewed = errors.New("leave request is not pending")

// IsUniqueViolation はエラーが一意制約違反によるものかを返す。
// メールアドレス重複や学籍番号重複の判定に使用する。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
