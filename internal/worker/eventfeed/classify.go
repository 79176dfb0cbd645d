package eventfeed

import "time"

// ImportResult はHTTPステータスコードに基づく取込結果の分類。
type ImportResult int

const (
	// ImportResultOK は取込成功（200）。
	ImportResultOK ImportResult = iota
	// ImportResultNotModified はコンテンツ未変更（304）。
	ImportResultNotModified
	// ImportResultStop は取込停止が必要なステータス（404/410/401/403）。
	ImportResultStop
	// ImportResultBackoff はバックオフが必要なステータス（429/5xx）。
	ImportResultBackoff
	// ImportResultUnknown は未知のステータスコード。
	ImportResultUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
	// parseFailureThreshold はパース失敗による取込停止の閾値。
	parseFailureThreshold = 10
)

// ClassifyHTTPStatus はHTTPステータスコードを取込結果に分類する。
func ClassifyHTTPStatus(statusCode int) ImportResult {
	switch {
	case statusCode == 200:
		return ImportResultOK
	case statusCode == 304:
		return ImportResultNotModified
	case statusCode == 404 || statusCode == 410:
		return ImportResultStop
	case statusCode == 401 || statusCode == 403:
		return ImportResultStop
	case statusCode == 429:
		return ImportResultBackoff
	case statusCode >= 500:
		return ImportResultBackoff
	default:
		return ImportResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
