package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hitoshi/acadport/internal/model"
)

// defaultRecalcWindowDays は出席率再計算の対象期間（日数）。
const defaultRecalcWindowDays = 180

// StudentPercentUpdater は出席率再計算に必要な学生側インターフェース。
type StudentPercentUpdater interface {
	ListIDs(ctx context.Context) ([]string, error)
	UpdateAttendancePercent(ctx context.Context, studentID string, percent float64) error
}

// AttendanceReader は出席記録の読み取りに必要なインターフェース。
type AttendanceReader interface {
	ListByStudentFrom(ctx context.Context, studentID string, from time.Time) ([]model.AttendanceRecord, error)
}

// HolidayReader は休日の読み取りに必要なインターフェース。
type HolidayReader interface {
	ListFrom(ctx context.Context, from time.Time) ([]model.Holiday, error)
}

// RecalcMetrics は出席率再計算メトリクスの記録に必要なインターフェース。
type RecalcMetrics interface {
	RecordAttendanceRecalc(studentCount int)
}

// AttendanceRecalcJob は非正規化された出席率の夜間再計算ジョブ。
// 直近の対象期間の出席記録から出席率を計算し、studentsテーブルに書き戻す。
// 休日に記録された行は分母から除外する。遅刻は出席として数える。
// ダッシュボードは常に書き戻された値を読むだけで、リクエスト時には再計算しない。
type AttendanceRecalcJob struct {
	students   StudentPercentUpdater
	attendance AttendanceReader
	holidays   HolidayReader
	metrics    RecalcMetrics
	logger     *slog.Logger
	WindowDays int // 再計算の対象期間（デフォルト: 180日）
}

// NewAttendanceRecalcJob は新しいAttendanceRecalcJobを生成する。
func NewAttendanceRecalcJob(
	students StudentPercentUpdater,
	attendance AttendanceReader,
	holidays HolidayReader,
	metrics RecalcMetrics,
	logger *slog.Logger,
) *AttendanceRecalcJob {
	return &AttendanceRecalcJob{
		students:   students,
		attendance: attendance,
		holidays:   holidays,
		metrics:    metrics,
		logger:     logger,
		WindowDays: defaultRecalcWindowDays,
	}
}

// Run は全学生の出席率を再計算する。
// 個別の学生の失敗はログに記録して続行し、残りの学生の計算を妨げない。
// 冪等: 同じ入力に対して何度実行しても同じ結果になる。
func (j *AttendanceRecalcJob) Run(ctx context.Context) error {
	start := time.Now()
	from := time.Now().AddDate(0, 0, -j.WindowDays)

	studentIDs, err := j.students.ListIDs(ctx)
	if err != nil {
		j.logger.Error("学生一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("学生一覧の取得に失敗: %w", err)
	}

	holidays, err := j.holidays.ListFrom(ctx, from)
	if err != nil {
		j.logger.Error("休日一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("休日一覧の取得に失敗: %w", err)
	}
	holidaySet := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		holidaySet[h.Date.Format("2006-01-02")] = struct{}{}
	}

	updated := 0
	failed := 0
	for _, studentID := range studentIDs {
		records, err := j.attendance.ListByStudentFrom(ctx, studentID, from)
		if err != nil {
			j.logger.Error("出席記録の取得に失敗しました",
				slog.String("student_id", studentID),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}

		percent, ok := CalculateAttendancePercent(records, holidaySet)
		if !ok {
			// 対象期間に記録がない学生は更新しない
			continue
		}

		if err := j.students.UpdateAttendancePercent(ctx, studentID, percent); err != nil {
			j.logger.Error("出席率の更新に失敗しました",
				slog.String("student_id", studentID),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}
		updated++
	}

	j.metrics.RecordAttendanceRecalc(updated)

	duration := time.Since(start)
	j.logger.Info("出席率再計算ジョブが完了しました",
		slog.Int("students_total", len(studentIDs)),
		slog.Int("students_updated", updated),
		slog.Int("students_failed", failed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// CalculateAttendancePercent は出席記録から出席率（0-100）を計算する。
// 休日に記録された行は分母から除外し、遅刻は出席として数える。
// 有効な記録が1件もない場合はfalseを返す。
func CalculateAttendancePercent(records []model.AttendanceRecord, holidaySet map[string]struct{}) (float64, bool) {
	total := 0
	attended := 0
	for _, record := range records {
		if _, isHoliday := holidaySet[record.Date.Format("2006-01-02")]; isHoliday {
			continue
		}
		total++
		if record.Status == model.AttendancePresent || record.Status == model.AttendanceLate {
			attended++
		}
	}

	if total == 0 {
		return 0, false
	}

	percent := float64(attended) / float64(total) * 100
	// 小数第2位に丸める
	return math.Round(percent*100) / 100, true
}
