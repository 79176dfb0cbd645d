package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/repository"
)

// recentAttendanceLimit は活動フィードに射影する出席記録の最大件数。
const recentAttendanceLimit = 5

// StudentAggregator は学生ダッシュボードのスナップショットを組み立てる。
type StudentAggregator struct {
	studentRepo    repository.StudentRepository
	markRepo       repository.MarkRepository
	attendanceRepo repository.AttendanceRepository
	feeRepo        repository.FeeRepository
	metrics        Metrics
}

// NewStudentAggregator はStudentAggregatorを生成する。
func NewStudentAggregator(
	studentRepo repository.StudentRepository,
	markRepo repository.MarkRepository,
	attendanceRepo repository.AttendanceRepository,
	feeRepo repository.FeeRepository,
	metrics Metrics,
) *StudentAggregator {
	return &StudentAggregator{
		studentRepo:    studentRepo,
		markRepo:       markRepo,
		attendanceRepo: attendanceRepo,
		feeRepo:        feeRepo,
		metrics:        metrics,
	}
}

// Load は指定ユーザーの学生ダッシュボードを組み立てる。
// 出席率はStudentProfileの非正規化値をそのまま信用し、再計算しない。
// 各取得の失敗はログに記録して既定値にし、ビューモデルは常に返す。
func (a *StudentAggregator) Load(ctx context.Context, userID string) *StudentViewModel {
	start := time.Now()
	defer func() {
		a.metrics.RecordDashboardLoad(string(model.RoleStudent), time.Since(start))
	}()

	vm := &StudentViewModel{
		Marks:       []model.Mark{},
		Activity:    []ActivityLine{},
		PendingFees: []model.Fee{},
	}

	student, err := a.studentRepo.FindByUserIDWithUser(ctx, userID)
	if err != nil {
		a.logFetchError("student_profile", userID, err)
	} else if student != nil {
		vm.Profile = &StudentProfileView{
			FullName:          student.FullName,
			Email:             student.Email,
			RollNo:            student.RollNo,
			Department:        student.Department,
			YearOfStudy:       student.YearOfStudy,
			AttendancePercent: student.AttendancePercent,
		}
	}

	// プロフィールが見つからなければ学業記録も引けない
	if student == nil {
		return vm
	}

	if marks, err := a.markRepo.ListByStudent(ctx, student.ID); err != nil {
		a.logFetchError("marks", userID, err)
	} else if marks != nil {
		vm.Marks = marks
	}

	if records, err := a.attendanceRepo.ListRecentByStudent(ctx, student.ID, recentAttendanceLimit); err != nil {
		a.logFetchError("attendance", userID, err)
	} else {
		vm.Activity = projectActivity(records)
	}

	if fees, err := a.feeRepo.ListPendingByStudent(ctx, student.ID); err != nil {
		a.logFetchError("fees", userID, err)
	} else if fees != nil {
		vm.PendingFees = fees
	}

	return vm
}

// projectActivity は出席記録を人間可読な活動フィード行に射影する。
func projectActivity(records []model.AttendanceRecord) []ActivityLine {
	lines := make([]ActivityLine, 0, len(records))
	for _, r := range records {
		lines = append(lines, ActivityLine{
			Date: r.Date,
			Line: fmt.Sprintf("Attendance marked %s on %s", r.Status, r.Date.Format("2006-01-02")),
		})
	}
	return lines
}

func (a *StudentAggregator) logFetchError(query, userID string, err error) {
	a.metrics.RecordStoreQueryError(query)
	slog.Error("student dashboard fetch failed, defaulting field",
		slog.String("query", query),
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
}
