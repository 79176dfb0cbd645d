package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/repository"
)

// StaffAggregator は教職員ダッシュボードのスナップショットを組み立てる。
type StaffAggregator struct {
	staffRepo   repository.StaffRepository
	studentRepo repository.StudentRepository
	leaveRepo   repository.LeaveRequestRepository
	eventRepo   repository.EventRepository
	metrics     Metrics
}

// NewStaffAggregator はStaffAggregatorを生成する。
func NewStaffAggregator(
	staffRepo repository.StaffRepository,
	studentRepo repository.StudentRepository,
	leaveRepo repository.LeaveRequestRepository,
	eventRepo repository.EventRepository,
	metrics Metrics,
) *StaffAggregator {
	return &StaffAggregator{
		staffRepo:   staffRepo,
		studentRepo: studentRepo,
		leaveRepo:   leaveRepo,
		eventRepo:   eventRepo,
		metrics:     metrics,
	}
}

// Load は指定ユーザーの教職員ダッシュボードを組み立てる。
// 3つのカウントは並行に取得する。テーブル横断のスナップショット分離は
// ないため、カウント間の多少のずれは許容する。失敗したカウントは
// ログに記録してゼロのままにする。
func (a *StaffAggregator) Load(ctx context.Context, userID string) *StaffViewModel {
	start := time.Now()
	defer func() {
		a.metrics.RecordDashboardLoad(string(model.RoleStaff), time.Since(start))
	}()

	vm := &StaffViewModel{}

	staff, err := a.staffRepo.FindByUserIDWithUser(ctx, userID)
	if err != nil {
		a.logFetchError("staff_profile", err)
	} else if staff != nil {
		vm.Profile = &StaffProfileView{
			FullName:    staff.FullName,
			Email:       staff.Email,
			Department:  staff.Department,
			Designation: staff.Designation,
			Subject:     staff.Subject,
		}
	}

	today := startOfToday()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if count, err := a.studentRepo.Count(ctx); err != nil {
			a.logFetchError("student_count", err)
		} else {
			vm.TotalStudents = count
		}
	}()
	go func() {
		defer wg.Done()
		if count, err := a.leaveRepo.CountByStatus(ctx, model.LeavePending); err != nil {
			a.logFetchError("pending_leave_count", err)
		} else {
			vm.PendingRequests = count
		}
	}()
	go func() {
		defer wg.Done()
		if count, err := a.eventRepo.CountFrom(ctx, today); err != nil {
			a.logFetchError("upcoming_event_count", err)
		} else {
			vm.UpcomingEvents = count
		}
	}()
	wg.Wait()

	return vm
}

// startOfToday は今日の0時(ローカル時刻)を返す。
func startOfToday() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (a *StaffAggregator) logFetchError(query string, err error) {
	a.metrics.RecordStoreQueryError(query)
	slog.Error("staff dashboard fetch failed, defaulting field",
		slog.String("query", query),
		slog.String("error", err.Error()),
	)
}
