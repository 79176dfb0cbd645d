package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/repository"
)

// AdminAggregator は管理者ダッシュボードのスナップショットを組み立てる。
type AdminAggregator struct {
	studentRepo repository.StudentRepository
	staffRepo   repository.StaffRepository
	eventRepo   repository.EventRepository
	leaveRepo   repository.LeaveRequestRepository
	metrics     Metrics
}

// NewAdminAggregator はAdminAggregatorを生成する。
func NewAdminAggregator(
	studentRepo repository.StudentRepository,
	staffRepo repository.StaffRepository,
	eventRepo repository.EventRepository,
	leaveRepo repository.LeaveRequestRepository,
	metrics Metrics,
) *AdminAggregator {
	return &AdminAggregator{
		studentRepo: studentRepo,
		staffRepo:   staffRepo,
		eventRepo:   eventRepo,
		leaveRepo:   leaveRepo,
		metrics:     metrics,
	}
}

// Load は管理者ダッシュボードを組み立てる。
// 4つのカウントと教職員名簿を並行に取得する。各読み取りは独立しており、
// 1つの失敗が他を中断することはない。失敗したカウントはゼロ、名簿は
// 空のままログに記録される。
func (a *AdminAggregator) Load(ctx context.Context) *AdminViewModel {
	start := time.Now()
	defer func() {
		a.metrics.RecordDashboardLoad(string(model.RoleAdmin), time.Since(start))
	}()

	vm := &AdminViewModel{StaffRoster: []StaffRosterEntry{}}

	var wg sync.WaitGroup
	wg.Add(5)
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
		if count, err := a.staffRepo.Count(ctx); err != nil {
			a.logFetchError("staff_count", err)
		} else {
			vm.TotalStaff = count
		}
	}()
	go func() {
		defer wg.Done()
		if count, err := a.eventRepo.CountAll(ctx); err != nil {
			a.logFetchError("event_count", err)
		} else {
			vm.TotalEvents = count
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
		roster, err := a.staffRepo.ListWithUsers(ctx)
		if err != nil {
			a.logFetchError("staff_roster", err)
			return
		}
		entries := make([]StaffRosterEntry, 0, len(roster))
		for _, s := range roster {
			entries = append(entries, StaffRosterEntry{
				UserID:      s.UserID,
				FullName:    s.FullName,
				Email:       s.Email,
				Department:  s.Department,
				Designation: s.Designation,
				Subject:     s.Subject,
			})
		}
		vm.StaffRoster = entries
	}()
	wg.Wait()

	return vm
}

func (a *AdminAggregator) logFetchError(query string, err error) {
	a.metrics.RecordStoreQueryError(query)
	slog.Error("admin dashboard fetch failed, defaulting field",
		slog.String("query", query),
		slog.String("error", err.Error()),
	)
}
