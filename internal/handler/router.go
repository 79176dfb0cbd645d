package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/acadport/internal/metrics"
	"github.com/hitoshi/acadport/internal/middleware"
	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionReader     middleware.SessionReader
	TokenParser       middleware.TokenParser
	RoleRequirer      middleware.RoleRequirer
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 認証
	AuthFlow   AuthFlowInterface
	Gateway    SessionGateway
	Resolver   RoleResolverInterface
	AuthConfig AuthHandlerConfig

	// ダッシュボード
	StudentDashboard StudentDashboardLoader
	StaffDashboard   StaffDashboardLoader
	AdminDashboard   AdminDashboardLoader

	// 休暇申請
	LeaveStore LeaveStore
	Students   StudentProfileFinder
	Staff      StaffProfileFinder
	Sanitizer  security.ContentSanitizerService
	SSRFGuard  security.SSRFGuardService

	// 出席・成績
	AttendanceStore AttendanceStore
	MarkStore       MarkStore

	// イベント
	EventStore EventStore

	// プロビジョニング
	Provisioner StaffProvisioner

	// メトリクス
	Metrics         RouterMetrics
	MetricsGatherer prometheus.Gatherer
}

// RouterMetrics はルーター配下のハンドラーが記録するメトリクスの集合。
type RouterMetrics interface {
	AuthMetrics
	ProvisionMetrics
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → RateLimit(General) → CSRF → RequireRole
//
// 認証ルート（/auth/*）はセッションミドルウェアの外に配置し、
// サインアップ/サインインにはIP単位のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthFlow, deps.Gateway, deps.Resolver, deps.Metrics, deps.AuthConfig)
	dashboardHandler := NewDashboardHandler(deps.StudentDashboard, deps.StaffDashboard, deps.AdminDashboard)
	leaveHandler := NewLeaveHandler(deps.LeaveStore, deps.Students, deps.Staff, deps.Resolver, deps.Sanitizer, deps.SSRFGuard)
	academicHandler := NewAcademicHandler(deps.AttendanceStore, deps.MarkStore, deps.Staff)
	eventHandler := NewEventHandler(deps.EventStore, deps.Sanitizer, deps.Staff)
	provisionHandler := NewProvisionHandler(deps.Provisioner, deps.Metrics)

	requireStudent := middleware.NewRequireRoleMiddleware(deps.RoleRequirer, model.RoleStudent)
	requireStaff := middleware.NewRequireRoleMiddleware(deps.RoleRequirer, model.RoleStaff)
	requireAdmin := middleware.NewRequireRoleMiddleware(deps.RoleRequirer, model.RoleAdmin)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))

	// CSRFトークン取得エンドポイント（フロントエンドが最初に呼び出す）
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		// サインアップ/サインインにはIP単位のレート制限を適用
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/signup", authHandler.SignUp)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/signin", authHandler.SignIn)
		r.Post("/signout", authHandler.SignOut)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	// セッション検証をCSRF検証より先に実行する（未認証は401を返す）
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionReader, deps.TokenParser))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// ロール別ダッシュボード
		r.Route("/api/dashboard", func(r chi.Router) {
			r.With(requireStudent).Get("/student", dashboardHandler.Student)
			r.With(requireStaff).Get("/staff", dashboardHandler.Staff)
			r.With(requireAdmin).Get("/admin", dashboardHandler.Admin)
		})

		// 休暇申請
		r.Route("/api/leave", func(r chi.Router) {
			r.With(requireStudent).Post("/", leaveHandler.Submit)
			r.Get("/", leaveHandler.List)
			r.With(requireStaff).Patch("/{id}", leaveHandler.Review)
		})

		// 出席・成績（教職員のみ）
		r.With(requireStaff).Post("/api/attendance", academicHandler.MarkAttendance)
		r.With(requireStaff).Post("/api/marks", academicHandler.RecordMark)

		// 学内イベント
		r.Route("/api/events", func(r chi.Router) {
			r.Get("/", eventHandler.List)
			r.With(requireStaff).Post("/", eventHandler.Create)
		})

		// 管理者によるアカウント作成
		r.With(requireAdmin).Post("/api/admin/staff", provisionHandler.ProvisionStaff)
	})

	return r
}
