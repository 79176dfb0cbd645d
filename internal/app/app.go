package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/acadport/internal/config"
	"github.com/hitoshi/acadport/internal/dashboard"
	"github.com/hitoshi/acadport/internal/database"
	"github.com/hitoshi/acadport/internal/handler"
	"github.com/hitoshi/acadport/internal/identity"
	"github.com/hitoshi/acadport/internal/logger"
	"github.com/hitoshi/acadport/internal/metrics"
	"github.com/hitoshi/acadport/internal/middleware"
	"github.com/hitoshi/acadport/internal/provision"
	"github.com/hitoshi/acadport/internal/repository"
	"github.com/hitoshi/acadport/internal/role"
	"github.com/hitoshi/acadport/internal/security"
	"github.com/hitoshi/acadport/internal/session"
	"github.com/hitoshi/acadport/internal/worker/eventfeed"
	"github.com/hitoshi/acadport/internal/worker/maintenance"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	roleRepo := repository.NewPostgresRoleRepo(db)
	studentRepo := repository.NewPostgresStudentRepo(db)
	staffRepo := repository.NewPostgresStaffRepo(db)
	attendanceRepo := repository.NewPostgresAttendanceRepo(db)
	markRepo := repository.NewPostgresMarkRepo(db)
	leaveRepo := repository.NewPostgresLeaveRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)
	feeRepo := repository.NewPostgresFeeRepo(db)

	// 3. セキュリティサービスとメトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. IdPゲートウェイとドメインサービスの初期化
	gateway := identity.NewLocalGateway(identRepo, sessionRepo, identity.LocalConfig{
		JWTSecret:      cfg.JWTSecret,
		JWTIssuer:      cfg.JWTIssuer,
		AccessTokenTTL: cfg.AccessTokenTTL,
		SessionMaxAge:  cfg.SessionMaxAge,
		BcryptCost:     cfg.BcryptCost,
	})

	resolver := role.NewResolver(roleRepo)
	manager := session.NewManager(gateway, userRepo, roleRepo, studentRepo, resolver)
	manager.Start(context.Background(), "")
	defer manager.Close()

	provisioner := provision.NewProvisioner(gateway, userRepo, staffRepo)

	studentAgg := dashboard.NewStudentAggregator(studentRepo, markRepo, attendanceRepo, feeRepo, collector)
	staffAgg := dashboard.NewStaffAggregator(staffRepo, studentRepo, leaveRepo, eventRepo, collector)
	adminAgg := dashboard.NewAdminAggregator(studentRepo, staffRepo, eventRepo, leaveRepo, collector)

	// 5. レート制限の構成（configはreq/min単位なのでreq/secに変換する）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.AuthRate = rate.Limit(float64(cfg.RateLimitSignup) / 60.0)
	rateLimiterCfg.AuthBurst = cfg.RateLimitSignup
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		HealthChecker:     db,
		SessionReader:     gateway,
		TokenParser:       gateway,
		RoleRequirer:      resolver,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		AuthFlow: manager,
		Gateway:  gateway,
		Resolver: resolver,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		StudentDashboard: studentAgg,
		StaffDashboard:   staffAgg,
		AdminDashboard:   adminAgg,

		LeaveStore: leaveRepo,
		Students:   studentRepo,
		Staff:      staffRepo,
		Sanitizer:  sanitizer,
		SSRFGuard:  ssrfGuard,

		AttendanceStore: attendanceRepo,
		MarkStore:       markRepo,
		EventStore:      eventRepo,

		Provisioner: provisioner,

		Metrics:         collector,
		MetricsGatherer: registry,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// カレンダーフィード取込、期限切れセッションの掃除、出席率の夜間再計算を実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	studentRepo := repository.NewPostgresStudentRepo(db)
	attendanceRepo := repository.NewPostgresAttendanceRepo(db)
	holidayRepo := repository.NewPostgresHolidayRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)

	// 3. セキュリティサービスとメトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ジョブの初期化
	cleanupJob := maintenance.NewSessionCleanupJob(sessionRepo, collector, slog.Default())
	recalcJob := maintenance.NewAttendanceRecalcJob(
		studentRepo, attendanceRepo, holidayRepo, collector, slog.Default(),
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("recalc_interval", cfg.AttendanceRecalcInterval),
		slog.String("events_feed_url", cfg.EventsFeedURL),
	)

	// カレンダーフィード取込をバックグラウンドで起動（URL未設定の場合は無効）
	if cfg.EventsFeedURL != "" {
		importer := eventfeed.NewImporter(
			eventRepo, ssrfGuard, sanitizer, collector,
			slog.Default(), cfg.EventsFeedURL, cfg.FetchTimeout, cfg.FetchMaxSize,
		)
		go importer.Start(ctx, cfg.EventsFeedInterval)
	}

	// セッションクリーンアップを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("session cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("session cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 出席率再計算をメインgoroutineで実行（ブロッキング）
	if err := recalcJob.Run(ctx); err != nil {
		slog.Error("attendance recalc job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(cfg.AttendanceRecalcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped gracefully")
			return nil
		case <-ticker.C:
			if err := recalcJob.Run(ctx); err != nil {
				slog.Error("attendance recalc job failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
