// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、アグリゲータ、ワーカーから利用する。
type MetricsCollector interface {
	RecordSignIn(success bool)
	RecordSignUp(success bool)
	RecordDashboardLoad(role string, duration time.Duration)
	RecordStoreQueryError(query string)
	RecordProvisionStepFailure(step string)
	RecordEventsImported(count int)
	RecordFeedImportFailure(reason string)
	RecordSessionsCleaned(count int64)
	RecordAttendanceRecalc(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn           *prometheus.CounterVec
	signUp           *prometheus.CounterVec
	dashboardLoad    *prometheus.HistogramVec
	storeQueryErrors *prometheus.CounterVec
	provisionFail    *prometheus.CounterVec
	eventsImported   prometheus.Counter
	feedImportFail   *prometheus.CounterVec
	sessionsCleaned  prometheus.Counter
	attendanceRecalc prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acadport_signin_total",
			Help: "サインイン試行の合計数（成否別）",
		}, []string{"result"}),
		signUp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acadport_signup_total",
			Help: "サインアップ試行の合計数（成否別）",
		}, []string{"result"}),
		dashboardLoad: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "acadport_dashboard_load_seconds",
			Help:    "ダッシュボード組み立ての所要時間（秒、ロール別）",
			Buckets: prometheus.DefBuckets,
		}, []string{"role"}),
		storeQueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acadport_store_query_errors_total",
			Help: "既定値にフォールバックしたストア読み取り失敗の合計数",
		}, []string{"query"}),
		provisionFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acadport_provision_step_failures_total",
			Help: "プロビジョニングのステップ別失敗数",
		}, []string{"step"}),
		eventsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "acadport_events_imported_total",
			Help: "外部フィードから取り込まれたイベントの合計数",
		}),
		feedImportFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acadport_feed_import_failures_total",
			Help: "イベントフィード取り込み失敗の合計数（理由別）",
		}, []string{"reason"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "acadport_sessions_cleaned_total",
			Help: "削除された期限切れセッションの合計数",
		}),
		attendanceRecalc: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "acadport_attendance_recalc_total",
			Help: "出席率を再計算した学生数の合計",
		}),
	}

	reg.MustRegister(
		c.signIn,
		c.signUp,
		c.dashboardLoad,
		c.storeQueryErrors,
		c.provisionFail,
		c.eventsImported,
		c.feedImportFail,
		c.sessionsCleaned,
		c.attendanceRecalc,
	)

	return c
}

// RecordSignIn はサインイン試行を記録する。
func (c *Collector) RecordSignIn(success bool) {
	c.signIn.WithLabelValues(resultLabel(success)).Inc()
}

// RecordSignUp はサインアップ試行を記録する。
func (c *Collector) RecordSignUp(success bool) {
	c.signUp.WithLabelValues(resultLabel(success)).Inc()
}

// RecordDashboardLoad はダッシュボード組み立ての所要時間を記録する。
func (c *Collector) RecordDashboardLoad(role string, duration time.Duration) {
	c.dashboardLoad.WithLabelValues(role).Observe(duration.Seconds())
}

// RecordStoreQueryError はストア読み取りの失敗を記録する。
func (c *Collector) RecordStoreQueryError(query string) {
	c.storeQueryErrors.WithLabelValues(query).Inc()
}

// RecordProvisionStepFailure はプロビジョニングのステップ失敗を記録する。
func (c *Collector) RecordProvisionStepFailure(step string) {
	c.provisionFail.WithLabelValues(step).Inc()
}

// RecordEventsImported は取り込まれたイベント数を記録する。
func (c *Collector) RecordEventsImported(count int) {
	c.eventsImported.Add(float64(count))
}

// RecordFeedImportFailure はフィード取り込み失敗を記録する。
func (c *Collector) RecordFeedImportFailure(reason string) {
	c.feedImportFail.WithLabelValues(reason).Inc()
}

// RecordSessionsCleaned は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// RecordAttendanceRecalc は出席率を再計算した学生数を記録する。
func (c *Collector) RecordAttendanceRecalc(count int) {
	c.attendanceRecalc.Add(float64(count))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
