// Package eventfeed は学内カレンダーフィードの定期取込を提供する。
// 機関が公開するRSS/Atomフィードをフェッチし、external_refを重複排除キーとして
// eventsテーブルへ冪等にUPSERTする。
package eventfeed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/acadport/internal/model"
)

// EventUpserter は外部フィード由来イベントのUPSERT処理のインターフェース。
type EventUpserter interface {
	UpsertExternal(ctx context.Context, event *model.Event) (bool, error)
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Sanitizer は取込コンテンツのサニタイズに必要なインターフェース。
type Sanitizer interface {
	SanitizeText(raw string) string
	SanitizeHTML(rawHTML string) string
}

// Metrics は取込メトリクスの記録に必要なインターフェース。
type Metrics interface {
	RecordEventsImported(count int)
	RecordFeedImportFailure(reason string)
}

// Importer は単一のカレンダーフィードのフェッチとイベント取込を行う。
// ETag/Last-Modifiedを使用した条件付きGET、SSRF検証、gofeedによるパース、
// external_refによる冪等なUPSERTを実行する。
//
// フェッチ状態（条件付きGETヘッダー、バックオフ、停止フラグ）はメモリ上に保持し、
// RunはStartのティッカーループからのみ呼ばれる前提で排他制御を行わない。
type Importer struct {
	events      EventUpserter
	ssrfGuard   SSRFValidator
	sanitizer   Sanitizer
	metrics     Metrics
	logger      *slog.Logger
	feedURL     string
	timeout     time.Duration
	maxBodySize int64

	etag              string
	lastModified      string
	consecutiveErrors int
	nextAttemptAt     time.Time
	stopped           bool
	stopReason        string
}

// NewImporter はImporterの新しいインスタンスを生成する。
func NewImporter(
	events EventUpserter,
	ssrfGuard SSRFValidator,
	sanitizer Sanitizer,
	metrics Metrics,
	logger *slog.Logger,
	feedURL string,
	timeout time.Duration,
	maxBodySize int64,
) *Importer {
	return &Importer{
		events:      events,
		ssrfGuard:   ssrfGuard,
		sanitizer:   sanitizer,
		metrics:     metrics,
		logger:      logger,
		feedURL:     feedURL,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Stopped は取込が恒久的に停止されているかを返す。
func (im *Importer) Stopped() bool {
	return im.stopped
}

// Start は指定間隔のティッカーで取込ループを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (im *Importer) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	im.logger.Info("カレンダーフィード取込を開始しました",
		slog.String("feed_url", im.feedURL),
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := im.Run(ctx); err != nil {
		im.logger.Error("フィード取込の実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			im.logger.Info("カレンダーフィード取込を停止しました")
			return
		case <-ticker.C:
			if err := im.Run(ctx); err != nil {
				im.logger.Error("フィード取込の実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Run はフィードを1回フェッチし、イベントをUPSERTする。
// 停止済みまたはバックオフ期間中の場合は何もせずに戻る。
func (im *Importer) Run(ctx context.Context) error {
	if im.stopped {
		return nil
	}
	if time.Now().Before(im.nextAttemptAt) {
		return nil
	}

	start := time.Now()

	// SSRF検証
	if err := im.ssrfGuard.ValidateURL(im.feedURL); err != nil {
		im.logger.Error("SSRF検証に失敗しました",
			slog.String("feed_url", im.feedURL),
			slog.String("error", err.Error()),
		)
		im.applyStop(fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
		im.metrics.RecordFeedImportFailure("ssrf_blocked")
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	// HTTPリクエスト構築
	client := im.ssrfGuard.NewSafeClient(im.timeout, im.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, im.feedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	req.Header.Set("User-Agent", "Acadport/1.0 Calendar Importer")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	// 条件付きGET: ETag
	if im.etag != "" {
		req.Header.Set("If-None-Match", im.etag)
	}
	// 条件付きGET: Last-Modified
	if im.lastModified != "" {
		req.Header.Set("If-Modified-Since", im.lastModified)
	}

	// HTTPリクエスト実行
	resp, err := client.Do(req)
	if err != nil {
		im.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_url", im.feedURL),
			slog.String("error", err.Error()),
		)
		im.applyBackoff()
		im.metrics.RecordFeedImportFailure("http_request")
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	// HTTPステータスに基づく処理分岐
	result := ClassifyHTTPStatus(resp.StatusCode)

	switch result {
	case ImportResultNotModified:
		// 304: コンテンツ未変更
		im.logger.Info("カレンダーフィードは未変更です（304）",
			slog.String("feed_url", im.feedURL),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		im.applySuccess()
		return nil

	case ImportResultStop:
		// 404/410/401/403: 取込停止
		reason := fmt.Sprintf("HTTPステータス %d により取込を停止しました", resp.StatusCode)
		im.logger.Warn("カレンダーフィード取込を停止します",
			slog.String("feed_url", im.feedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		im.applyStop(reason)
		im.metrics.RecordFeedImportFailure("http_status")
		return nil

	case ImportResultBackoff, ImportResultUnknown:
		// 429/5xx/未知: バックオフ
		im.logger.Warn("カレンダーフィード取込にバックオフを適用します",
			slog.String("feed_url", im.feedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", im.consecutiveErrors+1),
		)
		im.applyBackoff()
		im.metrics.RecordFeedImportFailure("http_status")
		return nil

	case ImportResultOK:
		// 200: 正常フェッチ - 以下で処理を続行
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, im.maxBodySize))
	if err != nil {
		im.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("feed_url", im.feedURL),
			slog.String("error", err.Error()),
		)
		im.applyBackoff()
		im.metrics.RecordFeedImportFailure("read_body")
		return nil
	}

	// ETag/Last-Modifiedを保存
	if etag := resp.Header.Get("ETag"); etag != "" {
		im.etag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		im.lastModified = lastMod
	}

	// gofeedでフィードをパース
	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		im.logger.Error("フィードのパースに失敗しました",
			slog.String("feed_url", im.feedURL),
			slog.String("error", err.Error()),
		)
		im.applyParseFailure(err.Error())
		im.metrics.RecordFeedImportFailure("parse")
		return nil
	}

	events := im.convertFeedItems(parsedFeed.Items)

	inserted := 0
	failed := 0
	for i := range events {
		isNew, err := im.events.UpsertExternal(ctx, &events[i])
		if err != nil {
			im.logger.Error("イベントのUPSERTに失敗しました",
				slog.String("external_ref", events[i].ExternalRef),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}
		if isNew {
			inserted++
		}
	}

	im.applySuccess()
	im.metrics.RecordEventsImported(inserted)

	im.logger.Info("カレンダーフィード取込が完了しました",
		slog.String("feed_url", im.feedURL),
		slog.Int("items_total", len(parsedFeed.Items)),
		slog.Int("events_inserted", inserted),
		slog.Int("events_failed", failed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// applyStop は取込を恒久的に停止する。
func (im *Importer) applyStop(reason string) {
	im.stopped = true
	im.stopReason = reason
}

// applyBackoff は連続エラー回数をインクリメントし、指数バックオフで次回試行時刻を設定する。
func (im *Importer) applyBackoff() {
	im.consecutiveErrors++
	im.nextAttemptAt = time.Now().Add(CalculateBackoff(im.consecutiveErrors - 1))
}

// applySuccess は取込成功時に連続エラー回数とバックオフをリセットする。
func (im *Importer) applySuccess() {
	im.consecutiveErrors = 0
	im.nextAttemptAt = time.Time{}
}

// applyParseFailure はパース失敗回数をインクリメントし、閾値に達した場合は取込を停止する。
func (im *Importer) applyParseFailure(reason string) {
	im.consecutiveErrors++
	if im.consecutiveErrors >= parseFailureThreshold {
		im.applyStop(fmt.Sprintf("パース失敗が%d回連続したため取込を停止しました: %s", im.consecutiveErrors, reason))
	}
}

// convertFeedItems はgofeedの記事をイベントに変換する。
// 日付を持たない記事と重複排除キーを持たない記事はスキップする。
func (im *Importer) convertFeedItems(items []*gofeed.Item) []model.Event {
	events := make([]model.Event, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		// イベント日付: 公開日時、なければ更新日時
		var eventDate *time.Time
		if item.PublishedParsed != nil {
			eventDate = item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			eventDate = item.UpdatedParsed
		}
		if eventDate == nil {
			im.logger.Warn("日付のない記事をスキップします",
				slog.String("title", item.Title),
			)
			continue
		}

		// 重複排除キー: GUID、なければリンク
		externalRef := item.GUID
		if externalRef == "" {
			externalRef = item.Link
		}
		if externalRef == "" {
			im.logger.Warn("重複排除キーのない記事をスキップします",
				slog.String("title", item.Title),
			)
			continue
		}

		description := item.Content
		if description == "" {
			description = item.Description
		}

		d := *eventDate
		events = append(events, model.Event{
			ID:          uuid.New().String(),
			Name:        im.sanitizer.SanitizeText(item.Title),
			Description: im.sanitizer.SanitizeHTML(description),
			Date:        time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
			ExternalRef: externalRef,
			CreatedAt:   time.Now(),
		})
	}

	return events
}
