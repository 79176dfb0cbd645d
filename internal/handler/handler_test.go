package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/acadport/internal/middleware"
	"github.com/hitoshi/acadport/internal/model"
)

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// --- 共有モック ---

// mockResolver はRoleResolverInterfaceのモック実装。
type mockResolver struct {
	resolveFn func(ctx context.Context, userID string) (model.Role, error)
}

func (m *mockResolver) Resolve(ctx context.Context, userID string) (model.Role, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, userID)
	}
	return "", nil
}

// mockHandlerMetrics はハンドラーが記録する全メトリクスのスタブ。
type mockHandlerMetrics struct {
	signInResults  []bool
	signUpResults  []bool
	provisionSteps []string
}

func (m *mockHandlerMetrics) RecordSignIn(success bool) {
	m.signInResults = append(m.signInResults, success)
}

func (m *mockHandlerMetrics) RecordSignUp(success bool) {
	m.signUpResults = append(m.signUpResults, success)
}

func (m *mockHandlerMetrics) RecordProvisionStepFailure(step string) {
	m.provisionSteps = append(m.provisionSteps, step)
}

// mockSanitizer は入力をそのまま通すContentSanitizerServiceのスタブ。
// sanitizeTextFnを設定すると挙動を差し替えられる。
type mockSanitizer struct {
	sanitizeTextFn func(raw string) string
	sanitizeHTMLFn func(rawHTML string) string
}

func (m *mockSanitizer) SanitizeText(raw string) string {
	if m.sanitizeTextFn != nil {
		return m.sanitizeTextFn(raw)
	}
	return raw
}

func (m *mockSanitizer) SanitizeHTML(rawHTML string) string {
	if m.sanitizeHTMLFn != nil {
		return m.sanitizeHTMLFn(rawHTML)
	}
	return rawHTML
}

// mockSSRFGuard はSSRFGuardServiceのスタブ。
type mockSSRFGuard struct {
	validateURLFn func(rawURL string) error
}

func (m *mockSSRFGuard) ValidateURL(rawURL string) error {
	if m.validateURLFn != nil {
		return m.validateURLFn(rawURL)
	}
	return nil
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

// mockStudentFinder はStudentProfileFinderのモック実装。
type mockStudentFinder struct {
	findByUserIDFn func(ctx context.Context, userID string) (*model.StudentProfile, error)
}

func (m *mockStudentFinder) FindByUserID(ctx context.Context, userID string) (*model.StudentProfile, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return nil, nil
}

// mockStaffFinder はStaffProfileFinderのモック実装。
type mockStaffFinder struct {
	findByUserIDFn func(ctx context.Context, userID string) (*model.StaffProfile, error)
}

func (m *mockStaffFinder) FindByUserID(ctx context.Context, userID string) (*model.StaffProfile, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return nil, nil
}

// staffFinderReturning は常に指定プロフィールを返すmockStaffFinderを生成する。
func staffFinderReturning(profile *model.StaffProfile) *mockStaffFinder {
	return &mockStaffFinder{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.StaffProfile, error) {
			return profile, nil
		},
	}
}
