package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/repository"
)

// --- モック定義 ---

type mockIdentityRepo struct {
	mu          sync.Mutex
	createFn    func(ctx context.Context, identity *model.Identity, passwordHash string) error
	findByEmail func(ctx context.Context, email string) (*model.Identity, string, error)
	findByID    func(ctx context.Context, id string) (*model.Identity, error)
}

func (m *mockIdentityRepo) Create(ctx context.Context, identity *model.Identity, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createFn != nil {
		return m.createFn(ctx, identity, passwordHash)
	}
	return nil
}

func (m *mockIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.Identity, string, error) {
	if m.findByEmail != nil {
		return m.findByEmail(ctx, email)
	}
	return nil, "", nil
}

func (m *mockIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	if m.findByID != nil {
		return m.findByID(ctx, id)
	}
	return nil, nil
}

type mockSessionRepo struct {
	createFn      func(ctx context.Context, session *model.Session) error
	findByIDFn    func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn  func(ctx context.Context, id string) error
	deleteExpired func(ctx context.Context) (int64, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	if m.deleteExpired != nil {
		return m.deleteExpired(ctx)
	}
	return 0, nil
}

// --- compile-time interface checks ---
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)

func testConfig() LocalConfig {
	return LocalConfig{
		JWTSecret:      "test-secret",
		JWTIssuer:      "acadport-test",
		AccessTokenTTL: time.Hour,
		SessionMaxAge:  3600,
		BcryptCost:     bcrypt.MinCost,
	}
}

// --- テスト ---

// サインアップが成功するとセッションとIdentityが返り、SIGNED_INイベントが届くことを検証
func TestLocalGateway_SignUp_IssuesSessionAndPublishesEvent(t *testing.T) {
	var savedHash string
	identRepo := &mockIdentityRepo{
		createFn: func(_ context.Context, _ *model.Identity, passwordHash string) error {
			savedHash = passwordHash
			return nil
		},
	}
	gw := NewLocalGateway(identRepo, &mockSessionRepo{}, testConfig())

	var events []AuthEvent
	unsubscribe := gw.Subscribe(func(e AuthEvent) {
		events = append(events, e)
	})
	defer unsubscribe()

	session, identity, err := gw.SignUp(context.Background(), "student@example.edu", "pass123",
		model.IdentityMetadata{FullName: "Taro Yamada", Role: "student", RollNo: "CS2023-001"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if session == nil || identity == nil {
		t.Fatal("expected session and identity")
	}
	if session.IdentityID != identity.ID {
		t.Errorf("session.IdentityID = %q, want %q", session.IdentityID, identity.ID)
	}
	if session.AccessToken == "" {
		t.Error("expected non-empty access token")
	}

	// 生パスワードが保存されていないこと
	if savedHash == "pass123" || savedHash == "" {
		t.Error("expected bcrypt hash, not raw password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(savedHash), []byte("pass123")); err != nil {
		t.Errorf("saved hash does not match password: %v", err)
	}

	if len(events) != 1 || events[0].Type != EventSignedIn {
		t.Fatalf("expected one SIGNED_IN event, got %+v", events)
	}
	if events[0].Identity.Email != "student@example.edu" {
		t.Errorf("event identity email = %q", events[0].Identity.Email)
	}
}

// メールアドレス重複時にEMAIL_TAKENエラーが返ることを検証
func TestLocalGateway_SignUp_DuplicateEmail(t *testing.T) {
	identRepo := &mockIdentityRepo{
		createFn: func(_ context.Context, _ *model.Identity, _ string) error {
			return &pq.Error{Code: "23505"}
		},
	}
	gw := NewLocalGateway(identRepo, &mockSessionRepo{}, testConfig())

	_, _, err := gw.SignUp(context.Background(), "taken@example.edu", "pass123", model.IdentityMetadata{})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailTaken {
		t.Fatalf("expected EMAIL_TAKEN, got %v", err)
	}
}

// パスワード誤りと未登録メールで同じエラーが返ることを検証
func TestLocalGateway_SignIn_InvalidCredentials(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	confirmed := time.Now()
	identRepo := &mockIdentityRepo{
		findByEmail: func(_ context.Context, email string) (*model.Identity, string, error) {
			if email == "known@example.edu" {
				return &model.Identity{ID: "ident-1", Email: email, EmailConfirmedAt: &confirmed}, string(hash), nil
			}
			return nil, "", nil
		},
	}
	gw := NewLocalGateway(identRepo, &mockSessionRepo{}, testConfig())

	for _, tc := range []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "known@example.edu", "wrong"},
		{"unknown email", "unknown@example.edu", "correct"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := gw.SignInWithPassword(context.Background(), tc.email, tc.password)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCredentials {
				t.Fatalf("expected INVALID_CREDENTIALS, got %v", err)
			}
		})
	}
}

// 正しい資格情報でセッションが発行されることを検証
func TestLocalGateway_SignIn_Success(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	confirmed := time.Now()
	identRepo := &mockIdentityRepo{
		findByEmail: func(_ context.Context, email string) (*model.Identity, string, error) {
			return &model.Identity{ID: "ident-1", Email: email, EmailConfirmedAt: &confirmed}, string(hash), nil
		},
	}
	var created *model.Session
	sessionRepo := &mockSessionRepo{
		createFn: func(_ context.Context, s *model.Session) error {
			created = s
			return nil
		},
	}
	gw := NewLocalGateway(identRepo, sessionRepo, testConfig())

	session, identity, err := gw.SignInWithPassword(context.Background(), "known@example.edu", "correct")
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	if identity.ID != "ident-1" {
		t.Errorf("identity.ID = %q", identity.ID)
	}
	if created == nil || created.ID != session.ID {
		t.Error("expected session to be persisted")
	}
	if !session.ExpiresAt.After(time.Now()) {
		t.Error("expected session to expire in the future")
	}
}

// メール未確認のIdentityがサインインを拒否されることを検証
func TestLocalGateway_SignIn_UnconfirmedEmail(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	identRepo := &mockIdentityRepo{
		findByEmail: func(_ context.Context, email string) (*model.Identity, string, error) {
			return &model.Identity{ID: "ident-1", Email: email}, string(hash), nil
		},
	}
	gw := NewLocalGateway(identRepo, &mockSessionRepo{}, testConfig())

	_, _, err := gw.SignInWithPassword(context.Background(), "pending@example.edu", "correct")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailUnconfirmed {
		t.Fatalf("expected EMAIL_UNCONFIRMED, got %v", err)
	}
}

// サインアウトでセッションが削除され、SIGNED_OUTイベントが届くことを検証
func TestLocalGateway_SignOut_DeletesSessionAndPublishesEvent(t *testing.T) {
	var deletedID string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(_ context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	gw := NewLocalGateway(&mockIdentityRepo{}, sessionRepo, testConfig())

	var events []AuthEvent
	defer gw.Subscribe(func(e AuthEvent) { events = append(events, e) })()

	if err := gw.SignOut(context.Background(), "session-1"); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if deletedID != "session-1" {
		t.Errorf("deleted session = %q, want %q", deletedID, "session-1")
	}
	if len(events) != 1 || events[0].Type != EventSignedOut {
		t.Fatalf("expected one SIGNED_OUT event, got %+v", events)
	}
	if events[0].Session != nil || events[0].Identity != nil {
		t.Error("SIGNED_OUT event should carry no session or identity")
	}
}

// GetSessionが未検出時に(nil, nil, nil)を返すことを検証
func TestLocalGateway_GetSession_NotFound(t *testing.T) {
	gw := NewLocalGateway(&mockIdentityRepo{}, &mockSessionRepo{}, testConfig())

	session, identity, err := gw.GetSession(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session != nil || identity != nil {
		t.Error("expected nil session and identity for missing session")
	}
}

// AdminCreateUserがセッションもイベントも発行しないことを検証
func TestLocalGateway_AdminCreateUser_NoSessionNoEvent(t *testing.T) {
	gw := NewLocalGateway(&mockIdentityRepo{}, &mockSessionRepo{}, testConfig())

	var events []AuthEvent
	defer gw.Subscribe(func(e AuthEvent) { events = append(events, e) })()

	identity, err := gw.AdminCreateUser(context.Background(), "staff@example.edu", "pass123",
		model.IdentityMetadata{FullName: "Hanako Sato", Role: "staff"})
	if err != nil {
		t.Fatalf("AdminCreateUser failed: %v", err)
	}
	if identity.EmailConfirmedAt == nil {
		t.Error("admin-created identity should be email-confirmed")
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %+v", events)
	}
}

// 発行したアクセストークンがParseAccessTokenで検証できることを検証
func TestLocalGateway_AccessToken_RoundTrip(t *testing.T) {
	gw := NewLocalGateway(&mockIdentityRepo{}, &mockSessionRepo{}, testConfig())

	session, identity, err := gw.SignUp(context.Background(), "jwt@example.edu", "pass123",
		model.IdentityMetadata{Role: "student"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	sub, err := gw.ParseAccessToken(session.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken failed: %v", err)
	}
	if sub != identity.ID {
		t.Errorf("token subject = %q, want %q", sub, identity.ID)
	}

	// 別の鍵で署名されたトークンは拒否される
	other := NewLocalGateway(&mockIdentityRepo{}, &mockSessionRepo{}, LocalConfig{
		JWTSecret: "other-secret", JWTIssuer: "acadport-test",
		AccessTokenTTL: time.Hour, SessionMaxAge: 3600, BcryptCost: bcrypt.MinCost,
	})
	if _, err := other.ParseAccessToken(session.AccessToken); err == nil {
		t.Error("expected token signed with different secret to be rejected")
	}
}

// 購読解除後はイベントが届かないことを検証
func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := newBroadcaster()

	var count int
	unsubscribe := b.subscribe(func(AuthEvent) { count++ })

	b.publish(AuthEvent{Type: EventSignedIn})
	unsubscribe()
	b.publish(AuthEvent{Type: EventSignedOut})

	if count != 1 {
		t.Errorf("listener called %d times, want 1", count)
	}
}
