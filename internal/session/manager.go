// Package session は認証状態セルとサインイン/サインアップのフローを提供する。
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/acadport/internal/identity"
	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/repository"
	"github.com/hitoshi/acadport/internal/role"
)

// AuthState は現在の認証状態のスナップショット。
// 読み取り側は不変なコピーを受け取り、更新を観測するには再取得する。
type AuthState struct {
	Session  *model.Session
	Identity *model.Identity
	Loading  bool
}

// SignUpParams はセルフサービスサインアップの入力。
// ロールは指定できず、常にstudentとして登録される。
type SignUpParams struct {
	Email       string
	Password    string
	FullName    string
	RollNo      string
	Department  string
	YearOfStudy *int
}

// Manager は唯一の共有可変リソースであるAuthStateを所有する。
// 状態の変更はIdentity Gatewayのイベントストリームと初期ルックアップの
// 2経路からのみ行われ、後勝ち(last-writer-wins)で適用される。
type Manager struct {
	gateway     identity.Gateway
	userRepo    repository.UserRepository
	roleRepo    repository.RoleRepository
	studentRepo repository.StudentRepository
	resolver    *role.Resolver

	mu          sync.RWMutex
	state       AuthState
	version     int // イベント適用のたびに増える。初期ルックアップの後勝ち判定に使う
	unsubscribe func()
	started     bool
}

// NewManager はManagerを生成する。状態の追跡はStartを呼ぶまで開始しない。
func NewManager(
	gateway identity.Gateway,
	userRepo repository.UserRepository,
	roleRepo repository.RoleRepository,
	studentRepo repository.StudentRepository,
	resolver *role.Resolver,
) *Manager {
	return &Manager{
		gateway:     gateway,
		userRepo:    userRepo,
		roleRepo:    roleRepo,
		studentRepo: studentRepo,
		resolver:    resolver,
		state:       AuthState{Loading: true},
	}
}

// Start は認証状態の追跡を開始する。
// イベント購読を初期ルックアップより先に行うことで、その間に発火した
// 認証イベントを取りこぼさない。初期ルックアップ中にイベントが届いた
// 場合は、より新しいイベント側の状態が優先される。
func (m *Manager) Start(ctx context.Context, initialSessionID string) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	// 購読が先、ルックアップが後。逆にすると購読開始前のイベントが失われる
	m.unsubscribe = m.gateway.Subscribe(m.applyEvent)

	m.mu.RLock()
	before := m.version
	m.mu.RUnlock()

	session, ident, err := m.gateway.GetSession(ctx, initialSessionID)
	if err != nil {
		slog.Error("initial session lookup failed", slog.String("error", err.Error()))
		session, ident = nil, nil
	}
	m.applyInitial(before, session, ident)
}

// applyEvent はゲートウェイからの認証イベントを状態に適用する。
func (m *Manager) applyEvent(event identity.AuthEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.version++
	m.applyLocked(event)
}

// applyInitial は初期ルックアップの結果をINITIAL_SESSIONイベントとして適用する。
// ルックアップ中にイベントが届いていた場合、そちらが新しいので結果を捨てる。
func (m *Manager) applyInitial(before int, session *model.Session, ident *model.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.version != before {
		m.state.Loading = false
		return
	}
	m.applyLocked(identity.AuthEvent{
		Type:     identity.EventInitialSession,
		Session:  session,
		Identity: ident,
	})
}

// applyLocked はイベント種別ごとの状態遷移を行う。muを保持して呼ぶこと。
func (m *Manager) applyLocked(event identity.AuthEvent) {
	switch event.Type {
	case identity.EventInitialSession, identity.EventSignedIn:
		m.state.Session = event.Session
		m.state.Identity = event.Identity
	case identity.EventSignedOut:
		m.state.Session = nil
		m.state.Identity = nil
	}
	m.state.Loading = false

	slog.Debug("auth state updated",
		slog.String("event", string(event.Type)),
		slog.Bool("authenticated", m.state.Session != nil),
	)
}

// Current は認証状態のスナップショットを返す。
func (m *Manager) Current() AuthState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SignIn はIdentity Gatewayに認証を委譲する。
// 状態の変更はゲートウェイのイベント経由でのみ起こり、このメソッド自体は
// AuthStateを直接書き換えない。
func (m *Manager) SignIn(ctx context.Context, email, password string) (*model.Session, *model.Identity, error) {
	return m.gateway.SignInWithPassword(ctx, email, password)
}

// SignUp はセルフサービスサインアップを実行する。
// Identity作成が成功した場合のみ、UserRecord、RoleAssignment、
// StudentProfileを順に作成する。途中で失敗しても完了済みの挿入は
// ロールバックせず、どのステップで失敗したかをエラーで報告する。
func (m *Manager) SignUp(ctx context.Context, params SignUpParams) (*model.Session, *model.Identity, error) {
	metadata := model.IdentityMetadata{
		FullName:    params.FullName,
		Role:        string(model.RoleStudent),
		RollNo:      params.RollNo,
		Department:  params.Department,
		YearOfStudy: params.YearOfStudy,
	}

	session, ident, err := m.gateway.SignUp(ctx, params.Email, params.Password, metadata)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	user := &model.User{
		ID:        ident.ID,
		Email:     params.Email,
		FullName:  params.FullName,
		Role:      model.RoleStudent,
		CreatedAt: now,
	}
	if err := m.userRepo.Create(ctx, user); err != nil {
		slog.Error("sign-up user insert failed, identity left in place",
			slog.String("identity_id", ident.ID),
			slog.String("error", err.Error()),
		)
		return session, ident, model.NewProvisionFailedError("user")
	}

	if err := m.roleRepo.Assign(ctx, ident.ID, model.RoleStudent); err != nil {
		slog.Error("sign-up role assignment failed, prior inserts left in place",
			slog.String("identity_id", ident.ID),
			slog.String("error", err.Error()),
		)
		return session, ident, model.NewProvisionFailedError("role")
	}

	student := &model.StudentProfile{
		ID:          uuid.New().String(),
		UserID:      ident.ID,
		RollNo:      params.RollNo,
		Department:  params.Department,
		YearOfStudy: params.YearOfStudy,
		CreatedAt:   now,
	}
	if err := m.studentRepo.Create(ctx, student); err != nil {
		slog.Error("sign-up student profile insert failed, prior inserts left in place",
			slog.String("identity_id", ident.ID),
			slog.String("error", err.Error()),
		)
		return session, ident, model.NewProvisionFailedError("student")
	}

	slog.Info("student signed up",
		slog.String("user_id", ident.ID),
		slog.String("roll_no", params.RollNo),
	)
	return session, ident, nil
}

// SignOut は現在のセッションを破棄する。
// セッションがない場合は何もしない。状態の変更はイベント経由で起こる。
func (m *Manager) SignOut(ctx context.Context) error {
	state := m.Current()
	if state.Session == nil {
		return nil
	}
	return m.gateway.SignOut(ctx, state.Session.ID)
}

// GetUserRole は現在のセッションのユーザーのロールを返す。
// セッションがない場合は空文字列を返す。
func (m *Manager) GetUserRole(ctx context.Context) (model.Role, error) {
	state := m.Current()
	if state.Identity == nil {
		return "", nil
	}
	return m.resolver.Resolve(ctx, state.Identity.ID)
}

// Close は購読を解除し、状態の追跡を停止する。多重呼び出しは安全。
func (m *Manager) Close() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
