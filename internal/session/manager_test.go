package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hitoshi/acadport/internal/identity"
	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/repository"
	"github.com/hitoshi/acadport/internal/role"
)

// --- モック定義 ---

// mockGateway はイベント配送を制御できるGatewayモック。
type mockGateway struct {
	mu        sync.Mutex
	listeners []func(identity.AuthEvent)

	signUpFn     func(ctx context.Context, email, password string, metadata model.IdentityMetadata) (*model.Session, *model.Identity, error)
	signInFn     func(ctx context.Context, email, password string) (*model.Session, *model.Identity, error)
	signOutFn    func(ctx context.Context, sessionID string) error
	getSessionFn func(ctx context.Context, sessionID string) (*model.Session, *model.Identity, error)
}

func (m *mockGateway) SignUp(ctx context.Context, email, password string, metadata model.IdentityMetadata) (*model.Session, *model.Identity, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, metadata)
	}
	ident := &model.Identity{ID: "ident-new", Email: email, Metadata: metadata}
	return &model.Session{ID: "session-new", IdentityID: ident.ID}, ident, nil
}

func (m *mockGateway) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, *model.Identity, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, nil, model.NewInvalidCredentialsError()
}

func (m *mockGateway) SignOut(ctx context.Context, sessionID string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockGateway) GetSession(ctx context.Context, sessionID string) (*model.Session, *model.Identity, error) {
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx, sessionID)
	}
	return nil, nil, nil
}

func (m *mockGateway) AdminCreateUser(ctx context.Context, email, password string, metadata model.IdentityMetadata) (*model.Identity, error) {
	return &model.Identity{ID: "ident-admin", Email: email, Metadata: metadata}, nil
}

func (m *mockGateway) Subscribe(fn func(identity.AuthEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listeners = nil
	}
}

// publish は登録済みリスナーにイベントを配送する。
func (m *mockGateway) publish(event identity.AuthEvent) {
	m.mu.Lock()
	fns := append([]func(identity.AuthEvent){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(event)
	}
}

func (m *mockGateway) listenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

var _ identity.Gateway = (*mockGateway)(nil)

type mockUserRepo struct {
	createFn func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(_ context.Context, _ string) (*model.User, error) {
	return nil, nil
}

type mockRoleRepo struct {
	assignFn func(ctx context.Context, userID string, role model.Role) error
	findFn   func(ctx context.Context, userID string) (*model.RoleAssignment, error)
}

func (m *mockRoleRepo) Assign(ctx context.Context, userID string, r model.Role) error {
	if m.assignFn != nil {
		return m.assignFn(ctx, userID, r)
	}
	return nil
}

func (m *mockRoleRepo) FindByUserID(ctx context.Context, userID string) (*model.RoleAssignment, error) {
	if m.findFn != nil {
		return m.findFn(ctx, userID)
	}
	return nil, nil
}

type mockStudentRepo struct {
	createFn func(ctx context.Context, student *model.StudentProfile) error
}

func (m *mockStudentRepo) Create(ctx context.Context, student *model.StudentProfile) error {
	if m.createFn != nil {
		return m.createFn(ctx, student)
	}
	return nil
}

func (m *mockStudentRepo) FindByUserID(_ context.Context, _ string) (*model.StudentProfile, error) {
	return nil, nil
}

func (m *mockStudentRepo) FindByUserIDWithUser(_ context.Context, _ string) (*repository.StudentWithUser, error) {
	return nil, nil
}

func (m *mockStudentRepo) Count(_ context.Context) (int, error) { return 0, nil }

func (m *mockStudentRepo) ListIDs(_ context.Context) ([]string, error) { return nil, nil }

func (m *mockStudentRepo) UpdateAttendancePercent(_ context.Context, _ string, _ float64) error {
	return nil
}

var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.RoleRepository = (*mockRoleRepo)(nil)
var _ repository.StudentRepository = (*mockStudentRepo)(nil)

func newTestManager(gw *mockGateway, userRepo *mockUserRepo, roleRepo *mockRoleRepo, studentRepo *mockStudentRepo) *Manager {
	if userRepo == nil {
		userRepo = &mockUserRepo{}
	}
	if roleRepo == nil {
		roleRepo = &mockRoleRepo{}
	}
	if studentRepo == nil {
		studentRepo = &mockStudentRepo{}
	}
	return NewManager(gw, userRepo, roleRepo, studentRepo, role.NewResolver(roleRepo))
}

// --- テスト ---

// Start前はLoading=trueであることを検証
func TestManager_InitialStateIsLoading(t *testing.T) {
	m := newTestManager(&mockGateway{}, nil, nil, nil)
	state := m.Current()
	if !state.Loading {
		t.Error("expected Loading=true before Start")
	}
	if state.Session != nil || state.Identity != nil {
		t.Error("expected empty state before Start")
	}
}

// Startで初期ルックアップの結果が反映され、Loadingが解除されることを検証
func TestManager_Start_AppliesInitialLookup(t *testing.T) {
	ident := &model.Identity{ID: "ident-1", Email: "a@b.com"}
	sess := &model.Session{ID: "session-1", IdentityID: "ident-1"}
	gw := &mockGateway{
		getSessionFn: func(_ context.Context, sessionID string) (*model.Session, *model.Identity, error) {
			if sessionID != "session-1" {
				t.Errorf("lookup session ID = %q", sessionID)
			}
			return sess, ident, nil
		},
	}
	m := newTestManager(gw, nil, nil, nil)
	defer m.Close()

	m.Start(context.Background(), "session-1")

	state := m.Current()
	if state.Loading {
		t.Error("expected Loading=false after Start")
	}
	if state.Identity == nil || state.Identity.ID != "ident-1" {
		t.Errorf("state.Identity = %+v", state.Identity)
	}
}

// 初期ルックアップ中に届いたイベントが後勝ちすることを検証:
// ルックアップ結果(古いセッション)よりイベント(サインアウト)が優先される
func TestManager_Start_EventDuringLookupWins(t *testing.T) {
	gw := &mockGateway{}
	m := newTestManager(gw, nil, nil, nil)
	defer m.Close()

	staleIdent := &model.Identity{ID: "stale-ident"}
	staleSess := &model.Session{ID: "stale-session", IdentityID: "stale-ident"}
	gw.getSessionFn = func(_ context.Context, _ string) (*model.Session, *model.Identity, error) {
		// ルックアップが解決する前にサインアウトイベントが届く
		gw.publish(identity.AuthEvent{Type: identity.EventSignedOut})
		return staleSess, staleIdent, nil
	}

	m.Start(context.Background(), "stale-session")

	state := m.Current()
	if state.Session != nil || state.Identity != nil {
		t.Errorf("expected signed-out state to win over stale lookup, got %+v", state)
	}
	if state.Loading {
		t.Error("expected Loading=false")
	}
}

// ゲートウェイが配送するINITIAL_SESSIONイベントが状態に反映されることを検証
func TestManager_EventStream_InitialSessionApplied(t *testing.T) {
	gw := &mockGateway{}
	m := newTestManager(gw, nil, nil, nil)
	defer m.Close()

	m.Start(context.Background(), "")

	ident := &model.Identity{ID: "ident-restored"}
	gw.publish(identity.AuthEvent{Type: identity.EventInitialSession,
		Session: &model.Session{ID: "s-restored", IdentityID: "ident-restored"}, Identity: ident})

	state := m.Current()
	if state.Session == nil || state.Session.ID != "s-restored" {
		t.Errorf("state.Session = %+v, want s-restored", state.Session)
	}
	if state.Identity == nil || state.Identity.ID != "ident-restored" {
		t.Errorf("state.Identity = %+v, want ident-restored", state.Identity)
	}
	if state.Loading {
		t.Error("expected Loading=false after initial session event")
	}
}

// イベント列の最後のイベントが最終状態になることを検証
func TestManager_EventStream_LastWriterWins(t *testing.T) {
	gw := &mockGateway{}
	m := newTestManager(gw, nil, nil, nil)
	defer m.Close()

	m.Start(context.Background(), "")

	first := &model.Identity{ID: "first"}
	second := &model.Identity{ID: "second"}
	gw.publish(identity.AuthEvent{Type: identity.EventSignedIn,
		Session: &model.Session{ID: "s1", IdentityID: "first"}, Identity: first})
	gw.publish(identity.AuthEvent{Type: identity.EventSignedOut})
	gw.publish(identity.AuthEvent{Type: identity.EventSignedIn,
		Session: &model.Session{ID: "s2", IdentityID: "second"}, Identity: second})

	state := m.Current()
	if state.Identity == nil || state.Identity.ID != "second" {
		t.Errorf("final identity = %+v, want second", state.Identity)
	}
}

// サインアップで依存3行が順に作成されることを検証
func TestManager_SignUp_CreatesDependentRows(t *testing.T) {
	var steps []string
	var createdUser *model.User
	var createdStudent *model.StudentProfile

	userRepo := &mockUserRepo{
		createFn: func(_ context.Context, user *model.User) error {
			steps = append(steps, "user")
			createdUser = user
			return nil
		},
	}
	roleRepo := &mockRoleRepo{
		assignFn: func(_ context.Context, userID string, r model.Role) error {
			steps = append(steps, "role")
			if r != model.RoleStudent {
				t.Errorf("assigned role = %q, want student", r)
			}
			return nil
		},
	}
	studentRepo := &mockStudentRepo{
		createFn: func(_ context.Context, student *model.StudentProfile) error {
			steps = append(steps, "student")
			createdStudent = student
			return nil
		},
	}

	m := newTestManager(&mockGateway{}, userRepo, roleRepo, studentRepo)
	_, ident, err := m.SignUp(context.Background(), SignUpParams{
		Email: "a@b.com", Password: "pw", FullName: "Jane", RollNo: "R1",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	if len(steps) != 3 || steps[0] != "user" || steps[1] != "role" || steps[2] != "student" {
		t.Fatalf("steps = %v, want [user role student]", steps)
	}
	if createdUser.ID != ident.ID || createdUser.Role != model.RoleStudent {
		t.Errorf("createdUser = %+v", createdUser)
	}
	if createdStudent.RollNo != "R1" || createdStudent.UserID != ident.ID {
		t.Errorf("createdStudent = %+v", createdStudent)
	}
	if createdStudent.Department != "" || createdStudent.YearOfStudy != nil {
		t.Error("expected absent department and year of study")
	}
	// サインアップ時のロールは常にstudentに固定される
	if ident.Metadata.Role != string(model.RoleStudent) {
		t.Errorf("metadata role = %q", ident.Metadata.Role)
	}
}

// 依存挿入の途中失敗で後続ステップが止まり、完了済みはロールバックされないことを検証
func TestManager_SignUp_RoleStepFailureHaltsSequence(t *testing.T) {
	var userCreated, studentCreated bool

	userRepo := &mockUserRepo{
		createFn: func(_ context.Context, _ *model.User) error {
			userCreated = true
			return nil
		},
	}
	roleRepo := &mockRoleRepo{
		assignFn: func(_ context.Context, _ string, _ model.Role) error {
			return errors.New("insert failed")
		},
	}
	studentRepo := &mockStudentRepo{
		createFn: func(_ context.Context, _ *model.StudentProfile) error {
			studentCreated = true
			return nil
		},
	}

	m := newTestManager(&mockGateway{}, userRepo, roleRepo, studentRepo)
	session, ident, err := m.SignUp(context.Background(), SignUpParams{
		Email: "a@b.com", Password: "pw", FullName: "Jane", RollNo: "R1",
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProvisionFailed {
		t.Fatalf("expected PROVISION_FAILED, got %v", err)
	}
	// Identityとセッションは作成済みのまま返る
	if session == nil || ident == nil {
		t.Error("expected identity and session to remain despite dependent failure")
	}
	if !userCreated {
		t.Error("user insert should have completed before the failing step")
	}
	if studentCreated {
		t.Error("student insert should not run after the role step failed")
	}
}

// ゲートウェイでのサインアップ失敗時は依存挿入を行わないことを検証
func TestManager_SignUp_GatewayFailureSkipsInserts(t *testing.T) {
	gw := &mockGateway{
		signUpFn: func(_ context.Context, _, _ string, _ model.IdentityMetadata) (*model.Session, *model.Identity, error) {
			return nil, nil, model.NewEmailTakenError()
		},
	}
	userRepo := &mockUserRepo{
		createFn: func(_ context.Context, _ *model.User) error {
			t.Fatal("user insert should not run when identity creation fails")
			return nil
		},
	}

	m := newTestManager(gw, userRepo, nil, nil)
	_, _, err := m.SignUp(context.Background(), SignUpParams{Email: "taken@b.com", Password: "pw"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailTaken {
		t.Fatalf("expected EMAIL_TAKEN, got %v", err)
	}
}

// SignOutが現在のセッションIDでゲートウェイに委譲することを検証
func TestManager_SignOut_ForwardsCurrentSession(t *testing.T) {
	gw := &mockGateway{}
	var signedOutID string
	gw.signOutFn = func(_ context.Context, sessionID string) error {
		signedOutID = sessionID
		gw.publish(identity.AuthEvent{Type: identity.EventSignedOut})
		return nil
	}

	m := newTestManager(gw, nil, nil, nil)
	defer m.Close()
	m.Start(context.Background(), "")

	gw.publish(identity.AuthEvent{Type: identity.EventSignedIn,
		Session:  &model.Session{ID: "session-1", IdentityID: "ident-1"},
		Identity: &model.Identity{ID: "ident-1"}})

	if err := m.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if signedOutID != "session-1" {
		t.Errorf("signed out session = %q, want session-1", signedOutID)
	}

	state := m.Current()
	if state.Session != nil {
		t.Error("expected state to be signed out after event")
	}
}

// セッションがない場合のSignOutが何もしないことを検証
func TestManager_SignOut_NoSessionIsNoop(t *testing.T) {
	gw := &mockGateway{
		signOutFn: func(_ context.Context, _ string) error {
			t.Fatal("gateway SignOut should not be called without a session")
			return nil
		},
	}
	m := newTestManager(gw, nil, nil, nil)
	m.Start(context.Background(), "")

	if err := m.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
}

// GetUserRoleがセッションなしで空、割当ありでそのロールを返すことを検証
func TestManager_GetUserRole(t *testing.T) {
	gw := &mockGateway{}
	roleRepo := &mockRoleRepo{
		findFn: func(_ context.Context, userID string) (*model.RoleAssignment, error) {
			return &model.RoleAssignment{UserID: userID, Role: model.RoleAdmin}, nil
		},
	}
	m := newTestManager(gw, nil, roleRepo, nil)
	defer m.Close()
	m.Start(context.Background(), "")

	// セッションなし
	r, err := m.GetUserRole(context.Background())
	if err != nil || r != "" {
		t.Errorf("expected empty role without session, got %q, %v", r, err)
	}

	// サインイン後
	gw.publish(identity.AuthEvent{Type: identity.EventSignedIn,
		Session:  &model.Session{ID: "s1", IdentityID: "ident-1"},
		Identity: &model.Identity{ID: "ident-1", Metadata: model.IdentityMetadata{Role: "student"}}})

	r, err = m.GetUserRole(context.Background())
	if err != nil {
		t.Fatalf("GetUserRole failed: %v", err)
	}
	// メタデータのロール申告(student)ではなく、割当テーブルのロール(admin)が返る
	if r != model.RoleAdmin {
		t.Errorf("role = %q, want admin", r)
	}
}

// Closeで購読が解除されることを検証
func TestManager_Close_Unsubscribes(t *testing.T) {
	gw := &mockGateway{}
	m := newTestManager(gw, nil, nil, nil)
	m.Start(context.Background(), "")

	if gw.listenerCount() != 1 {
		t.Fatalf("listener count = %d, want 1", gw.listenerCount())
	}

	m.Close()
	if gw.listenerCount() != 0 {
		t.Errorf("listener count after Close = %d, want 0", gw.listenerCount())
	}

	// 多重Closeは安全
	m.Close()
}

// 並行イベント適用で状態が壊れないことを検証
func TestManager_ConcurrentEvents(t *testing.T) {
	gw := &mockGateway{}
	m := newTestManager(gw, nil, nil, nil)
	defer m.Close()
	m.Start(context.Background(), "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				gw.publish(identity.AuthEvent{Type: identity.EventSignedIn,
					Session:  &model.Session{ID: "s", IdentityID: "i"},
					Identity: &model.Identity{ID: "i"}})
			} else {
				gw.publish(identity.AuthEvent{Type: identity.EventSignedOut})
			}
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Current()
		}()
	}
	wg.Wait()

	// 最終状態はサインイン済みかサインアウト済みのどちらかで、中間状態にはならない
	state := m.Current()
	if state.Session != nil && state.Identity == nil {
		t.Error("inconsistent state: session without identity")
	}
	if state.Session == nil && state.Identity != nil {
		t.Error("inconsistent state: identity without session")
	}
}
