// Package identity は認証プロバイダー(IdP)との境界を提供する。
// アプリケーションはGatewayインターフェース経由でのみIdPに触れる。
package identity

import (
	"context"
	"sync"

	"github.com/hitoshi/acadport/internal/model"
)

// EventType は認証状態変化イベントの種別を表す。
type EventType string

const (
	// EventInitialSession は購読開始時の初期セッション通知。
	EventInitialSession EventType = "INITIAL_SESSION"
	// EventSignedIn はサインイン成功の通知。
	EventSignedIn EventType = "SIGNED_IN"
	// EventSignedOut はサインアウトの通知。
	EventSignedOut EventType = "SIGNED_OUT"
)

// AuthEvent は認証状態の変化を表す。
// SignedOutの場合、SessionとIdentityはnilになる。
type AuthEvent struct {
	Type     EventType
	Session  *model.Session
	Identity *model.Identity
}

// Gateway はIdPの操作インターフェース。
// 本番はLocalGateway、テストではクロージャモックで実装する。
type Gateway interface {
	// SignUp は新しいIdentityを登録し、セッションを発行する。
	// メールアドレスが既に登録済みの場合はEMAIL_TAKENエラーを返す。
	SignUp(ctx context.Context, email, password string, metadata model.IdentityMetadata) (*model.Session, *model.Identity, error)

	// SignInWithPassword はメールアドレスとパスワードで認証し、セッションを発行する。
	// 認証失敗の理由（未登録かパスワード誤りか）は区別しない。
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, *model.Identity, error)

	// SignOut は指定セッションを破棄する。
	// セッションが既に存在しない場合もエラーにしない。
	SignOut(ctx context.Context, sessionID string) error

	// GetSession はセッションIDから現在のセッションとIdentityを取得する。
	// セッションが存在しないか期限切れの場合は(nil, nil, nil)を返す。
	GetSession(ctx context.Context, sessionID string) (*model.Session, *model.Identity, error)

	// AdminCreateUser は管理者権限でIdentityを作成する。
	// セッションは発行せず、メールアドレスは確認済みとして扱う。
	AdminCreateUser(ctx context.Context, email, password string, metadata model.IdentityMetadata) (*model.Identity, error)

	// Subscribe は認証状態変化の購読を開始する。
	// コールバックはイベント発生元のゴルーチンで同期的に呼ばれるため、
	// ブロックする処理を行ってはならない。戻り値の関数で購読を解除する。
	Subscribe(fn func(AuthEvent)) (unsubscribe func())
}

// broadcaster は認証イベントの購読と配送を管理する。
type broadcaster struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(AuthEvent)
}

func newBroadcaster() *broadcaster {
	return &broadcaster{listeners: make(map[int]func(AuthEvent))}
}

// subscribe はリスナーを登録し、解除関数を返す。
func (b *broadcaster) subscribe(fn func(AuthEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// publish は全リスナーにイベントを同期的に配送する。
// 並行するpublish間の順序は保証しない。
func (b *broadcaster) publish(event AuthEvent) {
	b.mu.Lock()
	fns := make([]func(AuthEvent), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}
