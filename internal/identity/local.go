package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/repository"
)

// LocalConfig はLocalGatewayの設定。
type LocalConfig struct {
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
	SessionMaxAge  int // セッション有効期間（秒）
	BcryptCost     int
}

// LocalGateway は自前のPostgreSQLテーブルを使うIdP実装。
// パスワードはbcryptでハッシュし、アクセストークンはHS256署名のJWTを発行する。
type LocalGateway struct {
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      LocalConfig
	events      *broadcaster
}

// NewLocalGateway はLocalGatewayを生成する。
func NewLocalGateway(
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config LocalConfig,
) *LocalGateway {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &LocalGateway{
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		events:      newBroadcaster(),
	}
}

// SignUp は新しいIdentityを登録し、セッションを発行する。
// 登録成功時はSIGNED_INイベントを配送する。
func (g *LocalGateway) SignUp(ctx context.Context, email, password string, metadata model.IdentityMetadata) (*model.Session, *model.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.config.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	confirmedAt := now
	identity := &model.Identity{
		ID:               uuid.New().String(),
		Email:            email,
		Metadata:         metadata,
		EmailConfirmedAt: &confirmedAt,
		CreatedAt:        now,
	}

	if err := g.identRepo.Create(ctx, identity, string(hash)); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, nil, model.NewEmailTakenError()
		}
		return nil, nil, fmt.Errorf("failed to create identity: %w", err)
	}

	session, err := g.createSession(ctx, identity)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("identity signed up",
		slog.String("identity_id", identity.ID),
		slog.String("email", email),
	)

	g.events.publish(AuthEvent{Type: EventSignedIn, Session: session, Identity: identity})
	return session, identity, nil
}

// SignInWithPassword はメールアドレスとパスワードで認証し、セッションを発行する。
// 成功時はSIGNED_INイベントを配送する。
func (g *LocalGateway) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, *model.Identity, error) {
	identity, passwordHash, err := g.identRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		// 未登録でもダミー比較を行い、応答時間から存在有無を推測させない
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	if identity.EmailConfirmedAt == nil {
		return nil, nil, model.NewEmailUnconfirmedError()
	}

	session, err := g.createSession(ctx, identity)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("identity signed in", slog.String("identity_id", identity.ID))

	g.events.publish(AuthEvent{Type: EventSignedIn, Session: session, Identity: identity})
	return session, identity, nil
}

// SignOut は指定セッションを破棄し、SIGNED_OUTイベントを配送する。
func (g *LocalGateway) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := g.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("identity signed out", slog.String("session_id", sessionID))

	g.events.publish(AuthEvent{Type: EventSignedOut})
	return nil
}

// GetSession はセッションIDから現在のセッションとIdentityを取得する。
// セッションが存在しないか期限切れの場合は(nil, nil, nil)を返す。
func (g *LocalGateway) GetSession(ctx context.Context, sessionID string) (*model.Session, *model.Identity, error) {
	if sessionID == "" {
		return nil, nil, nil
	}

	session, err := g.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil, nil
	}

	identity, err := g.identRepo.FindByID(ctx, session.IdentityID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		// セッションだけ残ってIdentityが消えている場合は無効扱い
		return nil, nil, nil
	}

	return session, identity, nil
}

// AdminCreateUser は管理者権限でIdentityを作成する。
// セッションは発行せず、イベントも配送しない。
func (g *LocalGateway) AdminCreateUser(ctx context.Context, email, password string, metadata model.IdentityMetadata) (*model.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	confirmedAt := now
	identity := &model.Identity{
		ID:               uuid.New().String(),
		Email:            email,
		Metadata:         metadata,
		EmailConfirmedAt: &confirmedAt,
		CreatedAt:        now,
	}

	if err := g.identRepo.Create(ctx, identity, string(hash)); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	slog.Info("identity created by admin",
		slog.String("identity_id", identity.ID),
		slog.String("email", email),
	)

	return identity, nil
}

// Subscribe は認証状態変化の購読を開始する。
func (g *LocalGateway) Subscribe(fn func(AuthEvent)) func() {
	return g.events.subscribe(fn)
}

// createSession はセッションを作成し永続化する。
func (g *LocalGateway) createSession(ctx context.Context, identity *model.Identity) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	accessToken, err := g.signAccessToken(identity, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	session := &model.Session{
		ID:          sessionID,
		IdentityID:  identity.ID,
		AccessToken: accessToken,
		ExpiresAt:   now.Add(time.Duration(g.config.SessionMaxAge) * time.Second),
		CreatedAt:   now,
	}

	if err := g.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// signAccessToken はHS256署名のJWTアクセストークンを発行する。
// roleクレームはサインアップ時の申告値であり、認可判定には使用しない。
func (g *LocalGateway) signAccessToken(identity *model.Identity, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":   identity.ID,
		"email": identity.Email,
		"role":  identity.Metadata.Role,
		"iss":   g.config.JWTIssuer,
		"iat":   now.Unix(),
		"exp":   now.Add(g.config.AccessTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(g.config.JWTSecret))
}

// ParseAccessToken はJWTアクセストークンを検証し、Identity IDを返す。
// Bearerトークンによる認証で使用する。
func (g *LocalGateway) ParseAccessToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(g.config.JWTSecret), nil
	}, jwt.WithIssuer(g.config.JWTIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("failed to parse access token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("access token has no subject")
	}
	return sub, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SignInWithPasswordのタイミング攻撃対策用ダミーハッシュ
var dummyHash = func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.MinCost)
	return h
}()

// compile-time interface check
var _ Gateway = (*LocalGateway)(nil)
