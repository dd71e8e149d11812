package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"edukeeper/internal/util"
	"edukeeper/pkg/auth"
	"edukeeper/pkg/domain"
	"edukeeper/pkg/queue"
	"edukeeper/pkg/storage"
	"edukeeper/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL    string
	Store          store.Store
	Sessions       store.SessionStore
	Objects        storage.ObjectStore
	Extract        ExtractQueue
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	RedisAddr      string
	RedisPassword  string
	ExtractStream  string
	SessionTTL     time.Duration

	JWTPrivateKeyPath   string
	JWTPublicKeyPath    string
	JWTKeyID            string
	JWTVerifyPublicKeys map[string]string
}

// ExtractQueue enqueues text-extraction jobs for uploaded documents.
type ExtractQueue interface {
	Enqueue(ctx context.Context, documentID string) (queue.JobStatus, error)
}

// App is the core application service wiring together storage and domain logic.
type App struct {
	store         store.Store
	sessions      store.SessionStore
	objects       storage.ObjectStore
	extract       ExtractQueue
	presignExpiry time.Duration
}

// New constructs the application with database-backed metadata storage,
// object storage for raw files and a Redis stream for extraction jobs.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if cfg.JWTPrivateKeyPath == "" {
			return nil, fmt.Errorf("jwt private key path required")
		}
		var revoker store.TokenRevoker
		if cfg.RedisAddr != "" {
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		} else {
			revoker = store.NewMemoryTokenRevoker()
		}
		var err error
		sessionStore, err = store.NewJWTRS256SessionStoreFromPEM(
			cfg.JWTPrivateKeyPath,
			cfg.JWTPublicKeyPath,
			cfg.JWTKeyID,
			cfg.JWTVerifyPublicKeys,
			cfg.SessionTTL,
			revoker,
		)
		if err != nil {
			return nil, err
		}
	}

	extract := cfg.Extract
	if extract == nil {
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis addr required for extraction queue")
		}
		q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.ExtractStream,
		})
		if err != nil {
			return nil, fmt.Errorf("init extraction queue: %w", err)
		}
		extract = q
	}

	return &App{
		store:         dataStore,
		sessions:      sessionStore,
		objects:       objects,
		extract:       extract,
		presignExpiry: 15 * time.Minute,
	}, nil
}

// Sessions exposes the session store, used to serve JWKS.
func (a *App) Sessions() store.SessionStore {
	return a.sessions
}

// SignUpParams carries optional profile fields collected at registration.
type SignUpParams struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
	BirthDate   *time.Time
	SchoolGrade string
}

// SignUp registers a new user. Unknown roles fall back to the basic user role.
func (a *App) SignUp(p SignUpParams) (domain.User, string, error) {
	email := strings.TrimSpace(strings.ToLower(p.Email))
	if email == "" || p.Password == "" {
		return domain.User{}, "", errors.New("email and password required")
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailTaken
	}
	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(p.DisplayName),
		Role:         domain.ParseRole(p.Role),
		Skin:         "classic",
		BirthDate:    p.BirthDate,
		SchoolGrade:  strings.TrimSpace(p.SchoolGrade),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Login validates credentials, issues a session token and grants login XP.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	if newXP, err := a.store.AwardXP(user.ID, domain.ActionLogin, ""); err != nil {
		slog.Warn("login xp award failed", "user_id", user.ID, "err", err)
	} else {
		user.XP = newXP
	}
	return user, token, nil
}

// UserFromToken resolves a user from a session token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// Logout revokes a session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// ProfileUpdate carries the mutable profile fields.
type ProfileUpdate struct {
	DisplayName *string
	BirthDate   *time.Time
	SchoolGrade *string
}

// UpdateProfile applies partial profile changes for the user.
func (a *App) UpdateProfile(userID string, upd ProfileUpdate) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, store.ErrUserNotFound
	}
	if upd.DisplayName != nil {
		user.DisplayName = strings.TrimSpace(*upd.DisplayName)
	}
	if upd.BirthDate != nil {
		user.BirthDate = upd.BirthDate
	}
	if upd.SchoolGrade != nil {
		user.SchoolGrade = strings.TrimSpace(*upd.SchoolGrade)
	}
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}
