package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/echoleads/echoleads-go/internal/api"
	"github.com/echoleads/echoleads-go/internal/storage"
)

// Manager is the single source of truth for the persisted credential pair.
// It implements api.TokenSource, so the API client's bearer middleware
// pulls tokens (and refreshes) from here.
type Manager struct {
	store    storage.Store
	client   *api.Client
	logger   *slog.Logger
	validate *validator.Validate

	// refreshGroup collapses concurrent refresh calls into one network
	// request; refresh is idempotent server-side but duplicates are waste.
	refreshGroup singleflight.Group
}

// NewManager creates a token manager over the given store and API client.
func NewManager(store storage.Store, client *api.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		client:   client,
		logger:   logger.With("component", "token_manager"),
		validate: validator.New(),
	}
}

// AccessToken returns the persisted access token without checking expiry.
// Returns ErrNoSession when nothing is stored.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	entry, err := m.loadEntry(ctx)
	if err != nil {
		return "", err
	}
	return entry.Token, nil
}

// IsAuthenticated reports whether an unexpired access token is stored.
// It never triggers a refresh.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	entry, err := m.loadEntry(ctx)
	if err != nil {
		return false
	}
	return !entry.expired(time.Now())
}

// ValidToken returns the stored access token if it is still usable,
// refreshing it first when it is expired or inside the safety buffer.
func (m *Manager) ValidToken(ctx context.Context) (string, error) {
	entry, err := m.loadEntry(ctx)
	if err != nil {
		return "", err
	}
	if !entry.expired(time.Now()) {
		return entry.Token, nil
	}

	m.logger.DebugContext(ctx, "Access token expired, refreshing")
	return m.ForceRefresh(ctx)
}

// ForceRefresh exchanges the stored refresh token for a new credential
// pair. Concurrent callers share a single network call. An
// authentication-rejected refresh wipes all stored credentials; a
// transient failure leaves them in place for a later retry.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	token, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	refreshToken, err := m.store.Get(ctx, storage.KeyRefreshToken)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", err
	}

	session, err := m.client.Refresh(ctx, refreshToken)
	if err != nil {
		if api.IsAuthRejection(err) {
			m.logger.WarnContext(ctx, "Refresh token rejected, clearing session", "error", err)
			if clearErr := m.ClearSession(ctx); clearErr != nil {
				m.logger.ErrorContext(ctx, "Failed to clear session", "error", clearErr)
			}
			return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		// Transient failure: keep the stored (possibly expired) pair so a
		// later attempt can still succeed.
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	if session.AccessToken == "" {
		m.logger.WarnContext(ctx, "Refresh response carried no token, clearing session")
		if clearErr := m.ClearSession(ctx); clearErr != nil {
			m.logger.ErrorContext(ctx, "Failed to clear session", "error", clearErr)
		}
		return "", ErrSessionExpired
	}

	if err := m.persistSession(ctx, session); err != nil {
		return "", err
	}
	m.logger.InfoContext(ctx, "Access token refreshed")
	return session.AccessToken, nil
}

// Login authenticates with email and password and persists the issued
// session.
func (m *Manager) Login(ctx context.Context, email, password, deviceToken string) (*api.User, error) {
	if err := m.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("invalid email address: %w", err)
	}
	if err := m.validate.Var(password, "required"); err != nil {
		return nil, fmt.Errorf("password is required: %w", err)
	}

	session, err := m.client.Login(ctx, email, password, deviceToken)
	if err != nil {
		return nil, err
	}
	return m.adoptSession(ctx, session)
}

// GoogleLogin authenticates with a Google ID token and persists the issued
// session.
func (m *Manager) GoogleLogin(ctx context.Context, idToken, deviceToken string) (*api.User, error) {
	if idToken == "" {
		return nil, errors.New("google id token is required")
	}

	session, err := m.client.GoogleLogin(ctx, idToken, deviceToken)
	if err != nil {
		return nil, err
	}
	return m.adoptSession(ctx, session)
}

// Register creates a new account and persists the issued session.
func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) (*api.User, error) {
	if err := m.validate.Var(req.Email, "required,email"); err != nil {
		return nil, fmt.Errorf("invalid email address: %w", err)
	}

	session, err := m.client.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.adoptSession(ctx, session)
}

// Logout invalidates the server-side session on a best-effort basis and
// clears local credentials regardless of the outcome.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.client.Logout(ctx); err != nil {
		m.logger.WarnContext(ctx, "Server-side logout failed, clearing local session anyway", "error", err)
	}
	return m.ClearSession(ctx)
}

// CurrentUser returns the cached user profile, fetching and caching it
// from the backend when absent.
func (m *Manager) CurrentUser(ctx context.Context) (*api.User, error) {
	cached, err := m.store.Get(ctx, storage.KeyUserProfile)
	if err == nil {
		var user api.User
		if jsonErr := json.Unmarshal([]byte(cached), &user); jsonErr == nil {
			return &user, nil
		}
		m.logger.WarnContext(ctx, "Discarding unreadable cached profile")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	user, err := m.client.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.cacheProfile(ctx, user); err != nil {
		m.logger.WarnContext(ctx, "Failed to cache user profile", "error", err)
	}
	return user, nil
}

// RegisterDeviceToken registers a push-notification device token with the
// backend and remembers it locally.
func (m *Manager) RegisterDeviceToken(ctx context.Context, deviceToken string) error {
	if deviceToken == "" {
		return nil
	}
	if stored, err := m.store.Get(ctx, storage.KeyDeviceToken); err == nil && stored == deviceToken {
		return nil
	}
	if err := m.client.RegisterDeviceToken(ctx, deviceToken); err != nil {
		return fmt.Errorf("failed to register device token: %w", err)
	}
	return m.store.Set(ctx, storage.KeyDeviceToken, deviceToken)
}

// ClearSession erases the credential pair and the cached profile.
func (m *Manager) ClearSession(ctx context.Context) error {
	return m.store.Delete(ctx,
		storage.KeyAccessToken,
		storage.KeyRefreshToken,
		storage.KeyUserProfile,
	)
}

func (m *Manager) adoptSession(ctx context.Context, session *api.Session) (*api.User, error) {
	if session.AccessToken == "" {
		return nil, errors.New("auth response carried no access token")
	}
	if err := m.persistSession(ctx, session); err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "Session established")
	return session.User, nil
}

// persistSession atomically-enough replaces the stored pair: last write
// wins, and a refresh response without a new refresh token keeps the old
// one.
func (m *Manager) persistSession(ctx context.Context, session *api.Session) error {
	entry, err := json.Marshal(tokenEntry{
		Token:     session.AccessToken,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode token entry: %w", err)
	}
	if err := m.store.Set(ctx, storage.KeyAccessToken, string(entry)); err != nil {
		return err
	}

	if session.RefreshToken != "" {
		if err := m.store.Set(ctx, storage.KeyRefreshToken, session.RefreshToken); err != nil {
			return err
		}
	}

	if session.User != nil {
		if err := m.cacheProfile(ctx, session.User); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) cacheProfile(ctx context.Context, user *api.User) error {
	profile, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user profile: %w", err)
	}
	return m.store.Set(ctx, storage.KeyUserProfile, string(profile))
}

func (m *Manager) loadEntry(ctx context.Context) (tokenEntry, error) {
	raw, err := m.store.Get(ctx, storage.KeyAccessToken)
	if errors.Is(err, storage.ErrNotFound) {
		return tokenEntry{}, ErrNoSession
	}
	if err != nil {
		return tokenEntry{}, err
	}

	var entry tokenEntry
	if jsonErr := json.Unmarshal([]byte(raw), &entry); jsonErr != nil {
		// Legacy shape: the bare token string.
		entry = tokenEntry{Token: raw}
	}
	if entry.Token == "" {
		return tokenEntry{}, ErrNoSession
	}
	return entry, nil
}
