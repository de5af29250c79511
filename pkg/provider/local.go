package provider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ventura-app/ventura-auth/pkg/notification"
	"golang.org/x/crypto/bcrypt"
)

type grantKind string

const (
	grantConfirm  grantKind = "confirm"
	grantRecovery grantKind = "recovery"
)

type userRecord struct {
	ID               uuid.UUID
	Email            string
	PasswordHash     []byte
	Metadata         UserMetadata
	EmailConfirmedAt *time.Time
	CreatedAt        time.Time
}

// grantRecord is a one-time credential: either a confirmation/recovery code or
// a legacy recovery token pair.
type grantRecord struct {
	UserID       uuid.UUID
	Kind         grantKind
	RefreshToken string
	ExpiresAt    time.Time
	Used         bool
}

// LocalClient is a complete in-process implementation of Client. It owns its
// user store, mints JWT-backed sessions, and delivers confirmation and recovery
// links through the notification manager. It stands in for the managed identity
// provider in tests, demos and self-hosted deployments.
type LocalClient struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]*userRecord
	byEmail    map[string]uuid.UUID
	codes      map[string]*grantRecord
	tokenPairs map[string]*grantRecord
	current    *Session

	hub                 *eventHub
	notificationManager *notification.NotificationManager

	jwtSecret         []byte
	issuer            string
	sessionExpiry     time.Duration
	codeExpiry        time.Duration
	minPasswordLength int
}

// LocalClientOption is a functional option for configuring LocalClient.
type LocalClientOption func(*LocalClient)

// WithJWTSecret sets the HMAC secret used to sign access tokens.
func WithJWTSecret(secret string) LocalClientOption {
	return func(c *LocalClient) {
		c.jwtSecret = []byte(secret)
	}
}

// WithIssuer sets the iss claim on minted access tokens.
func WithIssuer(issuer string) LocalClientOption {
	return func(c *LocalClient) {
		c.issuer = issuer
	}
}

// WithNotificationManager sets the manager used to deliver confirmation and
// recovery emails. Without one, links are logged and not delivered.
func WithNotificationManager(nm *notification.NotificationManager) LocalClientOption {
	return func(c *LocalClient) {
		c.notificationManager = nm
	}
}

// WithCodeExpiry sets the lifetime of confirmation and recovery grants.
func WithCodeExpiry(expiry time.Duration) LocalClientOption {
	return func(c *LocalClient) {
		c.codeExpiry = expiry
	}
}

// WithSessionExpiry sets the lifetime of minted sessions.
func WithSessionExpiry(expiry time.Duration) LocalClientOption {
	return func(c *LocalClient) {
		c.sessionExpiry = expiry
	}
}

// NewLocalClient creates a LocalClient with the given options.
func NewLocalClient(opts ...LocalClientOption) *LocalClient {
	c := &LocalClient{
		users:             make(map[uuid.UUID]*userRecord),
		byEmail:           make(map[string]uuid.UUID),
		codes:             make(map[string]*grantRecord),
		tokenPairs:        make(map[string]*grantRecord),
		hub:               newEventHub(),
		jwtSecret:         []byte("ventura-local-dev-secret"),
		issuer:            "ventura-auth",
		sessionExpiry:     time.Hour,
		codeExpiry:        24 * time.Hour,
		minPasswordLength: 6,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// generateToken generates a cryptographically secure random token.
func generateToken() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SignUp registers a new user, stores the identity metadata, and sends the
// confirmation link. Signing up again with an unconfirmed email re-sends the
// link instead of failing, which is what makes the wizard's resend action work.
func (c *LocalClient) SignUp(ctx context.Context, req SignUpRequest) (*Principal, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, &AuthError{Code: ErrCodeInvalidCredentials, Message: "Email is required"}
	}
	if len(req.Password) < c.minPasswordLength {
		return nil, &AuthError{
			Code:    ErrCodeWeakPassword,
			Message: fmt.Sprintf("Password should be at least %d characters", c.minPasswordLength),
		}
	}

	c.mu.Lock()
	if id, exists := c.byEmail[email]; exists {
		user := c.users[id]
		if user.EmailConfirmedAt != nil {
			c.mu.Unlock()
			slog.Info("Sign-up against registered email", "email", email)
			return nil, ErrAlreadyRegistered(email)
		}
		// Unconfirmed: refresh the metadata and re-send the confirmation link.
		user.Metadata = req.Metadata
		principal := user.principal()
		c.mu.Unlock()

		if err := c.issueConfirmation(ctx, user.ID, email, req.Metadata.DisplayName, req.RedirectTo); err != nil {
			slog.Error("Failed to re-send confirmation", "email", email, "error", err)
		}
		return &principal, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.mu.Unlock()
		slog.Error("Failed to hash password", "error", err)
		return nil, &AuthError{Code: ErrCodeInternalError, Message: "Failed to register user"}
	}

	user := &userRecord{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Metadata:     req.Metadata,
		CreatedAt:    time.Now().UTC(),
	}
	c.users[user.ID] = user
	c.byEmail[email] = user.ID
	principal := user.principal()
	c.mu.Unlock()

	// Email delivery is best effort: the account exists either way, and the
	// user can ask for a resend.
	if err := c.issueConfirmation(ctx, user.ID, email, req.Metadata.DisplayName, req.RedirectTo); err != nil {
		slog.Error("Failed to send confirmation", "email", email, "error", err)
	}

	slog.Info("User registered", "user_id", user.ID, "email", email)
	return &principal, nil
}

// SignInWithPassword establishes a session from email + password credentials.
func (c *LocalClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	c.mu.Lock()
	id, exists := c.byEmail[email]
	if !exists {
		c.mu.Unlock()
		return nil, &AuthError{Code: ErrCodeInvalidCredentials, Message: "Invalid login credentials"}
	}
	user := c.users[id]
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		c.mu.Unlock()
		return nil, &AuthError{Code: ErrCodeInvalidCredentials, Message: "Invalid login credentials"}
	}
	if user.EmailConfirmedAt == nil {
		c.mu.Unlock()
		return nil, &AuthError{Code: ErrCodeInvalidCredentials, Message: "Email not confirmed"}
	}

	session, err := c.mintSessionLocked(user)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	c.hub.emit(EventSignedIn, session)
	return session, nil
}

// GetSession returns the current session, or (nil, nil) when none is
// established or the session has expired.
func (c *LocalClient) GetSession(ctx context.Context) (*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil || time.Now().UTC().After(c.current.ExpiresAt) {
		return nil, nil
	}
	session := *c.current
	return &session, nil
}

// GetUser returns the current session's principal, or (nil, nil) without one.
func (c *LocalClient) GetUser(ctx context.Context) (*Principal, error) {
	session, err := c.GetSession(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	principal := session.Principal
	return &principal, nil
}

// ExchangeCodeForSession consumes a one-time code (confirmation or recovery)
// and establishes a session. Recovery codes additionally emit the
// password-recovery event after signed-in.
func (c *LocalClient) ExchangeCodeForSession(ctx context.Context, code string) (*Session, error) {
	c.mu.Lock()
	grant, exists := c.codes[code]
	if !exists || grant.Used || time.Now().UTC().After(grant.ExpiresAt) {
		c.mu.Unlock()
		return nil, &AuthError{Code: ErrCodeInvalidToken, Message: "invalid or expired code"}
	}
	grant.Used = true

	user := c.users[grant.UserID]
	if user.EmailConfirmedAt == nil {
		now := time.Now().UTC()
		user.EmailConfirmedAt = &now
	}

	session, err := c.mintSessionLocked(user)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	kind := grant.Kind
	c.mu.Unlock()

	c.hub.emit(EventSignedIn, session)
	if kind == grantRecovery {
		c.hub.emit(EventPasswordRecovery, session)
	}

	slog.Info("Code exchanged for session", "user_id", session.Principal.ID, "kind", kind)
	return session, nil
}

// SetSession establishes a session from a stored legacy token pair, the older
// fragment-delivered recovery mechanism.
func (c *LocalClient) SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	c.mu.Lock()
	grant, exists := c.tokenPairs[accessToken]
	if !exists || grant.Used || grant.RefreshToken != refreshToken || time.Now().UTC().After(grant.ExpiresAt) {
		c.mu.Unlock()
		return nil, &AuthError{Code: ErrCodeInvalidToken, Message: "invalid or expired token pair"}
	}
	grant.Used = true

	user := c.users[grant.UserID]
	if user.EmailConfirmedAt == nil {
		now := time.Now().UTC()
		user.EmailConfirmedAt = &now
	}

	session, err := c.mintSessionLocked(user)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	c.hub.emit(EventSignedIn, session)
	c.hub.emit(EventPasswordRecovery, session)
	return session, nil
}

// UpdateUser updates the current principal's password and/or metadata.
func (c *LocalClient) UpdateUser(ctx context.Context, req UpdateUserRequest) (*Principal, error) {
	c.mu.Lock()

	if c.current == nil || time.Now().UTC().After(c.current.ExpiresAt) {
		c.mu.Unlock()
		return nil, ErrNoSession
	}
	user := c.users[c.current.Principal.ID]
	if user == nil {
		c.mu.Unlock()
		return nil, ErrNoSession
	}

	if req.Password != nil {
		if len(*req.Password) < c.minPasswordLength {
			c.mu.Unlock()
			return nil, &AuthError{
				Code:    ErrCodeWeakPassword,
				Message: fmt.Sprintf("Password should be at least %d characters", c.minPasswordLength),
			}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.mu.Unlock()
			slog.Error("Failed to hash password", "error", err)
			return nil, &AuthError{Code: ErrCodeInternalError, Message: "Failed to update password"}
		}
		user.PasswordHash = hash
	}

	if req.Metadata != nil {
		// Merge field-wise: empty incoming fields leave stored values alone.
		if req.Metadata.Username != "" {
			user.Metadata.Username = req.Metadata.Username
		}
		if req.Metadata.DisplayName != "" {
			user.Metadata.DisplayName = req.Metadata.DisplayName
		}
		if req.Metadata.Intent != "" {
			user.Metadata.Intent = req.Metadata.Intent
		}
	}

	principal := user.principal()
	c.current.Principal = principal
	c.mu.Unlock()

	slog.Info("User updated", "user_id", principal.ID, "password_changed", req.Password != nil)
	return &principal, nil
}

// ResetPasswordForEmail issues a recovery grant and emails the reset link.
// Unknown emails succeed silently so the endpoint cannot be used to enumerate
// accounts.
func (c *LocalClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	c.mu.Lock()
	id, exists := c.byEmail[email]
	if !exists {
		c.mu.Unlock()
		slog.Info("Password reset requested for unknown email", "email", email)
		return nil
	}

	code, err := generateToken()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	accessToken, err := generateToken()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	refreshToken, err := generateToken()
	if err != nil {
		c.mu.Unlock()
		return err
	}

	expiresAt := time.Now().UTC().Add(c.codeExpiry)
	c.codes[code] = &grantRecord{UserID: id, Kind: grantRecovery, ExpiresAt: expiresAt}
	c.tokenPairs[accessToken] = &grantRecord{
		UserID:       id,
		Kind:         grantRecovery,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}
	c.mu.Unlock()

	// The link carries both delivery mechanisms: the code in the query and the
	// legacy token pair in the fragment.
	link := fmt.Sprintf("%s#access_token=%s&refresh_token=%s&type=recovery",
		appendQueryParam(redirectTo, "code", code), accessToken, refreshToken)

	if err := c.sendLink(notification.RecoverPassword, email, "", link); err != nil {
		slog.Error("Failed to send recovery email", "email", email, "error", err)
		// The grant exists; the user can request another link.
	}

	slog.Info("Recovery link issued", "user_id", id)
	return nil
}

// OnAuthStateChange registers a callback for auth events.
func (c *LocalClient) OnAuthStateChange(fn func(event AuthEvent, session *Session)) Subscription {
	return c.hub.subscribe(fn)
}

// SignOut revokes the current session.
func (c *LocalClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	c.hub.emit(EventSignedOut, nil)
	return nil
}

func (u *userRecord) principal() Principal {
	return Principal{
		ID:               u.ID,
		Email:            u.Email,
		Metadata:         u.Metadata,
		EmailConfirmedAt: u.EmailConfirmedAt,
		CreatedAt:        u.CreatedAt,
	}
}

// mintSessionLocked issues a JWT-backed session for user and makes it current.
// Caller holds c.mu.
func (c *LocalClient) mintSessionLocked(user *userRecord) (*Session, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(c.sessionExpiry)

	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"iss":   c.issuer,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.jwtSecret)
	if err != nil {
		slog.Error("Failed to sign access token", "error", err)
		return nil, &AuthError{Code: ErrCodeInternalError, Message: "Failed to establish session"}
	}

	refreshToken, err := generateToken()
	if err != nil {
		return nil, &AuthError{Code: ErrCodeInternalError, Message: "Failed to establish session"}
	}

	session := &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Principal:    user.principal(),
	}
	c.current = session

	out := *session
	return &out, nil
}

func (c *LocalClient) issueConfirmation(ctx context.Context, userID uuid.UUID, email, name, redirectTo string) error {
	code, err := generateToken()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.codes[code] = &grantRecord{
		UserID:    userID,
		Kind:      grantConfirm,
		ExpiresAt: time.Now().UTC().Add(c.codeExpiry),
	}
	c.mu.Unlock()

	link := appendQueryParam(redirectTo, "code", code)
	return c.sendLink(notification.ConfirmSignup, email, name, link)
}

func (c *LocalClient) sendLink(noticeType notification.NoticeType, email, name, link string) error {
	if c.notificationManager == nil {
		slog.Warn("Notification manager not configured, skipping email send", "type", noticeType, "link", link)
		return nil
	}

	return c.notificationManager.Send(noticeType, notification.EmailSystem, notification.NotificationData{
		To: email,
		Data: map[string]string{
			"Name":        name,
			"Link":        link,
			"ExpiryHours": fmt.Sprintf("%.0f", c.codeExpiry.Hours()),
		},
	})
}

func appendQueryParam(base, key, value string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + key + "=" + value
}
