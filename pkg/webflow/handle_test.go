package webflow

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ventura-app/ventura-auth/pkg/finalize"
	"github.com/ventura-app/ventura-auth/pkg/intentcache"
	"github.com/ventura-app/ventura-auth/pkg/notification"
	"github.com/ventura-app/ventura-auth/pkg/profiles"
	"github.com/ventura-app/ventura-auth/pkg/provider"
	"github.com/ventura-app/ventura-auth/pkg/recovery"
	"github.com/ventura-app/ventura-auth/pkg/sessionflags"
	"github.com/ventura-app/ventura-auth/pkg/sessionprobe"
	"github.com/ventura-app/ventura-auth/pkg/signupflow"
)

const testJWTSecret = "webflow-test-secret"

type serverFixture struct {
	router  chi.Router
	client  *provider.LocalClient
	cache   *intentcache.InMemoryStore
	service *profiles.Service
	mock    *notification.MockNotifier
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	mock := &notification.MockNotifier{}
	nm := notification.NewNotificationManager()
	nm.RegisterNotifier(notification.EmailSystem, mock)
	require.NoError(t, notification.RegisterDefaults(nm))

	client := provider.NewLocalClient(
		provider.WithNotificationManager(nm),
		provider.WithJWTSecret(testJWTSecret))
	cache := intentcache.NewInMemoryStore()
	service := profiles.NewService(profiles.NewInMemoryRepository())

	reconciler := finalize.NewReconciler(sessionprobe.New(client), cache, service, sessionflags.NewStore())
	handle := NewHandle(client, cache, service,
		WithBaseURL("https://app.test"),
		WithReconciler(reconciler))

	router := chi.NewRouter()
	Routes(router, handle, jwtauth.New("HS256", []byte(testJWTSecret), nil))

	return &serverFixture{
		router:  router,
		client:  client,
		cache:   cache,
		service: service,
		mock:    mock,
	}
}

func (f *serverFixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) signUp(t *testing.T, email string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/signup", SignUpRequest{
		Email:       email,
		Password:    "abcdef",
		Confirm:     "abcdef",
		Username:    "nightwriter",
		DisplayName: "Night Writer",
		Intent:      "testing",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// signUpConfirmed registers and confirms an account, then signs out so the
// test starts from a fresh client.
func (f *serverFixture) signUpConfirmed(t *testing.T, email string) {
	t.Helper()
	ctx := context.Background()
	f.signUp(t, email)

	u, err := url.Parse(f.lastLink(t))
	require.NoError(t, err)
	_, err = f.client.ExchangeCodeForSession(ctx, u.Query().Get("code"))
	require.NoError(t, err)
	require.NoError(t, f.client.SignOut(ctx))
}

// lastLink returns the most recently emailed link.
func (f *serverFixture) lastLink(t *testing.T) string {
	t.Helper()
	sent := f.mock.Sent()
	require.NotEmpty(t, sent)
	return sent[len(sent)-1].Data["Link"]
}

func TestSignUpEndpoint(t *testing.T) {
	f := newServerFixture(t)
	f.signUp(t, "a@b.com")

	// The pending-signup record went in alongside the email.
	pending, err := f.cache.Take(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "a@b.com", pending.Email)
	assert.Equal(t, "testing", pending.Intent)

	link := f.lastLink(t)
	assert.Contains(t, link, "https://app.test/auth/callback")
}

func TestSignUpValidation(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name    string
		req     SignUpRequest
		wantMsg string
	}{
		{"bad email", SignUpRequest{Email: "nope", Password: "abcdef", Username: "abc", DisplayName: "A"}, signupflow.MsgInvalidEmail},
		{"short password", SignUpRequest{Email: "a@b.com", Password: "abc", Username: "abc", DisplayName: "A"}, signupflow.MsgPasswordTooShort},
		{"mismatch", SignUpRequest{Email: "a@b.com", Password: "abcdef", Confirm: "abcdeg", Username: "abc", DisplayName: "A"}, signupflow.MsgPasswordMismatch},
		{"missing confirm", SignUpRequest{Email: "a@b.com", Password: "abcdef", Username: "abc", DisplayName: "A"}, signupflow.MsgPasswordMismatch},
		{"no display name", SignUpRequest{Email: "a@b.com", Password: "abcdef", Confirm: "abcdef", Username: "abc"}, signupflow.MsgDisplayNameRequired},
		{"short username", SignUpRequest{Email: "a@b.com", Password: "abcdef", Confirm: "abcdef", Username: "a!", DisplayName: "A"}, signupflow.MsgUsernameTooShort},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/signup", tc.req)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantMsg, resp.Error)
		})
	}
}

func TestSignUpConflict(t *testing.T) {
	f := newServerFixture(t)
	f.signUp(t, "a@b.com")

	// Confirm the account, then try to register the same email again.
	u, err := url.Parse(f.lastLink(t))
	require.NoError(t, err)
	_, err = f.client.ExchangeCodeForSession(context.Background(), u.Query().Get("code"))
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/signup", SignUpRequest{
		Email:       "a@b.com",
		Password:    "abcdef",
		Confirm:     "abcdef",
		Username:    "othername",
		DisplayName: "Other",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, signupflow.SignInInsteadNotice, resp.Error)
}

func TestUsernameCheck(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/signup/username-check?u=ab", nil)
	var resp UsernameCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Available)

	rec = f.do(t, http.MethodGet, "/signup/username-check?u=NightWriter", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "nightwriter", resp.Username)
	assert.True(t, resp.Available)

	require.NoError(t, f.service.UpdateProfile(ctx, profiles.UpsertParams{
		ID:       newTestUserID(t, f, "taken@b.com"),
		Username: "nightwriter",
	}))
	rec = f.do(t, http.MethodGet, "/signup/username-check?u=nightwriter", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Available)
}

func TestAuthCallbackConfirmsAndRedirects(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)
	f.signUp(t, "a@b.com")

	link := f.lastLink(t)
	target := strings.TrimPrefix(link, "https://app.test")
	rec := f.do(t, http.MethodGet, target, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	// A session now exists and finalization persisted the intent.
	session, err := f.client.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)

	profile, err := f.service.Get(ctx, session.Principal.ID)
	require.NoError(t, err)
	assert.Equal(t, "testing", profile.Intent)
}

func TestAuthCallbackMissingCode(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodGet, "/auth/callback", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestAuthCallbackBadCode(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodGet, "/auth/callback?code=bogus", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?auth=error", rec.Header().Get("Location"))
}

func TestAuthCallbackRejectsAbsoluteNext(t *testing.T) {
	f := newServerFixture(t)
	f.signUp(t, "a@b.com")

	u, err := url.Parse(f.lastLink(t))
	require.NoError(t, err)
	code := u.Query().Get("code")

	rec := f.do(t, http.MethodGet, "/auth/callback?code="+code+"&next=https://evil.test/", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestForgotPasswordAlwaysSucceeds(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/forgot-password", ForgotPasswordRequest{Email: "nobody@b.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	// No recovery email goes out for an unknown address.
	assert.Empty(t, f.mock.Sent())
}

func TestResetPasswordEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)
	f.signUp(t, "a@b.com")

	u, err := url.Parse(f.lastLink(t))
	require.NoError(t, err)
	_, err = f.client.ExchangeCodeForSession(ctx, u.Query().Get("code"))
	require.NoError(t, err)
	require.NoError(t, f.client.SignOut(ctx))

	rec := f.do(t, http.MethodPost, "/forgot-password", ForgotPasswordRequest{Email: "a@b.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	link := f.lastLink(t)

	// The query half of the link classifies as pending exchange.
	classifyTarget := strings.TrimPrefix(strings.SplitN(link, "#", 2)[0], "https://app.test")
	rec = f.do(t, http.MethodGet, classifyTarget, nil)
	var classification ResetClassificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &classification))
	assert.Equal(t, "pending_exchange", classification.State)

	rec = f.do(t, http.MethodPost, "/reset-password", ResetPasswordRequest{
		Link:     link,
		Password: "newpassword",
		Confirm:  "newpassword",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NoError(t, f.client.SignOut(ctx))
	_, err = f.client.SignInWithPassword(ctx, "a@b.com", "newpassword")
	require.NoError(t, err)
}

func TestClassifyResetInvalidLink(t *testing.T) {
	f := newServerFixture(t)

	// Providers that redirect server-side put the error in the query.
	rec := f.do(t, http.MethodGet, "/reset-password?error=access_denied&error_code=otp_expired&error_description=Email+link+has+expired", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ResetClassificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid", resp.State)
	assert.Equal(t, "Email link has expired", resp.Message)

	// No recognizable parameters at all classifies the same way.
	rec = f.do(t, http.MethodGet, "/reset-password", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid", resp.State)
	assert.Equal(t, recovery.GenericInvalidMessage, resp.Message)
}

func TestClassifyResetPendingExchange(t *testing.T) {
	f := newServerFixture(t)
	f.signUpConfirmed(t, "a@b.com")

	rec := f.do(t, http.MethodPost, "/forgot-password", ForgotPasswordRequest{Email: "a@b.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	u, err := url.Parse(strings.SplitN(f.lastLink(t), "#", 2)[0])
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/reset-password?code="+u.Query().Get("code"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ResetClassificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending_exchange", resp.State)
}

func TestResetPasswordInvalidLink(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/reset-password", ResetPasswordRequest{
		Link:     "https://app.test/reset-password#error=access_denied&error_code=otp_expired",
		Password: "newpassword",
		Confirm:  "newpassword",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestResetPasswordValidation(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)
	f.signUp(t, "a@b.com")

	u, err := url.Parse(f.lastLink(t))
	require.NoError(t, err)
	_, err = f.client.ExchangeCodeForSession(ctx, u.Query().Get("code"))
	require.NoError(t, err)
	require.NoError(t, f.client.SignOut(ctx))

	rec := f.do(t, http.MethodPost, "/forgot-password", ForgotPasswordRequest{Email: "a@b.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/reset-password", ResetPasswordRequest{
		Link:     f.lastLink(t),
		Password: "short",
		Confirm:  "short",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Password must be 6+ characters.", resp.Error)
}

func TestSignInEndpoint(t *testing.T) {
	f := newServerFixture(t)
	f.signUpConfirmed(t, "a@b.com")

	rec := f.do(t, http.MethodPost, "/signin", SignInRequest{
		Email:    "a@b.com",
		Password: "abcdef",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var session SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.NotEmpty(t, session.ExpiresAt)
	assert.Equal(t, "a@b.com", session.User.Email)
}

func TestSignInInvalidCredentials(t *testing.T) {
	f := newServerFixture(t)
	f.signUpConfirmed(t, "a@b.com")

	tests := []struct {
		name string
		req  SignInRequest
	}{
		{"wrong password", SignInRequest{Email: "a@b.com", Password: "wrongpw"}},
		{"unknown email", SignInRequest{Email: "nobody@b.com", Password: "abcdef"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/signin", tc.req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "Invalid login credentials", resp.Error)
		})
	}
}

func TestSignInUnconfirmedEmail(t *testing.T) {
	f := newServerFixture(t)
	f.signUp(t, "a@b.com")

	rec := f.do(t, http.MethodPost, "/signin", SignInRequest{
		Email:    "a@b.com",
		Password: "abcdef",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Email not confirmed", resp.Error)
}

// TestMeEndpoint drives the whole client path over HTTP: the token handed
// out by POST /signin is what GET /me accepts.
func TestMeEndpoint(t *testing.T) {
	f := newServerFixture(t)
	f.signUpConfirmed(t, "a@b.com")

	rec := f.do(t, http.MethodPost, "/signin", SignInRequest{
		Email:    "a@b.com",
		Password: "abcdef",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var snap PrincipalSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "a@b.com", snap.Email)
	assert.Equal(t, "nightwriter", snap.Username)
	assert.True(t, snap.EmailConfirmed)
}

func TestMeWithoutToken(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// newTestUserID registers a confirmed user out of band and returns its id.
func newTestUserID(t *testing.T, f *serverFixture, email string) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	_, err := f.client.SignUp(ctx, provider.SignUpRequest{
		Email:      email,
		Password:   "abcdef",
		RedirectTo: "https://app.test/auth/callback",
	})
	require.NoError(t, err)

	u, err := url.Parse(f.lastLink(t))
	require.NoError(t, err)
	session, err := f.client.ExchangeCodeForSession(ctx, u.Query().Get("code"))
	require.NoError(t, err)
	require.NoError(t, f.client.SignOut(ctx))
	return session.Principal.ID
}
