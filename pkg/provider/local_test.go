package provider

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ventura-app/ventura-auth/pkg/notification"
)

func newTestClient(t *testing.T) (*LocalClient, *notification.MockNotifier) {
	t.Helper()

	mock := &notification.MockNotifier{}
	nm := notification.NewNotificationManager()
	nm.RegisterNotifier(notification.EmailSystem, mock)
	require.NoError(t, notification.RegisterDefaults(nm))

	client := NewLocalClient(WithNotificationManager(nm))
	return client, mock
}

// lastLink extracts the link from the most recent notification.
func lastLink(t *testing.T, mock *notification.MockNotifier) string {
	t.Helper()
	sent := mock.Sent()
	require.NotEmpty(t, sent)
	link := sent[len(sent)-1].Data["Link"]
	require.NotEmpty(t, link)
	return link
}

// codeFromLink pulls the code query parameter out of a confirmation or
// recovery link.
func codeFromLink(t *testing.T, link string) string {
	t.Helper()
	// Strip the fragment before parsing the query.
	if i := strings.Index(link, "#"); i >= 0 {
		link = link[:i]
	}
	u, err := url.Parse(link)
	require.NoError(t, err)
	code := u.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func TestSignUpAndConfirm(t *testing.T) {
	ctx := context.Background()
	client, mock := newTestClient(t)

	principal, err := client.SignUp(ctx, SignUpRequest{
		Email:    "a@b.com",
		Password: "abcdef",
		Metadata: UserMetadata{
			Username:    "shp3nd",
			DisplayName: "Shpend",
			Intent:      "testing",
		},
		RedirectTo: "https://app.test/auth/callback?next=/dashboard",
	})
	require.NoError(t, err)
	require.NotNil(t, principal)
	assert.Equal(t, "a@b.com", principal.Email)
	assert.Equal(t, "shp3nd", principal.Metadata.Username)
	assert.Nil(t, principal.EmailConfirmedAt)

	// No session before confirmation.
	session, err := client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	// Sign-in before confirmation is rejected.
	_, err = client.SignInWithPassword(ctx, "a@b.com", "abcdef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not confirmed")

	var events []AuthEvent
	sub := client.OnAuthStateChange(func(event AuthEvent, _ *Session) {
		events = append(events, event)
	})
	defer sub.Unsubscribe()

	code := codeFromLink(t, lastLink(t, mock))
	session, err = client.ExchangeCodeForSession(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.NotNil(t, session.Principal.EmailConfirmedAt)
	assert.Equal(t, []AuthEvent{EventSignedIn}, events)

	// Codes are one-time.
	_, err = client.ExchangeCodeForSession(ctx, code)
	require.Error(t, err)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	client, mock := newTestClient(t)

	req := SignUpRequest{
		Email:      "dup@b.com",
		Password:   "abcdef",
		RedirectTo: "https://app.test/auth/callback",
	}
	_, err := client.SignUp(ctx, req)
	require.NoError(t, err)

	// Unconfirmed: sign-up again acts as a resend, not an error.
	_, err = client.SignUp(ctx, req)
	require.NoError(t, err)
	assert.Len(t, mock.Sent(), 2)

	code := codeFromLink(t, lastLink(t, mock))
	_, err = client.ExchangeCodeForSession(ctx, code)
	require.NoError(t, err)

	// Confirmed: now it is a conflict, detectable by substring.
	_, err = client.SignUp(ctx, req)
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "already registered")
}

func TestSignUpWeakPassword(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.SignUp(context.Background(), SignUpRequest{
		Email:    "weak@b.com",
		Password: "short",
	})
	require.Error(t, err)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, ErrCodeWeakPassword, authErr.Code)
}

func TestRecoveryCodeExchange(t *testing.T) {
	ctx := context.Background()
	client, mock := newTestClient(t)

	signUpAndConfirm(t, client, mock, "rec@b.com", "abcdef")
	require.NoError(t, client.SignOut(ctx))

	var events []AuthEvent
	sub := client.OnAuthStateChange(func(event AuthEvent, _ *Session) {
		events = append(events, event)
	})
	defer sub.Unsubscribe()

	require.NoError(t, client.ResetPasswordForEmail(ctx, "rec@b.com", "https://app.test/reset-password"))

	link := lastLink(t, mock)
	assert.Contains(t, link, "#access_token=")
	assert.Contains(t, link, "type=recovery")

	code := codeFromLink(t, link)
	session, err := client.ExchangeCodeForSession(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, []AuthEvent{EventSignedIn, EventPasswordRecovery}, events)

	// With the recovery session, the password can be updated.
	newPw := "newpassword"
	_, err = client.UpdateUser(ctx, UpdateUserRequest{Password: &newPw})
	require.NoError(t, err)

	require.NoError(t, client.SignOut(ctx))
	_, err = client.SignInWithPassword(ctx, "rec@b.com", "newpassword")
	require.NoError(t, err)
}

func TestRecoveryLegacyTokenPair(t *testing.T) {
	ctx := context.Background()
	client, mock := newTestClient(t)

	signUpAndConfirm(t, client, mock, "legacy@b.com", "abcdef")
	require.NoError(t, client.SignOut(ctx))
	require.NoError(t, client.ResetPasswordForEmail(ctx, "legacy@b.com", "https://app.test/reset-password"))

	link := lastLink(t, mock)
	frag := link[strings.Index(link, "#")+1:]
	values, err := url.ParseQuery(frag)
	require.NoError(t, err)

	access := values.Get("access_token")
	refresh := values.Get("refresh_token")
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	session, err := client.SetSession(ctx, access, refresh)
	require.NoError(t, err)
	require.NotNil(t, session)

	// The pair is one-time.
	_, err = client.SetSession(ctx, access, refresh)
	require.Error(t, err)
}

func TestResetPasswordUnknownEmail(t *testing.T) {
	client, mock := newTestClient(t)

	require.NoError(t, client.ResetPasswordForEmail(context.Background(), "nobody@b.com", "https://app.test/reset-password"))
	assert.Empty(t, mock.Sent())
}

func TestExpiredCodeRejected(t *testing.T) {
	ctx := context.Background()
	mock := &notification.MockNotifier{}
	nm := notification.NewNotificationManager()
	nm.RegisterNotifier(notification.EmailSystem, mock)
	require.NoError(t, notification.RegisterDefaults(nm))

	client := NewLocalClient(
		WithNotificationManager(nm),
		WithCodeExpiry(-time.Minute),
	)

	_, err := client.SignUp(ctx, SignUpRequest{Email: "exp@b.com", Password: "abcdef", RedirectTo: "https://app.test/cb"})
	require.NoError(t, err)

	code := codeFromLink(t, lastLink(t, mock))
	_, err = client.ExchangeCodeForSession(ctx, code)
	require.Error(t, err)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, ErrCodeInvalidToken, authErr.Code)
}

func TestUpdateUserWithoutSession(t *testing.T) {
	client, _ := newTestClient(t)

	pw := "whatever1"
	_, err := client.UpdateUser(context.Background(), UpdateUserRequest{Password: &pw})
	require.ErrorIs(t, err, ErrNoSession)
}

func TestUpdateUserMetadataMerge(t *testing.T) {
	ctx := context.Background()
	client, mock := newTestClient(t)

	signUpAndConfirm(t, client, mock, "meta@b.com", "abcdef")

	principal, err := client.UpdateUser(ctx, UpdateUserRequest{
		Metadata: &UserMetadata{Intent: "night journaling"},
	})
	require.NoError(t, err)
	assert.Equal(t, "night journaling", principal.Metadata.Intent)
	// Untouched fields survive the merge.
	assert.Equal(t, "meta", principal.Metadata.Username)
}

func signUpAndConfirm(t *testing.T, client *LocalClient, mock *notification.MockNotifier, email, password string) {
	t.Helper()
	ctx := context.Background()

	username := email[:strings.Index(email, "@")]
	_, err := client.SignUp(ctx, SignUpRequest{
		Email:      email,
		Password:   password,
		Metadata:   UserMetadata{Username: username, DisplayName: username},
		RedirectTo: "https://app.test/auth/callback?next=/dashboard",
	})
	require.NoError(t, err)

	code := codeFromLink(t, lastLink(t, mock))
	_, err = client.ExchangeCodeForSession(ctx, code)
	require.NoError(t, err)
}
