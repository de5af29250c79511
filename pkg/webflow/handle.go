package webflow

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/render"
	"github.com/jinzhu/copier"
	"github.com/ventura-app/ventura-auth/pkg/finalize"
	"github.com/ventura-app/ventura-auth/pkg/intentcache"
	"github.com/ventura-app/ventura-auth/pkg/profiles"
	"github.com/ventura-app/ventura-auth/pkg/provider"
	"github.com/ventura-app/ventura-auth/pkg/recovery"
	"github.com/ventura-app/ventura-auth/pkg/sessionprobe"
	"github.com/ventura-app/ventura-auth/pkg/signupflow"
)

// Handle serves the auth flow endpoints.
type Handle struct {
	client     provider.Client
	cache      intentcache.Store
	profiles   *profiles.Service
	probe      *sessionprobe.Probe
	reconciler *finalize.Reconciler

	// baseURL is the externally visible origin used in emailed links.
	baseURL string
}

// Option configures a Handle.
type Option func(*Handle)

// WithBaseURL sets the origin used to build redirect targets in emails.
func WithBaseURL(baseURL string) Option {
	return func(h *Handle) {
		h.baseURL = baseURL
	}
}

// WithReconciler attaches the finalization reconciler run after a
// confirmation exchange.
func WithReconciler(r *finalize.Reconciler) Option {
	return func(h *Handle) {
		h.reconciler = r
	}
}

// NewHandle wires the auth flow handlers.
func NewHandle(client provider.Client, cache intentcache.Store, profileService *profiles.Service, opts ...Option) *Handle {
	h := &Handle{
		client:   client,
		cache:    cache,
		profiles: profileService,
		probe:    sessionprobe.New(client),
		baseURL:  "http://localhost:4000",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SignUp handles POST /signup.
func (h *Handle) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	if msg, ok := h.validateSignUp(r, &req); !ok {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: msg})
		return
	}

	// Record the pending sign-up before the provider call; the user may
	// still receive and click the email even if this request fails.
	if err := h.cache.Save(r.Context(), req.Email, req.Intent); err != nil {
		slog.Warn("Failed to record pending signup", "email", req.Email, "error", err)
	}

	principal, err := h.client.SignUp(r.Context(), provider.SignUpRequest{
		Email:    req.Email,
		Password: req.Password,
		Metadata: provider.UserMetadata{
			Username:    req.Username,
			DisplayName: req.DisplayName,
			Intent:      req.Intent,
		},
		RedirectTo: h.baseURL + "/auth/callback?next=/dashboard",
	})
	if err != nil {
		if signupflow.IsRegisteredConflict(err) {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, ErrorResponse{Error: signupflow.SignInInsteadNotice})
			return
		}
		slog.Error("Failed to register user", "email", req.Email, "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "Failed to register user"})
		return
	}

	if err := h.cache.MarkSent(r.Context(), req.Email); err != nil {
		slog.Warn("Failed to mark confirmation link as sent", "email", req.Email, "error", err)
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SignUpResponse{
		Message: "Confirmation email sent",
		User:    snapshot(principal),
	})
}

// SignIn handles POST /signin. It returns the session tokens clients use
// on authenticated endpoints.
func (h *Handle) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	session, err := h.client.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		var authErr *provider.AuthError
		if errors.As(err, &authErr) && authErr.Code == provider.ErrCodeInvalidCredentials {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, ErrorResponse{Error: authErr.Message})
			return
		}
		slog.Error("Failed to sign in user", "email", req.Email, "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "Failed to sign in"})
		return
	}

	render.JSON(w, r, SessionResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt.Format(time.RFC3339),
		User:         snapshot(&session.Principal),
	})
}

func (h *Handle) validateSignUp(r *http.Request, req *SignUpRequest) (string, bool) {
	if !signupflow.ValidEmail(req.Email) {
		return signupflow.MsgInvalidEmail, false
	}
	if len(req.Password) < 6 {
		return signupflow.MsgPasswordTooShort, false
	}
	if req.Confirm != req.Password {
		return signupflow.MsgPasswordMismatch, false
	}
	if req.DisplayName == "" {
		return signupflow.MsgDisplayNameRequired, false
	}
	req.Username = signupflow.NormalizeUsername(req.Username)
	if len(req.Username) < 3 {
		return signupflow.MsgUsernameTooShort, false
	}
	available, err := h.profiles.IsUsernameAvailable(r.Context(), req.Username)
	if err != nil {
		slog.Error("Failed to check username availability", "username", req.Username, "error", err)
		return "Failed to check username availability", false
	}
	if !available {
		return signupflow.MsgUsernameUnavailable, false
	}
	return "", true
}

// UsernameCheck handles GET /signup/username-check?u=.
func (h *Handle) UsernameCheck(w http.ResponseWriter, r *http.Request) {
	username := signupflow.NormalizeUsername(r.URL.Query().Get("u"))
	if len(username) < 3 {
		render.JSON(w, r, UsernameCheckResponse{Username: username, Available: false})
		return
	}

	available, err := h.profiles.IsUsernameAvailable(r.Context(), username)
	if err != nil {
		slog.Error("Failed to check username availability", "username", username, "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "Failed to check username availability"})
		return
	}
	render.JSON(w, r, UsernameCheckResponse{Username: username, Available: available})
}

// AuthCallback handles GET /auth/callback?code&next. It exchanges the
// confirmation code, runs finalization, and redirects to next.
func (h *Handle) AuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	next := r.URL.Query().Get("next")
	if next == "" || !isLocalRoute(next) {
		next = "/dashboard"
	}

	if code == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if _, err := h.client.ExchangeCodeForSession(r.Context(), code); err != nil {
		slog.Error("Failed to exchange confirmation code", "error", err)
		http.Redirect(w, r, "/?auth=error", http.StatusSeeOther)
		return
	}

	if h.reconciler != nil {
		if _, err := h.reconciler.Run(r.Context(), r.URL.Path); err != nil {
			slog.Error("Finalization failed", "error", err)
		}
	}

	http.Redirect(w, r, next, http.StatusSeeOther)
}

// ForgotPassword handles POST /forgot-password. It always answers 200 so
// the response does not reveal whether the email has an account.
func (h *Handle) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if !signupflow.ValidEmail(req.Email) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: signupflow.MsgInvalidEmail})
		return
	}

	if err := h.client.ResetPasswordForEmail(r.Context(), req.Email, h.baseURL+"/reset-password"); err != nil {
		slog.Error("Failed to issue recovery email", "error", err)
	}
	render.JSON(w, r, MessageResponse{Message: "If that email has an account, a reset link is on its way"})
}

// ClassifyReset handles GET /reset-password. It reports what the link in
// the query would do without consuming anything.
func (h *Handle) ClassifyReset(w http.ResponseWriter, r *http.Request) {
	params := recovery.ParseParams(r.URL.String())

	session, err := h.probe.CurrentSession(r.Context())
	if err != nil {
		slog.Error("Failed to read session", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "Failed to read session"})
		return
	}

	resp := ResetClassificationResponse{}
	switch c := recovery.Classify(params, session != nil).(type) {
	case recovery.Invalid:
		resp.State = "invalid"
		resp.Message = c.Message
	case recovery.Ready:
		resp.State = "ready"
	case recovery.PendingCodeExchange, recovery.PendingTokenExchange:
		resp.State = "pending_exchange"
	}
	render.JSON(w, r, resp)
}

// ResetPassword handles POST /reset-password. It drives the recovery flow
// end to end: classify the link, exchange if needed, then update the
// password.
func (h *Handle) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	flow := recovery.NewFlow(h.client, h.probe)
	defer flow.Close()
	flow.Start(r.Context(), req.Link)

	if state, msg := flow.State(); state == recovery.StateInvalid {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, ErrorResponse{Error: msg})
		return
	}

	if err := flow.SubmitPassword(r.Context(), req.Password, req.Confirm); err != nil {
		var vErr recovery.ValidationError
		switch {
		case errors.As(err, &vErr):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: vErr.Message})
		case errors.Is(err, recovery.ErrNotReady):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, ErrorResponse{Error: "Reset link is not ready for a password update"})
		default:
			slog.Error("Failed to update password", "error", err)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, ErrorResponse{Error: "Failed to update password"})
		}
		return
	}

	render.JSON(w, r, MessageResponse{Message: "Password updated"})
}

// Me handles GET /me behind the JWT middleware.
func (h *Handle) Me(w http.ResponseWriter, r *http.Request) {
	principal, err := h.probe.CurrentUser(r.Context())
	if err != nil {
		slog.Error("Failed to read principal", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "Failed to read principal"})
		return
	}
	if principal == nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "Unauthorized"})
		return
	}
	render.JSON(w, r, snapshot(principal))
}

func snapshot(principal *provider.Principal) PrincipalSnapshot {
	var snap PrincipalSnapshot
	if err := copier.Copy(&snap, principal); err != nil {
		slog.Warn("Failed to copy principal fields", "error", err)
	}
	snap.ID = principal.ID.String()
	snap.Username = principal.Metadata.Username
	snap.DisplayName = principal.Metadata.DisplayName
	snap.Intent = principal.Metadata.Intent
	snap.EmailConfirmed = principal.EmailConfirmedAt != nil
	if principal.EmailConfirmedAt != nil {
		at := principal.EmailConfirmedAt.Format(time.RFC3339)
		snap.ConfirmedAt = &at
	}
	return snap
}

// isLocalRoute rejects absolute redirect targets so the callback cannot be
// used as an open redirector.
func isLocalRoute(next string) bool {
	u, err := url.Parse(next)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == "" && len(next) > 0 && next[0] == '/'
}
