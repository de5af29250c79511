package webflow

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
)

// Routes mounts the auth flow endpoints on r. Everything is public except
// /me, which sits behind the JWT verifier.
func Routes(r chi.Router, h *Handle, jwtAuth *jwtauth.JWTAuth) {
	r.Post("/signup", h.SignUp)
	r.Post("/signin", h.SignIn)
	r.Get("/signup/username-check", h.UsernameCheck)
	r.Get("/auth/callback", h.AuthCallback)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Get("/reset-password", h.ClassifyReset)
	r.Post("/reset-password", h.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(jwtAuth))
		r.Use(jwtauth.Authenticator(jwtAuth))
		r.Get("/me", h.Me)
	})
}
