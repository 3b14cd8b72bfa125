package domain

import "time"

// ============================================================
// Auth: requests and responses exchanged with the backend
// ============================================================

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the backend's answer to a successful login. The refresh
// token travels separately as an httpOnly cookie.
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	User        *Actor `json:"user,omitempty"`
}

// RefreshResponse is the backend's answer to POST /auth/refresh.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// SessionInfo is what the BFA exposes to the browser about its session.
// Tokens never leave the BFA.
type SessionInfo struct {
	Actor     Actor     `json:"actor"`
	CanWrite  bool      `json:"canWrite"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StoredCookie is a backend cookie (the refresh cookie, mostly) kept on
// behalf of the browser so it can ride along every backend call.
type StoredCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Path  string `json:"path,omitempty"`
}

// Session is the BFA-side state of one logged-in operator.
type Session struct {
	ID          string         `json:"id"`
	Actor       Actor          `json:"actor"`
	AccessToken string         `json:"accessToken"`
	Cookies     []StoredCookie `json:"cookies"`
	CreatedAt   time.Time      `json:"createdAt"`
	ExpiresAt   time.Time      `json:"expiresAt"`
}
