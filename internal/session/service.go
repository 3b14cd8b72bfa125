// Package session owns the BFA side of authentication: it logs operators
// in against the backend, keeps their access token and backend cookies in
// a SessionStore, and hands the API client a TokenSource bound to one
// session.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/infra/client"
	"github.com/boddenberg/cash-console-bfa/internal/infra/observability"
	"github.com/boddenberg/cash-console-bfa/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("session")

// Service orchestrates login, logout and token refresh.
type Service struct {
	auth    port.AuthAPI
	store   port.SessionStore
	ttl     time.Duration
	now     func() time.Time
	metrics *observability.Metrics
	logger  *zap.Logger

	// refreshes collapses concurrent refreshes of the same session: the
	// backend rotates the refresh cookie, so a second parallel exchange
	// would present an already-spent cookie.
	refreshes singleflight.Group
}

// NewService creates a session service. ttl bounds how long a session
// lives without a new login.
func NewService(auth port.AuthAPI, store port.SessionStore, ttl time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		auth:    auth,
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		metrics: metrics,
		logger:  logger,
	}
}

// ============================================================
// Login
// ============================================================

func (s *Service) Login(ctx context.Context, req *domain.LoginRequest) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Session.Login")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "credentials", Message: "email and password are required"}
	}

	resp, cookies, err := s.auth.Login(ctx, &domain.LoginRequest{Email: email, Password: req.Password})
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusBadRequest) {
			s.metrics.IncrLogin("rejected")
			s.logger.Info("login rejected", zap.String("email", email), zap.Int("status", apiErr.Status))
			return nil, &domain.ErrUnauthorized{Message: apiErr.Message}
		}
		s.metrics.IncrLogin("error")
		return nil, fmt.Errorf("login: %w", err)
	}
	if resp.AccessToken == "" {
		s.metrics.IncrLogin("error")
		return nil, &domain.ErrUnauthorized{Message: "backend issued no access token"}
	}

	actor, err := resolveActor(resp)
	if err != nil {
		s.metrics.IncrLogin("error")
		return nil, err
	}

	now := s.now()
	sess := &domain.Session{
		ID:          uuid.NewString(),
		Actor:       actor,
		AccessToken: resp.AccessToken,
		Cookies:     cookies,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.store.Save(ctx, sess); err != nil {
		s.metrics.IncrLogin("error")
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.metrics.IncrLogin("success")
	span.SetAttributes(attribute.String("session.user_id", actor.UserID))
	s.logger.Info("login",
		zap.String("user_id", actor.UserID),
		zap.String("branch_id", actor.BranchID),
		zap.Any("roles", actor.Roles),
	)
	return sess, nil
}

// ============================================================
// Lookup / logout
// ============================================================

// Get returns the live session with the given id, or ErrUnauthorized.
func (s *Service) Get(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, &domain.ErrUnauthorized{Message: "no session"}
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || !s.now().Before(sess.ExpiresAt) {
		return nil, &domain.ErrUnauthorized{Message: "session expired"}
	}
	return sess, nil
}

// Info is the browser-safe view of a session.
func (s *Service) Info(sess *domain.Session) domain.SessionInfo {
	return domain.SessionInfo{
		Actor:     sess.Actor,
		CanWrite:  sess.Actor.CanWrite(),
		ExpiresAt: sess.ExpiresAt,
	}
}

// Logout revokes the backend session best-effort and forgets the local one.
func (s *Service) Logout(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Session.Logout")
	defer span.End()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil
	}

	if err := s.auth.Logout(ctx, sess.AccessToken, sess.Cookies); err != nil {
		s.logger.Warn("backend logout failed", zap.String("user_id", sess.Actor.UserID), zap.Error(err))
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ============================================================
// Refresh
// ============================================================

// refresh exchanges the session's cookies for a new access token. It
// returns "" when the backend refuses (expired or revoked cookie).
func (s *Service) refresh(ctx context.Context, id string) (string, error) {
	v, err, shared := s.refreshes.Do(id, func() (any, error) {
		return s.doRefresh(ctx, id)
	})
	if shared {
		s.logger.Debug("refresh shared with concurrent caller", zap.String("session_id", id))
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Service) doRefresh(ctx context.Context, id string) (string, error) {
	ctx, span := tracer.Start(ctx, "Session.Refresh")
	defer span.End()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return "", nil
	}

	resp, cookies, err := s.auth.Refresh(ctx, sess.Cookies)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			s.logger.Info("refresh refused",
				zap.String("user_id", sess.Actor.UserID),
				zap.Int("status", apiErr.Status),
			)
			return "", nil
		}
		return "", fmt.Errorf("refresh: %w", err)
	}
	if resp.AccessToken == "" {
		return "", nil
	}

	sess.AccessToken = resp.AccessToken
	sess.Cookies = mergeCookies(sess.Cookies, cookies)
	if err := s.store.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return resp.AccessToken, nil
}

// mergeCookies overlays rotated cookies on the stored ones by name.
func mergeCookies(stored, rotated []domain.StoredCookie) []domain.StoredCookie {
	if len(rotated) == 0 {
		return stored
	}
	out := make([]domain.StoredCookie, 0, len(stored)+len(rotated))
	replaced := make(map[string]domain.StoredCookie, len(rotated))
	for _, ck := range rotated {
		replaced[ck.Name] = ck
	}
	for _, ck := range stored {
		if r, ok := replaced[ck.Name]; ok {
			out = append(out, r)
			delete(replaced, ck.Name)
			continue
		}
		out = append(out, ck)
	}
	for _, ck := range rotated {
		if _, ok := replaced[ck.Name]; ok {
			out = append(out, ck)
		}
	}
	// an empty value is the backend clearing the cookie
	kept := out[:0]
	for _, ck := range out {
		if ck.Value != "" {
			kept = append(kept, ck)
		}
	}
	return kept
}
