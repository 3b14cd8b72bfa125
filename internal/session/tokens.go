package session

import (
	"context"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/domain"

	"go.uber.org/zap"
)

// expirySkew refreshes a little before the token actually lapses.
const expirySkew = 5 * time.Second

// TokenSource is bound to one session id. It reads the session from the
// store on every call, so all controllers of a session see a refresh done
// by any of them.
type TokenSource struct {
	svc *Service
	id  string
}

// Tokens returns the token capability for sess.
func (s *Service) Tokens(sess *domain.Session) *TokenSource {
	return &TokenSource{svc: s, id: sess.ID}
}

// Token returns the stored access token, refreshing first when its exp
// claim has already passed. An opaque token is used as is.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	sess, err := t.svc.Get(ctx, t.id)
	if err != nil {
		return "", err
	}

	exp, ok := tokenExpiry(sess.AccessToken)
	if !ok || t.svc.now().Add(expirySkew).Before(exp) {
		return sess.AccessToken, nil
	}

	fresh, err := t.svc.refresh(ctx, t.id)
	if err != nil || fresh == "" {
		// let the request go out; its 401 gets the regular single refresh
		t.svc.logger.Debug("proactive refresh skipped",
			zap.String("session_id", t.id),
			zap.Error(err),
		)
		return sess.AccessToken, nil
	}
	return fresh, nil
}

// Refresh asks the backend for a new access token. It returns "" when the
// backend refuses.
func (t *TokenSource) Refresh(ctx context.Context) (string, error) {
	return t.svc.refresh(ctx, t.id)
}

// Cookies returns the backend cookies held for the session.
func (t *TokenSource) Cookies(ctx context.Context) []domain.StoredCookie {
	sess, err := t.svc.store.Get(ctx, t.id)
	if err != nil || sess == nil {
		return nil
	}
	return sess.Cookies
}
