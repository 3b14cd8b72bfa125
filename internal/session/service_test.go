package session_test

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/infra/client"
	"github.com/boddenberg/cash-console-bfa/internal/infra/observability"
	"github.com/boddenberg/cash-console-bfa/internal/infra/sessionstore"
	"github.com/boddenberg/cash-console-bfa/internal/session"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mocks ---

type mockAuth struct {
	loginResp    *domain.LoginResponse
	loginCookies []domain.StoredCookie
	loginErr     error

	refreshToken   string
	refreshCookies []domain.StoredCookie
	refreshErr     error
	refreshCalls   int32
	refreshDelay   time.Duration
	refreshSeen    [][]domain.StoredCookie
	mu             sync.Mutex

	logoutCalls int32
}

func (m *mockAuth) Login(_ context.Context, _ *domain.LoginRequest) (*domain.LoginResponse, []domain.StoredCookie, error) {
	return m.loginResp, m.loginCookies, m.loginErr
}

func (m *mockAuth) Refresh(_ context.Context, cookies []domain.StoredCookie) (*domain.RefreshResponse, []domain.StoredCookie, error) {
	atomic.AddInt32(&m.refreshCalls, 1)
	m.mu.Lock()
	m.refreshSeen = append(m.refreshSeen, cookies)
	m.mu.Unlock()
	if m.refreshDelay > 0 {
		time.Sleep(m.refreshDelay)
	}
	if m.refreshErr != nil {
		return nil, nil, m.refreshErr
	}
	return &domain.RefreshResponse{AccessToken: m.refreshToken}, m.refreshCookies, nil
}

func (m *mockAuth) Logout(context.Context, string, []domain.StoredCookie) error {
	atomic.AddInt32(&m.logoutCalls, 1)
	return nil
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func newService(auth *mockAuth) (*session.Service, *sessionstore.Memory, *observability.Metrics) {
	store := sessionstore.NewMemory(time.Hour)
	metrics := observability.NewMetrics()
	return session.NewService(auth, store, time.Hour, metrics, zap.NewNop()), store, metrics
}

// --- Tests ---

func TestLogin_UsesPayloadUser(t *testing.T) {
	auth := &mockAuth{
		loginResp: &domain.LoginResponse{
			AccessToken: "opaque",
			User:        &domain.Actor{UserID: "u-1", Name: "Ana", Roles: []domain.Role{"manager"}, BranchID: "b-1"},
		},
		loginCookies: []domain.StoredCookie{{Name: "refresh_token", Value: "r-1"}},
	}
	svc, store, _ := newService(auth)
	defer store.Close()

	sess, err := svc.Login(context.Background(), &domain.LoginRequest{Email: " Ana@Example.com ", Password: "pw"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, []domain.Role{domain.RoleManager}, sess.Actor.Roles)

	got, err := svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "r-1", got.Cookies[0].Value)

	info := svc.Info(got)
	assert.True(t, info.CanWrite)
}

func TestLogin_FallsBackToTokenClaims(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"sub":      "u-9",
		"name":     "Caja 1",
		"roles":    []string{"CASHIER"},
		"branchId": "b-7",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	svc, store, _ := newService(&mockAuth{loginResp: &domain.LoginResponse{AccessToken: token}})
	defer store.Close()

	sess, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "c@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "u-9", sess.Actor.UserID)
	assert.Equal(t, "b-7", sess.Actor.BranchID)
	assert.True(t, sess.Actor.HasRole(domain.RoleCashier))
}

func TestLogin_RejectedCredentials(t *testing.T) {
	svc, store, _ := newService(&mockAuth{loginErr: &client.APIError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}})
	defer store.Close()

	_, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "x@example.com", Password: "bad"})

	var unauth *domain.ErrUnauthorized
	require.ErrorAs(t, err, &unauth)
	assert.Equal(t, "Invalid credentials", unauth.Message)
}

func TestGet_UnknownSession(t *testing.T) {
	svc, store, _ := newService(&mockAuth{})
	defer store.Close()

	_, err := svc.Get(context.Background(), "nope")
	var unauth *domain.ErrUnauthorized
	require.ErrorAs(t, err, &unauth)
}

func TestTokenSource_RefreshPersistsRotation(t *testing.T) {
	auth := &mockAuth{
		loginResp:      &domain.LoginResponse{AccessToken: "a-1", User: &domain.Actor{UserID: "u-1", Roles: []domain.Role{domain.RoleAdmin}}},
		loginCookies:   []domain.StoredCookie{{Name: "refresh_token", Value: "r-1"}, {Name: "lang", Value: "es"}},
		refreshToken:   "a-2",
		refreshCookies: []domain.StoredCookie{{Name: "refresh_token", Value: "r-2"}},
	}
	svc, store, _ := newService(auth)
	defer store.Close()
	ctx := context.Background()

	sess, err := svc.Login(ctx, &domain.LoginRequest{Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)
	tokens := svc.Tokens(sess)

	tok, err := tokens.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a-1", tok)

	fresh, err := tokens.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a-2", fresh)

	tok, err = tokens.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a-2", tok)
	assert.Equal(t, []domain.StoredCookie{{Name: "refresh_token", Value: "r-2"}, {Name: "lang", Value: "es"}}, tokens.Cookies(ctx))
}

func TestTokenSource_RefusedRefreshReturnsEmpty(t *testing.T) {
	auth := &mockAuth{
		loginResp:  &domain.LoginResponse{AccessToken: "a-1", User: &domain.Actor{UserID: "u-1"}},
		refreshErr: &client.APIError{Status: http.StatusUnauthorized, Message: "refresh expired"},
	}
	svc, store, _ := newService(auth)
	defer store.Close()

	sess, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)

	fresh, err := svc.Tokens(sess).Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestTokenSource_ProactiveRefreshOnExpiredJWT(t *testing.T) {
	expired := signedToken(t, jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(-time.Minute).Unix()})
	auth := &mockAuth{
		loginResp:    &domain.LoginResponse{AccessToken: expired, User: &domain.Actor{UserID: "u-1"}},
		refreshToken: "a-2",
	}
	svc, store, _ := newService(auth)
	defer store.Close()

	sess, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)

	tok, err := svc.Tokens(sess).Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a-2", tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&auth.refreshCalls))
}

func TestTokenSource_ConcurrentRefreshesCollapse(t *testing.T) {
	auth := &mockAuth{
		loginResp:    &domain.LoginResponse{AccessToken: "a-1", User: &domain.Actor{UserID: "u-1"}},
		refreshToken: "a-2",
		refreshDelay: 100 * time.Millisecond,
	}
	svc, store, _ := newService(auth)
	defer store.Close()

	sess, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := svc.Tokens(sess).Refresh(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "a-2", tok)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&auth.refreshCalls))
}

func TestLogout_ForgetsSession(t *testing.T) {
	auth := &mockAuth{loginResp: &domain.LoginResponse{AccessToken: "a-1", User: &domain.Actor{UserID: "u-1"}}}
	svc, store, _ := newService(auth)
	defer store.Close()
	ctx := context.Background()

	sess, err := svc.Login(ctx, &domain.LoginRequest{Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, sess.ID))
	assert.Equal(t, int32(1), atomic.LoadInt32(&auth.logoutCalls))

	_, err = svc.Get(ctx, sess.ID)
	var unauth *domain.ErrUnauthorized
	require.ErrorAs(t, err, &unauth)
}
