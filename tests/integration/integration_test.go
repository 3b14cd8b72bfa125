package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/fakebackend"
	"github.com/boddenberg/cash-console-bfa/internal/handler"
	"github.com/boddenberg/cash-console-bfa/internal/infra/client"
	"github.com/boddenberg/cash-console-bfa/internal/infra/observability"
	"github.com/boddenberg/cash-console-bfa/internal/infra/resilience"
	"github.com/boddenberg/cash-console-bfa/internal/infra/sessionstore"
	"github.com/boddenberg/cash-console-bfa/internal/service"
	"github.com/boddenberg/cash-console-bfa/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stack is the BFA wired exactly like cmd/bfa, with a Redis session store
// and the fake backend behind it.
type stack struct {
	fake    *fakebackend.Server
	metrics *observability.Metrics
	url     string
}

func newStack(t *testing.T) *stack {
	t.Helper()

	fake := fakebackend.New()
	fake.AddUser("admin@example.com", "pw", domain.Actor{UserID: "u-admin", Name: "Admin", Roles: []domain.Role{domain.RoleSuperAdmin}})
	fake.AddUser("manager@example.com", "pw", domain.Actor{UserID: "u-mgr", Name: "Gerente", Roles: []domain.Role{domain.RoleManager}, BranchID: "centro"})
	backend := httptest.NewServer(fake.Handler())
	t.Cleanup(backend.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := sessionstore.NewRedis(rdb, time.Hour)
	t.Cleanup(func() { store.Close() })

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cb := resilience.NewCircuitBreaker("backend", resilience.DefaultConfig(), client.IsBackendFailure)
	api := client.New(&http.Client{Timeout: 5 * time.Second}, backend.URL, cb, resilience.NewBulkhead(20), metrics, logger)

	sessions := session.NewService(client.NewAuthClient(api), store, time.Hour, metrics, logger)
	console := service.NewConsole(sessions, api, service.ConsoleConfig{
		ControllerTTL: time.Hour,
		CategoryTTL:   time.Minute,
	}, metrics, logger)
	t.Cleanup(console.Close)

	bfa := httptest.NewServer(handler.NewRouter(console, handler.Options{Ready: store.Ping}, metrics, logger))
	t.Cleanup(bfa.Close)

	return &stack{fake: fake, metrics: metrics, url: bfa.URL}
}

type operator struct {
	t    *testing.T
	http *http.Client
	url  string
}

func (s *stack) login(t *testing.T, email string) *operator {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	op := &operator{t: t, http: &http.Client{Jar: jar}, url: s.url}

	status := op.do(http.MethodPost, "/v1/session/login", map[string]string{"email": email, "password": "pw"}, nil)
	require.Equal(t, http.StatusOK, status)
	return op
}

func (o *operator) do(method, path string, body, out any) int {
	o.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(o.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, o.url+path, &buf)
	require.NoError(o.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	require.NoError(o.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(o.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type cashView struct {
	DateKey string              `json:"dateKey"`
	Day     *domain.CashDay     `json:"day"`
	Summary *domain.CashSummary `json:"summary"`
	Options struct {
		AllowOverride bool   `json:"allowOverride"`
		BranchScope   string `json:"branchScope"`
	} `json:"options"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// TestIntegration_FullDay walks a manager through opening, recording and a
// mismatched close, then an admin overriding the close on that branch.
func TestIntegration_FullDay(t *testing.T) {
	s := newStack(t)
	manager := s.login(t, "manager@example.com")

	var v cashView
	require.Equal(t, http.StatusOK, manager.do(http.MethodGet, "/v1/cash-day?branch=elsewhere", nil, &v))
	assert.Equal(t, "centro", v.Options.BranchScope)
	assert.False(t, v.Options.AllowOverride)
	assert.Nil(t, v.Day)

	require.Equal(t, http.StatusCreated, manager.do(http.MethodPost, "/v1/cash-day/open", map[string]string{"openingCash": "1000.00"}, &v))
	require.Equal(t, http.StatusCreated, manager.do(http.MethodPost, "/v1/cash-day/movements", map[string]string{
		"type": "INCOME", "method": "CASH", "amount": "500.50", "concept": "Banquete",
	}, &v))
	require.Equal(t, http.StatusCreated, manager.do(http.MethodPost, "/v1/cash-day/movements", map[string]string{
		"type": "EXPENSE", "method": "CASH", "amount": "120", "concept": "Hielo", "categoryId": "cat-supplies",
	}, &v))
	require.NotNil(t, v.Summary)
	assert.Equal(t, "1380.5", v.Summary.ExpectedCash.String())

	assert.Equal(t, http.StatusUnprocessableEntity, manager.do(http.MethodPost, "/v1/cash-day/close", map[string]string{"countedCash": "1300"}, nil))

	admin := s.login(t, "admin@example.com")
	require.Equal(t, http.StatusOK, admin.do(http.MethodGet, "/v1/cash-day?branch=centro", nil, &v))
	require.NotNil(t, v.Day)
	assert.True(t, v.Options.AllowOverride)

	require.Equal(t, http.StatusOK, admin.do(http.MethodPost, "/v1/cash-day/close?branch=centro", map[string]any{
		"countedCash": "1300", "adminOverride": true, "closeNote": "short 80.50",
	}, &v))
	assert.Equal(t, domain.CashDayClosed, v.Day.Status)
	require.NotNil(t, v.Day.DiffCash)
	assert.Equal(t, "-80.5", v.Day.DiffCash.String())

	var mv cashView
	require.Equal(t, http.StatusOK, manager.do(http.MethodGet, "/v1/cash-day", nil, &mv))
	assert.Equal(t, domain.CashDayClosed, mv.Day.Status)
	assert.Equal(t, 1.0, s.metrics.CashOperations("close_day", "success"))
}

// TestIntegration_RevokedAccessTokenRefreshes checks that a backend-side
// token revocation is absorbed by one refresh and never reaches the browser.
func TestIntegration_RevokedAccessTokenRefreshes(t *testing.T) {
	s := newStack(t)
	manager := s.login(t, "manager@example.com")

	require.Equal(t, http.StatusOK, manager.do(http.MethodGet, "/v1/cash-day", nil, nil))
	require.Equal(t, 0, s.fake.Hits("POST /auth/refresh"))

	s.fake.RevokeAccessTokens()

	var v cashView
	require.Equal(t, http.StatusOK, manager.do(http.MethodGet, "/v1/cash-day", nil, &v))
	assert.Nil(t, v.Error)
	assert.GreaterOrEqual(t, s.fake.Hits("POST /auth/refresh"), 1)
	assert.GreaterOrEqual(t, s.metrics.TokenRefreshes("success"), 1.0)

	refreshes := s.fake.Hits("POST /auth/refresh")
	require.Equal(t, http.StatusOK, manager.do(http.MethodGet, "/v1/cash-day", nil, nil))
	assert.Equal(t, refreshes, s.fake.Hits("POST /auth/refresh"), "the rotated token must be reused")
}

// TestIntegration_RefusedRefreshEndsSession checks that once the backend
// refuses the refresh cookie the browser is told to log in again.
func TestIntegration_RefusedRefreshEndsSession(t *testing.T) {
	s := newStack(t)
	manager := s.login(t, "manager@example.com")
	require.Equal(t, http.StatusOK, manager.do(http.MethodGet, "/v1/cash-day", nil, nil))

	s.fake.RevokeRefreshTokens()
	s.fake.RevokeAccessTokens()

	assert.Equal(t, http.StatusUnauthorized, manager.do(http.MethodGet, "/v1/cash-day", nil, nil))
	assert.GreaterOrEqual(t, s.metrics.TokenRefreshes("refused"), 1.0)
}

func TestIntegration_LogoutDropsSession(t *testing.T) {
	s := newStack(t)
	manager := s.login(t, "manager@example.com")

	require.Equal(t, http.StatusNoContent, manager.do(http.MethodPost, "/v1/session/logout", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, manager.do(http.MethodGet, "/v1/cash-day", nil, nil))
	assert.Equal(t, 1, s.fake.Hits("POST /auth/logout"))
}

func TestIntegration_Probes(t *testing.T) {
	s := newStack(t)

	resp, err := http.Get(s.url + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health domain.HealthStatus
	resp, err = http.Get(s.url + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	require.Len(t, health.Services, 1)
	assert.Equal(t, "backend", health.Services[0].Name)
}
