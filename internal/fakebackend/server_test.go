package fakebackend_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/fakebackend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	t     *testing.T
	srv   *httptest.Server
	token string
}

func start(t *testing.T, actor domain.Actor) (*fakebackend.Server, *backend) {
	t.Helper()
	fb := fakebackend.New()
	fb.AddUser("ana@example.com", "secret", actor)
	srv := httptest.NewServer(fb.Handler())
	t.Cleanup(srv.Close)

	b := &backend{t: t, srv: srv}
	resp := b.call(http.MethodPost, "/auth/login", map[string]string{"email": "ana@example.com", "password": "secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login domain.LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	b.token = login.AccessToken
	return fb, b
}

func (b *backend) call(method, path string, body any) *http.Response {
	b.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(b.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, b.srv.URL+path, &buf)
	require.NoError(b.t, err)
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

var cashier = domain.Actor{UserID: "u-1", Name: "Ana", Roles: []domain.Role{domain.RoleCashier}, BranchID: "b-1"}

func TestLedger_CloseRequiresOverrideOnMismatch(t *testing.T) {
	_, b := start(t, cashier)

	assert.Equal(t, http.StatusNoContent, b.call(http.MethodGet, "/cash/days/2026-10-17", nil).StatusCode)
	assert.Equal(t, http.StatusCreated, b.call(http.MethodPost, "/cash/days", map[string]any{"dateKey": "2026-10-17", "openingCash": 100}).StatusCode)
	assert.Equal(t, http.StatusConflict, b.call(http.MethodPost, "/cash/days", map[string]any{"dateKey": "2026-10-17", "openingCash": 100}).StatusCode)
	assert.Equal(t, http.StatusCreated, b.call(http.MethodPost, "/cash/days/2026-10-17/movements",
		map[string]any{"type": "EXPENSE", "method": "CASH", "amount": 30, "concept": "Ice"}).StatusCode)

	resp := b.call(http.MethodPost, "/cash/days/2026-10-17/close", map[string]any{"countedCash": 60})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = b.call(http.MethodPost, "/cash/days/2026-10-17/close", map[string]any{"countedCash": 60, "adminOverride": true})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = b.call(http.MethodPost, "/cash/days/2026-10-17/close", map[string]any{"countedCash": 70})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var day domain.CashDay
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&day))
	assert.Equal(t, domain.CashDayClosed, day.Status)
	assert.True(t, day.DiffCash.IsZero())
}

func TestSales_OrderRecordsAndVoidsIncome(t *testing.T) {
	_, b := start(t, cashier)
	require.Equal(t, http.StatusCreated, b.call(http.MethodPost, "/cash/days", map[string]any{"dateKey": "2026-10-17", "openingCash": 0}).StatusCode)

	resp := b.call(http.MethodPost, "/orders", map[string]any{
		"dateKey":       "2026-10-17",
		"paymentMethod": "CASH",
		"items":         []map[string]any{{"productId": "p-taco", "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var order domain.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&order))
	assert.Equal(t, "37", order.Total.String())

	var day domain.CashDay
	require.NoError(t, json.NewDecoder(b.call(http.MethodGet, "/cash/days/2026-10-17", nil).Body).Decode(&day))
	assert.Equal(t, "37", day.ExpectedCash.String())

	require.Equal(t, http.StatusOK, b.call(http.MethodPost, "/orders/"+order.ID+"/void", map[string]any{"reason": "wrong"}).StatusCode)
	assert.Equal(t, http.StatusConflict, b.call(http.MethodPost, "/orders/"+order.ID+"/void", map[string]any{}).StatusCode)

	require.NoError(t, json.NewDecoder(b.call(http.MethodGet, "/cash/days/2026-10-17", nil).Body).Decode(&day))
	assert.True(t, day.ExpectedCash.IsZero())
}

func TestAuth_RevokedAccessTokenIsRejected(t *testing.T) {
	fb, b := start(t, cashier)
	assert.Equal(t, http.StatusOK, b.call(http.MethodGet, "/finance/categories", nil).StatusCode)

	fb.RevokeAccessTokens()
	assert.Equal(t, http.StatusUnauthorized, b.call(http.MethodGet, "/finance/categories", nil).StatusCode)
	assert.Equal(t, 2, fb.Hits("GET /finance/categories"))
}

func TestBranchScope_CashierCannotReadOtherBranch(t *testing.T) {
	_, b := start(t, cashier)
	assert.Equal(t, http.StatusForbidden, b.call(http.MethodGet, "/cash/days/2026-10-17?branchId=b-2", nil).StatusCode)
}
