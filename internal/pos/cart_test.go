package pos_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/pos"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockCatalog struct {
	products []domain.Product
}

func (m *mockCatalog) SearchProducts(context.Context, string) ([]domain.Product, error) {
	return m.products, nil
}

type mockOrders struct {
	created  []*domain.CreateOrderRequest
	voided   []string
	err      error
	inFlight func()
}

func (m *mockOrders) CreateOrder(_ context.Context, req *domain.CreateOrderRequest) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created = append(m.created, req)
	if m.inFlight != nil {
		m.inFlight()
	}
	return &domain.Order{ID: "o-1", DateKey: req.DateKey, Total: decimal.RequireFromString("61.00"), Status: domain.OrderPaid, PaymentMethod: req.PaymentMethod}, nil
}

func (m *mockOrders) ListOrders(_ context.Context, dateKey, _ string) ([]domain.Order, error) {
	return []domain.Order{{ID: "o-1", DateKey: dateKey}}, nil
}

func (m *mockOrders) VoidOrder(_ context.Context, id string, _ *domain.VoidOrderRequest) (*domain.Order, error) {
	m.voided = append(m.voided, id)
	return &domain.Order{ID: id, Status: domain.OrderVoided}, nil
}

var products = []domain.Product{
	{ID: "taco", Name: "Taco", Price: decimal.RequireFromString("18.50"), Active: true},
	{ID: "agua", Name: "Agua fresca", Price: decimal.RequireFromString("24.00"), Active: true},
	{ID: "old", Name: "Retired", Price: decimal.NewFromInt(1), Active: false},
}

func newCart(t *testing.T, actor domain.Actor) (*pos.Cart, *mockOrders) {
	t.Helper()
	orders := &mockOrders{}
	loc, err := domain.LoadTimeZone("")
	require.NoError(t, err)
	c := pos.New(&mockCatalog{products: products}, orders, actor, "b-1", pos.Deps{
		Now:      func() time.Time { return time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC) },
		Location: loc,
	})
	_, err = c.Search(context.Background(), "")
	require.NoError(t, err)
	return c, orders
}

var cashier = domain.Actor{UserID: "u-1", Roles: []domain.Role{domain.RoleCashier}}

// --- Tests ---

func TestCart_LinesAndTotal(t *testing.T) {
	c, _ := newCart(t, cashier)

	require.NoError(t, c.Add("taco", 2))
	require.NoError(t, c.Add("agua", 1))
	require.NoError(t, c.Add("taco", 1))

	snap := c.Snapshot()
	require.Len(t, snap.Lines, 2)
	assert.Equal(t, 3, snap.Lines[0].Quantity)
	assert.Equal(t, "55.50", snap.Lines[0].Subtotal.StringFixed(2))
	assert.Equal(t, "79.50", snap.Total.StringFixed(2))
	assert.Equal(t, 4, snap.ItemCount)

	require.NoError(t, c.SetQuantity("agua", "0"))
	assert.Len(t, c.Snapshot().Lines, 1)

	var validation *domain.ErrValidation
	require.ErrorAs(t, c.SetQuantity("taco", "1.5"), &validation)
	require.ErrorAs(t, c.Add("taco", 0), &validation)

	var notFound *domain.ErrNotFound
	require.ErrorAs(t, c.Add("ghost", 1), &notFound)
	require.ErrorAs(t, c.Remove("agua"), &notFound)

	var conflict *domain.ErrConflict
	require.ErrorAs(t, c.Add("old", 1), &conflict)
}

func TestCheckout_CashChange(t *testing.T) {
	c, orders := newCart(t, cashier)
	require.NoError(t, c.Add("taco", 2))
	require.NoError(t, c.Add("agua", 1))

	res, err := c.Checkout(context.Background(), domain.MethodCash, "100")
	require.NoError(t, err)
	assert.Equal(t, "39.00", res.Change.StringFixed(2))
	require.Len(t, orders.created, 1)
	assert.Equal(t, "2026-10-17", orders.created[0].DateKey)
	assert.Equal(t, "b-1", orders.created[0].BranchID)
	assert.Len(t, orders.created[0].Items, 2)
	assert.Empty(t, c.Snapshot().Lines, "cart cleared after sale")
}

func TestCheckout_KeepsLinesAddedWhileInFlight(t *testing.T) {
	c, orders := newCart(t, cashier)
	require.NoError(t, c.Add("taco", 2))
	orders.inFlight = func() {
		require.NoError(t, c.Add("agua", 1))
		require.NoError(t, c.Add("taco", 1))
	}

	_, err := c.Checkout(context.Background(), domain.MethodCard, "")
	require.NoError(t, err)
	require.Len(t, orders.created[0].Items, 1)
	assert.Equal(t, 2, orders.created[0].Items[0].Quantity)

	snap := c.Snapshot()
	require.Len(t, snap.Lines, 2)
	assert.Equal(t, "taco", snap.Lines[0].Product.ID)
	assert.Equal(t, 1, snap.Lines[0].Quantity)
	assert.Equal(t, "agua", snap.Lines[1].Product.ID)
	assert.Equal(t, 1, snap.Lines[1].Quantity)
}

func TestCheckout_Rejections(t *testing.T) {
	t.Run("empty cart", func(t *testing.T) {
		c, orders := newCart(t, cashier)
		var validation *domain.ErrValidation
		_, err := c.Checkout(context.Background(), domain.MethodCard, "")
		require.ErrorAs(t, err, &validation)
		assert.Empty(t, orders.created)
	})

	t.Run("cash short", func(t *testing.T) {
		c, orders := newCart(t, cashier)
		require.NoError(t, c.Add("agua", 1))
		var validation *domain.ErrValidation
		_, err := c.Checkout(context.Background(), domain.MethodCash, "20")
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, "received", validation.Field)
		assert.Empty(t, orders.created)
		assert.Len(t, c.Snapshot().Lines, 1, "cart kept")
	})

	t.Run("no write role", func(t *testing.T) {
		c, orders := newCart(t, domain.Actor{UserID: "x"})
		require.NoError(t, c.Add("agua", 1))
		var forbidden *domain.ErrForbidden
		_, err := c.Checkout(context.Background(), domain.MethodCard, "")
		require.ErrorAs(t, err, &forbidden)
		assert.Empty(t, orders.created)
	})
}

func TestSalesAndVoid(t *testing.T) {
	c, orders := newCart(t, cashier)

	sales, err := c.Sales(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-17", sales[0].DateKey)

	_, err = c.Sales(context.Background(), "17/10/2026")
	var validation *domain.ErrValidation
	require.ErrorAs(t, err, &validation)

	order, err := c.VoidSale(context.Background(), "o-1", "wrong table")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderVoided, order.Status)
	assert.Equal(t, []string{"o-1"}, orders.voided)
	assert.False(t, c.Snapshot().Busy)
}
