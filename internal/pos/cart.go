// Package pos is the point-of-sale cart: product lookup, line editing,
// checkout into a backend order, and sale voiding.
package pos

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/infra/observability"
	"github.com/boddenberg/cash-console-bfa/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("pos")

// Line is one product in the cart.
type Line struct {
	Product  domain.Product  `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Snapshot is the cart as shown to the operator.
type Snapshot struct {
	Lines     []Line          `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
	Busy      bool            `json:"busy"`
}

// Deps are the ambient collaborators of a Cart.
type Deps struct {
	Now      func() time.Time
	Location *time.Location
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// Cart is safe for concurrent use. Checkout and voids are serialised by a
// busy flag just like cash day mutations.
type Cart struct {
	catalog port.CatalogAPI
	orders  port.OrdersAPI
	actor   domain.Actor
	branch  string

	now     func() time.Time
	loc     *time.Location
	metrics *observability.Metrics
	logger  *zap.Logger

	mu     sync.Mutex
	lines  []Line
	known  map[string]domain.Product
	busy   bool
	busyOp string
}

// New creates an empty cart. branch is sent with orders; empty lets the
// backend use the actor's own branch.
func New(catalog port.CatalogAPI, orders port.OrdersAPI, actor domain.Actor, branch string, deps Deps) *Cart {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Cart{
		catalog: catalog,
		orders:  orders,
		actor:   actor,
		branch:  branch,
		now:     deps.Now,
		loc:     deps.Location,
		metrics: deps.Metrics,
		logger:  deps.Logger.With(zap.String("user_id", actor.UserID)),
		known:   make(map[string]domain.Product),
	}
}

// Search looks products up and remembers them so they can be added by id.
func (c *Cart) Search(ctx context.Context, query string) ([]domain.Product, error) {
	ctx, span := tracer.Start(ctx, "Cart.Search")
	defer span.End()

	products, err := c.catalog.SearchProducts(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for _, p := range products {
		c.known[p.ID] = p
	}
	c.mu.Unlock()
	return products, nil
}

// Add puts qty units of a previously searched product in the cart.
func (c *Cart) Add(productID string, qty int) error {
	if qty <= 0 {
		return &domain.ErrValidation{Field: "quantity", Message: "quantity must be greater than zero"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.known[productID]
	if !ok {
		return &domain.ErrNotFound{Resource: "product", ID: productID}
	}
	if !p.Active {
		return &domain.ErrConflict{Message: "product " + p.Name + " is not available"}
	}
	for i := range c.lines {
		if c.lines[i].Product.ID == productID {
			c.lines[i].Quantity += qty
			return nil
		}
	}
	c.lines = append(c.lines, Line{Product: p, Quantity: qty})
	return nil
}

// SetQuantity applies a quantity draft; zero removes the line.
func (c *Cart) SetQuantity(productID, draft string) error {
	qty, err := domain.ParseQuantityDraft("quantity", draft)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.lines {
		if c.lines[i].Product.ID != productID {
			continue
		}
		if qty == 0 {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
		} else {
			c.lines[i].Quantity = qty
		}
		return nil
	}
	return &domain.ErrNotFound{Resource: "cart line", ID: productID}
}

func (c *Cart) Remove(productID string) error {
	return c.SetQuantity(productID, "0")
}

func (c *Cart) Clear() {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
}

// removeSold takes the quantities of a completed order out of the cart.
// Lines added while the order was in flight stay.
func (c *Cart) removeSold(sold []Line) {
	c.mu.Lock()
	defer c.mu.Unlock()

	left := make(map[string]int, len(sold))
	for _, l := range sold {
		left[l.Product.ID] = l.Quantity
	}
	kept := c.lines[:0]
	for _, l := range c.lines {
		l.Quantity -= left[l.Product.ID]
		if l.Quantity > 0 {
			kept = append(kept, l)
		}
	}
	c.lines = kept
}

// Snapshot returns the cart contents with exact totals.
func (c *Cart) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{Total: decimal.Zero, Busy: c.busy, Lines: make([]Line, 0, len(c.lines))}
	for _, l := range c.lines {
		l.Subtotal = l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		s.Total = s.Total.Add(l.Subtotal)
		s.ItemCount += l.Quantity
		s.Lines = append(s.Lines, l)
	}
	return s
}

// Total is the exact cart total.
func (c *Cart) Total() decimal.Decimal {
	return c.Snapshot().Total
}

func (c *Cart) acquire(op string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return nil, &domain.ErrBusy{Operation: c.busyOp}
	}
	c.busy, c.busyOp = true, op
	return func() {
		c.mu.Lock()
		c.busy, c.busyOp = false, ""
		c.mu.Unlock()
	}, nil
}

// Checkout turns the cart into a paid order. Cash sales need the received
// amount to cover the total; the change is returned.
func (c *Cart) Checkout(ctx context.Context, method domain.PaymentMethod, receivedDraft string) (*domain.CheckoutResult, error) {
	const op = "checkout"
	ctx, span := tracer.Start(ctx, "Cart.Checkout")
	defer span.End()

	if !c.actor.CanWrite() {
		c.metrics.IncrSaleOperation(op, "rejected")
		return nil, &domain.ErrForbidden{Action: "checkout"}
	}
	release, err := c.acquire(op)
	if err != nil {
		return nil, err
	}
	defer release()

	snap := c.Snapshot()
	if len(snap.Lines) == 0 {
		c.metrics.IncrSaleOperation(op, "rejected")
		return nil, &domain.ErrValidation{Field: "items", Message: "cart is empty"}
	}
	if !method.IsValid() {
		c.metrics.IncrSaleOperation(op, "rejected")
		return nil, &domain.ErrValidation{Field: "paymentMethod", Message: "unknown payment method"}
	}

	received := snap.Total
	if method == domain.MethodCash {
		received, err = domain.ParseAmountDraft("received", receivedDraft)
		if err != nil {
			c.metrics.IncrSaleOperation(op, "rejected")
			return nil, err
		}
		if received.LessThan(snap.Total) {
			c.metrics.IncrSaleOperation(op, "rejected")
			return nil, &domain.ErrValidation{Field: "received", Message: "received amount does not cover the total " + snap.Total.StringFixed(2)}
		}
	}

	req := &domain.CreateOrderRequest{
		DateKey:       domain.DateKey(c.now(), c.loc),
		PaymentMethod: method,
		BranchID:      c.branch,
	}
	for _, l := range snap.Lines {
		req.Items = append(req.Items, domain.OrderLine{ProductID: l.Product.ID, Quantity: l.Quantity})
	}
	span.SetAttributes(attribute.Int("pos.lines", len(req.Items)))

	order, err := c.orders.CreateOrder(ctx, req)
	if err != nil {
		c.metrics.IncrSaleOperation(op, "failure")
		c.logger.Warn("checkout failed", zap.Error(err))
		return nil, err
	}

	c.removeSold(snap.Lines)
	c.metrics.IncrSaleOperation(op, "success")
	c.logger.Info("sale completed",
		zap.String("order_id", order.ID),
		zap.String("total", order.Total.String()),
		zap.String("method", string(method)),
	)

	change := decimal.Zero
	if method == domain.MethodCash {
		change = received.Sub(order.Total)
	}
	return &domain.CheckoutResult{Order: order, Change: change}, nil
}

// Sales lists the orders of dateKey; empty means today.
func (c *Cart) Sales(ctx context.Context, dateKey string) ([]domain.Order, error) {
	if dateKey == "" {
		dateKey = domain.DateKey(c.now(), c.loc)
	}
	if err := domain.ValidateDateKey(dateKey); err != nil {
		return nil, err
	}
	return c.orders.ListOrders(ctx, dateKey, c.branch)
}

// VoidSale cancels a completed sale. The order stays for audit.
func (c *Cart) VoidSale(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	const op = "void_sale"
	ctx, span := tracer.Start(ctx, "Cart.VoidSale")
	defer span.End()

	if !c.actor.CanWrite() {
		c.metrics.IncrSaleOperation(op, "rejected")
		return nil, &domain.ErrForbidden{Action: "void sale"}
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, &domain.ErrValidation{Field: "orderId", Message: "order id is required"}
	}
	release, err := c.acquire(op)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := c.orders.VoidOrder(ctx, orderID, &domain.VoidOrderRequest{Reason: strings.TrimSpace(reason)})
	if err != nil {
		c.metrics.IncrSaleOperation(op, "failure")
		return nil, err
	}
	c.metrics.IncrSaleOperation(op, "success")
	c.logger.Info("sale voided", zap.String("order_id", order.ID))
	return order, nil
}
