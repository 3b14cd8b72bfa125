// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the console's
// controllers from the concrete backend client and session storage.
package port

import (
	"context"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
)

// TokenSource is the capability the API client uses to authenticate.
// Token may serve a cached value or hit the network; Refresh exchanges the
// refresh cookie for a new access token and returns "" when the backend
// refuses.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// CookieSource is optionally implemented by a TokenSource whose session
// holds backend cookies; the API client attaches them to every call.
type CookieSource interface {
	Cookies(ctx context.Context) []domain.StoredCookie
}

// CashAPI is the backend surface the reconciliation controller drives.
// branchID is empty when no branch filter applies.
type CashAPI interface {
	GetCashDay(ctx context.Context, dateKey, branchID string) (*domain.CashDay, error)
	GetSummary(ctx context.Context, dateKey, branchID string) (*domain.CashSummary, error)
	ListMovements(ctx context.Context, dateKey, branchID string) ([]domain.CashMovement, error)
	ListCategories(ctx context.Context) ([]domain.FinanceCategory, error)

	OpenCashDay(ctx context.Context, req *domain.OpenCashDayRequest) (*domain.CashDay, error)
	CreateMovement(ctx context.Context, dateKey string, req *domain.CreateMovementRequest) (*domain.CashMovement, error)
	VoidMovement(ctx context.Context, movementID string, req *domain.VoidMovementRequest) (*domain.CashMovement, error)
	CloseCashDay(ctx context.Context, dateKey string, req *domain.CloseCashDayRequest) (*domain.CashDay, error)
}

// CatalogAPI serves product lookups for the point of sale.
type CatalogAPI interface {
	SearchProducts(ctx context.Context, query string) ([]domain.Product, error)
}

// OrdersAPI drives the sale lifecycle.
type OrdersAPI interface {
	CreateOrder(ctx context.Context, req *domain.CreateOrderRequest) (*domain.Order, error)
	ListOrders(ctx context.Context, dateKey, branchID string) ([]domain.Order, error)
	VoidOrder(ctx context.Context, orderID string, req *domain.VoidOrderRequest) (*domain.Order, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// SessionStore persists BFA sessions between browser requests.
// Get returns (nil, nil) for unknown or expired ids.
type SessionStore interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, sess *domain.Session) error
	Delete(ctx context.Context, id string) error
}

// AuthAPI is the backend's auth surface. Cookies go in and come back out so
// the refresh cookie can be kept server side.
type AuthAPI interface {
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, []domain.StoredCookie, error)
	Refresh(ctx context.Context, cookies []domain.StoredCookie) (*domain.RefreshResponse, []domain.StoredCookie, error)
	Logout(ctx context.Context, accessToken string, cookies []domain.StoredCookie) error
}
