package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/infra/observability"
	"github.com/boddenberg/cash-console-bfa/internal/port"
)

const categoriesCacheKey = "categories:active"

// CashClient implements port.CashAPI over the authenticated Client.
type CashClient struct {
	api        *Client
	categories port.Cache[[]domain.FinanceCategory]
	metrics    *observability.Metrics
}

// NewCashClient creates a cash day client. categories may be shared across
// sessions since finance categories are global lookup data; nil disables
// caching.
func NewCashClient(api *Client, categories port.Cache[[]domain.FinanceCategory], metrics *observability.Metrics) *CashClient {
	return &CashClient{api: api, categories: categories, metrics: metrics}
}

// GetCashDay returns nil when no day has been opened for dateKey.
func (c *CashClient) GetCashDay(ctx context.Context, dateKey, branchID string) (*domain.CashDay, error) {
	resp, err := c.api.Do(ctx, Request{
		Operation: "GetCashDay",
		Method:    http.MethodGet,
		Path:      "/cash/days/" + url.PathEscape(dateKey),
		Query:     branchQuery(branchID),
	})
	if err != nil {
		return nil, err
	}

	var day domain.CashDay
	ok, err := DecodeJSON(resp, &day)
	if err != nil || !ok {
		return nil, err
	}
	return &day, nil
}

// GetSummary returns nil when the day has not been opened.
func (c *CashClient) GetSummary(ctx context.Context, dateKey, branchID string) (*domain.CashSummary, error) {
	resp, err := c.api.Do(ctx, Request{
		Operation: "GetSummary",
		Method:    http.MethodGet,
		Path:      "/cash/days/" + url.PathEscape(dateKey) + "/summary",
		Query:     branchQuery(branchID),
	})
	if err != nil {
		return nil, err
	}

	var summary domain.CashSummary
	ok, err := DecodeJSON(resp, &summary)
	if err != nil || !ok {
		return nil, err
	}
	return &summary, nil
}

// ListMovements includes voided movements; callers decide what to show.
func (c *CashClient) ListMovements(ctx context.Context, dateKey, branchID string) ([]domain.CashMovement, error) {
	q := branchQuery(branchID)
	q.Set("includeVoided", "true")

	resp, err := c.api.Do(ctx, Request{
		Operation: "ListMovements",
		Method:    http.MethodGet,
		Path:      "/cash/days/" + url.PathEscape(dateKey) + "/movements",
		Query:     q,
	})
	if err != nil {
		return nil, err
	}

	var movements []domain.CashMovement
	if _, err := DecodeJSON(resp, &movements); err != nil {
		return nil, err
	}
	return movements, nil
}

// ListCategories returns the active finance categories, cache-first.
func (c *CashClient) ListCategories(ctx context.Context) ([]domain.FinanceCategory, error) {
	if c.categories != nil {
		if cached, ok := c.categories.Get(categoriesCacheKey); ok {
			c.metrics.IncrCacheHit("categories")
			return cached, nil
		}
		c.metrics.IncrCacheMiss("categories")
	}

	resp, err := c.api.Do(ctx, Request{
		Operation: "ListCategories",
		Method:    http.MethodGet,
		Path:      "/finance/categories",
		Query:     url.Values{"active": {"true"}},
	})
	if err != nil {
		return nil, err
	}

	var categories []domain.FinanceCategory
	if _, err := DecodeJSON(resp, &categories); err != nil {
		return nil, err
	}
	if c.categories != nil {
		c.categories.Set(categoriesCacheKey, categories)
	}
	return categories, nil
}

func (c *CashClient) OpenCashDay(ctx context.Context, req *domain.OpenCashDayRequest) (*domain.CashDay, error) {
	resp, err := c.api.Do(ctx, Request{
		Operation: "OpenCashDay",
		Method:    http.MethodPost,
		Path:      "/cash/days",
		Body:      req,
	})
	if err != nil {
		return nil, err
	}
	return decodeRequired[domain.CashDay](resp, "cash day")
}

func (c *CashClient) CreateMovement(ctx context.Context, dateKey string, req *domain.CreateMovementRequest) (*domain.CashMovement, error) {
	resp, err := c.api.Do(ctx, Request{
		Operation: "CreateMovement",
		Method:    http.MethodPost,
		Path:      "/cash/days/" + url.PathEscape(dateKey) + "/movements",
		Body:      req,
	})
	if err != nil {
		return nil, err
	}
	return decodeRequired[domain.CashMovement](resp, "movement")
}

func (c *CashClient) VoidMovement(ctx context.Context, movementID string, req *domain.VoidMovementRequest) (*domain.CashMovement, error) {
	resp, err := c.api.Do(ctx, Request{
		Operation: "VoidMovement",
		Method:    http.MethodPost,
		Path:      "/cash/movements/" + url.PathEscape(movementID) + "/void",
		Body:      req,
	})
	if err != nil {
		return nil, err
	}
	return decodeRequired[domain.CashMovement](resp, "movement")
}

func (c *CashClient) CloseCashDay(ctx context.Context, dateKey string, req *domain.CloseCashDayRequest) (*domain.CashDay, error) {
	resp, err := c.api.Do(ctx, Request{
		Operation: "CloseCashDay",
		Method:    http.MethodPost,
		Path:      "/cash/days/" + url.PathEscape(dateKey) + "/close",
		Body:      req,
	})
	if err != nil {
		return nil, err
	}
	return decodeRequired[domain.CashDay](resp, "cash day")
}

func branchQuery(branchID string) url.Values {
	q := url.Values{}
	if branchID != "" {
		q.Set("branchId", branchID)
	}
	return q
}

// decodeRequired decodes a mutation result; the backend must return the
// affected entity.
func decodeRequired[T any](resp *Response, what string) (*T, error) {
	var out T
	ok, err := DecodeJSON(resp, &out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("backend returned no %s", what)
	}
	return &out, nil
}
