package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
)

// CatalogClient implements port.CatalogAPI.
type CatalogClient struct {
	api *Client
}

func NewCatalogClient(api *Client) *CatalogClient {
	return &CatalogClient{api: api}
}

// SearchProducts lists active products whose name matches query.
func (c *CatalogClient) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	q := url.Values{"active": {"true"}}
	if query != "" {
		q.Set("search", query)
	}

	resp, err := c.api.Do(ctx, Request{
		Operation: "SearchProducts",
		Method:    http.MethodGet,
		Path:      "/products",
		Query:     q,
	})
	if err != nil {
		return nil, err
	}

	var products []domain.Product
	if _, err := DecodeJSON(resp, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// OrdersClient implements port.OrdersAPI.
type OrdersClient struct {
	api *Client
}

func NewOrdersClient(api *Client) *OrdersClient {
	return &OrdersClient{api: api}
}

func (c *OrdersClient) CreateOrder(ctx context.Context, req *domain.CreateOrderRequest) (*domain.Order, error) {
	resp, err := c.api.Do(ctx, Request{
		Operation: "CreateOrder",
		Method:    http.MethodPost,
		Path:      "/orders",
		Body:      req,
	})
	if err != nil {
		return nil, err
	}
	return decodeRequired[domain.Order](resp, "order")
}

func (c *OrdersClient) ListOrders(ctx context.Context, dateKey, branchID string) ([]domain.Order, error) {
	q := branchQuery(branchID)
	if dateKey != "" {
		q.Set("dateKey", dateKey)
	}

	resp, err := c.api.Do(ctx, Request{
		Operation: "ListOrders",
		Method:    http.MethodGet,
		Path:      "/orders",
		Query:     q,
	})
	if err != nil {
		return nil, err
	}

	var orders []domain.Order
	if _, err := DecodeJSON(resp, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *OrdersClient) VoidOrder(ctx context.Context, orderID string, req *domain.VoidOrderRequest) (*domain.Order, error) {
	resp, err := c.api.Do(ctx, Request{
		Operation: "VoidOrder",
		Method:    http.MethodPost,
		Path:      "/orders/" + url.PathEscape(orderID) + "/void",
		Body:      req,
	})
	if err != nil {
		return nil, err
	}
	return decodeRequired[domain.Order](resp, "order")
}
