package client

import (
	"context"
	"net/http"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
)

// AuthClient implements port.AuthAPI. It must be built on an
// unauthenticated Client: a refresh that itself triggered a refresh would
// never terminate.
type AuthClient struct {
	api *Client
}

func NewAuthClient(api *Client) *AuthClient {
	return &AuthClient{api: api.WithTokens(nil)}
}

// Login returns the access token, the user and the cookies the backend set
// (the refresh cookie among them).
func (c *AuthClient) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, []domain.StoredCookie, error) {
	resp, err := c.api.Do(ctx, Request{
		Operation: "Login",
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Body:      req,
	})
	if err != nil {
		return nil, nil, err
	}

	out, err := decodeRequired[domain.LoginResponse](resp, "login result")
	if err != nil {
		return nil, nil, err
	}
	return out, resp.Cookies, nil
}

// Refresh exchanges the stored cookies for a new access token. Rotated
// cookies are returned so the caller can persist them.
func (c *AuthClient) Refresh(ctx context.Context, cookies []domain.StoredCookie) (*domain.RefreshResponse, []domain.StoredCookie, error) {
	resp, err := c.api.Do(ctx, Request{
		Operation: "Refresh",
		Method:    http.MethodPost,
		Path:      "/auth/refresh",
		Cookies:   cookies,
	})
	if err != nil {
		return nil, nil, err
	}

	var out domain.RefreshResponse
	if _, err := DecodeJSON(resp, &out); err != nil {
		return nil, nil, err
	}
	return &out, resp.Cookies, nil
}

// Logout revokes the refresh cookie server side.
func (c *AuthClient) Logout(ctx context.Context, accessToken string, cookies []domain.StoredCookie) error {
	headers := map[string]string{}
	if accessToken != "" {
		headers["Authorization"] = "Bearer " + accessToken
	}
	_, err := c.api.Do(ctx, Request{
		Operation: "Logout",
		Method:    http.MethodPost,
		Path:      "/auth/logout",
		Headers:   headers,
		Cookies:   cookies,
	})
	return err
}
