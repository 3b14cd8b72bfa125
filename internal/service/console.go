// Package service wires sessions to the per-session cash day controllers
// and carts that the HTTP handlers drive.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/cashday"
	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/infra/cache"
	"github.com/boddenberg/cash-console-bfa/internal/infra/client"
	"github.com/boddenberg/cash-console-bfa/internal/infra/observability"
	"github.com/boddenberg/cash-console-bfa/internal/pos"
	"github.com/boddenberg/cash-console-bfa/internal/session"

	"go.uber.org/zap"
)

// Console owns the live controllers of every logged-in operator. A
// controller is keyed by session and branch so an admin switching branches
// keeps separate drafts per branch.
type Console struct {
	sessions   *session.Service
	api        *client.Client
	categories *cache.InMemory[[]domain.FinanceCategory]

	controllers *cache.InMemory[*cashday.Controller]
	carts       *cache.InMemory[*pos.Cart]

	now     func() time.Time
	loc     *time.Location
	metrics *observability.Metrics
	logger  *zap.Logger

	mu sync.Mutex
}

// ConsoleConfig groups the knobs NewConsole needs besides collaborators.
type ConsoleConfig struct {
	ControllerTTL time.Duration
	CategoryTTL   time.Duration
	Location      *time.Location
	Now           func() time.Time
}

// NewConsole creates a Console. api must be the unauthenticated base
// client; per-session copies are derived from it.
func NewConsole(sessions *session.Service, api *client.Client, cfg ConsoleConfig, metrics *observability.Metrics, logger *zap.Logger) *Console {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Console{
		sessions:    sessions,
		api:         api,
		categories:  cache.New[[]domain.FinanceCategory](cfg.CategoryTTL),
		controllers: cache.New[*cashday.Controller](cfg.ControllerTTL),
		carts:       cache.New[*pos.Cart](cfg.ControllerTTL),
		now:         cfg.Now,
		loc:         cfg.Location,
		metrics:     metrics,
		logger:      logger,
	}
}

// Login opens a backend session for the operator.
func (c *Console) Login(ctx context.Context, req *domain.LoginRequest) (*domain.Session, error) {
	return c.sessions.Login(ctx, req)
}

// Session resolves a session id; unknown or expired ids are ErrUnauthorized.
func (c *Console) Session(ctx context.Context, id string) (*domain.Session, error) {
	return c.sessions.Get(ctx, id)
}

// Info is the browser-safe view of sess.
func (c *Console) Info(sess *domain.Session) domain.SessionInfo {
	return c.sessions.Info(sess)
}

// Logout ends the session and drops every controller it owned.
func (c *Console) Logout(ctx context.Context, id string) error {
	err := c.sessions.Logout(ctx, id)
	dropped := c.controllers.DeletePrefix(id+"|") + c.carts.DeletePrefix(id+"|")
	c.logger.Debug("session controllers dropped", zap.String("session_id", id), zap.Int("count", dropped))
	return err
}

// CashDay returns the controller for sess on branch and whether it was
// created by this call. A new controller has nothing loaded yet. The branch
// is only honoured for privileged actors.
func (c *Console) CashDay(sess *domain.Session, branch string) (*cashday.Controller, bool) {
	opts := cashday.OptionsFor(sess.Actor, branch)
	key := sess.ID + "|" + opts.BranchScope

	c.mu.Lock()
	ctrl, ok := c.controllers.Get(key)
	if !ok {
		api := client.NewCashClient(c.api.WithTokens(c.sessions.Tokens(sess)), c.categories, c.metrics)
		ctrl = cashday.New(api, sess.Actor, opts, cashday.Deps{
			Now:      c.now,
			Location: c.loc,
			Metrics:  c.metrics,
			Logger:   c.logger,
		})
	}
	c.controllers.Set(key, ctrl)
	c.mu.Unlock()

	return ctrl, !ok
}

// Cart returns the point-of-sale cart for sess on branch.
func (c *Console) Cart(sess *domain.Session, branch string) *pos.Cart {
	scope := cashday.OptionsFor(sess.Actor, branch).BranchScope
	key := sess.ID + "|" + scope

	c.mu.Lock()
	defer c.mu.Unlock()

	cart, ok := c.carts.Get(key)
	if !ok {
		api := c.api.WithTokens(c.sessions.Tokens(sess))
		cart = pos.New(client.NewCatalogClient(api), client.NewOrdersClient(api), sess.Actor, scope, pos.Deps{
			Now:      c.now,
			Location: c.loc,
			Metrics:  c.metrics,
			Logger:   c.logger,
		})
	}
	c.carts.Set(key, cart)
	return cart
}

// Breaker reports the backend circuit breaker state for health checks.
func (c *Console) Breaker() string {
	return c.api.Breaker().State().String()
}

// Close stops the background cache janitors.
func (c *Console) Close() {
	c.controllers.Close()
	c.carts.Close()
	c.categories.Close()
}
