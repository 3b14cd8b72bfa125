// Package fakebackend is an in-process stand-in for the restaurant backend.
// It implements the cash ledger rules, the order lifecycle and the
// token/refresh-cookie handshake closely enough to drive the console end
// to end in tests and local development.
package fakebackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefreshCookie is the name of the httpOnly refresh cookie.
const RefreshCookie = "refresh_token"

const defaultBranch = "main"

type user struct {
	password string
	actor    domain.Actor
}

// Server holds all fake backend state behind one mutex.
type Server struct {
	mu sync.Mutex

	secret     []byte
	accessTTL  time.Duration
	generation int
	now        func() time.Time
	tolerance  decimal.Decimal

	users    map[string]user           // by email
	refresh  map[string]string         // refresh token -> user id
	actors   map[string]domain.Actor   // by user id
	days     map[string]*domain.CashDay // by branch|dateKey
	moves    map[string][]domain.CashMovement
	cats     []domain.FinanceCategory
	products []domain.Product
	orders   map[string]*domain.Order
	saleMove map[string]string // order id -> movement id

	hits map[string]int
}

// Option configures a Server.
type Option func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) { s.accessTTL = d }
}

// WithTolerance lets closes succeed without override when the absolute
// difference is within t.
func WithTolerance(t decimal.Decimal) Option {
	return func(s *Server) { s.tolerance = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a server seeded with categories and products.
func New(opts ...Option) *Server {
	s := &Server{
		secret:    []byte(uuid.NewString()),
		accessTTL: 15 * time.Minute,
		now:       time.Now,
		tolerance: decimal.Zero,
		users:     map[string]user{},
		refresh:   map[string]string{},
		actors:    map[string]domain.Actor{},
		days:      map[string]*domain.CashDay{},
		moves:     map[string][]domain.CashMovement{},
		orders:    map[string]*domain.Order{},
		saleMove:  map[string]string{},
		hits:      map[string]int{},
		cats: []domain.FinanceCategory{
			{ID: "cat-sales", Name: "Sales", Active: true},
			{ID: "cat-supplies", Name: "Supplies", Active: true},
			{ID: "cat-payroll", Name: "Payroll", Active: true},
		},
		products: []domain.Product{
			{ID: "p-taco", Name: "Taco al pastor", Price: decimal.RequireFromString("18.50"), Active: true},
			{ID: "p-agua", Name: "Agua de jamaica", Price: decimal.RequireFromString("24.00"), Active: true},
			{ID: "p-torta", Name: "Torta", Price: decimal.RequireFromString("65.00"), Active: true},
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddUser registers credentials for actor.
func (s *Server) AddUser(email, password string, actor domain.Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(email)] = user{password: password, actor: actor}
	s.actors[actor.UserID] = actor
}

// RevokeAccessTokens invalidates every access token issued so far while
// keeping refresh cookies valid, forcing the next call to refresh.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// RevokeRefreshTokens ends every session server side.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	s.refresh = map[string]string{}
	s.mu.Unlock()
}

// Hits returns how many requests reached "METHOD /route/pattern".
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// Handler returns the HTTP surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countHits)

	r.Post("/auth/login", s.login)
	r.Post("/auth/refresh", s.refreshToken)
	r.Post("/auth/logout", s.logout)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/cash/days/{dateKey}", s.getDay)
		r.Get("/cash/days/{dateKey}/summary", s.getSummary)
		r.Get("/cash/days/{dateKey}/movements", s.listMovements)
		r.Post("/cash/days", s.openDay)
		r.Post("/cash/days/{dateKey}/movements", s.createMovement)
		r.Post("/cash/movements/{id}/void", s.voidMovement)
		r.Post("/cash/days/{dateKey}/close", s.closeDay)
		r.Get("/finance/categories", s.listCategories)

		r.Get("/products", s.searchProducts)
		r.Post("/orders", s.createOrder)
		r.Get("/orders", s.listOrders)
		r.Post("/orders/{id}/void", s.voidOrder)
	})
	return r
}

func (s *Server) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			s.mu.Lock()
			s.hits[r.Method+" "+rctx.RoutePattern()]++
			s.mu.Unlock()
		}
	})
}

// ============================================================
// Auth
// ============================================================

type actorKey struct{}

func actorFrom(ctx context.Context) domain.Actor {
	a, _ := ctx.Value(actorKey{}).(domain.Actor)
	return a
}

func (s *Server) issueAccessToken(a domain.Actor) (string, error) {
	roles := make([]string, 0, len(a.Roles))
	for _, r := range a.Roles {
		roles = append(roles, string(r))
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub":      a.UserID,
		"name":     a.Name,
		"email":    a.Email,
		"roles":    roles,
		"branchId": a.BranchID,
		"gen":      s.generation,
		"iat":      now.Unix(),
		"exp":      now.Add(s.accessTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) issueRefreshCookie(w http.ResponseWriter, userID string) {
	token := uuid.NewString()
	s.refresh[token] = userID
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: token, Path: "/auth", HttpOnly: true})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[strings.ToLower(req.Email)]
	if !ok || u.password != req.Password {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token, err := s.issueAccessToken(u.actor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.issueRefreshCookie(w, u.actor.UserID)
	actor := u.actor
	writeJSON(w, http.StatusOK, domain.LoginResponse{AccessToken: token, User: &actor})
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	ck, err := r.Cookie(RefreshCookie)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Missing refresh token")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.refresh[ck.Value]
	if !ok {
		writeError(w, http.StatusUnauthorized, "Refresh token expired")
		return
	}
	delete(s.refresh, ck.Value)

	token, err := s.issueAccessToken(s.actors[userID])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.issueRefreshCookie(w, userID)
	writeJSON(w, http.StatusOK, domain.RefreshResponse{AccessToken: token})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if ck, err := r.Cookie(RefreshCookie); err == nil {
		s.mu.Lock()
		delete(s.refresh, ck.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/auth", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "jwt expired"
			}
			writeError(w, http.StatusUnauthorized, msg)
			return
		}

		sub, _ := claims.GetSubject()
		gen, _ := claims["gen"].(float64)

		s.mu.Lock()
		current := s.generation
		actor, ok := s.actors[sub]
		s.mu.Unlock()

		if int(gen) != current || !ok {
			writeError(w, http.StatusUnauthorized, "Token revoked")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

// ============================================================
// Helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"statusCode": status,
		"message":    message,
		"error":      http.StatusText(status),
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// branchFor resolves the branch a request acts on. Only privileged actors
// may name a branch other than their own.
func branchFor(actor domain.Actor, requested string) (string, bool) {
	if requested == "" {
		if actor.BranchID != "" {
			return actor.BranchID, true
		}
		return defaultBranch, true
	}
	if actor.IsPrivileged() || requested == actor.BranchID {
		return requested, true
	}
	return "", false
}

func dayKey(branch, dateKey string) string {
	return branch + "|" + dateKey
}
