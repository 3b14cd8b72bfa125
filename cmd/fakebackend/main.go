// Command fakebackend serves the in-process fake backend on its own port so
// the BFA can be exercised locally without the real restaurant backend.
package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/fakebackend"
	"github.com/boddenberg/cash-console-bfa/internal/infra/observability"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("addr", ":3000", "listen address")
	tolerance := flag.String("tolerance", "0", "close tolerance before an override is required")
	accessTTL := flag.Duration("access-ttl", 15*time.Minute, "access token lifetime")
	flag.Parse()

	logger := observability.NewLogger("debug")
	defer logger.Sync()

	tol, err := decimal.NewFromString(*tolerance)
	if err != nil {
		logger.Fatal("invalid tolerance", zap.Error(err))
	}

	srv := fakebackend.New(fakebackend.WithTolerance(tol), fakebackend.WithAccessTTL(*accessTTL))
	srv.AddUser("admin@example.com", "admin", domain.Actor{
		UserID: "u-admin", Name: "Admin", Email: "admin@example.com",
		Roles: []domain.Role{domain.RoleSuperAdmin},
	})
	srv.AddUser("manager@example.com", "manager", domain.Actor{
		UserID: "u-manager", Name: "Gerente", Email: "manager@example.com",
		Roles: []domain.Role{domain.RoleManager}, BranchID: "centro",
	})
	srv.AddUser("cashier@example.com", "cashier", domain.Actor{
		UserID: "u-cashier", Name: "Cajero", Email: "cashier@example.com",
		Roles: []domain.Role{domain.RoleCashier}, BranchID: "centro",
	})

	logger.Info("fake backend listening", zap.String("addr", *addr), zap.String("tolerance", tol.String()))
	if err := http.ListenAndServe(*addr, observability.ZapLoggerMiddleware(logger)(srv.Handler())); err != nil {
		logger.Fatal("fake backend stopped", zap.Error(err))
	}
}
