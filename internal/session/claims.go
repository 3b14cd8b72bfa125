package session

import (
	"strings"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// The BFA never verifies backend tokens; the backend does on every call.
// Claims are read only to schedule refreshes and to describe the actor.
var parser = jwt.NewParser()

func parseClaims(token string) (jwt.MapClaims, bool) {
	if strings.Count(token, ".") != 2 {
		return nil, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}

func tokenExpiry(token string) (time.Time, bool) {
	claims, ok := parseClaims(token)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// resolveActor prefers the login payload's user and falls back to the
// access token's claims.
func resolveActor(resp *domain.LoginResponse) (domain.Actor, error) {
	var actor domain.Actor
	if resp.User != nil {
		actor = *resp.User
	} else if claims, ok := parseClaims(resp.AccessToken); ok {
		actor = actorFromClaims(claims)
	}

	if actor.UserID == "" {
		return domain.Actor{}, &domain.ErrUnauthorized{Message: "login response carries no user"}
	}
	for i, r := range actor.Roles {
		actor.Roles[i] = domain.NormalizeRole(string(r))
	}
	return actor, nil
}

func actorFromClaims(claims jwt.MapClaims) domain.Actor {
	sub, _ := claims.GetSubject()
	actor := domain.Actor{
		UserID:   sub,
		Name:     stringClaim(claims, "name"),
		Email:    stringClaim(claims, "email"),
		BranchID: stringClaim(claims, "branchId"),
	}

	switch roles := claims["roles"].(type) {
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok {
				actor.Roles = append(actor.Roles, domain.Role(s))
			}
		}
	case string:
		actor.Roles = append(actor.Roles, domain.Role(roles))
	}
	if role := stringClaim(claims, "role"); role != "" && len(actor.Roles) == 0 {
		actor.Roles = append(actor.Roles, domain.Role(role))
	}
	return actor
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}
