package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matrimony-api/internal/domain"
	jwtinfra "github.com/matrimony-api/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
)

func TestRequireRole_NoClaimsInContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name    string
		role    string
		allowed []string
		want    int
	}{
		{"member on admin route", domain.RoleUser, []string{domain.RoleAdmin}, http.StatusForbidden},
		{"broker on member route", domain.RoleBroker, []string{domain.RoleUser, domain.RoleAdmin}, http.StatusForbidden},
		{"admin on member route", domain.RoleAdmin, []string{domain.RoleUser, domain.RoleAdmin}, http.StatusOK},
		{"broker on broker route", domain.RoleBroker, []string{domain.RoleBroker}, http.StatusOK},
		{"empty role", "", []string{domain.RoleUser}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := WithClaims(context.Background(), &jwtinfra.Claims{UserID: "u1", Role: tc.role})
			req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
			rr := httptest.NewRecorder()
			RequireRole(tc.allowed...)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}
