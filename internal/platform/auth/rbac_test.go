package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		role    lifecycle.Role
		allowed []lifecycle.Role
		wantErr bool
	}{
		{"exact match", lifecycle.RoleAdmin, []lifecycle.Role{lifecycle.RoleAdmin}, false},
		{"one of many", lifecycle.RoleReceptionist, []lifecycle.Role{lifecycle.RoleAdmin, lifecycle.RoleReceptionist}, false},
		{"not listed", lifecycle.RoleNurse, []lifecycle.Role{lifecycle.RoleAdmin, lifecycle.RoleReceptionist}, true},
		{"no role", "", []lifecycle.Role{lifecycle.RoleAdmin}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			ctx := WithActor(context.Background(), lifecycle.Actor{ID: "u", Role: tt.role})
			req = req.WithContext(ctx)
			c := e.NewContext(req, httptest.NewRecorder())

			err := RequireRole(tt.allowed...)(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})(c)
			if tt.wantErr {
				expectStatus(t, err, http.StatusForbidden)
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
