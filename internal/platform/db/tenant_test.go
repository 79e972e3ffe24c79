package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestExtractTenantID(t *testing.T) {
	tests := []struct {
		name   string
		jwt    interface{}
		header string
		query  string
		want   string
	}{
		{name: "default", want: "default"},
		{name: "query", query: "clinic_xyz", want: "clinic_xyz"},
		{name: "header", header: "clinic_abc", want: "clinic_abc"},
		{name: "header over query", header: "header_tenant", query: "query_tenant", want: "header_tenant"},
		{name: "jwt over all", jwt: "jwt", header: "header", query: "query", want: "jwt"},
		{name: "empty jwt falls through", jwt: "", header: "header_tenant", want: "header_tenant"},
		{name: "non-string jwt ignored", jwt: 42, want: "default"},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/"
			if tt.query != "" {
				target += "?tenant_id=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("X-Tenant-ID", tt.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())
			if tt.jwt != nil {
				c.Set("jwt_tenant_id", tt.jwt)
			}

			if got := extractTenantID(c, "default"); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTenantMiddleware_RejectsInvalidTenant(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "clinic;DROP SCHEMA")
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	// Validation happens before the pool is touched, so nil is safe here.
	err := TenantMiddleware(nil, "default")(func(c echo.Context) error {
		called = true
		return nil
	})(c)

	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if called {
		t.Error("handler ran for an invalid tenant")
	}
}

func TestSchemaName(t *testing.T) {
	if got := SchemaName("clinic_7"); got != "tenant_clinic_7" {
		t.Errorf("expected tenant_clinic_7, got %s", got)
	}
}

func TestValidTenantID(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"abc", true},
		{"ABC", true},
		{"clinic_1", true},
		{"A1B2C3", true},
		{"a-b", false},
		{"a.b", false},
		{"a b", false},
		{"a/b", false},
		{"", false},
		{"$pecial", false},
		{"'; DROP TABLE", false},
	}

	for _, tt := range tests {
		if got := ValidTenantID(tt.input); got != tt.valid {
			t.Errorf("ValidTenantID(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestCreateTenantSchema_InvalidIDs(t *testing.T) {
	for _, id := range []string{"invalid-id!", "tenant.with.dot", "ten ant", "drop;table"} {
		if err := CreateTenantSchema(context.Background(), nil, id, nil); err == nil {
			t.Errorf("expected error for invalid tenant ID %q", id)
		}
	}
}

func TestContextAccessors(t *testing.T) {
	if ConnFromContext(context.Background()) != nil {
		t.Error("expected nil conn from empty context")
	}
	if ConnFromContext(context.WithValue(context.Background(), DBConnKey, "not-a-conn")) != nil {
		t.Error("expected nil when context value is wrong type")
	}

	ctx := context.WithValue(context.Background(), TenantIDKey, "clinic_7")
	if tid := TenantFromContext(ctx); tid != "clinic_7" {
		t.Errorf("expected clinic_7, got %q", tid)
	}
	if tid := TenantFromContext(context.WithValue(context.Background(), TenantIDKey, 12345)); tid != "" {
		t.Errorf("expected empty tenant for wrong type, got %q", tid)
	}
	if tid := TenantFromContext(context.Background()); tid != "" {
		t.Errorf("expected empty tenant, got %q", tid)
	}
}
