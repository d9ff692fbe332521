package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	leaseAuth "github.com/leasehub/leaseAuth"
	"github.com/leasehub/leaseAuth/account"
)

type fakeGate struct {
	principal *account.Principal
	err       error
	header    string
}

func (g *fakeGate) Authenticate(ctx context.Context, header string) (context.Context, error) {
	g.header = header
	if g.err != nil {
		return ctx, g.err
	}
	if header == "" {
		return ctx, nil
	}
	return leaseAuth.WithPrincipal(ctx, g.principal), nil
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := leaseAuth.PrincipalFromContext(r.Context())
		if p == nil {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(p.Email))
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestAuthenticateBindsPrincipal(t *testing.T) {
	gate := &fakeGate{principal: account.NewPrincipal("alice@example.com", account.RoleTenant)}
	h := Authenticate(gate)(echoPrincipal())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "alice@example.com" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if gate.header != "Bearer abc" {
		t.Fatalf("expected header passed through, got %q", gate.header)
	}
}

func TestAuthenticateAnonymousPassesThrough(t *testing.T) {
	h := Authenticate(&fakeGate{})(echoPrincipal())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestAuthenticateRejectsWith401(t *testing.T) {
	gate := &fakeGate{err: fmt.Errorf("%w: %w", leaseAuth.ErrUnauthenticated, leaseAuth.ErrTokenRevoked)}
	h := Authenticate(gate)(echoPrincipal())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Status != http.StatusUnauthorized || body.Details != "token revoked" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRequireAuthenticated(t *testing.T) {
	h := RequireAuthenticated(echoPrincipal())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(leaseAuth.WithPrincipal(req.Context(), account.NewPrincipal("a@b.c", account.RoleGuest)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(account.RoleAdmin, account.RoleLandlord)(echoPrincipal())

	tests := []struct {
		name      string
		principal *account.Principal
		want      int
	}{
		{name: "anonymous", want: http.StatusUnauthorized},
		{name: "tenant", principal: account.NewPrincipal("t@x.io", account.RoleTenant), want: http.StatusForbidden},
		{name: "landlord", principal: account.NewPrincipal("l@x.io", account.RoleLandlord), want: http.StatusOK},
		{name: "admin", principal: account.NewPrincipal("a@x.io", account.RoleAdmin), want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/listings", nil)
			req = req.WithContext(leaseAuth.WithPrincipal(req.Context(), tt.principal))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestClientIPIgnoresForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:4321"
	if got := ClientIP(req); got != "192.0.2.1" {
		t.Fatalf("expected remote host, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "192.0.2.1" {
		t.Fatalf("expected forwarded header to be ignored, got %q", got)
	}

	var none *ProxyTrust
	if got := none.ClientIP(req); got != "192.0.2.1" {
		t.Fatalf("nil trust must use the peer, got %q", got)
	}
}

func TestProxyTrustClientIP(t *testing.T) {
	trust, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.10 "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	tests := []struct {
		name   string
		remote string
		xff    []string
		want   string
	}{
		{"untrusted peer", "198.51.100.4:1000", []string{"203.0.113.7"}, "198.51.100.4"},
		{"trusted peer no header", "10.1.2.3:1000", nil, "10.1.2.3"},
		{"trusted peer one hop", "10.1.2.3:1000", []string{"203.0.113.7"}, "203.0.113.7"},
		{"spoofed left hops ignored", "10.1.2.3:1000", []string{"1.1.1.1, 203.0.113.7"}, "203.0.113.7"},
		{"trusted chain", "192.0.2.10:1000", []string{"203.0.113.7, 10.9.9.9"}, "203.0.113.7"},
		{"repeated headers", "10.1.2.3:1000", []string{"1.1.1.1", "203.0.113.8"}, "203.0.113.8"},
		{"malformed hop", "10.1.2.3:1000", []string{"203.0.113.7, junk, 10.0.0.5"}, "10.0.0.5"},
		{"all trusted", "10.1.2.3:1000", []string{"10.0.0.9"}, "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if got := trust.ClientIP(req); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	trust, err := ParseTrustedProxies(nil)
	if err != nil || trust != nil {
		t.Fatalf("expected nil trust for empty list, got %v, %v", trust, err)
	}
	for _, bad := range []string{"10.0.0.0/33", "proxy.local"} {
		if _, err := ParseTrustedProxies([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
