package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskflow.dev/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireRoleAllowsHigherRank(t *testing.T) {
	handler := RequireRole(auth.RoleManager)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	req = req.WithContext(auth.ContextWithActor(req.Context(), auth.Actor{ID: "user-1", Role: auth.RoleAdmin}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireRoleRejectsLowerRank(t *testing.T) {
	handler := RequireRole(auth.RoleAdmin)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	req = req.WithContext(auth.ContextWithActor(req.Context(), auth.Actor{ID: "user-1", Role: auth.RoleManager}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestRequireRoleRejectsMissingActor(t *testing.T) {
	handler := RequireRole(auth.RoleUser)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer abc", want: "abc"},
		{header: "bearer   abc ", want: "abc"},
		{header: "", wantErr: true},
		{header: "Basic abc", wantErr: true},
		{header: "Bearer ", wantErr: true},
		{header: "Bear", wantErr: true},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.header)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q, %v", tc.header, got, err)
		}
	}
}

func TestWithAuthRejectsExpiredToken(t *testing.T) {
	api := newTestAPI(t)
	signer, err := auth.NewSigner(testSecret, auth.WithAccessTTL(time.Minute), auth.WithSignerClock(func() time.Time {
		return time.Now().Add(-time.Hour)
	}))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	stale, err := signer.Issue(&auth.Principal{ID: "p-1", Email: "p@example.com", Role: auth.RoleUser})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	resp := api.get("/v1/tasks", nil, stale.Token)
	expectStatus(t, resp, http.StatusUnauthorized)
	if msg := errorBody(t, resp); msg != "token expired" {
		t.Fatalf("unexpected message: %q", msg)
	}
}
