package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                 "/",
		"/metrics":                         "/metrics",
		"/v1/tasks":                        "/v1/tasks",
		"/v1/tasks/01HX":                   "/v1/tasks/:id",
		"/v1/tasks/01HX/status":            "/v1/tasks/:id/status",
		"/v1/tasks?status=NEW":             "/v1/tasks",
		"/v1/teams/01HX/members/01HY":      "/v1/teams/:id/members/:user_id",
		"/v1/users/01HX/role":              "/v1/users/:id/role",
		"/v1/auth/login":                   "/v1/auth/login",
		"/v1/teams/a/members/b/extra/more": "/v1/teams/other",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentCountsByCanonicalPath(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/tasks/:id", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/tasks/abc", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/tasks/:id", "418"))
	if after-before != 1 {
		t.Fatalf("expected one observation, got %v", after-before)
	}
}

func TestObserveCounters(t *testing.T) {
	ObserveAccess("task", "delete", false)
	if v := testutil.ToFloat64(accessDecisions.WithLabelValues("task", "delete", "deny")); v < 1 {
		t.Fatalf("deny not counted")
	}
	ObserveAuth("login", "ok")
	if v := testutil.ToFloat64(authOperations.WithLabelValues("login", "ok")); v < 1 {
		t.Fatalf("login not counted")
	}
}
