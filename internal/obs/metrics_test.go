package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                               "/",
		"/metrics":                       "/metrics",
		"/v1/collaborations/abc":         "/v1/collaborations/:id",
		"/v1/collaborations/abc/votes":   "/v1/collaborations/:id/votes",
		"/v1/proposals/p1":               "/v1/proposals/:id",
		"/v1/proposals/p1/votes":         "/v1/proposals/:id/votes",
		"/v1/proposals/p1/a/b":           "/v1/proposals/p1/a/b",
		"/v1/audit/events":               "/v1/audit/events",
		"/v1/audit/events?severity=high": "/v1/audit/events",
		"/v1/tokens/balances/alice":      "/v1/tokens/balances/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
