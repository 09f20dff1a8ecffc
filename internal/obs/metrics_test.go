package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/artists/42":                "/v1/artists/:id",
		"/v1/artists/42/holders":        "/v1/artists/:id/holders",
		"/v1/proposals/7/votes":         "/v1/proposals/:id/votes",
		"/v1/revenue/19/distribute":     "/v1/revenue/:id/distribute",
		"/v1/proposals?artist_id=3":     "/v1/proposals",
		"/v1/users/mara":                "/v1/users/mara",
		"/v1/artists/42/proposals?x=1":  "/v1/artists/:id/proposals",
		"/v1/artists/0042/revenue/0007": "/v1/artists/:id/revenue/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestSetReadyGauge(t *testing.T) {
	SetReady(true)
	if got := testutil.ToFloat64(serviceReady); got != 1 {
		t.Fatalf("expected ready=1, got %v", got)
	}
	SetReady(false)
	if got := testutil.ToFloat64(serviceReady); got != 0 {
		t.Fatalf("expected ready=0, got %v", got)
	}
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(votesCastTotal)
	IncVoteCast()
	IncVoteCast()
	if got := testutil.ToFloat64(votesCastTotal); got != before+2 {
		t.Fatalf("expected votes counter to advance by 2, got %v -> %v", before, got)
	}

	before = testutil.ToFloat64(revenueDistributedTotal)
	IncRevenueDistributed()
	if got := testutil.ToFloat64(revenueDistributedTotal); got != before+1 {
		t.Fatalf("expected distribution counter to advance, got %v -> %v", before, got)
	}
}
