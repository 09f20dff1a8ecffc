package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"greenroom.fm/internal/auth"
	"greenroom.fm/internal/config"
	"greenroom.fm/internal/ledger"
	"greenroom.fm/internal/stream"
)

const testPassword = "sound-check-9"

type testProbe struct{ ready bool }

func (p testProbe) IsReady() bool { return p.ready }

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	t.Setenv("GREENROOM_AUTH_SECRET", "unit-test-secret-0123456789abcdef")
	auth.ResetSecretForTests()

	cfg := config.Default()
	cfg.OpsUsers = []string{"ops"}

	svc := ledger.New(ledger.NewMemStore())
	api := New(testProbe{ready: true}, "test", svc, stream.New(), cfg)
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv}
}

func (c *apiClient) do(method, path, token string, body any, wantStatus int) *http.Response {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rd)
	if err != nil {
		c.t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	if resp.StatusCode != wantStatus {
		payload, _ := io.ReadAll(resp.Body)
		c.t.Fatalf("%s %s: status %d, want %d (body %s)", method, path, resp.StatusCode, wantStatus, payload)
	}
	return resp
}

func (c *apiClient) post(path, token string, body any, wantStatus int) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, token, body, wantStatus)
}

func (c *apiClient) get(path, token string, wantStatus int) *http.Response {
	c.t.Helper()
	return c.do(http.MethodGet, path, token, nil, wantStatus)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (c *apiClient) register(username string, isArtist bool) ledger.User {
	c.t.Helper()
	resp := c.post("/v1/auth/register", "", map[string]any{
		"username":  username,
		"password":  testPassword,
		"is_artist": isArtist,
	}, http.StatusCreated)
	return decode[ledger.User](c.t, resp)
}

func (c *apiClient) obtainToken(username string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", "", map[string]any{
		"username": username,
		"password": testPassword,
	}, http.StatusOK)
	return decode[tokenResponse](c.t, resp).Token
}

func (c *apiClient) onboardArtist(token string) ledger.Artist {
	c.t.Helper()
	resp := c.post("/v1/artists", token, map[string]any{
		"name":               "Mara Vane",
		"genres":             []string{"synthwave"},
		"token_name":         "Mara Vane Token",
		"token_symbol":       "MVT",
		"token_supply":       1000,
		"artist_share_pct":   60,
		"holder_share_pct":   25,
		"treasury_share_pct": 15,
	}, http.StatusCreated)
	return decode[ledger.Artist](c.t, resp)
}

func TestHealthAndInfo(t *testing.T) {
	c := newTestAPI(t)
	body := decode[map[string]string](t, c.get("/healthz", "", http.StatusOK))
	if body["status"] != "ok" {
		t.Fatalf("healthz body: %v", body)
	}
	info := decode[map[string]string](t, c.get("/v1/info", "", http.StatusOK))
	if info["name"] != "greenroom-api" || info["version"] != "test" || info["currency"] != "USD" {
		t.Fatalf("info body: %v", info)
	}
}

func TestGovernanceAndRevenueFlow(t *testing.T) {
	c := newTestAPI(t)

	mara := c.register("mara", true)
	theo := c.register("theo", false)
	ana := c.register("ana", false)
	c.register("ops", false)

	maraTok := c.obtainToken("mara")
	theoTok := c.obtainToken("theo")
	anaTok := c.obtainToken("ana")
	opsTok := c.obtainToken("ops")

	artist := c.onboardArtist(maraTok)
	if artist.UserID != mara.ID {
		t.Fatalf("artist owner = %d, want %d", artist.UserID, mara.ID)
	}

	c.post("/v1/purchases", opsTok, map[string]any{
		"artist_id": artist.ID, "user_id": theo.ID, "amount": 250, "acquisition_ref": "cs_001",
	}, http.StatusCreated)
	c.post("/v1/purchases", opsTok, map[string]any{
		"artist_id": artist.ID, "user_id": ana.ID, "amount": 750, "acquisition_ref": "cs_002",
	}, http.StatusCreated)

	holders := decode[listResponse[ledger.OwnershipShare]](t, c.get(fmt.Sprintf("/v1/artists/%d/holders", artist.ID), "", http.StatusOK))
	if len(holders.Items) != 2 {
		t.Fatalf("holders = %d, want 2", len(holders.Items))
	}
	if holders.Items[0].UserID != theo.ID || holders.Items[0].BasisPoints != 2500 {
		t.Fatalf("first holder share: %+v", holders.Items[0])
	}
	if holders.Items[1].UserID != ana.ID || holders.Items[1].BasisPoints != 7500 {
		t.Fatalf("second holder share: %+v", holders.Items[1])
	}

	resp := c.post("/v1/proposals", maraTok, map[string]any{
		"artist_id": artist.ID,
		"title":     "Title for the next single",
		"type":      "creative",
		"options":   []string{"Neon Drift", "Glass City"},
		"end_date":  time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339),
	}, http.StatusCreated)
	prop := decode[proposalResponse](t, resp)
	if !prop.Votable {
		t.Fatalf("fresh proposal should be votable: %+v", prop)
	}

	c.post(fmt.Sprintf("/v1/proposals/%d/votes", prop.ID), theoTok, map[string]any{"option_index": 0}, http.StatusCreated)
	c.post(fmt.Sprintf("/v1/proposals/%d/votes", prop.ID), anaTok, map[string]any{"option_index": 1}, http.StatusCreated)

	tally := decode[ledger.Tally](t, c.get(fmt.Sprintf("/v1/proposals/%d/tally", prop.ID), "", http.StatusOK))
	if tally.Ballots != 2 || tally.TotalWeight != 1000 {
		t.Fatalf("tally totals: %+v", tally)
	}
	if tally.OptionWeights[0] != 250 || tally.OptionWeights[1] != 750 {
		t.Fatalf("tally weights: %v", tally.OptionWeights)
	}
	if tally.OptionPercentages[0] != 25 || tally.OptionPercentages[1] != 75 {
		t.Fatalf("tally percentages: %v", tally.OptionPercentages)
	}

	resp = c.post(fmt.Sprintf("/v1/artists/%d/revenue", artist.ID), opsTok, map[string]any{
		"amount": "150.00", "source": "bandcamp",
	}, http.StatusCreated)
	ev := decode[ledger.RevenueEvent](t, resp)
	if ev.Amount.Amount != 150_000_000 {
		t.Fatalf("revenue amount = %d", ev.Amount.Amount)
	}

	dist := decode[ledger.Distribution](t, c.post(fmt.Sprintf("/v1/revenue/%d/distribute", ev.ID), opsTok, nil, http.StatusOK))
	if len(dist.Earnings) != 4 {
		t.Fatalf("earnings = %d, want 4", len(dist.Earnings))
	}
	wantAmounts := []int64{90_000_000, 9_375_000, 28_125_000, 22_500_000}
	for i, want := range wantAmounts {
		if got := dist.Earnings[i].Amount.Amount; got != want {
			t.Fatalf("earning[%d] = %d, want %d", i, got, want)
		}
	}
	if dist.Remainder.Amount != 0 {
		t.Fatalf("remainder = %d, want 0", dist.Remainder.Amount)
	}

	// the distributed flag flips once
	c.post(fmt.Sprintf("/v1/revenue/%d/distribute", ev.ID), opsTok, nil, http.StatusConflict)

	earned := decode[listResponse[ledger.Earning]](t, c.get(fmt.Sprintf("/v1/users/%d/earnings", theo.ID), "", http.StatusOK))
	if len(earned.Items) != 1 || earned.Items[0].Amount.Amount != 9_375_000 {
		t.Fatalf("theo earnings: %+v", earned.Items)
	}

	detail := decode[revenueDetailResponse](t, c.get(fmt.Sprintf("/v1/revenue/%d", ev.ID), "", http.StatusOK))
	if !detail.Event.Distributed || len(detail.Earnings) != 4 {
		t.Fatalf("revenue detail: %+v", detail)
	}

	summary := decode[ledger.RevenueSummary](t, c.get(fmt.Sprintf("/v1/artists/%d/revenue/summary", artist.ID), "", http.StatusOK))
	if summary.Total != 150_000_000 || summary.ThisMonth != 150_000_000 {
		t.Fatalf("summary: %+v", summary)
	}

	closed := decode[proposalResponse](t, c.post(fmt.Sprintf("/v1/proposals/%d/close", prop.ID), maraTok, map[string]any{"status": "closed"}, http.StatusOK))
	if closed.Status != ledger.ProposalClosed || closed.Votable {
		t.Fatalf("closed proposal: %+v", closed)
	}
	c.post(fmt.Sprintf("/v1/proposals/%d/votes", prop.ID), theoTok, map[string]any{"option_index": 1}, http.StatusConflict)
}

func TestMutationsRequireToken(t *testing.T) {
	c := newTestAPI(t)
	resp := c.post("/v1/artists", "", map[string]any{"name": "x"}, http.StatusUnauthorized)
	defer resp.Body.Close()
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("missing WWW-Authenticate header")
	}
}

func TestPublicReadsSkipAuth(t *testing.T) {
	c := newTestAPI(t)
	artists := decode[listResponse[ledger.Artist]](t, c.get("/v1/artists", "", http.StatusOK))
	if len(artists.Items) != 0 {
		t.Fatalf("expected empty catalog, got %d", len(artists.Items))
	}
}

func TestPurchasesNeedOpsRole(t *testing.T) {
	c := newTestAPI(t)
	c.register("theo", false)
	theoTok := c.obtainToken("theo")
	resp := c.post("/v1/purchases", theoTok, map[string]any{
		"artist_id": 1, "user_id": 1, "amount": 10, "acquisition_ref": "cs_x",
	}, http.StatusForbidden)
	defer resp.Body.Close()
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("missing WWW-Authenticate header")
	}
}

func TestProposalOwnershipEnforced(t *testing.T) {
	c := newTestAPI(t)
	c.register("mara", true)
	c.register("theo", false)
	maraTok := c.obtainToken("mara")
	theoTok := c.obtainToken("theo")
	artist := c.onboardArtist(maraTok)

	c.post("/v1/proposals", theoTok, map[string]any{
		"artist_id": artist.ID,
		"title":     "Hostile takeover",
		"type":      "creative",
		"options":   []string{"a", "b"},
		"end_date":  time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	}, http.StatusForbidden)

	resp := c.post("/v1/proposals", maraTok, map[string]any{
		"artist_id": artist.ID,
		"title":     "Set list",
		"type":      "creative",
		"options":   []string{"a", "b"},
		"end_date":  time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	}, http.StatusCreated)
	prop := decode[proposalResponse](t, resp)

	c.post(fmt.Sprintf("/v1/proposals/%d/close", prop.ID), theoTok, map[string]any{}, http.StatusForbidden)
}

func TestProposalValidation(t *testing.T) {
	c := newTestAPI(t)
	c.register("mara", true)
	maraTok := c.obtainToken("mara")
	artist := c.onboardArtist(maraTok)

	// fewer than two options
	c.post("/v1/proposals", maraTok, map[string]any{
		"artist_id": artist.ID,
		"title":     "One horse race",
		"type":      "creative",
		"options":   []string{"only"},
		"end_date":  time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	}, http.StatusBadRequest)

	// end date in the past
	c.post("/v1/proposals", maraTok, map[string]any{
		"artist_id": artist.ID,
		"title":     "Too late",
		"type":      "creative",
		"options":   []string{"a", "b"},
		"end_date":  time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
	}, http.StatusBadRequest)
}

func TestVoteNeedsHolding(t *testing.T) {
	c := newTestAPI(t)
	c.register("mara", true)
	maraTok := c.obtainToken("mara")
	artist := c.onboardArtist(maraTok)

	resp := c.post("/v1/proposals", maraTok, map[string]any{
		"artist_id": artist.ID,
		"title":     "Tour routing",
		"type":      "business",
		"options":   []string{"east", "west"},
		"end_date":  time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	}, http.StatusCreated)
	prop := decode[proposalResponse](t, resp)

	// mara owns the profile but holds no tokens
	c.post(fmt.Sprintf("/v1/proposals/%d/votes", prop.ID), maraTok, map[string]any{"option_index": 0}, http.StatusForbidden)
}

func TestProfileIsSelfOnly(t *testing.T) {
	c := newTestAPI(t)
	mara := c.register("mara", true)
	theo := c.register("theo", false)
	theoTok := c.obtainToken("theo")

	c.do(http.MethodPut, fmt.Sprintf("/v1/users/%d/profile", mara.ID), theoTok,
		map[string]any{"bio": "not yours"}, http.StatusForbidden)

	resp := c.do(http.MethodPut, fmt.Sprintf("/v1/users/%d/profile", theo.ID), theoTok,
		map[string]any{"wallet_address": "0xabc", "bio": "fan one"}, http.StatusOK)
	updated := decode[ledger.User](t, resp)
	if updated.WalletAddress != "0xabc" || updated.Bio != "fan one" {
		t.Fatalf("profile update: %+v", updated)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	c := newTestAPI(t)
	c.register("mara", true)
	c.post("/v1/auth/register", "", map[string]any{
		"username": "mara", "password": testPassword,
	}, http.StatusConflict)
}

func TestTokenRejectsBadCredentials(t *testing.T) {
	c := newTestAPI(t)
	c.register("mara", true)
	c.post("/v1/auth/token", "", map[string]any{"username": "mara", "password": "wrong-password"}, http.StatusUnauthorized)
	c.post("/v1/auth/token", "", map[string]any{"username": "nobody", "password": testPassword}, http.StatusUnauthorized)
}

func TestErrorPayloadCarriesRequestID(t *testing.T) {
	c := newTestAPI(t)
	body := decode[map[string]string](t, c.get("/v1/users/999", "", http.StatusNotFound))
	if body["error"] == "" || body["request_id"] == "" {
		t.Fatalf("error payload: %v", body)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	c := newTestAPI(t)
	c.post("/v1/auth/register", "", map[string]any{
		"username": "mara", "password": testPassword, "favourite_colour": "teal",
	}, http.StatusBadRequest)
}

func TestRevenueAmountValidation(t *testing.T) {
	c := newTestAPI(t)
	c.register("mara", true)
	c.register("ops", false)
	maraTok := c.obtainToken("mara")
	opsTok := c.obtainToken("ops")
	artist := c.onboardArtist(maraTok)

	path := fmt.Sprintf("/v1/artists/%d/revenue", artist.ID)
	c.post(path, opsTok, map[string]any{"amount": "abc", "source": "merch"}, http.StatusBadRequest)
	c.post(path, opsTok, map[string]any{"amount": "-5.00", "source": "merch"}, http.StatusBadRequest)
	c.post(path, maraTok, map[string]any{"amount": "10.00", "source": "merch"}, http.StatusForbidden)
}

func TestMethodNotAllowedSetsAllow(t *testing.T) {
	c := newTestAPI(t)
	c.register("mara", true)
	maraTok := c.obtainToken("mara")
	artist := c.onboardArtist(maraTok)

	resp := c.do(http.MethodDelete, fmt.Sprintf("/v1/artists/%d", artist.ID), maraTok, nil, http.StatusMethodNotAllowed)
	defer resp.Body.Close()
	if resp.Header.Get("Allow") != http.MethodGet {
		t.Fatalf("Allow = %q", resp.Header.Get("Allow"))
	}
}
