// Command smoke drives one full marketplace cycle against a running
// API: fresh accounts, an artist onboarding, two token purchases, a
// governance vote, then a revenue distribution. It fails loudly if the
// tally weights drift from the holdings or if any distributed
// micro-unit goes missing.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

const revenueAmount = "150.00"

func main() {
	baseURL := flag.String("base-url", envOr("GREENROOM_API_ADDR", "http://localhost:8080"), "API base URL")
	opsUser := flag.String("ops-user", "ops", "Operator username (must be on the server ops_users list)")
	opsPass := flag.String("ops-pass", "", "Operator password")
	flag.Parse()

	if *opsPass == "" {
		log.Fatal("missing -ops-pass: purchases and revenue need an operator account")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	c := &client{base: *baseURL, hc: &http.Client{Timeout: 10 * time.Second}}

	// Unique usernames per run, so the smoke can repeat against one database.
	run := time.Now().UnixNano()
	artistTok, _ := c.signup(ctx, fmt.Sprintf("smoke_artist_%d", run), true)
	fanATok, fanAID := c.signup(ctx, fmt.Sprintf("smoke_fan_a_%d", run), false)
	fanBTok, fanBID := c.signup(ctx, fmt.Sprintf("smoke_fan_b_%d", run), false)
	opsTok := c.signin(ctx, *opsUser, *opsPass)

	var artist struct {
		ID uint64 `json:"id"`
	}
	c.post(ctx, artistTok, "/v1/artists", map[string]any{
		"name":               fmt.Sprintf("Smoke Act %d", run),
		"genres":             []string{"test"},
		"token_name":         "Smoke Token",
		"token_symbol":       "SMK",
		"token_supply":       1000,
		"artist_share_pct":   60,
		"holder_share_pct":   25,
		"treasury_share_pct": 15,
	}, http.StatusCreated, &artist)

	for _, p := range []struct {
		userID uint64
		amount int64
	}{{fanAID, 250}, {fanBID, 750}} {
		c.post(ctx, opsTok, "/v1/purchases", map[string]any{
			"artist_id":       artist.ID,
			"user_id":         p.userID,
			"amount":          p.amount,
			"acquisition_ref": fmt.Sprintf("smoke-%d-%d", run, p.userID),
		}, http.StatusCreated, nil)
	}

	var proposal struct {
		ID uint64 `json:"id"`
	}
	c.post(ctx, artistTok, "/v1/proposals", map[string]any{
		"artist_id": artist.ID,
		"title":     "Smoke check",
		"type":      "business",
		"options":   []string{"yes", "no"},
		"end_date":  time.Now().UTC().Add(24 * time.Hour),
	}, http.StatusCreated, &proposal)

	c.post(ctx, fanATok, fmt.Sprintf("/v1/proposals/%d/votes", proposal.ID), map[string]int{"option_index": 0}, http.StatusCreated, nil)
	c.post(ctx, fanBTok, fmt.Sprintf("/v1/proposals/%d/votes", proposal.ID), map[string]int{"option_index": 1}, http.StatusCreated, nil)

	var tally struct {
		OptionWeights []int64 `json:"option_weights"`
		TotalWeight   int64   `json:"total_weight"`
		Ballots       int     `json:"ballots"`
	}
	c.get(ctx, fmt.Sprintf("/v1/proposals/%d/tally", proposal.ID), &tally)
	if tally.Ballots != 2 || tally.TotalWeight != 1000 {
		log.Fatalf("tally mismatch: ballots=%d total=%d", tally.Ballots, tally.TotalWeight)
	}
	if tally.OptionWeights[0] != 250 || tally.OptionWeights[1] != 750 {
		log.Fatalf("vote weights drifted from holdings: %v", tally.OptionWeights)
	}

	var revenue struct {
		ID     uint64 `json:"id"`
		Amount struct {
			Amount int64 `json:"amount"`
		} `json:"amount"`
	}
	c.post(ctx, opsTok, fmt.Sprintf("/v1/artists/%d/revenue", artist.ID), map[string]string{
		"amount": revenueAmount,
		"source": "smoke",
	}, http.StatusCreated, &revenue)

	var dist struct {
		Earnings []struct {
			Amount struct {
				Amount int64 `json:"amount"`
			} `json:"amount"`
		} `json:"earnings"`
		Remainder struct {
			Amount int64 `json:"amount"`
		} `json:"remainder"`
	}
	c.post(ctx, opsTok, fmt.Sprintf("/v1/revenue/%d/distribute", revenue.ID), nil, http.StatusOK, &dist)

	booked := dist.Remainder.Amount
	for _, e := range dist.Earnings {
		booked += e.Amount.Amount
	}
	if booked != revenue.Amount.Amount {
		log.Fatalf("revenue conservation failed: booked %d of %d micro-units", booked, revenue.Amount.Amount)
	}

	// The distributed flag flips once; a repeat must answer 409.
	c.post(ctx, opsTok, fmt.Sprintf("/v1/revenue/%d/distribute", revenue.ID), nil, http.StatusConflict, nil)

	fmt.Printf("✅ greenroom smoke test passed: artist=%d proposal=%d revenue=%d earnings=%d\n", artist.ID, proposal.ID, revenue.ID, len(dist.Earnings))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type client struct {
	base string
	hc   *http.Client
}

func (c *client) signup(ctx context.Context, username string, isArtist bool) (string, uint64) {
	c.post(ctx, "", "/v1/auth/register", map[string]any{
		"username":  username,
		"password":  "smoke-pass-1",
		"is_artist": isArtist,
	}, http.StatusCreated, nil)
	return c.tokenFor(ctx, username, "smoke-pass-1")
}

func (c *client) signin(ctx context.Context, username, password string) string {
	tok, _ := c.tokenFor(ctx, username, password)
	return tok
}

func (c *client) tokenFor(ctx context.Context, username, password string) (string, uint64) {
	var out struct {
		Token  string `json:"token"`
		UserID uint64 `json:"user_id"`
	}
	c.post(ctx, "", "/v1/auth/token", map[string]string{"username": username, "password": password}, http.StatusOK, &out)
	return out.Token, out.UserID
}

func (c *client) post(ctx context.Context, token, path string, payload any, wantStatus int, out any) {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("POST %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	c.do(req, path, wantStatus, out)
}

func (c *client) get(ctx context.Context, path string, out any) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		log.Fatalf("GET %s: %v", path, err)
	}
	c.do(req, path, http.StatusOK, out)
}

func (c *client) do(req *http.Request, path string, wantStatus int, out any) {
	resp, err := c.hc.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", req.Method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		log.Fatalf("%s %s: status %d (want %d): %s", req.Method, path, resp.StatusCode, wantStatus, e.Error)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("%s %s: decode: %v", req.Method, path, err)
		}
	}
}
