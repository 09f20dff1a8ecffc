// Command seed fills a running greenroom API with demo marketplace
// activity: accounts, artist profiles, concurrent token purchases, then
// a governance and revenue cycle. Purchases and revenue go through an
// operator account, so -ops-user must be on the server's ops_users list.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"greenroom.fm/internal/sim"
)

type member struct {
	token  string
	userID uint64
}

func main() {
	var (
		baseURL     = flag.String("base-url", "http://localhost:8080", "API base URL")
		workers     = flag.Int("workers", 4, "Concurrent purchase workers")
		duration    = flag.Duration("duration", 45*time.Second, "Duration of the purchase phase")
		opsUser     = flag.String("ops-user", "ops", "Operator username (must be on the server ops_users list)")
		opsPass     = flag.String("ops-pass", "", "Operator password")
		seed        = flag.Int64("seed", 0, "Scenario seed (0 = time-based)")
		openAIModel = flag.String("openai-model", "gpt-4o-mini", "OpenAI model for summaries (optional)")
	)
	flag.Parse()

	if *opsPass == "" {
		log.Fatal("missing -ops-pass: purchases and revenue need an operator account")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	api := &apiClient{base: *baseURL, hc: &http.Client{Timeout: 10 * time.Second}}

	var info struct {
		Version  string `json:"version"`
		Currency string `json:"currency"`
	}
	if _, err := api.get(ctx, "/v1/info", &info); err != nil {
		log.Fatalf("api unreachable at %s: %v", *baseURL, err)
	}
	log.Printf("Seeding greenroom %s at %s: workers=%d duration=%s", info.Version, *baseURL, *workers, *duration)

	gen := sim.NewGenerator(*seed)
	sc := gen.Scenario()

	opsToken, _, err := ensureAccount(ctx, api, *opsUser, *opsPass, sim.Profile{Username: *opsUser})
	if err != nil {
		log.Fatalf("operator sign-in: %v", err)
	}

	cast := map[string]*member{}
	for _, p := range sc.Profiles {
		token, userID, err := ensureAccount(ctx, api, p.Username, demoPassword(p.Username), p)
		if err != nil {
			log.Fatalf("account %s: %v", p.Username, err)
		}
		cast[p.Username] = &member{token: token, userID: userID}
	}

	artistIDs := map[string]uint64{}
	artistOwners := map[string]string{}
	for _, a := range sc.Artists {
		id, err := ensureArtist(ctx, api, cast[a.Owner].token, a)
		if err != nil {
			log.Fatalf("artist %s: %v", a.Name, err)
		}
		artistIDs[a.Name] = id
		artistOwners[a.Name] = a.Owner
	}

	var counter sim.Counter
	var counterMu sync.Mutex
	var successes int64
	var failures int64
	var conflicts int64
	var rateLimited int64
	var serverErrors int64

	var wg sync.WaitGroup
	deadline := time.Now().Add(*duration)

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id*9973)))
			for time.Now().Before(deadline) {
				select {
				case <-ctx.Done():
					return
				default:
				}
				p := gen.NextPurchase()
				payload := map[string]any{
					"artist_id":       artistIDs[p.Artist],
					"user_id":         cast[p.Fan].userID,
					"amount":          p.Amount,
					"acquisition_ref": p.Ref + "-" + uuid.NewString()[:8],
				}
				status, err := api.post(ctx, opsToken, "/v1/purchases", payload, nil)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("worker %d purchase: %v", id, err)
					atomic.AddInt64(&failures, 1)
					continue
				}
				if status >= 300 {
					atomic.AddInt64(&failures, 1)
					switch status {
					case http.StatusConflict:
						atomic.AddInt64(&conflicts, 1)
					case http.StatusTooManyRequests:
						atomic.AddInt64(&rateLimited, 1)
						time.Sleep(250 * time.Millisecond)
					default:
						atomic.AddInt64(&serverErrors, 1)
						log.Printf("worker %d purchase rejected: status %d", id, status)
						time.Sleep(200 * time.Millisecond)
					}
					continue
				}
				atomic.AddInt64(&successes, 1)
				counterMu.Lock()
				counter.AddPurchase(p)
				counterMu.Unlock()
				time.Sleep(time.Duration(50+rnd.Intn(120)) * time.Millisecond)
			}
		}(i)
	}

	wg.Wait()

	// Governance after the purchase phase, so fans vote with real weight.
	if ctx.Err() == nil {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for range sc.Artists {
			draft := gen.NextProposal()
			owner := cast[artistOwners[draft.Artist]]
			payload := map[string]any{
				"artist_id": artistIDs[draft.Artist],
				"title":     draft.Title,
				"type":      draft.Type,
				"options":   draft.Options,
				"end_date":  draft.EndDate,
			}
			var created struct {
				ID uint64 `json:"id"`
			}
			status, err := api.post(ctx, owner.token, "/v1/proposals", payload, &created)
			if err != nil || status != http.StatusCreated {
				log.Printf("proposal %q: status %d err %v", draft.Title, status, err)
				continue
			}
			counter.Proposals++
			for _, p := range sc.Profiles {
				if p.IsArtist {
					continue
				}
				vote := map[string]int{"option_index": rnd.Intn(len(draft.Options))}
				status, err := api.post(ctx, cast[p.Username].token, fmt.Sprintf("/v1/proposals/%d/votes", created.ID), vote, nil)
				if err == nil && status == http.StatusCreated {
					counter.Votes++
				}
			}
		}
	}

	if ctx.Err() == nil {
		for i := 0; i < 3; i++ {
			r := gen.NextRevenue()
			var evt struct {
				Amount struct {
					Amount int64 `json:"amount"`
				} `json:"amount"`
			}
			payload := map[string]string{"amount": r.Amount, "source": r.Source}
			status, err := api.post(ctx, opsToken, fmt.Sprintf("/v1/artists/%d/revenue", artistIDs[r.Artist]), payload, &evt)
			if err != nil || status != http.StatusCreated {
				log.Printf("revenue %s %s: status %d err %v", r.Artist, r.Amount, status, err)
				continue
			}
			counter.AddRevenue(evt.Amount.Amount)
		}
		for name, id := range artistIDs {
			var out struct {
				Items []struct {
					Earnings []struct{} `json:"earnings"`
				} `json:"items"`
			}
			status, err := api.post(ctx, opsToken, fmt.Sprintf("/v1/artists/%d/distributions", id), nil, &out)
			if err != nil || status != http.StatusOK {
				log.Printf("distribute for %s: status %d err %v", name, status, err)
				continue
			}
			earnings := 0
			for _, d := range out.Items {
				earnings += len(d.Earnings)
			}
			log.Printf("distributed %d revenue events for %s (%d earnings)", len(out.Items), name, earnings)
		}
	}

	log.Printf("Run complete: %d purchases ok / %d failed (conflicts=%d, rate_limited=%d, server_errors=%d), %d tokens, %d proposals, %d votes, revenue %.2f %s",
		successes, failures, conflicts, rateLimited, serverErrors, counter.TokensBought, counter.Proposals, counter.Votes, counter.RevenueMajor(), info.Currency)

	if key := os.Getenv("OPENAI_API_KEY"); key != "" && counter.Purchases > 0 {
		summary, err := sim.Summarize(ctx, sim.SummaryStats{
			Purchases:     counter.Purchases,
			TokensBought:  counter.TokensBought,
			RevenueEvents: counter.RevenueEvents,
			Revenue:       counter.RevenueMajor(),
			Currency:      info.Currency,
			Duration:      *duration,
		}, sim.SummaryRequest{APIKey: key, Model: *openAIModel})
		if err != nil {
			log.Printf("AI summary error: %v", err)
		} else {
			log.Println("AI Executive Summary:")
			log.Println(summary)
		}
	} else {
		log.Println("Set OPENAI_API_KEY to enable AI narrative summaries.")
	}
}

// demoPassword is deterministic so repeated runs sign back in to the
// accounts an earlier run registered.
func demoPassword(username string) string {
	return "demo-" + username + "-pass"
}

// ensureAccount registers the profile if needed and returns a bearer
// token. A 409 on register means the account already exists, which is
// fine as long as the password still matches.
func ensureAccount(ctx context.Context, api *apiClient, username, password string, p sim.Profile) (string, uint64, error) {
	reg := map[string]any{
		"username":  username,
		"password":  password,
		"is_artist": p.IsArtist,
		"bio":       p.Bio,
	}
	status, err := api.post(ctx, "", "/v1/auth/register", reg, nil)
	if err != nil {
		return "", 0, err
	}
	if status != http.StatusCreated && status != http.StatusConflict {
		return "", 0, fmt.Errorf("register %s: status %d", username, status)
	}
	var tok struct {
		Token  string `json:"token"`
		UserID uint64 `json:"user_id"`
	}
	status, err = api.post(ctx, "", "/v1/auth/token", map[string]string{"username": username, "password": password}, &tok)
	if err != nil {
		return "", 0, err
	}
	if status != http.StatusOK {
		return "", 0, fmt.Errorf("token for %s: status %d (existing account with a different password?)", username, status)
	}
	return tok.Token, tok.UserID, nil
}

func ensureArtist(ctx context.Context, api *apiClient, token string, spec sim.ArtistSpec) (uint64, error) {
	payload := map[string]any{
		"name":               spec.Name,
		"genres":             spec.Genres,
		"token_name":         spec.TokenName,
		"token_symbol":       spec.TokenSymbol,
		"token_supply":       spec.TokenSupply,
		"artist_share_pct":   spec.ArtistSharePct,
		"holder_share_pct":   spec.HolderSharePct,
		"treasury_share_pct": spec.TreasurySharePct,
	}
	var created struct {
		ID uint64 `json:"id"`
	}
	status, err := api.post(ctx, token, "/v1/artists", payload, &created)
	if err != nil {
		return 0, err
	}
	switch status {
	case http.StatusCreated:
		return created.ID, nil
	case http.StatusConflict:
		return findArtist(ctx, api, spec.Name)
	default:
		return 0, fmt.Errorf("create artist %s: status %d", spec.Name, status)
	}
}

func findArtist(ctx context.Context, api *apiClient, name string) (uint64, error) {
	var out struct {
		Items []struct {
			ID   uint64 `json:"id"`
			Name string `json:"name"`
		} `json:"items"`
	}
	if _, err := api.get(ctx, "/v1/artists", &out); err != nil {
		return 0, err
	}
	for _, a := range out.Items {
		if a.Name == name {
			return a.ID, nil
		}
	}
	return 0, fmt.Errorf("artist %q not found after 409 on create", name)
}

// --- thin HTTP client ---

type apiClient struct {
	base string
	hc   *http.Client
}

func (c *apiClient) post(ctx context.Context, token, path string, payload, out any) (int, error) {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (c *apiClient) get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
