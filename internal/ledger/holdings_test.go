package ledger

import (
	"context"
	"errors"
	"testing"
)

// A user's position is the sum of their purchases and only ever grows.
func TestTotalHoldingSumsPurchases(t *testing.T) {
	s := testService()
	ctx := context.Background()
	owner := seedUser(t, s, "aurora", true)
	a := seedArtist(t, s, owner, 1000, 60, 30, 10)
	fan := seedUser(t, s, "fan1", false)

	var prev int64
	for i, amt := range []int64{100, 50, 1} {
		seedPurchase(t, s, a.ID, fan.ID, amt, "cs_test_"+string(rune('a'+i)))
		total, err := s.TotalHolding(ctx, a.ID, fan.ID)
		if err != nil {
			t.Fatal(err)
		}
		if total <= prev {
			t.Fatalf("total did not grow: %d -> %d", prev, total)
		}
		prev = total
	}
	if prev != 151 {
		t.Fatalf("expected total 151, got %d", prev)
	}
}

func TestTotalHoldingZeroWithoutRows(t *testing.T) {
	s := testService()
	ctx := context.Background()
	owner := seedUser(t, s, "aurora", true)
	a := seedArtist(t, s, owner, 1000, 60, 30, 10)
	fan := seedUser(t, s, "fan1", false)

	total, err := s.TotalHolding(ctx, a.ID, fan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Fatalf("expected 0, got %d", total)
	}
}

func TestConfirmTokenPurchaseValidation(t *testing.T) {
	s := testService()
	ctx := context.Background()
	owner := seedUser(t, s, "aurora", true)
	a := seedArtist(t, s, owner, 1000, 60, 30, 10)
	fan := seedUser(t, s, "fan1", false)

	if _, err := s.ConfirmTokenPurchase(ctx, a.ID, fan.ID, 0, "ref"); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, err := s.ConfirmTokenPurchase(ctx, a.ID, fan.ID, -5, "ref"); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative amount: got %v", err)
	}
	if _, err := s.ConfirmTokenPurchase(ctx, a.ID, fan.ID, 10, "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank ref: got %v", err)
	}
	if _, err := s.ConfirmTokenPurchase(ctx, 99, fan.ID, 10, "ref"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing artist: got %v", err)
	}
	if _, err := s.ConfirmTokenPurchase(ctx, a.ID, 99, 10, "ref"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user: got %v", err)
	}
}

func TestHolderTotalsAggregatesAndOrders(t *testing.T) {
	s := testService()
	ctx := context.Background()
	owner := seedUser(t, s, "aurora", true)
	a := seedArtist(t, s, owner, 1000, 60, 30, 10)
	f1 := seedUser(t, s, "fan1", false)
	f2 := seedUser(t, s, "fan2", false)

	seedPurchase(t, s, a.ID, f2.ID, 700, "r1")
	seedPurchase(t, s, a.ID, f1.ID, 200, "r2")
	seedPurchase(t, s, a.ID, f1.ID, 50, "r3")

	totals, err := s.HolderTotals(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(totals) != 2 {
		t.Fatalf("expected 2 holders, got %d", len(totals))
	}
	if totals[0].UserID != f1.ID || totals[0].Total != 250 {
		t.Fatalf("holder 0 wrong: %+v", totals[0])
	}
	if totals[1].UserID != f2.ID || totals[1].Total != 700 {
		t.Fatalf("holder 1 wrong: %+v", totals[1])
	}
}

func TestShareBasisPoints(t *testing.T) {
	s := testService()
	ctx := context.Background()
	owner := seedUser(t, s, "aurora", true)
	a := seedArtist(t, s, owner, 1000, 60, 30, 10)
	fan := seedUser(t, s, "fan1", false)
	seedPurchase(t, s, a.ID, fan.ID, 250, "r1")

	sh, err := s.Share(ctx, a.ID, fan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sh.Total != 250 || sh.TokenSupply != 1000 || sh.BasisPoints != 2500 {
		t.Fatalf("unexpected share %+v", sh)
	}
}

func TestSharesCoverAllHolders(t *testing.T) {
	s := testService()
	ctx := context.Background()
	owner := seedUser(t, s, "aurora", true)
	a := seedArtist(t, s, owner, 1000, 60, 30, 10)
	f1 := seedUser(t, s, "fan1", false)
	f2 := seedUser(t, s, "fan2", false)
	seedPurchase(t, s, a.ID, f1.ID, 250, "r1")
	seedPurchase(t, s, a.ID, f2.ID, 500, "r2")

	shares, err := s.Shares(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(shares))
	}
	if shares[0].UserID != f1.ID || shares[0].BasisPoints != 2500 {
		t.Fatalf("share 0 wrong: %+v", shares[0])
	}
	if shares[1].UserID != f2.ID || shares[1].BasisPoints != 5000 {
		t.Fatalf("share 1 wrong: %+v", shares[1])
	}
}

func TestPortfolioSpansArtists(t *testing.T) {
	s := testService()
	ctx := context.Background()
	o1 := seedUser(t, s, "aurora", true)
	o2 := seedUser(t, s, "nova", true)
	a1 := seedArtist(t, s, o1, 1000, 60, 30, 10)
	a2, err := s.CreateArtist(ctx, Artist{
		UserID: o2.ID, Name: "Nova Collective", TokenName: "Nova Token", TokenSymbol: "NOVA",
		TokenSupply: 500, ArtistSharePct: 50, HolderSharePct: 40, TreasurySharePct: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	fan := seedUser(t, s, "fan1", false)
	seedPurchase(t, s, a1.ID, fan.ID, 10, "r1")
	seedPurchase(t, s, a2.ID, fan.ID, 20, "r2")

	hs, err := s.Portfolio(ctx, fan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(hs) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(hs))
	}
	if _, err := s.Portfolio(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user: got %v", err)
	}
}
