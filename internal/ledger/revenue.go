package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RecordRevenue books an incoming royalty or sale for later distribution.
// The amount must be positive and in the ledger currency. recognizedAt may
// be zero for feeds that carry no date.
func (s *Service) RecordRevenue(ctx context.Context, artistID uint64, amount Money, source string, recognizedAt time.Time) (RevenueEvent, error) {
	if !amount.IsPositive() {
		return RevenueEvent{}, fmt.Errorf("%w: amount must be > 0", ErrValidation)
	}
	if amount.Currency != s.currency {
		return RevenueEvent{}, fmt.Errorf("%w: currency %q not accepted, ledger runs %s", ErrValidation, amount.Currency, s.currency)
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return RevenueEvent{}, fmt.Errorf("%w: source required", ErrValidation)
	}
	if _, err := s.GetArtist(ctx, artistID); err != nil {
		return RevenueEvent{}, err
	}
	return s.store.CreateRevenueEvent(ctx, RevenueEvent{
		ArtistID:     artistID,
		Amount:       amount,
		Source:       source,
		RecognizedAt: recognizedAt,
	})
}

func (s *Service) GetRevenueEvent(ctx context.Context, id uint64) (RevenueEvent, error) {
	ev, ok, err := s.store.GetRevenueEvent(ctx, id)
	if err != nil {
		return RevenueEvent{}, err
	}
	if !ok {
		return RevenueEvent{}, fmt.Errorf("%w: revenue event %d", ErrNotFound, id)
	}
	return ev, nil
}

// RevenueDetail returns one event together with its booked earnings.
func (s *Service) RevenueDetail(ctx context.Context, id uint64) (RevenueEvent, []Earning, error) {
	ev, err := s.GetRevenueEvent(ctx, id)
	if err != nil {
		return RevenueEvent{}, nil, err
	}
	earnings, err := s.store.ListEarningsByRevenue(ctx, id)
	if err != nil {
		return RevenueEvent{}, nil, err
	}
	return ev, earnings, nil
}

// ListRevenue returns an artist's revenue events in booking order.
func (s *Service) ListRevenue(ctx context.Context, artistID uint64) ([]RevenueEvent, error) {
	if _, err := s.GetArtist(ctx, artistID); err != nil {
		return nil, err
	}
	return s.store.ListRevenueByArtist(ctx, artistID)
}

// Distribute settles one revenue event exactly once. The artist and
// treasury take their percentage cuts, the holder pool splits pro-rata
// over aggregated positions, and the store applies every earning plus the
// distributed flag in one atomic write. The whole read-compute-write
// window runs under a per-artist lock so a concurrent purchase cannot
// shift the holder snapshot mid-computation.
func (s *Service) Distribute(ctx context.Context, revenueID uint64) (Distribution, error) {
	ev, err := s.GetRevenueEvent(ctx, revenueID)
	if err != nil {
		return Distribution{}, err
	}
	a, err := s.GetArtist(ctx, ev.ArtistID)
	if err != nil {
		return Distribution{}, err
	}

	mu := s.artistLock(a.ID)
	mu.Lock()
	defer mu.Unlock()

	// re-read under the lock; a concurrent call may have settled it
	ev, err = s.GetRevenueEvent(ctx, revenueID)
	if err != nil {
		return Distribution{}, err
	}
	if ev.Distributed {
		return Distribution{}, fmt.Errorf("%w: revenue event %d already distributed", ErrInvalidState, revenueID)
	}
	holders, err := s.HolderTotals(ctx, a.ID)
	if err != nil {
		return Distribution{}, err
	}
	applied, err := s.store.ApplyDistribution(ctx, revenueID, splitRevenue(ev, a, holders))
	if err != nil {
		return Distribution{}, err
	}
	var booked int64
	for _, e := range applied {
		booked += e.Amount.Amount
	}
	return Distribution{
		RevenueID: ev.ID,
		ArtistID:  a.ID,
		Earnings:  applied,
		Remainder: Money{Currency: ev.Amount.Currency, Amount: ev.Amount.Amount - booked},
	}, nil
}

// splitRevenue computes the earnings for one revenue event. Output order
// is deterministic: artist, holders by user id, treasury. Zero-amount
// cuts are skipped; their residue stays with the event.
func splitRevenue(ev RevenueEvent, a Artist, holders []HolderTotal) []Earning {
	amount := ev.Amount.Amount
	currency := ev.Amount.Currency
	out := make([]Earning, 0, len(holders)+2)
	if v := shareOf(amount, a.ArtistSharePct); v > 0 {
		out = append(out, Earning{
			RevenueID: ev.ID,
			Recipient: ArtistRecipient(a.ID),
			Amount:    Money{Currency: currency, Amount: v},
		})
	}
	pool := shareOf(amount, a.HolderSharePct)
	for _, h := range holders {
		if v := proRata(pool, h.Total, a.TokenSupply); v > 0 {
			out = append(out, Earning{
				RevenueID: ev.ID,
				Recipient: HolderRecipient(h.UserID),
				Amount:    Money{Currency: currency, Amount: v},
			})
		}
	}
	if v := shareOf(amount, a.TreasurySharePct); v > 0 {
		out = append(out, Earning{
			RevenueID: ev.ID,
			Recipient: TreasuryRecipient(),
			Amount:    Money{Currency: currency, Amount: v},
		})
	}
	return out
}

// DistributePending settles every undistributed event for one artist, in
// booking order. An event settled concurrently by a direct call is
// skipped, not an error.
func (s *Service) DistributePending(ctx context.Context, artistID uint64) ([]Distribution, error) {
	if _, err := s.GetArtist(ctx, artistID); err != nil {
		return nil, err
	}
	events, err := s.store.ListUndistributedRevenue(ctx, artistID)
	if err != nil {
		return nil, err
	}
	out := make([]Distribution, 0, len(events))
	for _, ev := range events {
		d, err := s.Distribute(ctx, ev.ID)
		if errors.Is(err, ErrInvalidState) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, d)
	}
	return out, nil
}

// EarningsByUser lists a user's holder earnings across all distributions.
func (s *Service) EarningsByUser(ctx context.Context, userID uint64) ([]Earning, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListEarningsByUser(ctx, userID)
}

// Summarize buckets an artist's revenue by calendar month (UTC). Events
// with a zero recognition date count toward the current month. ThisMonth
// and PriorMonth carry the current and immediately preceding calendar
// month for trend display.
func (s *Service) Summarize(ctx context.Context, artistID uint64) (RevenueSummary, error) {
	if _, err := s.GetArtist(ctx, artistID); err != nil {
		return RevenueSummary{}, err
	}
	events, err := s.store.ListRevenueByArtist(ctx, artistID)
	if err != nil {
		return RevenueSummary{}, err
	}
	now := s.now().UTC()
	months := make(map[string]int64)
	var total int64
	for _, ev := range events {
		t := ev.RecognizedAt
		if t.IsZero() {
			t = now
		}
		months[monthKey(t)] += ev.Amount.Amount
		total += ev.Amount.Amount
	}
	year, month, _ := now.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return RevenueSummary{
		ArtistID:   artistID,
		Currency:   s.currency,
		Months:     months,
		Total:      total,
		ThisMonth:  months[monthKey(now)],
		PriorMonth: months[monthKey(first.AddDate(0, -1, 0))],
	}, nil
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
