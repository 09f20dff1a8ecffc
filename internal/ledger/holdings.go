package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ConfirmTokenPurchase appends a holding after an upstream payment or
// wallet transfer has settled. acquisitionRef carries the upstream
// reference (checkout session or transaction hash); deduplicating on it is
// the payment collaborator's duty, the ledger books what it is told.
func (s *Service) ConfirmTokenPurchase(ctx context.Context, artistID, userID uint64, amount int64, acquisitionRef string) (TokenHolding, error) {
	if amount <= 0 {
		return TokenHolding{}, fmt.Errorf("%w: token amount must be > 0", ErrValidation)
	}
	acquisitionRef = strings.TrimSpace(acquisitionRef)
	if acquisitionRef == "" {
		return TokenHolding{}, fmt.Errorf("%w: acquisition reference required", ErrValidation)
	}
	if _, err := s.GetArtist(ctx, artistID); err != nil {
		return TokenHolding{}, err
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return TokenHolding{}, err
	}
	return s.store.CreateHolding(ctx, TokenHolding{
		ArtistID:       artistID,
		UserID:         userID,
		Amount:         amount,
		AcquisitionRef: acquisitionRef,
	})
}

// TotalHolding returns the user's aggregate position in one artist's
// token. A user with no holdings simply holds zero; absence of rows is not
// an error. This is the sole source of voting weight and ownership basis.
func (s *Service) TotalHolding(ctx context.Context, artistID, userID uint64) (int64, error) {
	hs, err := s.store.ListHoldingsByArtistUser(ctx, artistID, userID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, h := range hs {
		total += h.Amount
	}
	return total, nil
}

// HolderTotals aggregates positions per user, ordered by user id so that
// distribution output is deterministic.
func (s *Service) HolderTotals(ctx context.Context, artistID uint64) ([]HolderTotal, error) {
	hs, err := s.store.ListHoldingsByArtist(ctx, artistID)
	if err != nil {
		return nil, err
	}
	totals := make(map[uint64]int64)
	for _, h := range hs {
		totals[h.UserID] += h.Amount
	}
	out := make([]HolderTotal, 0, len(totals))
	for userID, total := range totals {
		out = append(out, HolderTotal{UserID: userID, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Share reports one holder's stake against the artist's token supply.
func (s *Service) Share(ctx context.Context, artistID, userID uint64) (OwnershipShare, error) {
	a, err := s.GetArtist(ctx, artistID)
	if err != nil {
		return OwnershipShare{}, err
	}
	total, err := s.TotalHolding(ctx, artistID, userID)
	if err != nil {
		return OwnershipShare{}, err
	}
	return OwnershipShare{
		ArtistID:    artistID,
		UserID:      userID,
		Total:       total,
		TokenSupply: a.TokenSupply,
		BasisPoints: proRata(10_000, total, a.TokenSupply),
	}, nil
}

// Shares reports every holder's stake for one artist, ordered by user id.
func (s *Service) Shares(ctx context.Context, artistID uint64) ([]OwnershipShare, error) {
	a, err := s.GetArtist(ctx, artistID)
	if err != nil {
		return nil, err
	}
	totals, err := s.HolderTotals(ctx, artistID)
	if err != nil {
		return nil, err
	}
	out := make([]OwnershipShare, 0, len(totals))
	for _, t := range totals {
		out = append(out, OwnershipShare{
			ArtistID:    artistID,
			UserID:      t.UserID,
			Total:       t.Total,
			TokenSupply: a.TokenSupply,
			BasisPoints: proRata(10_000, t.Total, a.TokenSupply),
		})
	}
	return out, nil
}

// Portfolio lists a user's holdings across all artists.
func (s *Service) Portfolio(ctx context.Context, userID uint64) ([]TokenHolding, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListHoldingsByUser(ctx, userID)
}
