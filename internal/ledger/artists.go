package ledger

import (
	"context"
	"fmt"
	"strings"
)

// CreateArtist onboards an artist profile with its governance token
// parameters. The owning user must exist and be flagged as an artist; the
// store enforces one profile per user.
func (s *Service) CreateArtist(ctx context.Context, a Artist) (Artist, error) {
	a.Name = strings.TrimSpace(a.Name)
	a.TokenName = strings.TrimSpace(a.TokenName)
	a.TokenSymbol = strings.ToUpper(strings.TrimSpace(a.TokenSymbol))
	a.Location = strings.TrimSpace(a.Location)
	if a.Name == "" {
		return Artist{}, fmt.Errorf("%w: artist name required", ErrValidation)
	}
	if a.TokenName == "" {
		return Artist{}, fmt.Errorf("%w: token name required", ErrValidation)
	}
	if err := validSymbol(a.TokenSymbol); err != nil {
		return Artist{}, err
	}
	if a.TokenSupply <= 0 {
		return Artist{}, fmt.Errorf("%w: token supply must be > 0", ErrValidation)
	}
	for _, pct := range []int{a.ArtistSharePct, a.HolderSharePct, a.TreasurySharePct} {
		if pct < 0 || pct > 100 {
			return Artist{}, fmt.Errorf("%w: share percentages must be within 0-100", ErrValidation)
		}
	}
	if sum := a.ArtistSharePct + a.HolderSharePct + a.TreasurySharePct; sum != 100 {
		return Artist{}, fmt.Errorf("%w: share percentages sum to %d, want 100", ErrValidation, sum)
	}
	a.Genres = cleanGenres(a.Genres)

	owner, err := s.GetUser(ctx, a.UserID)
	if err != nil {
		return Artist{}, err
	}
	if !owner.IsArtist {
		return Artist{}, fmt.Errorf("%w: user %d is not registered as an artist", ErrValidation, a.UserID)
	}
	return s.store.CreateArtist(ctx, a)
}

func (s *Service) GetArtist(ctx context.Context, id uint64) (Artist, error) {
	a, ok, err := s.store.GetArtist(ctx, id)
	if err != nil {
		return Artist{}, err
	}
	if !ok {
		return Artist{}, fmt.Errorf("%w: artist %d", ErrNotFound, id)
	}
	return a, nil
}

func (s *Service) GetArtistByUser(ctx context.Context, userID uint64) (Artist, error) {
	a, ok, err := s.store.GetArtistByUser(ctx, userID)
	if err != nil {
		return Artist{}, err
	}
	if !ok {
		return Artist{}, fmt.Errorf("%w: no artist profile for user %d", ErrNotFound, userID)
	}
	return a, nil
}

func (s *Service) ListArtists(ctx context.Context) ([]Artist, error) {
	return s.store.ListArtists(ctx)
}

// AttachContract records the deployed token contract address. This is the
// artist's only mutable field; re-attaching overwrites.
func (s *Service) AttachContract(ctx context.Context, artistID uint64, addr string) (Artist, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Artist{}, fmt.Errorf("%w: contract address required", ErrValidation)
	}
	return s.store.SetArtistContract(ctx, artistID, addr)
}

func validSymbol(sym string) error {
	if len(sym) < 1 || len(sym) > 8 {
		return fmt.Errorf("%w: token symbol must be 1-8 characters", ErrValidation)
	}
	for _, r := range sym {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("%w: token symbol must be uppercase alphanumeric", ErrValidation)
		}
	}
	return nil
}

func cleanGenres(in []string) []string {
	var out []string
	for _, g := range in {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}
