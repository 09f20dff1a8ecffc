package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CreateProposal opens a governance question for an artist's holders.
// Validation: known type, trimmed non-blank title, at least two distinct
// non-blank options, end date in the future. The artist and creator must
// exist; the store stamps id, start date, and active status.
func (s *Service) CreateProposal(ctx context.Context, p Proposal) (Proposal, error) {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	if p.Title == "" {
		return Proposal{}, fmt.Errorf("%w: title required", ErrValidation)
	}
	if !p.Type.Valid() {
		return Proposal{}, fmt.Errorf("%w: unknown proposal type %q", ErrValidation, p.Type)
	}
	opts, err := cleanOptions(p.Options)
	if err != nil {
		return Proposal{}, err
	}
	p.Options = opts
	if p.EndDate.IsZero() {
		return Proposal{}, fmt.Errorf("%w: end date required", ErrValidation)
	}
	if !p.EndDate.After(s.now()) {
		return Proposal{}, fmt.Errorf("%w: end date must be in the future", ErrValidation)
	}
	if _, err := s.GetArtist(ctx, p.ArtistID); err != nil {
		return Proposal{}, err
	}
	if _, err := s.GetUser(ctx, p.CreatorID); err != nil {
		return Proposal{}, err
	}
	// store-assigned fields; whatever the caller put there is ignored
	p.ID = 0
	p.StartDate = time.Time{}
	p.Status = ""
	return s.store.CreateProposal(ctx, p)
}

func (s *Service) GetProposal(ctx context.Context, id uint64) (Proposal, error) {
	p, ok, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return Proposal{}, err
	}
	if !ok {
		return Proposal{}, fmt.Errorf("%w: proposal %d", ErrNotFound, id)
	}
	return p, nil
}

// CloseProposal moves an active proposal to closed or cancelled. Terminal
// proposals reject further transitions.
func (s *Service) CloseProposal(ctx context.Context, id uint64, status ProposalStatus) (Proposal, error) {
	if status != ProposalClosed && status != ProposalCancelled {
		return Proposal{}, fmt.Errorf("%w: target status must be closed or cancelled", ErrValidation)
	}
	p, err := s.GetProposal(ctx, id)
	if err != nil {
		return Proposal{}, err
	}
	if p.Status.Terminal() {
		return Proposal{}, fmt.Errorf("%w: proposal %d is already %s", ErrInvalidState, id, p.Status)
	}
	return s.store.UpdateProposalStatus(ctx, id, status)
}

// ListProposals returns an artist's proposals in creation order. With
// activeOnly set it keeps only proposals currently accepting ballots;
// expired ones drop out of the listing without any status rewrite.
func (s *Service) ListProposals(ctx context.Context, artistID uint64, activeOnly bool) ([]Proposal, error) {
	if _, err := s.GetArtist(ctx, artistID); err != nil {
		return nil, err
	}
	ps, err := s.store.ListProposalsByArtist(ctx, artistID)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return ps, nil
	}
	now := s.now()
	out := ps[:0]
	for _, p := range ps {
		if p.Votable(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func cleanOptions(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool)
	for _, o := range in {
		o = strings.TrimSpace(o)
		if o == "" {
			return nil, fmt.Errorf("%w: options must be non-blank", ErrValidation)
		}
		if seen[o] {
			return nil, fmt.Errorf("%w: duplicate option %q", ErrValidation, o)
		}
		seen[o] = true
		out = append(out, o)
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("%w: at least two options required", ErrValidation)
	}
	return out, nil
}
