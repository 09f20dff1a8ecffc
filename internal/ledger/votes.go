package ledger

import (
	"context"
	"fmt"
)

// CastVote snapshots the caster's holding as ballot weight and upserts the
// ballot. Checks run in a fixed order: existence, votability, option
// validity, then weight. Weight is always derived server-side; a zero
// holding cannot vote no matter what option it picks.
func (s *Service) CastVote(ctx context.Context, proposalID, userID uint64, optionIndex int) (Vote, error) {
	p, err := s.GetProposal(ctx, proposalID)
	if err != nil {
		return Vote{}, err
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return Vote{}, err
	}
	if !p.Votable(s.now()) {
		return Vote{}, fmt.Errorf("%w: proposal %d is not open for voting", ErrInvalidState, proposalID)
	}
	if optionIndex < 0 || optionIndex >= len(p.Options) {
		return Vote{}, fmt.Errorf("%w: option index %d out of range (0-%d)", ErrValidation, optionIndex, len(p.Options)-1)
	}
	weight, err := s.TotalHolding(ctx, p.ArtistID, userID)
	if err != nil {
		return Vote{}, err
	}
	if weight <= 0 {
		return Vote{}, fmt.Errorf("%w: user %d holds no tokens for artist %d", ErrUnauthorized, userID, p.ArtistID)
	}
	return s.store.UpsertVote(ctx, Vote{
		ProposalID:  proposalID,
		UserID:      userID,
		OptionIndex: optionIndex,
		Weight:      weight,
	})
}

// Tally aggregates the proposal's ballots: per-option weight sums, rounded
// per-option percentages, total weight, and ballot count. An empty tally
// reports zero percentages rather than dividing by zero. Tallying is a
// read projection; it works on proposals in any status.
func (s *Service) Tally(ctx context.Context, proposalID uint64) (Tally, error) {
	p, err := s.GetProposal(ctx, proposalID)
	if err != nil {
		return Tally{}, err
	}
	votes, err := s.store.ListVotesByProposal(ctx, proposalID)
	if err != nil {
		return Tally{}, err
	}
	weights := make([]int64, len(p.Options))
	var total int64
	for _, v := range votes {
		weights[v.OptionIndex] += v.Weight
		total += v.Weight
	}
	pcts := make([]int64, len(p.Options))
	for i, w := range weights {
		pcts[i] = pctOf(w, total)
	}
	return Tally{
		ProposalID:        p.ID,
		Options:           p.Options,
		OptionWeights:     weights,
		OptionPercentages: pcts,
		TotalWeight:       total,
		Ballots:           len(votes),
	}, nil
}
