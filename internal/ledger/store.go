package ledger

import (
	"context"
)

// Store is the durable record beneath the service. Implementations provide
// CRUD, uniqueness, and monotonic per-entity ids; they do not validate
// cross-entity references (the Service runs those guards) and they carry no
// business rules beyond uniqueness and the at-most-once distribution flip.
//
// Store-assigned on create, callers must not set them: every ID,
// Proposal.StartDate and Status, TokenHolding.PurchasedAt, Vote.CastAt,
// RevenueEvent.Distributed, Earning.EarnedAt.
//
// Point lookups report absence with ok=false, never with an error. Update
// operations on a missing row return ErrNotFound; uniqueness violations
// return ErrAlreadyExists. List results are ordered by id ascending.
type Store interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id uint64) (User, bool, error)
	GetUserByUsername(ctx context.Context, username string) (User, bool, error)
	UpdateUserProfile(ctx context.Context, id uint64, wallet, bio, imageURL string) (User, error)

	CreateArtist(ctx context.Context, a Artist) (Artist, error)
	GetArtist(ctx context.Context, id uint64) (Artist, bool, error)
	GetArtistByUser(ctx context.Context, userID uint64) (Artist, bool, error)
	ListArtists(ctx context.Context) ([]Artist, error)
	SetArtistContract(ctx context.Context, id uint64, addr string) (Artist, error)

	CreateHolding(ctx context.Context, h TokenHolding) (TokenHolding, error)
	ListHoldingsByArtist(ctx context.Context, artistID uint64) ([]TokenHolding, error)
	ListHoldingsByArtistUser(ctx context.Context, artistID, userID uint64) ([]TokenHolding, error)
	ListHoldingsByUser(ctx context.Context, userID uint64) ([]TokenHolding, error)

	CreateProposal(ctx context.Context, p Proposal) (Proposal, error)
	GetProposal(ctx context.Context, id uint64) (Proposal, bool, error)
	ListProposalsByArtist(ctx context.Context, artistID uint64) ([]Proposal, error)
	UpdateProposalStatus(ctx context.Context, id uint64, status ProposalStatus) (Proposal, error)

	// UpsertVote keeps one ballot per (proposal, user): an existing row
	// keeps its id and takes the new option, weight, and cast time.
	UpsertVote(ctx context.Context, v Vote) (Vote, error)
	ListVotesByProposal(ctx context.Context, proposalID uint64) ([]Vote, error)

	CreateRevenueEvent(ctx context.Context, ev RevenueEvent) (RevenueEvent, error)
	GetRevenueEvent(ctx context.Context, id uint64) (RevenueEvent, bool, error)
	ListRevenueByArtist(ctx context.Context, artistID uint64) ([]RevenueEvent, error)
	ListUndistributedRevenue(ctx context.Context, artistID uint64) ([]RevenueEvent, error)

	// ApplyDistribution inserts all earnings and flips the event's
	// distributed flag in one atomic write. It fails with ErrInvalidState
	// when the flag is already set and ErrNotFound when the event is
	// missing; on failure no earning is recorded.
	ApplyDistribution(ctx context.Context, revenueID uint64, earnings []Earning) ([]Earning, error)

	ListEarningsByRevenue(ctx context.Context, revenueID uint64) ([]Earning, error)
	ListEarningsByUser(ctx context.Context, userID uint64) ([]Earning, error)
}
