package ledger

import (
	"errors"
	"fmt"
	"time"
)

// Entity ids are store-assigned: monotonic per entity type, starting at 1,
// never reused. Callers must not set them.

// Error kinds callers branch on with errors.Is. The HTTP layer maps them
// onto status codes (validation 400, unauthorized 403, not found 404,
// invalid state and already exists 409).
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("invalid input")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrAlreadyExists = errors.New("already exists")
)

// User is a registered identity: a fan, or an artist's owning account.
type User struct {
	ID            uint64    `json:"id"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	IsArtist      bool      `json:"is_artist"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	Bio           string    `json:"bio,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Artist is an onboarded artist with a fixed-supply governance token.
// The three share percentages must sum to exactly 100; the token supply
// never changes after creation.
type Artist struct {
	ID               uint64    `json:"id"`
	UserID           uint64    `json:"user_id"`
	Name             string    `json:"name"`
	Genres           []string  `json:"genres,omitempty"`
	Location         string    `json:"location,omitempty"`
	TokenName        string    `json:"token_name"`
	TokenSymbol      string    `json:"token_symbol"`
	TokenSupply      int64     `json:"token_supply"` // whole tokens
	ArtistSharePct   int       `json:"artist_share_pct"`
	HolderSharePct   int       `json:"holder_share_pct"`
	TreasurySharePct int       `json:"treasury_share_pct"`
	ContractAddress  string    `json:"contract_address,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// TokenHolding is one confirmed token acquisition. Holdings are
// append-only; a user's position is the sum of their holding amounts.
// There is no transfer or burn.
type TokenHolding struct {
	ID             uint64    `json:"id"`
	ArtistID       uint64    `json:"artist_id"`
	UserID         uint64    `json:"user_id"`
	Amount         int64     `json:"amount"` // whole tokens
	AcquisitionRef string    `json:"acquisition_ref"`
	PurchasedAt    time.Time `json:"purchased_at"`
}

// ProposalStatus tracks a proposal's lifecycle.
type ProposalStatus string

const (
	ProposalActive    ProposalStatus = "active"
	ProposalClosed    ProposalStatus = "closed"
	ProposalCancelled ProposalStatus = "cancelled"
)

// Terminal reports whether no further status transition is allowed.
func (s ProposalStatus) Terminal() bool {
	return s == ProposalClosed || s == ProposalCancelled
}

// ProposalType categorizes what a proposal decides.
type ProposalType string

const (
	ProposalCreative    ProposalType = "creative"
	ProposalBusiness    ProposalType = "business"
	ProposalRelease     ProposalType = "release"
	ProposalPartnership ProposalType = "partnership"
	ProposalTreasury    ProposalType = "treasury"
)

func (t ProposalType) Valid() bool {
	switch t {
	case ProposalCreative, ProposalBusiness, ProposalRelease, ProposalPartnership, ProposalTreasury:
		return true
	}
	return false
}

// Proposal is a governance question put to an artist's token holders.
type Proposal struct {
	ID          uint64         `json:"id"`
	ArtistID    uint64         `json:"artist_id"`
	CreatorID   uint64         `json:"creator_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Type        ProposalType   `json:"type"`
	Options     []string       `json:"options"`
	StartDate   time.Time      `json:"start_date"`
	EndDate     time.Time      `json:"end_date"`
	Status      ProposalStatus `json:"status"`
}

// Votable reports whether ballots are accepted at the given instant.
// Expiry is lazy: an active proposal past its end date stops accepting
// ballots without any status rewrite.
func (p Proposal) Votable(now time.Time) bool {
	return p.Status == ProposalActive && now.Before(p.EndDate)
}

// Vote is one user's ballot on a proposal. Weight is the caster's total
// holding snapshotted at cast time and is never recomputed. A later vote
// by the same user replaces the earlier one.
type Vote struct {
	ID          uint64    `json:"id"`
	ProposalID  uint64    `json:"proposal_id"`
	UserID      uint64    `json:"user_id"`
	OptionIndex int       `json:"option_index"`
	Weight      int64     `json:"weight"`
	CastAt      time.Time `json:"cast_at"`
}

// RevenueEvent is an incoming royalty or sale booked for distribution.
// RecognizedAt may be zero when the upstream feed carries no date;
// Summarize treats a zero date as "now". Distributed flips exactly once.
type RevenueEvent struct {
	ID           uint64    `json:"id"`
	ArtistID     uint64    `json:"artist_id"`
	Amount       Money     `json:"amount"`
	Source       string    `json:"source"`
	RecognizedAt time.Time `json:"recognized_at"`
	Distributed  bool      `json:"distributed"`
}

// RecipientKind tags the payout target of an earning.
type RecipientKind string

const (
	RecipientArtist   RecipientKind = "artist"
	RecipientHolder   RecipientKind = "token_holder"
	RecipientTreasury RecipientKind = "treasury"
)

// Recipient identifies who an earning pays. Exactly one variant is
// populated; build recipients with the constructors, not by hand.
type Recipient struct {
	Kind     RecipientKind `json:"kind"`
	UserID   uint64        `json:"user_id,omitempty"`
	ArtistID uint64        `json:"artist_id,omitempty"`
}

func ArtistRecipient(artistID uint64) Recipient {
	return Recipient{Kind: RecipientArtist, ArtistID: artistID}
}

func HolderRecipient(userID uint64) Recipient {
	return Recipient{Kind: RecipientHolder, UserID: userID}
}

func TreasuryRecipient() Recipient {
	return Recipient{Kind: RecipientTreasury}
}

// Validate rejects recipients whose variant fields are inconsistent.
func (r Recipient) Validate() error {
	switch r.Kind {
	case RecipientArtist:
		if r.ArtistID == 0 || r.UserID != 0 {
			return fmt.Errorf("%w: artist recipient carries an artist id only", ErrValidation)
		}
	case RecipientHolder:
		if r.UserID == 0 || r.ArtistID != 0 {
			return fmt.Errorf("%w: holder recipient carries a user id only", ErrValidation)
		}
	case RecipientTreasury:
		if r.UserID != 0 || r.ArtistID != 0 {
			return fmt.Errorf("%w: treasury recipient carries no ids", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown recipient kind %q", ErrValidation, r.Kind)
	}
	return nil
}

// Earning is one distribution output. Earnings are write-once.
type Earning struct {
	ID        uint64    `json:"id"`
	RevenueID uint64    `json:"revenue_id"`
	Recipient Recipient `json:"recipient"`
	Amount    Money     `json:"amount"`
	EarnedAt  time.Time `json:"earned_at"`
}

// HolderTotal is a user's aggregate position in one artist's token.
type HolderTotal struct {
	UserID uint64 `json:"user_id"`
	Total  int64  `json:"total"`
}

// OwnershipShare is one holder's stake relative to the token supply.
type OwnershipShare struct {
	ArtistID    uint64 `json:"artist_id"`
	UserID      uint64 `json:"user_id"`
	Total       int64  `json:"total"`
	TokenSupply int64  `json:"token_supply"`
	BasisPoints int64  `json:"basis_points"`
}

// Tally is the aggregated outcome of a proposal's ballots. Percentages
// are rounded per option independently, so they may not sum to 100.
type Tally struct {
	ProposalID        uint64   `json:"proposal_id"`
	Options           []string `json:"options"`
	OptionWeights     []int64  `json:"option_weights"`
	OptionPercentages []int64  `json:"option_percentages"`
	TotalWeight       int64    `json:"total_weight"`
	Ballots           int      `json:"ballots"`
}

// Distribution is the outcome of settling one revenue event. Remainder is
// the undistributed residue (truncation dust plus the holder-pool share of
// unsold supply); it stays on the event, it is not booked as an earning.
type Distribution struct {
	RevenueID uint64    `json:"revenue_id"`
	ArtistID  uint64    `json:"artist_id"`
	Earnings  []Earning `json:"earnings"`
	Remainder Money     `json:"remainder"`
}

// RevenueSummary buckets an artist's revenue by calendar month (UTC).
type RevenueSummary struct {
	ArtistID   uint64           `json:"artist_id"`
	Currency   string           `json:"currency"`
	Months     map[string]int64 `json:"months"` // "2026-08" -> micro-units
	Total      int64            `json:"total"`
	ThisMonth  int64            `json:"this_month"`
	PriorMonth int64            `json:"prior_month"`
}
