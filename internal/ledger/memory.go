package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore implements Store with in-process concurrency safety. It is the
// reference backend: the durable backends under internal/store must match
// its behavior.
type MemStore struct {
	mu    sync.RWMutex
	nowFn func() time.Time

	userSeq     uint64
	artistSeq   uint64
	holdingSeq  uint64
	proposalSeq uint64
	voteSeq     uint64
	revenueSeq  uint64
	earningSeq  uint64

	users     map[uint64]User
	artists   map[uint64]Artist
	holdings  []TokenHolding
	proposals map[uint64]Proposal
	votes     []Vote
	revenue   map[uint64]RevenueEvent
	earnings  []Earning
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		nowFn:     func() time.Time { return time.Now().UTC() },
		users:     make(map[uint64]User),
		artists:   make(map[uint64]Artist),
		proposals: make(map[uint64]Proposal),
		revenue:   make(map[uint64]RevenueEvent),
	}
}

// SetNowFunc overrides the timestamp source (tests).
func (s *MemStore) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	s.nowFn = fn
	s.mu.Unlock()
}

func (s *MemStore) CreateUser(ctx context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.users {
		if have.Username == u.Username {
			return User{}, fmt.Errorf("%w: username %q", ErrAlreadyExists, u.Username)
		}
	}
	s.userSeq++
	u.ID = s.userSeq
	u.CreatedAt = s.nowFn()
	s.users[u.ID] = u
	return u, nil
}

func (s *MemStore) GetUser(ctx context.Context, id uint64) (User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemStore) GetUserByUsername(ctx context.Context, username string) (User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

func (s *MemStore) UpdateUserProfile(ctx context.Context, id uint64, wallet, bio, imageURL string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	u.WalletAddress = wallet
	u.Bio = bio
	u.ImageURL = imageURL
	s.users[id] = u
	return u, nil
}

func (s *MemStore) CreateArtist(ctx context.Context, a Artist) (Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.artists {
		if have.UserID == a.UserID {
			return Artist{}, fmt.Errorf("%w: user %d already has an artist profile", ErrAlreadyExists, a.UserID)
		}
	}
	s.artistSeq++
	a.ID = s.artistSeq
	a.CreatedAt = s.nowFn()
	a.Genres = append([]string(nil), a.Genres...)
	s.artists[a.ID] = a
	return cloneArtist(a), nil
}

func (s *MemStore) GetArtist(ctx context.Context, id uint64) (Artist, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artists[id]
	if !ok {
		return Artist{}, false, nil
	}
	return cloneArtist(a), true, nil
}

func (s *MemStore) GetArtistByUser(ctx context.Context, userID uint64) (Artist, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.artists {
		if a.UserID == userID {
			return cloneArtist(a), true, nil
		}
	}
	return Artist{}, false, nil
}

func (s *MemStore) ListArtists(ctx context.Context) ([]Artist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Artist, 0, len(s.artists))
	for _, a := range s.artists {
		out = append(out, cloneArtist(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) SetArtistContract(ctx context.Context, id uint64, addr string) (Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artists[id]
	if !ok {
		return Artist{}, fmt.Errorf("%w: artist %d", ErrNotFound, id)
	}
	a.ContractAddress = addr
	s.artists[id] = a
	return cloneArtist(a), nil
}

func (s *MemStore) CreateHolding(ctx context.Context, h TokenHolding) (TokenHolding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdingSeq++
	h.ID = s.holdingSeq
	h.PurchasedAt = s.nowFn()
	s.holdings = append(s.holdings, h)
	return h, nil
}

func (s *MemStore) ListHoldingsByArtist(ctx context.Context, artistID uint64) ([]TokenHolding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []TokenHolding
	for _, h := range s.holdings {
		if h.ArtistID == artistID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *MemStore) ListHoldingsByArtistUser(ctx context.Context, artistID, userID uint64) ([]TokenHolding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []TokenHolding
	for _, h := range s.holdings {
		if h.ArtistID == artistID && h.UserID == userID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *MemStore) ListHoldingsByUser(ctx context.Context, userID uint64) ([]TokenHolding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []TokenHolding
	for _, h := range s.holdings {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *MemStore) CreateProposal(ctx context.Context, p Proposal) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposalSeq++
	p.ID = s.proposalSeq
	p.StartDate = s.nowFn()
	p.Status = ProposalActive
	p.Options = append([]string(nil), p.Options...)
	s.proposals[p.ID] = p
	return cloneProposal(p), nil
}

func (s *MemStore) GetProposal(ctx context.Context, id uint64) (Proposal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return Proposal{}, false, nil
	}
	return cloneProposal(p), true, nil
}

func (s *MemStore) ListProposalsByArtist(ctx context.Context, artistID uint64) ([]Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Proposal
	for _, p := range s.proposals {
		if p.ArtistID == artistID {
			out = append(out, cloneProposal(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) UpdateProposalStatus(ctx context.Context, id uint64, status ProposalStatus) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: proposal %d", ErrNotFound, id)
	}
	p.Status = status
	s.proposals[id] = p
	return cloneProposal(p), nil
}

func (s *MemStore) UpsertVote(ctx context.Context, v Vote) (Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	for i, have := range s.votes {
		if have.ProposalID == v.ProposalID && have.UserID == v.UserID {
			have.OptionIndex = v.OptionIndex
			have.Weight = v.Weight
			have.CastAt = now
			s.votes[i] = have
			return have, nil
		}
	}
	s.voteSeq++
	v.ID = s.voteSeq
	v.CastAt = now
	s.votes = append(s.votes, v)
	return v, nil
}

func (s *MemStore) ListVotesByProposal(ctx context.Context, proposalID uint64) ([]Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Vote
	for _, v := range s.votes {
		if v.ProposalID == proposalID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *MemStore) CreateRevenueEvent(ctx context.Context, ev RevenueEvent) (RevenueEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revenueSeq++
	ev.ID = s.revenueSeq
	ev.Distributed = false
	s.revenue[ev.ID] = ev
	return ev, nil
}

func (s *MemStore) GetRevenueEvent(ctx context.Context, id uint64) (RevenueEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.revenue[id]
	return ev, ok, nil
}

func (s *MemStore) ListRevenueByArtist(ctx context.Context, artistID uint64) ([]RevenueEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RevenueEvent
	for _, ev := range s.revenue {
		if ev.ArtistID == artistID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) ListUndistributedRevenue(ctx context.Context, artistID uint64) ([]RevenueEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RevenueEvent
	for _, ev := range s.revenue {
		if ev.ArtistID == artistID && !ev.Distributed {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) ApplyDistribution(ctx context.Context, revenueID uint64, earnings []Earning) ([]Earning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.revenue[revenueID]
	if !ok {
		return nil, fmt.Errorf("%w: revenue event %d", ErrNotFound, revenueID)
	}
	if ev.Distributed {
		return nil, fmt.Errorf("%w: revenue event %d already distributed", ErrInvalidState, revenueID)
	}
	now := s.nowFn()
	out := make([]Earning, 0, len(earnings))
	for _, e := range earnings {
		s.earningSeq++
		e.ID = s.earningSeq
		e.RevenueID = revenueID
		e.EarnedAt = now
		s.earnings = append(s.earnings, e)
		out = append(out, e)
	}
	ev.Distributed = true
	s.revenue[revenueID] = ev
	return out, nil
}

func (s *MemStore) ListEarningsByRevenue(ctx context.Context, revenueID uint64) ([]Earning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Earning
	for _, e := range s.earnings {
		if e.RevenueID == revenueID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemStore) ListEarningsByUser(ctx context.Context, userID uint64) ([]Earning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Earning
	for _, e := range s.earnings {
		if e.Recipient.Kind == RecipientHolder && e.Recipient.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// detach shared slices before handing structs across the lock boundary

func cloneArtist(a Artist) Artist {
	a.Genres = append([]string(nil), a.Genres...)
	return a
}

func cloneProposal(p Proposal) Proposal {
	p.Options = append([]string(nil), p.Options...)
	return p
}
