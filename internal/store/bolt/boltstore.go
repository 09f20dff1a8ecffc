// Package bolt persists the ledger in a single bbolt file. It is the
// zero-dependency deployment path: one process, one file, no external
// database. Semantics mirror the in-memory reference store.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"greenroom.fm/internal/ledger"
)

var (
	bucketUsers             = []byte("users")
	bucketUsersByName       = []byte("users_by_name")
	bucketArtists           = []byte("artists")
	bucketArtistsByUser     = []byte("artists_by_user")
	bucketHoldings          = []byte("holdings")
	bucketHoldingsByArtist  = []byte("holdings_by_artist")
	bucketHoldingsByOwner   = []byte("holdings_by_owner")
	bucketProposals         = []byte("proposals")
	bucketProposalsByArtist = []byte("proposals_by_artist")
	bucketVotes             = []byte("votes")
	bucketBallots           = []byte("ballots")
	bucketRevenue           = []byte("revenue")
	bucketRevenueByArtist   = []byte("revenue_by_artist")
	bucketEarnings          = []byte("earnings")
	bucketEarningsByRevenue = []byte("earnings_by_revenue")
	bucketEarningsByUser    = []byte("earnings_by_user")
)

var allBuckets = [][]byte{
	bucketUsers, bucketUsersByName,
	bucketArtists, bucketArtistsByUser,
	bucketHoldings, bucketHoldingsByArtist, bucketHoldingsByOwner,
	bucketProposals, bucketProposalsByArtist,
	bucketVotes, bucketBallots,
	bucketRevenue, bucketRevenueByArtist,
	bucketEarnings, bucketEarningsByRevenue, bucketEarningsByUser,
}

// Store implements ledger.Store on bbolt. Primary buckets are keyed by
// 8-byte big-endian ids, so cursor order is id order; index buckets hold
// composite prefix keys for per-artist and per-user scans.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

var _ ledger.Store = (*Store)(nil)

// Open opens or creates the database at path, creating the parent
// directory if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("bolt: create directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: create buckets: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SetNowFunc overrides the clock used for store-assigned timestamps (tests).
func (s *Store) SetNowFunc(fn func() time.Time) { s.now = fn }

// idKey encodes an id as an 8-byte big-endian key so cursor order is id order.
func idKey(id uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, id)
	return k
}

// pairKey builds a composite index key: 8-byte prefix, 8-byte suffix.
func pairKey(a, b uint64) []byte {
	k := make([]byte, 16)
	binary.BigEndian.PutUint64(k, a)
	binary.BigEndian.PutUint64(k[8:], b)
	return k
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func put(b *bbolt.Bucket, key []byte, v any) error {
	data, err := encode(v)
	if err != nil {
		return fmt.Errorf("bolt: encode: %w", err)
	}
	return b.Put(key, data)
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, u ledger.User) (ledger.User, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(bucketUsersByName)
		if names.Get([]byte(u.Username)) != nil {
			return fmt.Errorf("%w: username %q", ledger.ErrAlreadyExists, u.Username)
		}
		b := tx.Bucket(bucketUsers)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		u.ID = seq
		u.CreatedAt = s.now()
		if err := put(b, idKey(u.ID), u); err != nil {
			return err
		}
		return names.Put([]byte(u.Username), idKey(u.ID))
	})
	if err != nil {
		return ledger.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id uint64) (ledger.User, bool, error) {
	var u ledger.User
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get(idKey(id))
		if data == nil {
			return nil
		}
		found = true
		return decode(data, &u)
	})
	if err != nil {
		return ledger.User{}, false, err
	}
	return u, found, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (ledger.User, bool, error) {
	var u ledger.User
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(bucketUsersByName).Get([]byte(username))
		if key == nil {
			return nil
		}
		data := tx.Bucket(bucketUsers).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return decode(data, &u)
	})
	if err != nil {
		return ledger.User{}, false, err
	}
	return u, found, nil
}

func (s *Store) UpdateUserProfile(_ context.Context, id uint64, wallet, bio, imageURL string) (ledger.User, error) {
	var u ledger.User
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		data := b.Get(idKey(id))
		if data == nil {
			return fmt.Errorf("%w: user %d", ledger.ErrNotFound, id)
		}
		if err := decode(data, &u); err != nil {
			return err
		}
		u.WalletAddress = wallet
		u.Bio = bio
		u.ImageURL = imageURL
		return put(b, idKey(id), u)
	})
	if err != nil {
		return ledger.User{}, err
	}
	return u, nil
}

// --- artists ---

func (s *Store) CreateArtist(_ context.Context, a ledger.Artist) (ledger.Artist, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		byUser := tx.Bucket(bucketArtistsByUser)
		if byUser.Get(idKey(a.UserID)) != nil {
			return fmt.Errorf("%w: user %d already has an artist profile", ledger.ErrAlreadyExists, a.UserID)
		}
		b := tx.Bucket(bucketArtists)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		a.ID = seq
		a.CreatedAt = s.now()
		if err := put(b, idKey(a.ID), a); err != nil {
			return err
		}
		return byUser.Put(idKey(a.UserID), idKey(a.ID))
	})
	if err != nil {
		return ledger.Artist{}, err
	}
	return a, nil
}

func (s *Store) GetArtist(_ context.Context, id uint64) (ledger.Artist, bool, error) {
	var a ledger.Artist
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketArtists).Get(idKey(id))
		if data == nil {
			return nil
		}
		found = true
		return decode(data, &a)
	})
	if err != nil {
		return ledger.Artist{}, false, err
	}
	return a, found, nil
}

func (s *Store) GetArtistByUser(_ context.Context, userID uint64) (ledger.Artist, bool, error) {
	var a ledger.Artist
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(bucketArtistsByUser).Get(idKey(userID))
		if key == nil {
			return nil
		}
		data := tx.Bucket(bucketArtists).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return decode(data, &a)
	})
	if err != nil {
		return ledger.Artist{}, false, err
	}
	return a, found, nil
}

func (s *Store) ListArtists(_ context.Context) ([]ledger.Artist, error) {
	var res []ledger.Artist
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketArtists).ForEach(func(_, v []byte) error {
			var a ledger.Artist
			if err := decode(v, &a); err != nil {
				return err
			}
			res = append(res, a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) SetArtistContract(_ context.Context, id uint64, addr string) (ledger.Artist, error) {
	var a ledger.Artist
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketArtists)
		data := b.Get(idKey(id))
		if data == nil {
			return fmt.Errorf("%w: artist %d", ledger.ErrNotFound, id)
		}
		if err := decode(data, &a); err != nil {
			return err
		}
		a.ContractAddress = addr
		return put(b, idKey(id), a)
	})
	if err != nil {
		return ledger.Artist{}, err
	}
	return a, nil
}

// --- holdings ---

func (s *Store) CreateHolding(_ context.Context, h ledger.TokenHolding) (ledger.TokenHolding, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHoldings)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		h.ID = seq
		h.PurchasedAt = s.now()
		if err := put(b, idKey(h.ID), h); err != nil {
			return err
		}
		if err := tx.Bucket(bucketHoldingsByArtist).Put(pairKey(h.ArtistID, h.ID), nil); err != nil {
			return err
		}
		return tx.Bucket(bucketHoldingsByOwner).Put(pairKey(h.UserID, h.ID), nil)
	})
	if err != nil {
		return ledger.TokenHolding{}, err
	}
	return h, nil
}

// scanIndex walks an index bucket under an 8-byte prefix and hands each
// referenced primary record to fn. The key suffix is the primary id, so
// iteration order is id order.
func scanIndex(tx *bbolt.Tx, index, primary []byte, prefix uint64, fn func(data []byte) error) error {
	p := idKey(prefix)
	c := tx.Bucket(index).Cursor()
	b := tx.Bucket(primary)
	for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
		data := b.Get(k[8:])
		if data == nil {
			continue // stale index entry
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) listHoldings(index []byte, prefix uint64, keep func(ledger.TokenHolding) bool) ([]ledger.TokenHolding, error) {
	var res []ledger.TokenHolding
	err := s.db.View(func(tx *bbolt.Tx) error {
		return scanIndex(tx, index, bucketHoldings, prefix, func(data []byte) error {
			var h ledger.TokenHolding
			if err := decode(data, &h); err != nil {
				return err
			}
			if keep == nil || keep(h) {
				res = append(res, h)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) ListHoldingsByArtist(_ context.Context, artistID uint64) ([]ledger.TokenHolding, error) {
	return s.listHoldings(bucketHoldingsByArtist, artistID, nil)
}

func (s *Store) ListHoldingsByArtistUser(_ context.Context, artistID, userID uint64) ([]ledger.TokenHolding, error) {
	return s.listHoldings(bucketHoldingsByArtist, artistID, func(h ledger.TokenHolding) bool {
		return h.UserID == userID
	})
}

func (s *Store) ListHoldingsByUser(_ context.Context, userID uint64) ([]ledger.TokenHolding, error) {
	return s.listHoldings(bucketHoldingsByOwner, userID, nil)
}

// --- proposals ---

func (s *Store) CreateProposal(_ context.Context, p ledger.Proposal) (ledger.Proposal, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProposals)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		p.ID = seq
		p.StartDate = s.now()
		p.Status = ledger.ProposalActive
		if err := put(b, idKey(p.ID), p); err != nil {
			return err
		}
		return tx.Bucket(bucketProposalsByArtist).Put(pairKey(p.ArtistID, p.ID), nil)
	})
	if err != nil {
		return ledger.Proposal{}, err
	}
	return p, nil
}

func (s *Store) GetProposal(_ context.Context, id uint64) (ledger.Proposal, bool, error) {
	var p ledger.Proposal
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketProposals).Get(idKey(id))
		if data == nil {
			return nil
		}
		found = true
		return decode(data, &p)
	})
	if err != nil {
		return ledger.Proposal{}, false, err
	}
	return p, found, nil
}

func (s *Store) ListProposalsByArtist(_ context.Context, artistID uint64) ([]ledger.Proposal, error) {
	var res []ledger.Proposal
	err := s.db.View(func(tx *bbolt.Tx) error {
		return scanIndex(tx, bucketProposalsByArtist, bucketProposals, artistID, func(data []byte) error {
			var p ledger.Proposal
			if err := decode(data, &p); err != nil {
				return err
			}
			res = append(res, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) UpdateProposalStatus(_ context.Context, id uint64, status ledger.ProposalStatus) (ledger.Proposal, error) {
	var p ledger.Proposal
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProposals)
		data := b.Get(idKey(id))
		if data == nil {
			return fmt.Errorf("%w: proposal %d", ledger.ErrNotFound, id)
		}
		if err := decode(data, &p); err != nil {
			return err
		}
		p.Status = status
		return put(b, idKey(id), p)
	})
	if err != nil {
		return ledger.Proposal{}, err
	}
	return p, nil
}

// --- votes ---

func (s *Store) UpsertVote(_ context.Context, v ledger.Vote) (ledger.Vote, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		ballots := tx.Bucket(bucketBallots)
		votes := tx.Bucket(bucketVotes)
		ballotKey := pairKey(v.ProposalID, v.UserID)

		if existing := ballots.Get(ballotKey); existing != nil {
			// the later ballot replaces the earlier one but keeps its row id
			var old ledger.Vote
			data := votes.Get(existing)
			if data == nil {
				return fmt.Errorf("bolt: ballot index points at missing vote")
			}
			if err := decode(data, &old); err != nil {
				return err
			}
			v.ID = old.ID
			v.CastAt = s.now()
			return put(votes, existing, v)
		}

		seq, err := votes.NextSequence()
		if err != nil {
			return err
		}
		v.ID = seq
		v.CastAt = s.now()
		if err := put(votes, idKey(v.ID), v); err != nil {
			return err
		}
		return ballots.Put(ballotKey, idKey(v.ID))
	})
	if err != nil {
		return ledger.Vote{}, err
	}
	return v, nil
}

func (s *Store) ListVotesByProposal(_ context.Context, proposalID uint64) ([]ledger.Vote, error) {
	var res []ledger.Vote
	err := s.db.View(func(tx *bbolt.Tx) error {
		p := idKey(proposalID)
		votes := tx.Bucket(bucketVotes)
		c := tx.Bucket(bucketBallots).Cursor()
		for k, ref := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, ref = c.Next() {
			data := votes.Get(ref)
			if data == nil {
				continue // stale index entry
			}
			var v ledger.Vote
			if err := decode(data, &v); err != nil {
				return err
			}
			res = append(res, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// ballot keys order by voter; lists are id-ascending
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// --- revenue ---

func (s *Store) CreateRevenueEvent(_ context.Context, ev ledger.RevenueEvent) (ledger.RevenueEvent, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRevenue)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		ev.ID = seq
		ev.Distributed = false
		if err := put(b, idKey(ev.ID), ev); err != nil {
			return err
		}
		return tx.Bucket(bucketRevenueByArtist).Put(pairKey(ev.ArtistID, ev.ID), nil)
	})
	if err != nil {
		return ledger.RevenueEvent{}, err
	}
	return ev, nil
}

func (s *Store) GetRevenueEvent(_ context.Context, id uint64) (ledger.RevenueEvent, bool, error) {
	var ev ledger.RevenueEvent
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRevenue).Get(idKey(id))
		if data == nil {
			return nil
		}
		found = true
		return decode(data, &ev)
	})
	if err != nil {
		return ledger.RevenueEvent{}, false, err
	}
	return ev, found, nil
}

func (s *Store) listRevenue(artistID uint64, keep func(ledger.RevenueEvent) bool) ([]ledger.RevenueEvent, error) {
	var res []ledger.RevenueEvent
	err := s.db.View(func(tx *bbolt.Tx) error {
		return scanIndex(tx, bucketRevenueByArtist, bucketRevenue, artistID, func(data []byte) error {
			var ev ledger.RevenueEvent
			if err := decode(data, &ev); err != nil {
				return err
			}
			if keep == nil || keep(ev) {
				res = append(res, ev)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) ListRevenueByArtist(_ context.Context, artistID uint64) ([]ledger.RevenueEvent, error) {
	return s.listRevenue(artistID, nil)
}

func (s *Store) ListUndistributedRevenue(_ context.Context, artistID uint64) ([]ledger.RevenueEvent, error) {
	return s.listRevenue(artistID, func(ev ledger.RevenueEvent) bool { return !ev.Distributed })
}

func (s *Store) ApplyDistribution(_ context.Context, revenueID uint64, earnings []ledger.Earning) ([]ledger.Earning, error) {
	out := make([]ledger.Earning, 0, len(earnings))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		rb := tx.Bucket(bucketRevenue)
		data := rb.Get(idKey(revenueID))
		if data == nil {
			return fmt.Errorf("%w: revenue event %d", ledger.ErrNotFound, revenueID)
		}
		var ev ledger.RevenueEvent
		if err := decode(data, &ev); err != nil {
			return err
		}
		if ev.Distributed {
			return fmt.Errorf("%w: revenue event %d already distributed", ledger.ErrInvalidState, revenueID)
		}

		eb := tx.Bucket(bucketEarnings)
		for _, e := range earnings {
			seq, err := eb.NextSequence()
			if err != nil {
				return err
			}
			e.ID = seq
			e.RevenueID = revenueID
			e.EarnedAt = s.now()
			if err := put(eb, idKey(e.ID), e); err != nil {
				return err
			}
			if err := tx.Bucket(bucketEarningsByRevenue).Put(pairKey(revenueID, e.ID), nil); err != nil {
				return err
			}
			if e.Recipient.Kind == ledger.RecipientHolder {
				if err := tx.Bucket(bucketEarningsByUser).Put(pairKey(e.Recipient.UserID, e.ID), nil); err != nil {
					return err
				}
			}
			out = append(out, e)
		}

		ev.Distributed = true
		return put(rb, idKey(revenueID), ev)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- earnings ---

func (s *Store) listEarnings(index []byte, prefix uint64) ([]ledger.Earning, error) {
	var res []ledger.Earning
	err := s.db.View(func(tx *bbolt.Tx) error {
		return scanIndex(tx, index, bucketEarnings, prefix, func(data []byte) error {
			var e ledger.Earning
			if err := decode(data, &e); err != nil {
				return err
			}
			res = append(res, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) ListEarningsByRevenue(_ context.Context, revenueID uint64) ([]ledger.Earning, error) {
	return s.listEarnings(bucketEarningsByRevenue, revenueID)
}

// ListEarningsByUser returns holder earnings only; the by-user index is
// written just for token_holder recipients.
func (s *Store) ListEarningsByUser(_ context.Context, userID uint64) ([]ledger.Earning, error) {
	return s.listEarnings(bucketEarningsByUser, userID)
}
