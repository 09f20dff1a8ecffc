package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jackc/pgx/v5/pgconn"

	"greenroom.fm/internal/ledger"
)

const (
	pgErrUniqueViolation = "23505"
)

// Store implements ledger.Store on Postgres. Behavior matches the
// in-memory reference: absence reported via found-flags, uniqueness via
// ledger.ErrAlreadyExists, the distribution flip guarded inside one
// serializable transaction.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection (tests).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

type rowScanner interface {
	Scan(dest ...any) error
}

// --- users ---

const userCols = `id, username, password_hash, is_artist, coalesce(wallet_address,''), coalesce(bio,''), coalesce(image_url,''), created_at`

func scanUser(r rowScanner) (ledger.User, error) {
	var u ledger.User
	err := r.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsArtist, &u.WalletAddress, &u.Bio, &u.ImageURL, &u.CreatedAt)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u ledger.User) (ledger.User, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into users (username, password_hash, is_artist, wallet_address, bio, image_url)
		values ($1,$2,$3,nullif($4,''),nullif($5,''),nullif($6,''))
		returning `+userCols+`
	`, u.Username, u.PasswordHash, u.IsArtist, u.WalletAddress, u.Bio, u.ImageURL)
	out, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return ledger.User{}, fmt.Errorf("%w: username %q", ledger.ErrAlreadyExists, u.Username)
		}
		return ledger.User{}, err
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, id uint64) (ledger.User, bool, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userCols+` from users where id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.User{}, false, nil
	}
	if err != nil {
		return ledger.User{}, false, err
	}
	return u, true, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (ledger.User, bool, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userCols+` from users where username=$1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.User{}, false, nil
	}
	if err != nil {
		return ledger.User{}, false, err
	}
	return u, true, nil
}

func (s *Store) UpdateUserProfile(ctx context.Context, id uint64, wallet, bio, imageURL string) (ledger.User, error) {
	row := s.db.QueryRowContext(ctx, `
		update users set wallet_address=nullif($2,''), bio=nullif($3,''), image_url=nullif($4,'')
		where id=$1
		returning `+userCols+`
	`, id, wallet, bio, imageURL)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.User{}, fmt.Errorf("%w: user %d", ledger.ErrNotFound, id)
	}
	if err != nil {
		return ledger.User{}, err
	}
	return u, nil
}

// --- artists ---

const artistCols = `id, user_id, name, genres, coalesce(location,''), token_name, token_symbol, token_supply, artist_share_pct, holder_share_pct, treasury_share_pct, coalesce(contract_address,''), created_at`

func scanArtist(r rowScanner) (ledger.Artist, error) {
	var a ledger.Artist
	var genres []byte
	err := r.Scan(&a.ID, &a.UserID, &a.Name, &genres, &a.Location, &a.TokenName, &a.TokenSymbol,
		&a.TokenSupply, &a.ArtistSharePct, &a.HolderSharePct, &a.TreasurySharePct, &a.ContractAddress, &a.CreatedAt)
	if err != nil {
		return ledger.Artist{}, err
	}
	if len(genres) > 0 {
		if err := json.Unmarshal(genres, &a.Genres); err != nil {
			return ledger.Artist{}, fmt.Errorf("decode genres: %w", err)
		}
	}
	return a, nil
}

func (s *Store) CreateArtist(ctx context.Context, a ledger.Artist) (ledger.Artist, error) {
	genres, err := json.Marshal(a.Genres)
	if err != nil {
		return ledger.Artist{}, fmt.Errorf("marshal genres: %w", err)
	}
	if a.Genres == nil {
		genres = []byte("[]")
	}
	row := s.db.QueryRowContext(ctx, `
		insert into artists (user_id, name, genres, location, token_name, token_symbol, token_supply,
		                     artist_share_pct, holder_share_pct, treasury_share_pct, contract_address)
		values ($1,$2,$3,nullif($4,''),$5,$6,$7,$8,$9,$10,nullif($11,''))
		returning `+artistCols+`
	`, a.UserID, a.Name, genres, a.Location, a.TokenName, a.TokenSymbol, a.TokenSupply,
		a.ArtistSharePct, a.HolderSharePct, a.TreasurySharePct, a.ContractAddress)
	out, err := scanArtist(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return ledger.Artist{}, fmt.Errorf("%w: user %d already has an artist profile", ledger.ErrAlreadyExists, a.UserID)
		}
		return ledger.Artist{}, err
	}
	return out, nil
}

func (s *Store) GetArtist(ctx context.Context, id uint64) (ledger.Artist, bool, error) {
	a, err := scanArtist(s.db.QueryRowContext(ctx, `select `+artistCols+` from artists where id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Artist{}, false, nil
	}
	if err != nil {
		return ledger.Artist{}, false, err
	}
	return a, true, nil
}

func (s *Store) GetArtistByUser(ctx context.Context, userID uint64) (ledger.Artist, bool, error) {
	a, err := scanArtist(s.db.QueryRowContext(ctx, `select `+artistCols+` from artists where user_id=$1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Artist{}, false, nil
	}
	if err != nil {
		return ledger.Artist{}, false, err
	}
	return a, true, nil
}

func (s *Store) ListArtists(ctx context.Context) ([]ledger.Artist, error) {
	rows, err := s.db.QueryContext(ctx, `select `+artistCols+` from artists order by id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ledger.Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *Store) SetArtistContract(ctx context.Context, id uint64, addr string) (ledger.Artist, error) {
	row := s.db.QueryRowContext(ctx, `
		update artists set contract_address=$2 where id=$1
		returning `+artistCols+`
	`, id, addr)
	a, err := scanArtist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Artist{}, fmt.Errorf("%w: artist %d", ledger.ErrNotFound, id)
	}
	if err != nil {
		return ledger.Artist{}, err
	}
	return a, nil
}

// --- holdings ---

const holdingCols = `id, artist_id, user_id, amount, acquisition_ref, purchased_at`

func scanHolding(r rowScanner) (ledger.TokenHolding, error) {
	var h ledger.TokenHolding
	err := r.Scan(&h.ID, &h.ArtistID, &h.UserID, &h.Amount, &h.AcquisitionRef, &h.PurchasedAt)
	return h, err
}

func (s *Store) CreateHolding(ctx context.Context, h ledger.TokenHolding) (ledger.TokenHolding, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into token_holdings (artist_id, user_id, amount, acquisition_ref)
		values ($1,$2,$3,$4)
		returning `+holdingCols+`
	`, h.ArtistID, h.UserID, h.Amount, h.AcquisitionRef)
	return scanHolding(row)
}

func (s *Store) listHoldings(ctx context.Context, where string, args ...any) ([]ledger.TokenHolding, error) {
	rows, err := s.db.QueryContext(ctx, `select `+holdingCols+` from token_holdings where `+where+` order by id asc`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ledger.TokenHolding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (s *Store) ListHoldingsByArtist(ctx context.Context, artistID uint64) ([]ledger.TokenHolding, error) {
	return s.listHoldings(ctx, `artist_id=$1`, artistID)
}

func (s *Store) ListHoldingsByArtistUser(ctx context.Context, artistID, userID uint64) ([]ledger.TokenHolding, error) {
	return s.listHoldings(ctx, `artist_id=$1 and user_id=$2`, artistID, userID)
}

func (s *Store) ListHoldingsByUser(ctx context.Context, userID uint64) ([]ledger.TokenHolding, error) {
	return s.listHoldings(ctx, `user_id=$1`, userID)
}

// --- proposals ---

const proposalCols = `id, artist_id, creator_id, title, coalesce(description,''), ptype, options, start_date, end_date, status`

func scanProposal(r rowScanner) (ledger.Proposal, error) {
	var p ledger.Proposal
	var options []byte
	err := r.Scan(&p.ID, &p.ArtistID, &p.CreatorID, &p.Title, &p.Description, &p.Type, &options, &p.StartDate, &p.EndDate, &p.Status)
	if err != nil {
		return ledger.Proposal{}, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &p.Options); err != nil {
			return ledger.Proposal{}, fmt.Errorf("decode options: %w", err)
		}
	}
	return p, nil
}

func (s *Store) CreateProposal(ctx context.Context, p ledger.Proposal) (ledger.Proposal, error) {
	options, err := json.Marshal(p.Options)
	if err != nil {
		return ledger.Proposal{}, fmt.Errorf("marshal options: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		insert into proposals (artist_id, creator_id, title, description, ptype, options, end_date)
		values ($1,$2,$3,nullif($4,''),$5,$6,$7)
		returning `+proposalCols+`
	`, p.ArtistID, p.CreatorID, p.Title, p.Description, p.Type, options, p.EndDate)
	return scanProposal(row)
}

func (s *Store) GetProposal(ctx context.Context, id uint64) (ledger.Proposal, bool, error) {
	p, err := scanProposal(s.db.QueryRowContext(ctx, `select `+proposalCols+` from proposals where id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Proposal{}, false, nil
	}
	if err != nil {
		return ledger.Proposal{}, false, err
	}
	return p, true, nil
}

func (s *Store) ListProposalsByArtist(ctx context.Context, artistID uint64) ([]ledger.Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `select `+proposalCols+` from proposals where artist_id=$1 order by id asc`, artistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ledger.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *Store) UpdateProposalStatus(ctx context.Context, id uint64, status ledger.ProposalStatus) (ledger.Proposal, error) {
	row := s.db.QueryRowContext(ctx, `
		update proposals set status=$2 where id=$1
		returning `+proposalCols+`
	`, id, status)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Proposal{}, fmt.Errorf("%w: proposal %d", ledger.ErrNotFound, id)
	}
	if err != nil {
		return ledger.Proposal{}, err
	}
	return p, nil
}

// --- votes ---

const voteCols = `id, proposal_id, user_id, option_index, weight, cast_at`

func scanVote(r rowScanner) (ledger.Vote, error) {
	var v ledger.Vote
	err := r.Scan(&v.ID, &v.ProposalID, &v.UserID, &v.OptionIndex, &v.Weight, &v.CastAt)
	return v, err
}

func (s *Store) UpsertVote(ctx context.Context, v ledger.Vote) (ledger.Vote, error) {
	// the later ballot replaces the earlier one but keeps its row id
	row := s.db.QueryRowContext(ctx, `
		insert into votes (proposal_id, user_id, option_index, weight)
		values ($1,$2,$3,$4)
		on conflict (proposal_id, user_id) do update
		set option_index = excluded.option_index, weight = excluded.weight, cast_at = now()
		returning `+voteCols+`
	`, v.ProposalID, v.UserID, v.OptionIndex, v.Weight)
	return scanVote(row)
}

func (s *Store) ListVotesByProposal(ctx context.Context, proposalID uint64) ([]ledger.Vote, error) {
	rows, err := s.db.QueryContext(ctx, `select `+voteCols+` from votes where proposal_id=$1 order by id asc`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ledger.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// --- revenue ---

const revenueCols = `id, artist_id, currency, amount, source, recognized_at, distributed`

func scanRevenue(r rowScanner) (ledger.RevenueEvent, error) {
	var ev ledger.RevenueEvent
	var recognized sql.NullTime
	err := r.Scan(&ev.ID, &ev.ArtistID, &ev.Amount.Currency, &ev.Amount.Amount, &ev.Source, &recognized, &ev.Distributed)
	if err != nil {
		return ledger.RevenueEvent{}, err
	}
	if recognized.Valid {
		ev.RecognizedAt = recognized.Time
	}
	return ev, nil
}

func (s *Store) CreateRevenueEvent(ctx context.Context, ev ledger.RevenueEvent) (ledger.RevenueEvent, error) {
	var recognized any
	if !ev.RecognizedAt.IsZero() {
		recognized = ev.RecognizedAt
	}
	row := s.db.QueryRowContext(ctx, `
		insert into revenue_events (artist_id, currency, amount, source, recognized_at)
		values ($1,$2,$3,$4,$5)
		returning `+revenueCols+`
	`, ev.ArtistID, ev.Amount.Currency, ev.Amount.Amount, ev.Source, recognized)
	return scanRevenue(row)
}

func (s *Store) GetRevenueEvent(ctx context.Context, id uint64) (ledger.RevenueEvent, bool, error) {
	ev, err := scanRevenue(s.db.QueryRowContext(ctx, `select `+revenueCols+` from revenue_events where id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.RevenueEvent{}, false, nil
	}
	if err != nil {
		return ledger.RevenueEvent{}, false, err
	}
	return ev, true, nil
}

func (s *Store) listRevenue(ctx context.Context, where string, args ...any) ([]ledger.RevenueEvent, error) {
	rows, err := s.db.QueryContext(ctx, `select `+revenueCols+` from revenue_events where `+where+` order by id asc`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ledger.RevenueEvent
	for rows.Next() {
		ev, err := scanRevenue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (s *Store) ListRevenueByArtist(ctx context.Context, artistID uint64) ([]ledger.RevenueEvent, error) {
	return s.listRevenue(ctx, `artist_id=$1`, artistID)
}

func (s *Store) ListUndistributedRevenue(ctx context.Context, artistID uint64) ([]ledger.RevenueEvent, error) {
	return s.listRevenue(ctx, `artist_id=$1 and not distributed`, artistID)
}

func (s *Store) ApplyDistribution(ctx context.Context, revenueID uint64, earnings []ledger.Earning) ([]ledger.Earning, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the event row so the flag check and the flip are one unit.
	var distributed bool
	err = tx.QueryRowContext(ctx, `select distributed from revenue_events where id=$1 for update`, revenueID).Scan(&distributed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: revenue event %d", ledger.ErrNotFound, revenueID)
	}
	if err != nil {
		return nil, err
	}
	if distributed {
		return nil, fmt.Errorf("%w: revenue event %d already distributed", ledger.ErrInvalidState, revenueID)
	}

	out := make([]ledger.Earning, 0, len(earnings))
	for _, e := range earnings {
		row := tx.QueryRowContext(ctx, `
			insert into earnings (revenue_id, recipient_kind, recipient_user_id, recipient_artist_id, currency, amount)
			values ($1,$2,$3,$4,$5,$6)
			returning id, earned_at
		`, revenueID, e.Recipient.Kind, nullableID(e.Recipient.UserID), nullableID(e.Recipient.ArtistID),
			e.Amount.Currency, e.Amount.Amount)
		e.RevenueID = revenueID
		if err := row.Scan(&e.ID, &e.EarnedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if _, err := tx.ExecContext(ctx, `update revenue_events set distributed=true where id=$1`, revenueID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// --- earnings ---

const earningCols = `id, revenue_id, recipient_kind, coalesce(recipient_user_id,0), coalesce(recipient_artist_id,0), currency, amount, earned_at`

func scanEarning(r rowScanner) (ledger.Earning, error) {
	var e ledger.Earning
	err := r.Scan(&e.ID, &e.RevenueID, &e.Recipient.Kind, &e.Recipient.UserID, &e.Recipient.ArtistID,
		&e.Amount.Currency, &e.Amount.Amount, &e.EarnedAt)
	return e, err
}

func (s *Store) listEarnings(ctx context.Context, where string, args ...any) ([]ledger.Earning, error) {
	rows, err := s.db.QueryContext(ctx, `select `+earningCols+` from earnings where `+where+` order by id asc`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ledger.Earning
	for rows.Next() {
		e, err := scanEarning(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *Store) ListEarningsByRevenue(ctx context.Context, revenueID uint64) ([]ledger.Earning, error) {
	return s.listEarnings(ctx, `revenue_id=$1`, revenueID)
}

func (s *Store) ListEarningsByUser(ctx context.Context, userID uint64) ([]ledger.Earning, error) {
	return s.listEarnings(ctx, `recipient_kind=$1 and recipient_user_id=$2`, ledger.RecipientHolder, userID)
}

// --- helpers ---

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullableID(id uint64) any {
	if id == 0 {
		return nil
	}
	return id
}
