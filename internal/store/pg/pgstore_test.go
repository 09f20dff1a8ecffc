package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"greenroom.fm/internal/ledger"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewWithDB(db), mock, func() { db.Close() }
}

func TestGetUserAbsenceIsNotAnError(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery("select id, username, password_hash, is_artist.*from users where id=").
		WithArgs(uint64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "is_artist", "wallet", "bio", "image", "created_at"}))

	_, found, err := st.GetUser(context.Background(), 404)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if found {
		t.Fatalf("expected absence")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetUserScansRow(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	created := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("select id, username, password_hash, is_artist.*from users where id=").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "is_artist", "wallet", "bio", "image", "created_at"}).
			AddRow(int64(7), "mara", "hash", true, "0xabc", "synths", "", created))

	u, found, err := st.GetUser(context.Background(), 7)
	if err != nil || !found {
		t.Fatalf("GetUser: found=%v err=%v", found, err)
	}
	if u.ID != 7 || u.Username != "mara" || !u.IsArtist || u.WalletAddress != "0xabc" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if !u.CreatedAt.Equal(created) {
		t.Fatalf("unexpected created_at: %v", u.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery("insert into users").
		WithArgs("mara", "hash", false, "", "", "").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "users_username_key"})

	_, err := st.CreateUser(context.Background(), ledger.User{Username: "mara", PasswordHash: "hash"})
	if !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateArtistEncodesGenres(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	created := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("insert into artists").
		WithArgs(uint64(7), "Neon Harbor", []byte(`["synthwave","pop"]`), "", "Harbor Tokens", "NEON", int64(1000),
			60, 25, 15, "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "genres", "location", "token_name", "token_symbol", "token_supply", "artist", "holder", "treasury", "contract", "created_at"}).
			AddRow(int64(3), int64(7), "Neon Harbor", []byte(`["synthwave","pop"]`), "", "Harbor Tokens", "NEON", int64(1000), 60, 25, 15, "", created))

	a, err := st.CreateArtist(context.Background(), ledger.Artist{
		UserID:           7,
		Name:             "Neon Harbor",
		Genres:           []string{"synthwave", "pop"},
		TokenName:        "Harbor Tokens",
		TokenSymbol:      "NEON",
		TokenSupply:      1000,
		ArtistSharePct:   60,
		HolderSharePct:   25,
		TreasurySharePct: 15,
	})
	if err != nil {
		t.Fatalf("CreateArtist: %v", err)
	}
	if a.ID != 3 || len(a.Genres) != 2 || a.Genres[0] != "synthwave" {
		t.Fatalf("unexpected artist: %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsertVoteKeepsRowID(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	cast := time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC)
	mock.ExpectQuery("insert into votes.*on conflict").
		WithArgs(uint64(5), uint64(9), 1, int64(40)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "proposal_id", "user_id", "option_index", "weight", "cast_at"}).
			AddRow(int64(12), int64(5), int64(9), 1, int64(40), cast))

	v, err := st.UpsertVote(context.Background(), ledger.Vote{ProposalID: 5, UserID: 9, OptionIndex: 1, Weight: 40})
	if err != nil {
		t.Fatalf("UpsertVote: %v", err)
	}
	if v.ID != 12 || v.OptionIndex != 1 || v.Weight != 40 {
		t.Fatalf("unexpected vote: %+v", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateRevenueEventNullRecognizedAt(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery("insert into revenue_events").
		WithArgs(uint64(3), "USD", int64(100_000_000), "bandcamp", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "artist_id", "currency", "amount", "source", "recognized_at", "distributed"}).
			AddRow(int64(1), int64(3), "USD", int64(100_000_000), "bandcamp", nil, false))

	ev, err := st.CreateRevenueEvent(context.Background(), ledger.RevenueEvent{
		ArtistID: 3,
		Amount:   ledger.Money{Currency: "USD", Amount: 100_000_000},
		Source:   "bandcamp",
	})
	if err != nil {
		t.Fatalf("CreateRevenueEvent: %v", err)
	}
	if !ev.RecognizedAt.IsZero() {
		t.Fatalf("expected zero recognized_at, got %v", ev.RecognizedAt)
	}
	if ev.Distributed {
		t.Fatalf("new event must not be marked distributed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyDistribution(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	earned := time.Date(2026, 3, 15, 13, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("select distributed from revenue_events where id=.*for update").
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"distributed"}).AddRow(false))
	mock.ExpectQuery("insert into earnings").
		WithArgs(uint64(1), "artist", nil, uint64(3), "USD", int64(60_000_000)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "earned_at"}).AddRow(int64(1), earned))
	mock.ExpectQuery("insert into earnings").
		WithArgs(uint64(1), "token_holder", uint64(9), nil, "USD", int64(25_000_000)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "earned_at"}).AddRow(int64(2), earned))
	mock.ExpectExec("update revenue_events set distributed=true").
		WithArgs(uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	earnings := []ledger.Earning{
		{Recipient: ledger.ArtistRecipient(3), Amount: ledger.Money{Currency: "USD", Amount: 60_000_000}},
		{Recipient: ledger.HolderRecipient(9), Amount: ledger.Money{Currency: "USD", Amount: 25_000_000}},
	}
	out, err := st.ApplyDistribution(context.Background(), 1, earnings)
	if err != nil {
		t.Fatalf("ApplyDistribution: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 earnings, got %d", len(out))
	}
	if out[0].ID != 1 || out[0].RevenueID != 1 || !out[0].EarnedAt.Equal(earned) {
		t.Fatalf("unexpected earning: %+v", out[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyDistributionAlreadyFlagged(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("select distributed from revenue_events where id=.*for update").
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"distributed"}).AddRow(true))
	mock.ExpectRollback()

	_, err := st.ApplyDistribution(context.Background(), 1, []ledger.Earning{
		{Recipient: ledger.ArtistRecipient(3), Amount: ledger.Money{Currency: "USD", Amount: 1}},
	})
	if !errors.Is(err, ledger.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyDistributionMissingEvent(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("select distributed from revenue_events where id=.*for update").
		WithArgs(uint64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"distributed"}))
	mock.ExpectRollback()

	_, err := st.ApplyDistribution(context.Background(), 42, nil)
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListUndistributedRevenueFilters(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery("select id, artist_id, currency, amount, source, recognized_at, distributed from revenue_events where artist_id=.*not distributed").
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "artist_id", "currency", "amount", "source", "recognized_at", "distributed"}).
			AddRow(int64(2), int64(3), "USD", int64(5_000_000), "merch", nil, false))

	evs, err := st.ListUndistributedRevenue(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListUndistributedRevenue: %v", err)
	}
	if len(evs) != 1 || evs[0].ID != 2 || evs[0].Distributed {
		t.Fatalf("unexpected events: %+v", evs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
