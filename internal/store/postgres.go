package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/thehouse/wager-engine/internal/model"
)

// pgQuerier is the query surface shared by *pgxpool.Pool and pgx.Tx, so
// the same store code runs inside and outside a transaction.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    pgQuerier
	inTx bool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

// Atomic runs fn inside a pgx transaction. Balance-cell reads made through
// the transaction-bound store use SELECT ... FOR UPDATE, so two concurrent
// stakes against the same wallet serialize on the row lock rather than
// both passing the balance check.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	txStore := &PostgresStore{q: tx, inTx: true}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// --- Markets & outcomes ---

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market, outcomes []model.Outcome) error {
	return s.Atomic(ctx, func(tx Store) error {
		ts := tx.(*PostgresStore)
		_, err := ts.q.Exec(ctx,
			`INSERT INTO markets (id, title, creator_id, house_id, event_id, margin, status, max_bet_limit, closes_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8::NUMERIC, $9, $10)`,
			m.ID, m.Title, m.CreatorID, m.HouseID, m.EventID,
			m.Margin.String(), m.Status, m.MaxBetLimit.String(),
			m.ClosesAt, m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert market: %w", err)
		}
		for _, o := range outcomes {
			_, err := ts.q.Exec(ctx,
				`INSERT INTO outcomes (id, market_id, title, slider_weight, probability, decimal_odds, winner)
				 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)`,
				o.ID, o.MarketID, o.Title, o.SliderWeight,
				o.Probability.String(), o.DecimalOdds.String(), o.Winner,
			)
			if err != nil {
				return fmt.Errorf("insert outcome: %w", err)
			}
		}
		return nil
	})
}

const marketColumns = `id, title, creator_id, house_id, event_id,
       margin::TEXT, status, max_bet_limit::TEXT, closes_at, created_at`

func scanMarket(row pgx.Row) (*model.Market, error) {
	var m model.Market
	var margin, maxBet string
	err := row.Scan(&m.ID, &m.Title, &m.CreatorID, &m.HouseID, &m.EventID,
		&margin, &m.Status, &maxBet, &m.ClosesAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Margin, _ = decimal.NewFromString(margin)
	m.MaxBetLimit, _ = decimal.NewFromString(maxBet)
	return &m, nil
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	m, err := scanMarket(s.q.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) UpdateMarketStatus(ctx context.Context, id, status string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE markets SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	return nil
}

const outcomeColumns = `id, market_id, title, slider_weight,
       probability::TEXT, decimal_odds::TEXT, winner`

func scanOutcome(row pgx.Row) (*model.Outcome, error) {
	var o model.Outcome
	var prob, oddsS string
	err := row.Scan(&o.ID, &o.MarketID, &o.Title, &o.SliderWeight,
		&prob, &oddsS, &o.Winner)
	if err != nil {
		return nil, err
	}
	o.Probability, _ = decimal.NewFromString(prob)
	o.DecimalOdds, _ = decimal.NewFromString(oddsS)
	return &o, nil
}

func (s *PostgresStore) GetOutcome(ctx context.Context, id string) (*model.Outcome, error) {
	o, err := scanOutcome(s.q.QueryRow(ctx,
		`SELECT `+outcomeColumns+` FROM outcomes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrOutcomeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome %s: %w", id, err)
	}
	return o, nil
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, marketID string) ([]model.Outcome, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+outcomeColumns+` FROM outcomes WHERE market_id = $1 ORDER BY id`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []model.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, *o)
	}
	return outcomes, rows.Err()
}

func (s *PostgresStore) SetOutcomeWinner(ctx context.Context, id string, winner bool) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE outcomes SET winner = $2 WHERE id = $1`, id, winner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrOutcomeNotFound, id)
	}
	return nil
}

// --- Wagers ---

func (s *PostgresStore) CreateWager(ctx context.Context, w *model.Wager) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO wagers (id, user_id, market_id, outcome_id, stake, odds_at_placement, potential_payout, status, placed_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9)`,
		w.ID, w.UserID, w.MarketID, w.OutcomeID,
		w.Stake.String(), w.OddsAtPlacement.String(), w.PotentialPayout.String(),
		w.Status, w.PlacedAt,
	)
	return err
}

const wagerColumns = `id, user_id, market_id, outcome_id,
       stake::TEXT, odds_at_placement::TEXT, potential_payout::TEXT, status, placed_at`

func scanWagers(rows pgx.Rows) ([]model.Wager, error) {
	var wagers []model.Wager
	for rows.Next() {
		var w model.Wager
		var stake, oddsS, payout string
		if err := rows.Scan(&w.ID, &w.UserID, &w.MarketID, &w.OutcomeID,
			&stake, &oddsS, &payout, &w.Status, &w.PlacedAt); err != nil {
			return nil, err
		}
		w.Stake, _ = decimal.NewFromString(stake)
		w.OddsAtPlacement, _ = decimal.NewFromString(oddsS)
		w.PotentialPayout, _ = decimal.NewFromString(payout)
		wagers = append(wagers, w)
	}
	return wagers, rows.Err()
}

func (s *PostgresStore) ListWagersByMarket(ctx context.Context, marketID string) ([]model.Wager, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+wagerColumns+` FROM wagers WHERE market_id = $1 ORDER BY placed_at, id`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWagers(rows)
}

func (s *PostgresStore) ListWagersByUser(ctx context.Context, userID string) ([]model.Wager, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+wagerColumns+` FROM wagers WHERE user_id = $1 ORDER BY placed_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWagers(rows)
}

func (s *PostgresStore) UpdateWagerStatus(ctx context.Context, id, status string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE wagers SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrWagerNotFound, id)
	}
	return nil
}

// --- Balance cells ---

func (s *PostgresStore) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	q := `SELECT user_id, balance::TEXT, created_at FROM wallets WHERE user_id = $1`
	if s.inTx {
		q += ` FOR UPDATE`
	}

	var w model.Wallet
	var balance string
	err := s.q.QueryRow(ctx, q, userID).Scan(&w.UserID, &balance, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrWalletNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet %s: %w", userID, err)
	}
	w.Balance, _ = decimal.NewFromString(balance)
	return &w, nil
}

func (s *PostgresStore) CreateWallet(ctx context.Context, w *model.Wallet) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO wallets (user_id, balance, created_at) VALUES ($1, $2::NUMERIC, $3)`,
		w.UserID, w.Balance.String(), w.CreatedAt)
	return err
}

func (s *PostgresStore) UpdateWalletBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE wallets SET balance = $2::NUMERIC WHERE user_id = $1`,
		userID, balance.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", ErrWalletNotFound, userID)
	}
	return nil
}

func (s *PostgresStore) GetTreasury(ctx context.Context, eventID string) (*model.EventTreasury, error) {
	q := `SELECT event_id, balance::TEXT, created_at FROM event_treasuries WHERE event_id = $1`
	if s.inTx {
		q += ` FOR UPDATE`
	}

	var tr model.EventTreasury
	var balance string
	err := s.q.QueryRow(ctx, q, eventID).Scan(&tr.EventID, &balance, &tr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: event %s", ErrTreasuryNotFound, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("get treasury %s: %w", eventID, err)
	}
	tr.Balance, _ = decimal.NewFromString(balance)
	return &tr, nil
}

func (s *PostgresStore) CreateTreasury(ctx context.Context, tr *model.EventTreasury) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO event_treasuries (event_id, balance, created_at) VALUES ($1, $2::NUMERIC, $3)`,
		tr.EventID, tr.Balance.String(), tr.CreatedAt)
	return err
}

func (s *PostgresStore) UpdateTreasuryBalance(ctx context.Context, eventID string, balance decimal.Decimal) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE event_treasuries SET balance = $2::NUMERIC WHERE event_id = $1`,
		eventID, balance.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: event %s", ErrTreasuryNotFound, eventID)
	}
	return nil
}

// --- Immutable ledger ---

func (s *PostgresStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO ledger_entries (id, owner_kind, owner_id, amount, kind, note, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)`,
		e.ID, e.OwnerKind, e.OwnerID, e.Amount.String(), e.Kind, e.Note, e.CreatedAt)
	return err
}

func (s *PostgresStore) ListLedgerEntries(ctx context.Context, ownerKind, ownerID string) ([]model.LedgerEntry, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, owner_kind, owner_id, amount::TEXT, kind, note, created_at
		 FROM ledger_entries WHERE owner_kind = $1 AND owner_id = $2
		 ORDER BY created_at DESC, id DESC`, ownerKind, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var amount string
		if err := rows.Scan(&e.ID, &e.OwnerKind, &e.OwnerID, &amount, &e.Kind, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Amount, _ = decimal.NewFromString(amount)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Social facts ---

func (s *PostgresStore) CreateEvent(ctx context.Context, ev *model.Event) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO events (id, name, description, creator_id, default_house, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.Name, ev.Description, ev.CreatorID, ev.DefaultHouse, ev.Active, ev.CreatedAt)
	return err
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var ev model.Event
	err := s.q.QueryRow(ctx,
		`SELECT id, name, description, creator_id, default_house, active, created_at
		 FROM events WHERE id = $1`, id).
		Scan(&ev.ID, &ev.Name, &ev.Description, &ev.CreatorID, &ev.DefaultHouse, &ev.Active, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return &ev, nil
}

func (s *PostgresStore) AddMembership(ctx context.Context, m *model.EventMembership) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO event_memberships (event_id, user_id, role, added_by, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (event_id, user_id) DO NOTHING`,
		m.EventID, m.UserID, m.Role, m.AddedBy, m.CreatedAt)
	return err
}

func (s *PostgresStore) IsMember(ctx context.Context, eventID, userID string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM event_memberships WHERE event_id = $1 AND user_id = $2)`,
		eventID, userID).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) AddMarketShare(ctx context.Context, sh *model.MarketShare) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO market_shares (market_id, user_id, added_by, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (market_id, user_id) DO NOTHING`,
		sh.MarketID, sh.UserID, sh.AddedBy, sh.CreatedAt)
	return err
}

func (s *PostgresStore) HasMarketShare(ctx context.Context, marketID, userID string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM market_shares WHERE market_id = $1 AND user_id = $2)`,
		marketID, userID).Scan(&exists)
	return exists, err
}
