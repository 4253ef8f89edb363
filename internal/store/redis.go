package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/thehouse/wager-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the read-heavy entities: markets, wallets, and treasuries.
// Writes go to the primary store and invalidate the cache; reads check
// Redis first then fall back to the primary.
//
// Inside Atomic the cache is bypassed entirely — transactional reads must
// hit the locked rows — and invalidations queue up until the unit of work
// commits, so a rolled-back write never evicts a valid entry.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration

	// pending collects keys to invalidate after commit; non-nil only on
	// the transaction-bound view handed to Atomic callbacks.
	pending *[]string
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

func (s *CachedStore) inTx() bool { return s.pending != nil }

func (s *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if s.pending != nil {
		*s.pending = append(*s.pending, keys...)
		return
	}
	s.rdb.Del(ctx, keys...)
}

// Atomic delegates to the primary store's transaction and flushes queued
// cache invalidations only after it commits.
func (s *CachedStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx() {
		return s.primary.Atomic(ctx, func(tx Store) error {
			return fn(&CachedStore{primary: tx, rdb: s.rdb, ttl: s.ttl, pending: s.pending})
		})
	}

	var keys []string
	err := s.primary.Atomic(ctx, func(tx Store) error {
		return fn(&CachedStore{primary: tx, rdb: s.rdb, ttl: s.ttl, pending: &keys})
	})
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

// --- Cached reads ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	if s.inTx() {
		return s.primary.GetMarket(ctx, id)
	}

	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, marketKey(id), m)
	return m, nil
}

func (s *CachedStore) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	if s.inTx() {
		return s.primary.GetWallet(ctx, userID)
	}

	data, err := s.rdb.Get(ctx, walletKey(userID)).Bytes()
	if err == nil {
		var w model.Wallet
		if json.Unmarshal(data, &w) == nil {
			return &w, nil
		}
	}

	w, err := s.primary.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, walletKey(userID), w)
	return w, nil
}

func (s *CachedStore) GetTreasury(ctx context.Context, eventID string) (*model.EventTreasury, error) {
	if s.inTx() {
		return s.primary.GetTreasury(ctx, eventID)
	}

	data, err := s.rdb.Get(ctx, treasuryKey(eventID)).Bytes()
	if err == nil {
		var tr model.EventTreasury
		if json.Unmarshal(data, &tr) == nil {
			return &tr, nil
		}
	}

	tr, err := s.primary.GetTreasury(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, treasuryKey(eventID), tr)
	return tr, nil
}

// --- Invalidating writes ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market, outcomes []model.Outcome) error {
	if err := s.primary.CreateMarket(ctx, m, outcomes); err != nil {
		return err
	}
	s.invalidate(ctx, marketKey(m.ID))
	return nil
}

func (s *CachedStore) UpdateMarketStatus(ctx context.Context, id, status string) error {
	if err := s.primary.UpdateMarketStatus(ctx, id, status); err != nil {
		return err
	}
	s.invalidate(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) CreateWallet(ctx context.Context, w *model.Wallet) error {
	if err := s.primary.CreateWallet(ctx, w); err != nil {
		return err
	}
	s.invalidate(ctx, walletKey(w.UserID))
	return nil
}

func (s *CachedStore) UpdateWalletBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	if err := s.primary.UpdateWalletBalance(ctx, userID, balance); err != nil {
		return err
	}
	s.invalidate(ctx, walletKey(userID))
	return nil
}

func (s *CachedStore) CreateTreasury(ctx context.Context, tr *model.EventTreasury) error {
	if err := s.primary.CreateTreasury(ctx, tr); err != nil {
		return err
	}
	s.invalidate(ctx, treasuryKey(tr.EventID))
	return nil
}

func (s *CachedStore) UpdateTreasuryBalance(ctx context.Context, eventID string, balance decimal.Decimal) error {
	if err := s.primary.UpdateTreasuryBalance(ctx, eventID, balance); err != nil {
		return err
	}
	s.invalidate(ctx, treasuryKey(eventID))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) GetOutcome(ctx context.Context, id string) (*model.Outcome, error) {
	return s.primary.GetOutcome(ctx, id)
}

func (s *CachedStore) ListOutcomes(ctx context.Context, marketID string) ([]model.Outcome, error) {
	return s.primary.ListOutcomes(ctx, marketID)
}

func (s *CachedStore) SetOutcomeWinner(ctx context.Context, id string, winner bool) error {
	return s.primary.SetOutcomeWinner(ctx, id, winner)
}

func (s *CachedStore) CreateWager(ctx context.Context, w *model.Wager) error {
	return s.primary.CreateWager(ctx, w)
}

func (s *CachedStore) ListWagersByMarket(ctx context.Context, marketID string) ([]model.Wager, error) {
	return s.primary.ListWagersByMarket(ctx, marketID)
}

func (s *CachedStore) ListWagersByUser(ctx context.Context, userID string) ([]model.Wager, error) {
	return s.primary.ListWagersByUser(ctx, userID)
}

func (s *CachedStore) UpdateWagerStatus(ctx context.Context, id, status string) error {
	return s.primary.UpdateWagerStatus(ctx, id, status)
}

func (s *CachedStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	return s.primary.InsertLedgerEntry(ctx, e)
}

func (s *CachedStore) ListLedgerEntries(ctx context.Context, ownerKind, ownerID string) ([]model.LedgerEntry, error) {
	return s.primary.ListLedgerEntries(ctx, ownerKind, ownerID)
}

func (s *CachedStore) CreateEvent(ctx context.Context, ev *model.Event) error {
	return s.primary.CreateEvent(ctx, ev)
}

func (s *CachedStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return s.primary.GetEvent(ctx, id)
}

func (s *CachedStore) AddMembership(ctx context.Context, m *model.EventMembership) error {
	return s.primary.AddMembership(ctx, m)
}

func (s *CachedStore) IsMember(ctx context.Context, eventID, userID string) (bool, error) {
	return s.primary.IsMember(ctx, eventID, userID)
}

func (s *CachedStore) AddMarketShare(ctx context.Context, sh *model.MarketShare) error {
	return s.primary.AddMarketShare(ctx, sh)
}

func (s *CachedStore) HasMarketShare(ctx context.Context, marketID, userID string) (bool, error) {
	return s.primary.HasMarketShare(ctx, marketID, userID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func marketKey(id string) string   { return fmt.Sprintf("market:%s", id) }
func walletKey(id string) string   { return fmt.Sprintf("wallet:%s", id) }
func treasuryKey(id string) string { return fmt.Sprintf("treasury:%s", id) }
