package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/thehouse/wager-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Atomic takes a snapshot of the whole state, runs fn under the store
// lock, and restores the snapshot if fn fails. Holding the lock for the
// duration of the unit of work also gives the serialization Atomic
// promises.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	markets     map[string]*model.Market
	outcomes    map[string]*model.Outcome
	wagers      map[string]*model.Wager
	wallets     map[string]*model.Wallet
	treasuries  map[string]*model.EventTreasury
	ledger      []model.LedgerEntry
	events      map[string]*model.Event
	memberships map[string]map[string]model.EventMembership // eventID → userID
	shares      map[string]map[string]model.MarketShare     // marketID → userID
}

func newMemState() *memState {
	return &memState{
		markets:     make(map[string]*model.Market),
		outcomes:    make(map[string]*model.Outcome),
		wagers:      make(map[string]*model.Wager),
		wallets:     make(map[string]*model.Wallet),
		treasuries:  make(map[string]*model.EventTreasury),
		events:      make(map[string]*model.Event),
		memberships: make(map[string]map[string]model.EventMembership),
		shares:      make(map[string]map[string]model.MarketShare),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.markets {
		cp := *v
		c.markets[k] = &cp
	}
	for k, v := range s.outcomes {
		cp := *v
		if v.Winner != nil {
			w := *v.Winner
			cp.Winner = &w
		}
		c.outcomes[k] = &cp
	}
	for k, v := range s.wagers {
		cp := *v
		c.wagers[k] = &cp
	}
	for k, v := range s.wallets {
		cp := *v
		c.wallets[k] = &cp
	}
	for k, v := range s.treasuries {
		cp := *v
		c.treasuries[k] = &cp
	}
	c.ledger = append([]model.LedgerEntry(nil), s.ledger...)
	for k, v := range s.events {
		cp := *v
		c.events[k] = &cp
	}
	for k, v := range s.memberships {
		inner := make(map[string]model.EventMembership, len(v))
		for uk, uv := range v {
			inner[uk] = uv
		}
		c.memberships[k] = inner
	}
	for k, v := range s.shares {
		inner := make(map[string]model.MarketShare, len(v))
		for uk, uv := range v {
			inner[uk] = uv
		}
		c.shares[k] = inner
	}
	return c
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// Atomic runs fn under the store lock against a transaction view, rolling
// the state back if fn returns an error.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memTx{state: s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// Every non-Atomic accessor takes the lock and delegates to the
// transaction view.

func (s *MemoryStore) view(fn func(tx *memTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{state: s.state})
}

func (s *MemoryStore) CreateMarket(ctx context.Context, m *model.Market, outcomes []model.Outcome) error {
	return s.view(func(tx *memTx) error { return tx.CreateMarket(ctx, m, outcomes) })
}

func (s *MemoryStore) GetMarket(ctx context.Context, id string) (m *model.Market, err error) {
	err = s.view(func(tx *memTx) error { m, err = tx.GetMarket(ctx, id); return err })
	return
}

func (s *MemoryStore) ListMarkets(ctx context.Context) (ms []model.Market, err error) {
	err = s.view(func(tx *memTx) error { ms, err = tx.ListMarkets(ctx); return err })
	return
}

func (s *MemoryStore) UpdateMarketStatus(ctx context.Context, id, status string) error {
	return s.view(func(tx *memTx) error { return tx.UpdateMarketStatus(ctx, id, status) })
}

func (s *MemoryStore) GetOutcome(ctx context.Context, id string) (o *model.Outcome, err error) {
	err = s.view(func(tx *memTx) error { o, err = tx.GetOutcome(ctx, id); return err })
	return
}

func (s *MemoryStore) ListOutcomes(ctx context.Context, marketID string) (os []model.Outcome, err error) {
	err = s.view(func(tx *memTx) error { os, err = tx.ListOutcomes(ctx, marketID); return err })
	return
}

func (s *MemoryStore) SetOutcomeWinner(ctx context.Context, id string, winner bool) error {
	return s.view(func(tx *memTx) error { return tx.SetOutcomeWinner(ctx, id, winner) })
}

func (s *MemoryStore) CreateWager(ctx context.Context, w *model.Wager) error {
	return s.view(func(tx *memTx) error { return tx.CreateWager(ctx, w) })
}

func (s *MemoryStore) ListWagersByMarket(ctx context.Context, marketID string) (ws []model.Wager, err error) {
	err = s.view(func(tx *memTx) error { ws, err = tx.ListWagersByMarket(ctx, marketID); return err })
	return
}

func (s *MemoryStore) ListWagersByUser(ctx context.Context, userID string) (ws []model.Wager, err error) {
	err = s.view(func(tx *memTx) error { ws, err = tx.ListWagersByUser(ctx, userID); return err })
	return
}

func (s *MemoryStore) UpdateWagerStatus(ctx context.Context, id, status string) error {
	return s.view(func(tx *memTx) error { return tx.UpdateWagerStatus(ctx, id, status) })
}

func (s *MemoryStore) GetWallet(ctx context.Context, userID string) (w *model.Wallet, err error) {
	err = s.view(func(tx *memTx) error { w, err = tx.GetWallet(ctx, userID); return err })
	return
}

func (s *MemoryStore) CreateWallet(ctx context.Context, w *model.Wallet) error {
	return s.view(func(tx *memTx) error { return tx.CreateWallet(ctx, w) })
}

func (s *MemoryStore) UpdateWalletBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	return s.view(func(tx *memTx) error { return tx.UpdateWalletBalance(ctx, userID, balance) })
}

func (s *MemoryStore) GetTreasury(ctx context.Context, eventID string) (tr *model.EventTreasury, err error) {
	err = s.view(func(tx *memTx) error { tr, err = tx.GetTreasury(ctx, eventID); return err })
	return
}

func (s *MemoryStore) CreateTreasury(ctx context.Context, tr *model.EventTreasury) error {
	return s.view(func(tx *memTx) error { return tx.CreateTreasury(ctx, tr) })
}

func (s *MemoryStore) UpdateTreasuryBalance(ctx context.Context, eventID string, balance decimal.Decimal) error {
	return s.view(func(tx *memTx) error { return tx.UpdateTreasuryBalance(ctx, eventID, balance) })
}

func (s *MemoryStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	return s.view(func(tx *memTx) error { return tx.InsertLedgerEntry(ctx, e) })
}

func (s *MemoryStore) ListLedgerEntries(ctx context.Context, ownerKind, ownerID string) (es []model.LedgerEntry, err error) {
	err = s.view(func(tx *memTx) error { es, err = tx.ListLedgerEntries(ctx, ownerKind, ownerID); return err })
	return
}

func (s *MemoryStore) CreateEvent(ctx context.Context, ev *model.Event) error {
	return s.view(func(tx *memTx) error { return tx.CreateEvent(ctx, ev) })
}

func (s *MemoryStore) GetEvent(ctx context.Context, id string) (ev *model.Event, err error) {
	err = s.view(func(tx *memTx) error { ev, err = tx.GetEvent(ctx, id); return err })
	return
}

func (s *MemoryStore) AddMembership(ctx context.Context, m *model.EventMembership) error {
	return s.view(func(tx *memTx) error { return tx.AddMembership(ctx, m) })
}

func (s *MemoryStore) IsMember(ctx context.Context, eventID, userID string) (ok bool, err error) {
	err = s.view(func(tx *memTx) error { ok, err = tx.IsMember(ctx, eventID, userID); return err })
	return
}

func (s *MemoryStore) AddMarketShare(ctx context.Context, sh *model.MarketShare) error {
	return s.view(func(tx *memTx) error { return tx.AddMarketShare(ctx, sh) })
}

func (s *MemoryStore) HasMarketShare(ctx context.Context, marketID, userID string) (ok bool, err error) {
	err = s.view(func(tx *memTx) error { ok, err = tx.HasMarketShare(ctx, marketID, userID); return err })
	return
}

// memTx operates directly on state; the MemoryStore lock is already held.
type memTx struct {
	state *memState
}

// Atomic on a transaction view joins the enclosing unit.
func (t *memTx) Atomic(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memTx) CreateMarket(_ context.Context, m *model.Market, outcomes []model.Outcome) error {
	if _, exists := t.state.markets[m.ID]; exists {
		return fmt.Errorf("market %s already exists", m.ID)
	}
	cp := *m
	t.state.markets[m.ID] = &cp
	for _, o := range outcomes {
		oc := o
		t.state.outcomes[o.ID] = &oc
	}
	return nil
}

func (t *memTx) GetMarket(_ context.Context, id string) (*model.Market, error) {
	m, ok := t.state.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	cp := *m
	return &cp, nil
}

func (t *memTx) ListMarkets(_ context.Context) ([]model.Market, error) {
	markets := make([]model.Market, 0, len(t.state.markets))
	for _, m := range t.state.markets {
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool {
		if markets[i].CreatedAt.Equal(markets[j].CreatedAt) {
			return markets[i].ID < markets[j].ID
		}
		return markets[i].CreatedAt.After(markets[j].CreatedAt)
	})
	return markets, nil
}

func (t *memTx) UpdateMarketStatus(_ context.Context, id, status string) error {
	m, ok := t.state.markets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	m.Status = status
	return nil
}

func (t *memTx) GetOutcome(_ context.Context, id string) (*model.Outcome, error) {
	o, ok := t.state.outcomes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutcomeNotFound, id)
	}
	cp := *o
	if o.Winner != nil {
		w := *o.Winner
		cp.Winner = &w
	}
	return &cp, nil
}

func (t *memTx) ListOutcomes(_ context.Context, marketID string) ([]model.Outcome, error) {
	var outcomes []model.Outcome
	for _, o := range t.state.outcomes {
		if o.MarketID == marketID {
			cp := *o
			if o.Winner != nil {
				w := *o.Winner
				cp.Winner = &w
			}
			outcomes = append(outcomes, cp)
		}
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].ID < outcomes[j].ID })
	return outcomes, nil
}

func (t *memTx) SetOutcomeWinner(_ context.Context, id string, winner bool) error {
	o, ok := t.state.outcomes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOutcomeNotFound, id)
	}
	w := winner
	o.Winner = &w
	return nil
}

func (t *memTx) CreateWager(_ context.Context, w *model.Wager) error {
	cp := *w
	t.state.wagers[w.ID] = &cp
	return nil
}

func (t *memTx) ListWagersByMarket(_ context.Context, marketID string) ([]model.Wager, error) {
	var wagers []model.Wager
	for _, w := range t.state.wagers {
		if w.MarketID == marketID {
			wagers = append(wagers, *w)
		}
	}
	sortWagers(wagers)
	return wagers, nil
}

func (t *memTx) ListWagersByUser(_ context.Context, userID string) ([]model.Wager, error) {
	var wagers []model.Wager
	for _, w := range t.state.wagers {
		if w.UserID == userID {
			wagers = append(wagers, *w)
		}
	}
	sortWagers(wagers)
	return wagers, nil
}

func sortWagers(ws []model.Wager) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].PlacedAt.Equal(ws[j].PlacedAt) {
			return ws[i].ID < ws[j].ID
		}
		return ws[i].PlacedAt.Before(ws[j].PlacedAt)
	})
}

func (t *memTx) UpdateWagerStatus(_ context.Context, id, status string) error {
	w, ok := t.state.wagers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWagerNotFound, id)
	}
	w.Status = status
	return nil
}

func (t *memTx) GetWallet(_ context.Context, userID string) (*model.Wallet, error) {
	w, ok := t.state.wallets[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrWalletNotFound, userID)
	}
	cp := *w
	return &cp, nil
}

func (t *memTx) CreateWallet(_ context.Context, w *model.Wallet) error {
	if _, exists := t.state.wallets[w.UserID]; exists {
		return fmt.Errorf("wallet for user %s already exists", w.UserID)
	}
	cp := *w
	t.state.wallets[w.UserID] = &cp
	return nil
}

func (t *memTx) UpdateWalletBalance(_ context.Context, userID string, balance decimal.Decimal) error {
	w, ok := t.state.wallets[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrWalletNotFound, userID)
	}
	w.Balance = balance
	return nil
}

func (t *memTx) GetTreasury(_ context.Context, eventID string) (*model.EventTreasury, error) {
	tr, ok := t.state.treasuries[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: event %s", ErrTreasuryNotFound, eventID)
	}
	cp := *tr
	return &cp, nil
}

func (t *memTx) CreateTreasury(_ context.Context, tr *model.EventTreasury) error {
	if _, exists := t.state.treasuries[tr.EventID]; exists {
		return fmt.Errorf("treasury for event %s already exists", tr.EventID)
	}
	cp := *tr
	t.state.treasuries[tr.EventID] = &cp
	return nil
}

func (t *memTx) UpdateTreasuryBalance(_ context.Context, eventID string, balance decimal.Decimal) error {
	tr, ok := t.state.treasuries[eventID]
	if !ok {
		return fmt.Errorf("%w: event %s", ErrTreasuryNotFound, eventID)
	}
	tr.Balance = balance
	return nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, e *model.LedgerEntry) error {
	t.state.ledger = append(t.state.ledger, *e)
	return nil
}

func (t *memTx) ListLedgerEntries(_ context.Context, ownerKind, ownerID string) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	// Newest first, matching the display ordering of the ledger.
	for i := len(t.state.ledger) - 1; i >= 0; i-- {
		e := t.state.ledger[i]
		if e.OwnerKind == ownerKind && e.OwnerID == ownerID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (t *memTx) CreateEvent(_ context.Context, ev *model.Event) error {
	if _, exists := t.state.events[ev.ID]; exists {
		return fmt.Errorf("event %s already exists", ev.ID)
	}
	cp := *ev
	t.state.events[ev.ID] = &cp
	return nil
}

func (t *memTx) GetEvent(_ context.Context, id string) (*model.Event, error) {
	ev, ok := t.state.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	cp := *ev
	return &cp, nil
}

func (t *memTx) AddMembership(_ context.Context, m *model.EventMembership) error {
	if t.state.memberships[m.EventID] == nil {
		t.state.memberships[m.EventID] = make(map[string]model.EventMembership)
	}
	t.state.memberships[m.EventID][m.UserID] = *m
	return nil
}

func (t *memTx) IsMember(_ context.Context, eventID, userID string) (bool, error) {
	_, ok := t.state.memberships[eventID][userID]
	return ok, nil
}

func (t *memTx) AddMarketShare(_ context.Context, s *model.MarketShare) error {
	if t.state.shares[s.MarketID] == nil {
		t.state.shares[s.MarketID] = make(map[string]model.MarketShare)
	}
	t.state.shares[s.MarketID][s.UserID] = *s
	return nil
}

func (t *memTx) HasMarketShare(_ context.Context, marketID, userID string) (bool, error) {
	_, ok := t.state.shares[marketID][userID]
	return ok, nil
}
