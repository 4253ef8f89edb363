// Package book implements the wagering and settlement engines: markets
// are created with odds fixed at outcome creation, stakes are debited
// atomically against wallet balances, and settlement pays winners and
// balances the house's position exactly once.
//
// All monetary values use shopspring/decimal — never float64 for money.
package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/thehouse/wager-engine/internal/access"
	"github.com/thehouse/wager-engine/internal/ledger"
	"github.com/thehouse/wager-engine/internal/metrics"
	"github.com/thehouse/wager-engine/internal/model"
	"github.com/thehouse/wager-engine/internal/odds"
	"github.com/thehouse/wager-engine/internal/store"
)

var (
	// ErrInvalidStake is returned for zero or negative stakes.
	ErrInvalidStake = errors.New("book: stake must be positive")

	// ErrStakeExceedsLimit is returned when a stake exceeds the market's
	// max bet limit.
	ErrStakeExceedsLimit = errors.New("book: stake exceeds the market's max bet limit")

	// ErrMarketNotOpen is returned when wagering against a market that is
	// suspended or already settled.
	ErrMarketNotOpen = errors.New("book: market is not open")

	// ErrOutcomeNotInMarket is returned when the winning outcome passed to
	// settlement belongs to a different market.
	ErrOutcomeNotInMarket = errors.New("book: outcome does not belong to this market")

	// ErrTooFewOutcomes is returned when creating a market with fewer than
	// two outcomes.
	ErrTooFewOutcomes = errors.New("book: market needs at least two outcomes")

	// ErrInvalidMargin is returned for a negative house margin.
	ErrInvalidMargin = errors.New("book: margin must not be negative")
)

// DefaultMaxBetLimit applies when market creation leaves the limit unset.
var DefaultMaxBetLimit = decimal.New(10000, -2) // 100.00

// MoneyScale is the number of decimal places for monetary rounding.
const MoneyScale int32 = 2

// Service executes wagering and settlement against the store. A mutex
// serializes settlement on this instance; the store's Atomic unit gives
// the per-operation all-or-nothing guarantee. For horizontal scaling,
// replace the mutex with database-level locking on the market row.
type Service struct {
	store store.Store
	dir   access.UserDirectory
	wsHub *WSHub // optional WebSocket hub for real-time broadcasts

	settleMu sync.Mutex
}

// NewService creates a new book service. Pass nil for dir if no superuser
// directory exists and nil for hub if broadcasting is not needed.
func NewService(st store.Store, dir access.UserDirectory, hub *WSHub) *Service {
	return &Service{store: st, dir: dir, wsHub: hub}
}

// OutcomeInput is one proposed outcome at market creation.
type OutcomeInput struct {
	Title  string `json:"title"`
	Weight int    `json:"weight"` // 0–100 slider; clamped
}

// CreateMarketParams describes a market to create.
type CreateMarketParams struct {
	Title       string
	CreatorID   string
	HouseID     string // explicit house user; empty = resolve from event
	BeTheHouse  bool   // creator acts as house, overrides HouseID
	EventID     string
	Margin      decimal.Decimal
	MaxBetLimit decimal.Decimal
	ClosesAt    *time.Time
	Outcomes    []OutcomeInput
}

// CreateMarket validates the proposal, prices the outcomes, and persists
// the market OPEN. Odds are fixed here; wagers snapshot them at placement.
//
// House resolution: the creator when BeTheHouse, else the explicit house,
// else the event's default house, else none. A market with no house and
// no event has no settlement counterparty (see SettleMarket).
func (s *Service) CreateMarket(ctx context.Context, p CreateMarketParams) (*model.Market, []model.Outcome, error) {
	if len(p.Outcomes) < 2 {
		return nil, nil, ErrTooFewOutcomes
	}
	if p.Margin.IsNegative() {
		return nil, nil, ErrInvalidMargin
	}

	houseID := p.HouseID
	if p.BeTheHouse {
		houseID = p.CreatorID
	}

	if p.EventID != "" {
		ev, err := s.store.GetEvent(ctx, p.EventID)
		if err != nil {
			return nil, nil, err
		}
		if houseID == "" {
			houseID = ev.DefaultHouse
		}
	}

	maxBet := p.MaxBetLimit
	if maxBet.LessThanOrEqual(decimal.Zero) {
		maxBet = DefaultMaxBetLimit
	}

	weights := make([]int, len(p.Outcomes))
	for i, o := range p.Outcomes {
		weights[i] = clampWeight(o.Weight)
	}
	quotes := odds.Compute(weights, p.Margin)

	market := &model.Market{
		ID:          uuid.New().String(),
		Title:       p.Title,
		CreatorID:   p.CreatorID,
		HouseID:     houseID,
		EventID:     p.EventID,
		Margin:      p.Margin,
		Status:      model.MarketOpen,
		MaxBetLimit: maxBet,
		ClosesAt:    p.ClosesAt,
		CreatedAt:   time.Now().UTC(),
	}

	outcomes := make([]model.Outcome, len(p.Outcomes))
	for i, o := range p.Outcomes {
		outcomes[i] = model.Outcome{
			ID:           uuid.New().String(),
			MarketID:     market.ID,
			Title:        o.Title,
			SliderWeight: weights[i],
			Probability:  quotes[i].Probability,
			DecimalOdds:  quotes[i].DecimalOdds,
		}
	}

	if err := s.store.CreateMarket(ctx, market, outcomes); err != nil {
		return nil, nil, err
	}

	slog.Info("market created",
		"id", market.ID,
		"title", market.Title,
		"creator", market.CreatorID,
		"house", market.HouseID,
		"event", market.EventID,
		"outcomes", len(outcomes),
	)
	metrics.MarketsCreated.Inc()

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "market_created",
			MarketID: market.ID,
			Title:    market.Title,
		})
	}
	return market, outcomes, nil
}

func clampWeight(w int) int {
	if w < 0 {
		return 0
	}
	if w > 100 {
		return 100
	}
	return w
}

// CreateEvent persists a new event with its zero-balance treasury.
func (s *Service) CreateEvent(ctx context.Context, req CreateEventRequest) (*model.Event, error) {
	event := &model.Event{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Description:  req.Description,
		CreatorID:    req.CreatorID,
		DefaultHouse: req.DefaultHouse,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}

	err := s.store.Atomic(ctx, func(tx store.Store) error {
		if err := tx.CreateEvent(ctx, event); err != nil {
			return err
		}
		membership := &model.EventMembership{
			EventID:   event.ID,
			UserID:    req.CreatorID,
			Role:      model.RoleAdmin,
			CreatedAt: event.CreatedAt,
		}
		if err := tx.AddMembership(ctx, membership); err != nil {
			return err
		}
		_, err := ledger.EnsureTreasury(ctx, tx, event.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("event created", "id", event.ID, "name", event.Name, "creator", event.CreatorID)
	return event, nil
}

// PlaceWager stakes against an outcome as one atomic unit: the wallet is
// debited with a WAGER_STAKE ledger entry, the outcome's current odds are
// snapshotted, and the wager is persisted PLACED. On any failure nothing
// is written.
//
// The market-open and stake-limit checks live here, inside the engine,
// not only at the request boundary.
func (s *Service) PlaceWager(ctx context.Context, userID, outcomeID string, stake decimal.Decimal) (*model.Wager, error) {
	if stake.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidStake
	}

	var wager *model.Wager
	err := s.store.Atomic(ctx, func(tx store.Store) error {
		outcome, err := tx.GetOutcome(ctx, outcomeID)
		if err != nil {
			return err
		}
		market, err := tx.GetMarket(ctx, outcome.MarketID)
		if err != nil {
			return err
		}

		if market.Status != model.MarketOpen {
			return fmt.Errorf("%w: %s is %s", ErrMarketNotOpen, market.ID, market.Status)
		}
		if stake.GreaterThan(market.MaxBetLimit) {
			return fmt.Errorf("%w: %s > %s", ErrStakeExceedsLimit, stake, market.MaxBetLimit)
		}

		wallet, err := ledger.EnsureWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		if wallet.Balance.LessThan(stake) {
			return ledger.ErrInsufficientFunds
		}

		note := fmt.Sprintf("Stake on %s: %s", market.Title, outcome.Title)
		if _, err := ledger.Debit(ctx, tx, userID, stake, model.EntryWagerStake, note); err != nil {
			return err
		}

		wager = &model.Wager{
			ID:              uuid.New().String(),
			UserID:          userID,
			MarketID:        market.ID,
			OutcomeID:       outcome.ID,
			Stake:           stake,
			OddsAtPlacement: outcome.DecimalOdds,
			PotentialPayout: stake.Mul(outcome.DecimalOdds).Round(MoneyScale),
			Status:          model.WagerPlaced,
			PlacedAt:        time.Now().UTC(),
		}
		return tx.CreateWager(ctx, wager)
	})
	if err != nil {
		metrics.WagerRejections.Inc()
		return nil, err
	}

	slog.Info("wager placed",
		"wager_id", wager.ID,
		"user", userID,
		"market", wager.MarketID,
		"outcome", outcomeID,
		"stake", stake.String(),
		"odds", wager.OddsAtPlacement.String(),
	)
	metrics.WagersTotal.Inc()
	metrics.StakeVolume.Add(stake.InexactFloat64())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      "wager_placed",
			MarketID:  wager.MarketID,
			OutcomeID: outcomeID,
			Stake:     stake.String(),
			Odds:      wager.OddsAtPlacement.String(),
		})
	}
	return wager, nil
}

// SettleMarket closes a market: marks the winning outcome, pays every
// winning wager at its placement odds, marks every wager PAID, and
// credits or debits the house — the assigned house user's wallet, else
// the parent event's treasury — by the net of stakes minus payouts.
//
// Idempotent: settling an already-settled market is a no-op. The whole
// transition runs as one atomic unit; concurrent callers serialize and
// the second observes the no-op path.
//
// A market with neither a house nor an event has no settlement
// counterparty: the net delta is computed but recorded nowhere. Stakes
// were debited from bettor wallets individually, never pooled, so only
// the difference would have gone to a counterparty anyway.
func (s *Service) SettleMarket(ctx context.Context, marketID, winningOutcomeID string) error {
	s.settleMu.Lock()
	defer s.settleMu.Unlock()

	var (
		settled    bool
		houseDelta decimal.Decimal
		title      string
	)
	err := s.store.Atomic(ctx, func(tx store.Store) error {
		market, err := tx.GetMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if market.Status == model.MarketSettled {
			return nil
		}
		title = market.Title

		winner, err := tx.GetOutcome(ctx, winningOutcomeID)
		if err != nil {
			return err
		}
		if winner.MarketID != market.ID {
			return fmt.Errorf("%w: outcome %s, market %s", ErrOutcomeNotInMarket, winner.ID, market.ID)
		}

		outcomes, err := tx.ListOutcomes(ctx, market.ID)
		if err != nil {
			return err
		}
		for _, oc := range outcomes {
			if err := tx.SetOutcomeWinner(ctx, oc.ID, oc.ID == winner.ID); err != nil {
				return err
			}
		}

		totalStaked := decimal.Zero
		totalPayout := decimal.Zero

		wagers, err := tx.ListWagersByMarket(ctx, market.ID)
		if err != nil {
			return err
		}
		for _, w := range wagers {
			totalStaked = totalStaked.Add(w.Stake)
			if w.OutcomeID == winner.ID {
				payout := w.Stake.Mul(w.OddsAtPlacement).Round(MoneyScale)
				totalPayout = totalPayout.Add(payout)
				if _, err := ledger.Credit(ctx, tx, w.UserID, payout, model.EntryWagerPayout, "Win: "+market.Title); err != nil {
					return err
				}
			}
			// PAID means settlement has been applied, win or lose.
			if err := tx.UpdateWagerStatus(ctx, w.ID, model.WagerPaid); err != nil {
				return err
			}
		}

		houseDelta = totalStaked.Sub(totalPayout).Round(MoneyScale)
		switch {
		case market.HouseID != "" && !houseDelta.IsZero():
			if _, err := ledger.Apply(ctx, tx, market.HouseID, houseDelta, model.EntryHouseCommission, "Settlement: "+market.Title); err != nil {
				return err
			}
		case market.EventID != "" && !houseDelta.IsZero():
			if _, err := ledger.ApplyTreasury(ctx, tx, market.EventID, houseDelta, "Settlement: "+market.Title); err != nil {
				return err
			}
		}

		settled = true
		return tx.UpdateMarketStatus(ctx, market.ID, model.MarketSettled)
	})
	if err != nil {
		return err
	}
	if !settled {
		return nil // already settled
	}

	slog.Info("market settled",
		"market", marketID,
		"title", title,
		"winner", winningOutcomeID,
		"house_delta", houseDelta.String(),
	)
	metrics.SettlementsTotal.Inc()

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      "market_settled",
			MarketID:  marketID,
			OutcomeID: winningOutcomeID,
			HouseNet:  houseDelta.String(),
		})
	}
	return nil
}

// BookSummary is the settled-market view: every wager plus the totals the
// house cares about. For unsettled markets the wager list and totals are
// empty — individual positions stay private until settlement.
type BookSummary struct {
	Market      model.Market    `json:"market"`
	Outcomes    []model.Outcome `json:"outcomes"`
	Wagers      []model.Wager   `json:"wagers,omitempty"`
	TotalStaked decimal.Decimal `json:"total_staked"`
	TotalPayout decimal.Decimal `json:"total_payout"`
	HouseNet    decimal.Decimal `json:"house_net"`
}

// MarketBook loads a market with its outcomes and, once settled, the full
// wager book and house net.
func (s *Service) MarketBook(ctx context.Context, marketID string) (*BookSummary, error) {
	market, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	outcomes, err := s.store.ListOutcomes(ctx, marketID)
	if err != nil {
		return nil, err
	}

	summary := &BookSummary{Market: *market, Outcomes: outcomes}
	if market.Status != model.MarketSettled {
		return summary, nil
	}

	winners := make(map[string]bool, len(outcomes))
	for _, oc := range outcomes {
		winners[oc.ID] = oc.Winner != nil && *oc.Winner
	}

	wagers, err := s.store.ListWagersByMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	totalStaked := decimal.Zero
	totalPayout := decimal.Zero
	for _, w := range wagers {
		totalStaked = totalStaked.Add(w.Stake)
		if winners[w.OutcomeID] {
			// Same per-wager rounding as settlement.
			totalPayout = totalPayout.Add(w.Stake.Mul(w.OddsAtPlacement).Round(MoneyScale))
		}
	}

	summary.Wagers = wagers
	summary.TotalStaked = totalStaked
	summary.TotalPayout = totalPayout
	summary.HouseNet = totalStaked.Sub(totalPayout).Round(MoneyScale)
	return summary, nil
}

// BettorNet is a user's net result on a settled market: payouts at
// placement odds minus stakes, rounded to money scale.
func (s *Service) BettorNet(ctx context.Context, marketID, userID string) (decimal.Decimal, error) {
	outcomes, err := s.store.ListOutcomes(ctx, marketID)
	if err != nil {
		return decimal.Zero, err
	}
	winners := make(map[string]bool, len(outcomes))
	for _, oc := range outcomes {
		winners[oc.ID] = oc.Winner != nil && *oc.Winner
	}

	wagers, err := s.store.ListWagersByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	stakes := decimal.Zero
	pays := decimal.Zero
	for _, w := range wagers {
		if w.MarketID != marketID {
			continue
		}
		stakes = stakes.Add(w.Stake)
		if winners[w.OutcomeID] {
			pays = pays.Add(w.Stake.Mul(w.OddsAtPlacement).Round(MoneyScale))
		}
	}
	return pays.Sub(stakes).Round(MoneyScale), nil
}

// CanView answers the access policy for one user and market.
func (s *Service) CanView(ctx context.Context, userID, marketID string) (bool, error) {
	market, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return false, err
	}
	return access.CanView(ctx, s.dir, s.store, userID, market)
}
