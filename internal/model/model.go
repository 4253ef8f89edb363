// Package model defines the core domain types shared across the wager engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market statuses. SUSPENDED is a valid status with no transition into it
// yet; external code may still branch on it.
const (
	MarketOpen      = "OPEN"
	MarketSuspended = "SUSPENDED"
	MarketSettled   = "SETTLED"
)

// Wager statuses. CANCELLED has no transition path yet (no cancellation
// exists); it is kept so callers can branch on it.
const (
	WagerPlaced    = "PLACED"
	WagerCancelled = "CANCELLED"
	WagerPaid      = "PAID"
)

// Ledger entry kinds. Entry amounts are signed: stakes and debits are
// negative, payouts and deposits positive. HOUSE_COMMISSION carries the
// sign of the house's net position.
const (
	EntryDeposit         = "DEPOSIT"
	EntryWithdraw        = "WITHDRAW"
	EntryWagerStake      = "WAGER_STAKE"
	EntryWagerPayout     = "WAGER_PAYOUT"
	EntryHouseCommission = "HOUSE_COMMISSION"
	EntryTreasuryCredit  = "TREASURY_CREDIT"
	EntryTreasuryDebit   = "TREASURY_DEBIT"
)

// Ledger owner kinds: a user's wallet or an event's treasury.
const (
	OwnerUser  = "USER"
	OwnerEvent = "EVENT"
)

// Event membership roles.
const (
	RoleMember = "MEMBER"
	RoleAdmin  = "ADMIN"
)

// Wallet is a per-user balance cell. One wallet per user, created lazily.
// The engine never knowingly drives a wallet balance negative.
type Wallet struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// EventTreasury is a per-event pooled balance used when no single user is
// the house. It may legitimately go negative (house deficit).
type EventTreasury struct {
	EventID   string          `json:"event_id" db:"event_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// LedgerEntry is an immutable record of a balance change. Once created,
// these are never modified or deleted. The sum of entries for an owner
// always equals that owner's current balance.
type LedgerEntry struct {
	ID        string          `json:"id" db:"id"`
	OwnerKind string          `json:"owner_kind" db:"owner_kind"` // "USER" or "EVENT"
	OwnerID   string          `json:"owner_id" db:"owner_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"` // signed
	Kind      string          `json:"kind" db:"kind"`
	Note      string          `json:"note" db:"note"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Event groups markets and members; its treasury absorbs settlement deltas
// for markets without an assigned house user.
type Event struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	CreatorID    string    `json:"creator_id" db:"creator_id"`
	DefaultHouse string    `json:"default_house,omitempty" db:"default_house"` // user ID; empty = none
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// EventMembership records that a user belongs to an event. The engine only
// reads these facts; the surrounding application manages them.
type EventMembership struct {
	EventID   string    `json:"event_id" db:"event_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Role      string    `json:"role" db:"role"`
	AddedBy   string    `json:"added_by,omitempty" db:"added_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MarketShare is an explicit per-market view grant for one user.
type MarketShare struct {
	MarketID  string    `json:"market_id" db:"market_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	AddedBy   string    `json:"added_by,omitempty" db:"added_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Market is a set of outcomes bettors wager against, settled exactly once.
type Market struct {
	ID          string          `json:"id" db:"id"`
	Title       string          `json:"title" db:"title"`
	CreatorID   string          `json:"creator_id" db:"creator_id"`
	HouseID     string          `json:"house_id,omitempty" db:"house_id"` // user ID; empty = no house
	EventID     string          `json:"event_id,omitempty" db:"event_id"` // empty = standalone
	Margin      decimal.Decimal `json:"margin" db:"margin"`               // e.g. 0.05 = 5% overround
	Status      string          `json:"status" db:"status"`
	MaxBetLimit decimal.Decimal `json:"max_bet_limit" db:"max_bet_limit"`
	ClosesAt    *time.Time      `json:"closes_at,omitempty" db:"closes_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// IsClosed reports whether the market's close time has passed.
func (m *Market) IsClosed(now time.Time) bool {
	return m.ClosesAt != nil && !now.Before(*m.ClosesAt)
}

// Outcome belongs to exactly one market. Probability and odds derive from
// the creator's slider weight at market creation. Winner is nil until
// settlement, then exactly one outcome per market holds true.
type Outcome struct {
	ID           string          `json:"id" db:"id"`
	MarketID     string          `json:"market_id" db:"market_id"`
	Title        string          `json:"title" db:"title"`
	SliderWeight int             `json:"slider_weight" db:"slider_weight"` // 0–100, creator-chosen
	Probability  decimal.Decimal `json:"probability" db:"probability"`     // normalized × (1+margin)
	DecimalOdds  decimal.Decimal `json:"decimal_odds" db:"decimal_odds"`
	Winner       *bool           `json:"winner" db:"winner"`
}

// Wager is a stake placed against one outcome at the odds quoted at
// placement time. PAID means settlement has been applied, win or lose.
type Wager struct {
	ID              string          `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	MarketID        string          `json:"market_id" db:"market_id"`
	OutcomeID       string          `json:"outcome_id" db:"outcome_id"`
	Stake           decimal.Decimal `json:"stake" db:"stake"`
	OddsAtPlacement decimal.Decimal `json:"odds_at_placement" db:"odds_at_placement"`
	PotentialPayout decimal.Decimal `json:"potential_payout" db:"potential_payout"` // stake × odds, 2dp
	Status          string          `json:"status" db:"status"`
	PlacedAt        time.Time       `json:"placed_at" db:"placed_at"`
}
