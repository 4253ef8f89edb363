// Package store defines the persistence interface for the wager engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/thehouse/wager-engine/internal/model"
)

// Referential errors returned by lookups. Callers match with errors.Is.
var (
	ErrMarketNotFound   = errors.New("store: market not found")
	ErrOutcomeNotFound  = errors.New("store: outcome not found")
	ErrWagerNotFound    = errors.New("store: wager not found")
	ErrWalletNotFound   = errors.New("store: wallet not found")
	ErrTreasuryNotFound = errors.New("store: treasury not found")
	ErrEventNotFound    = errors.New("store: event not found")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
//
// Every mutating engine operation runs inside Atomic so a crash or a
// concurrent reader never observes a balance change without its ledger
// entry, or a half-settled market.
type Store interface {
	// Atomic runs fn as one all-or-nothing unit of work against a
	// transaction-bound Store. Inside Atomic, GetWallet and GetTreasury
	// lock the row they return, so concurrent balance checks against the
	// same owner serialize. Nested calls join the enclosing unit.
	Atomic(ctx context.Context, fn func(tx Store) error) error

	// --- Markets & outcomes ---

	// CreateMarket persists a market together with its outcomes.
	CreateMarket(ctx context.Context, m *model.Market, outcomes []model.Outcome) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets, newest first.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// UpdateMarketStatus moves a market to a new status.
	UpdateMarketStatus(ctx context.Context, id, status string) error

	// GetOutcome retrieves an outcome by its ID.
	GetOutcome(ctx context.Context, id string) (*model.Outcome, error)

	// ListOutcomes returns a market's outcomes in creation order.
	ListOutcomes(ctx context.Context, marketID string) ([]model.Outcome, error)

	// SetOutcomeWinner writes the winner flag for one outcome.
	SetOutcomeWinner(ctx context.Context, id string, winner bool) error

	// --- Wagers ---

	// CreateWager persists a new wager.
	CreateWager(ctx context.Context, w *model.Wager) error

	// ListWagersByMarket returns all wagers on a market, any status.
	ListWagersByMarket(ctx context.Context, marketID string) ([]model.Wager, error)

	// ListWagersByUser returns all wagers placed by a user.
	ListWagersByUser(ctx context.Context, userID string) ([]model.Wager, error)

	// UpdateWagerStatus moves a wager to a new status.
	UpdateWagerStatus(ctx context.Context, id, status string) error

	// --- Balance cells ---

	// GetWallet retrieves a user's wallet. ErrWalletNotFound when absent.
	GetWallet(ctx context.Context, userID string) (*model.Wallet, error)

	// CreateWallet persists a new wallet.
	CreateWallet(ctx context.Context, w *model.Wallet) error

	// UpdateWalletBalance overwrites a wallet's balance.
	UpdateWalletBalance(ctx context.Context, userID string, balance decimal.Decimal) error

	// GetTreasury retrieves an event's treasury. ErrTreasuryNotFound when absent.
	GetTreasury(ctx context.Context, eventID string) (*model.EventTreasury, error)

	// CreateTreasury persists a new event treasury.
	CreateTreasury(ctx context.Context, tr *model.EventTreasury) error

	// UpdateTreasuryBalance overwrites a treasury's balance.
	UpdateTreasuryBalance(ctx context.Context, eventID string, balance decimal.Decimal) error

	// --- Immutable ledger ---

	// InsertLedgerEntry appends an immutable balance-change record.
	InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error

	// ListLedgerEntries returns an owner's entries, newest first.
	ListLedgerEntries(ctx context.Context, ownerKind, ownerID string) ([]model.LedgerEntry, error)

	// --- Social facts ---
	// Written by the surrounding application; the engine only reads them
	// (access policy, house resolution).

	// CreateEvent persists a new event.
	CreateEvent(ctx context.Context, ev *model.Event) error

	// GetEvent retrieves an event by its ID.
	GetEvent(ctx context.Context, id string) (*model.Event, error)

	// AddMembership records that a user belongs to an event.
	AddMembership(ctx context.Context, m *model.EventMembership) error

	// IsMember reports whether a user belongs to an event.
	IsMember(ctx context.Context, eventID, userID string) (bool, error)

	// AddMarketShare grants a user explicit access to a market.
	AddMarketShare(ctx context.Context, s *model.MarketShare) error

	// HasMarketShare reports whether a user holds a share grant on a market.
	HasMarketShare(ctx context.Context, marketID, userID string) (bool, error)
}
