// Package ledger provides the balance-cell primitives: lazily created
// wallets and event treasuries, and signed balance changes that always
// pair a balance write with an immutable ledger entry.
//
// Credit, Debit, and Apply must run inside store.Atomic — they perform a
// read-modify-write on the balance cell and an entry append that have to
// land together.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/thehouse/wager-engine/internal/model"
	"github.com/thehouse/wager-engine/internal/store"
)

var (
	// ErrInvalidAmount is returned for non-positive deposit or withdrawal
	// amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")

	// ErrInsufficientFunds is returned when a debit would drive a wallet
	// balance negative.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
)

// EnsureWallet returns the user's wallet, creating it with a zero balance
// on first access. Idempotent: repeat calls return the same wallet.
func EnsureWallet(ctx context.Context, st store.Store, userID string) (*model.Wallet, error) {
	w, err := st.GetWallet(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, store.ErrWalletNotFound) {
		return nil, err
	}

	w = &model.Wallet{
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateWallet(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// EnsureTreasury returns the event's treasury, creating it with a zero
// balance on first access.
func EnsureTreasury(ctx context.Context, st store.Store, eventID string) (*model.EventTreasury, error) {
	tr, err := st.GetTreasury(ctx, eventID)
	if err == nil {
		return tr, nil
	}
	if !errors.Is(err, store.ErrTreasuryNotFound) {
		return nil, err
	}

	tr = &model.EventTreasury{
		EventID:   eventID,
		Balance:   decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateTreasury(ctx, tr); err != nil {
		return nil, err
	}
	return tr, nil
}

// Apply adds the signed delta to the user's wallet and appends a ledger
// entry carrying the same signed amount. Returns the new balance.
// Must run inside store.Atomic.
func Apply(ctx context.Context, st store.Store, userID string, delta decimal.Decimal, kind, note string) (decimal.Decimal, error) {
	w, err := EnsureWallet(ctx, st, userID)
	if err != nil {
		return decimal.Zero, err
	}

	newBalance := w.Balance.Add(delta)
	if err := st.UpdateWalletBalance(ctx, userID, newBalance); err != nil {
		return decimal.Zero, err
	}
	if err := st.InsertLedgerEntry(ctx, &model.LedgerEntry{
		ID:        uuid.New().String(),
		OwnerKind: model.OwnerUser,
		OwnerID:   userID,
		Amount:    delta,
		Kind:      kind,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

// Credit increases the wallet by amount with a positive ledger entry.
func Credit(ctx context.Context, st store.Store, userID string, amount decimal.Decimal, kind, note string) (decimal.Decimal, error) {
	return Apply(ctx, st, userID, amount, kind, note)
}

// Debit decreases the wallet by amount with a negative ledger entry.
// The caller is responsible for any balance check; Debit itself does not
// refuse to drive a balance negative.
func Debit(ctx context.Context, st store.Store, userID string, amount decimal.Decimal, kind, note string) (decimal.Decimal, error) {
	return Apply(ctx, st, userID, amount.Neg(), kind, note)
}

// ApplyTreasury adds the signed delta to the event's treasury, recording
// a TREASURY_CREDIT for positive deltas and TREASURY_DEBIT for negative
// ones. Treasuries may legitimately go negative (house deficit).
// Must run inside store.Atomic.
func ApplyTreasury(ctx context.Context, st store.Store, eventID string, delta decimal.Decimal, note string) (decimal.Decimal, error) {
	tr, err := EnsureTreasury(ctx, st, eventID)
	if err != nil {
		return decimal.Zero, err
	}

	kind := model.EntryTreasuryCredit
	if delta.IsNegative() {
		kind = model.EntryTreasuryDebit
	}

	newBalance := tr.Balance.Add(delta)
	if err := st.UpdateTreasuryBalance(ctx, eventID, newBalance); err != nil {
		return decimal.Zero, err
	}
	if err := st.InsertLedgerEntry(ctx, &model.LedgerEntry{
		ID:        uuid.New().String(),
		OwnerKind: model.OwnerEvent,
		OwnerID:   eventID,
		Amount:    delta,
		Kind:      kind,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

// Deposit adds funds to a user's wallet as one atomic unit.
// Fails with ErrInvalidAmount when amount is zero or negative.
func Deposit(ctx context.Context, st store.Store, userID string, amount decimal.Decimal, note string) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}

	var newBalance decimal.Decimal
	err := st.Atomic(ctx, func(tx store.Store) error {
		b, err := Credit(ctx, tx, userID, amount, model.EntryDeposit, note)
		newBalance = b
		return err
	})
	return newBalance, err
}

// Withdraw removes funds from a user's wallet as one atomic unit.
// Fails with ErrInvalidAmount for non-positive amounts and
// ErrInsufficientFunds when the balance does not cover the withdrawal.
func Withdraw(ctx context.Context, st store.Store, userID string, amount decimal.Decimal, note string) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}

	var newBalance decimal.Decimal
	err := st.Atomic(ctx, func(tx store.Store) error {
		w, err := EnsureWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		if w.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}
		b, err := Debit(ctx, tx, userID, amount, model.EntryWithdraw, note)
		newBalance = b
		return err
	})
	return newBalance, err
}

// Sum totals an owner's ledger entries. The reconciliation invariant is
// that this always equals the owner's current balance.
func Sum(ctx context.Context, st store.Store, ownerKind, ownerID string) (decimal.Decimal, error) {
	entries, err := st.ListLedgerEntries(ctx, ownerKind, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total, nil
}
