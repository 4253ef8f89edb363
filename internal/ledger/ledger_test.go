package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/thehouse/wager-engine/internal/model"
	"github.com/thehouse/wager-engine/internal/store"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestEnsureWalletIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	w1, err := EnsureWallet(ctx, st, "alice")
	require.NoError(t, err)
	require.True(t, w1.Balance.IsZero())

	_, err = Credit(ctx, st, "alice", d("50"), model.EntryDeposit, "seed")
	require.NoError(t, err)

	w2, err := EnsureWallet(ctx, st, "alice")
	require.NoError(t, err)
	require.True(t, w2.Balance.Equal(d("50")), "ensure must not reset an existing wallet")
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	balance, err := Deposit(ctx, st, "alice", d("100.00"), "top up")
	require.NoError(t, err)
	require.True(t, balance.Equal(d("100.00")))

	entries, err := st.ListLedgerEntries(ctx, model.OwnerUser, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, model.EntryDeposit, entries[0].Kind)
	require.Equal(t, "top up", entries[0].Note)
	require.True(t, entries[0].Amount.Equal(d("100.00")))
}

func TestDepositRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	_, err := Deposit(ctx, st, "alice", decimal.Zero, "")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Deposit(ctx, st, "alice", d("-5"), "")
	require.ErrorIs(t, err, ErrInvalidAmount)

	entries, err := st.ListLedgerEntries(ctx, model.OwnerUser, "alice")
	require.NoError(t, err)
	require.Empty(t, entries, "rejected deposits must not write ledger entries")
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	_, err := Deposit(ctx, st, "alice", d("100"), "")
	require.NoError(t, err)

	balance, err := Withdraw(ctx, st, "alice", d("40"), "cash out")
	require.NoError(t, err)
	require.True(t, balance.Equal(d("60")))

	_, err = Withdraw(ctx, st, "alice", d("100"), "")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = Withdraw(ctx, st, "alice", d("-1"), "")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedgerSumMatchesBalance(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	_, err := Deposit(ctx, st, "alice", d("100"), "")
	require.NoError(t, err)
	_, err = Debit(ctx, st, "alice", d("30"), model.EntryWagerStake, "Stake on Derby: Red")
	require.NoError(t, err)
	_, err = Credit(ctx, st, "alice", d("57.00"), model.EntryWagerPayout, "Win: Derby")
	require.NoError(t, err)

	wallet, err := st.GetWallet(ctx, "alice")
	require.NoError(t, err)

	sum, err := Sum(ctx, st, model.OwnerUser, "alice")
	require.NoError(t, err)
	require.True(t, sum.Equal(wallet.Balance), "ledger sum %s != balance %s", sum, wallet.Balance)
	require.True(t, wallet.Balance.Equal(d("127.00")))
}

func TestApplyTreasuryPicksEntryKindBySign(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	_, err := ApplyTreasury(ctx, st, "ev1", d("25"), "Settlement: Derby")
	require.NoError(t, err)
	balance, err := ApplyTreasury(ctx, st, "ev1", d("-10"), "Settlement: Cup")
	require.NoError(t, err)
	require.True(t, balance.Equal(d("15")))

	entries, err := st.ListLedgerEntries(ctx, model.OwnerEvent, "ev1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first.
	require.Equal(t, model.EntryTreasuryDebit, entries[0].Kind)
	require.Equal(t, model.EntryTreasuryCredit, entries[1].Kind)
}
