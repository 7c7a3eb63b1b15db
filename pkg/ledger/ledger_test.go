package ledger_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/ledger"
)

func TestLedger_MintAndTransfer(t *testing.T) {
	t.Parallel()

	t.Run("mint credits the account", func(t *testing.T) {
		t.Parallel()
		l := ledger.New()
		acc := uuid.New()

		require.NoError(t, l.Mint(acc, 500))
		assert.Equal(t, int64(500), l.Balance(acc))
	})

	t.Run("mint rejects non-positive amounts", func(t *testing.T) {
		t.Parallel()
		l := ledger.New()

		assert.ErrorIs(t, l.Mint(uuid.New(), 0), ledger.ErrInvalidAmount)
		assert.ErrorIs(t, l.Mint(uuid.New(), -5), ledger.ErrInvalidAmount)
	})

	t.Run("transfer moves funds between accounts", func(t *testing.T) {
		t.Parallel()
		l := ledger.New()
		from, to := uuid.New(), uuid.New()
		require.NoError(t, l.Mint(from, 100))

		require.NoError(t, l.Transfer(from, to, 40))
		assert.Equal(t, int64(60), l.Balance(from))
		assert.Equal(t, int64(40), l.Balance(to))
	})

	t.Run("transfer fails without sufficient funds", func(t *testing.T) {
		t.Parallel()
		l := ledger.New()
		from, to := uuid.New(), uuid.New()
		require.NoError(t, l.Mint(from, 10))

		assert.ErrorIs(t, l.Transfer(from, to, 11), ledger.ErrInsufficientFunds)
		assert.Equal(t, int64(10), l.Balance(from))
		assert.Equal(t, int64(0), l.Balance(to))
	})
}

func TestLedger_Delegation(t *testing.T) {
	t.Parallel()

	t.Run("transfer from debits balance and allowance together", func(t *testing.T) {
		t.Parallel()
		l := ledger.New()
		owner, delegate, dest := uuid.New(), uuid.New(), uuid.New()
		require.NoError(t, l.Mint(owner, 1000))
		require.NoError(t, l.Approve(owner, delegate, 300))

		require.NoError(t, l.TransferFrom(delegate, owner, dest, 200))
		assert.Equal(t, int64(800), l.Balance(owner))
		assert.Equal(t, int64(200), l.Balance(dest))
		assert.Equal(t, int64(100), l.Allowance(owner, delegate))
	})

	t.Run("transfer from never exceeds the allowance", func(t *testing.T) {
		t.Parallel()
		l := ledger.New()
		owner, delegate, dest := uuid.New(), uuid.New(), uuid.New()
		require.NoError(t, l.Mint(owner, 1000))
		require.NoError(t, l.Approve(owner, delegate, 300))

		err := l.TransferFrom(delegate, owner, dest, 301)
		assert.ErrorIs(t, err, ledger.ErrInsufficientAllowance)
		assert.Equal(t, int64(1000), l.Balance(owner))
		assert.Equal(t, int64(300), l.Allowance(owner, delegate))
	})

	t.Run("transfer from fails when the balance cannot cover it", func(t *testing.T) {
		t.Parallel()
		l := ledger.New()
		owner, delegate, dest := uuid.New(), uuid.New(), uuid.New()
		require.NoError(t, l.Mint(owner, 50))
		require.NoError(t, l.Approve(owner, delegate, 300))

		err := l.TransferFrom(delegate, owner, dest, 100)
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assert.Equal(t, int64(50), l.Balance(owner))
		assert.Equal(t, int64(300), l.Allowance(owner, delegate))
	})

	t.Run("revoke clears the outstanding amount", func(t *testing.T) {
		t.Parallel()
		l := ledger.New()
		owner, delegate := uuid.New(), uuid.New()
		require.NoError(t, l.Approve(owner, delegate, 300))

		l.Revoke(owner, delegate)
		assert.Equal(t, int64(0), l.Allowance(owner, delegate))
	})

	t.Run("re-approve replaces the previous cap", func(t *testing.T) {
		t.Parallel()
		l := ledger.New()
		owner, delegate := uuid.New(), uuid.New()
		require.NoError(t, l.Approve(owner, delegate, 300))
		require.NoError(t, l.Approve(owner, delegate, 50))

		assert.Equal(t, int64(50), l.Allowance(owner, delegate))
	})
}

func TestLedger_Atomic(t *testing.T) {
	t.Parallel()

	t.Run("commits all movements on success", func(t *testing.T) {
		t.Parallel()
		l := ledger.New()
		owner, delegate, escrow, dest := uuid.New(), uuid.New(), uuid.New(), uuid.New()
		require.NoError(t, l.Mint(owner, 1000))
		require.NoError(t, l.Approve(owner, delegate, 1000))

		err := l.Atomic(func(tx *ledger.Tx) error {
			if err := tx.TransferFrom(delegate, owner, escrow, 100); err != nil {
				return err
			}
			return tx.Transfer(escrow, dest, 100)
		})
		require.NoError(t, err)
		assert.Equal(t, int64(900), l.Balance(owner))
		assert.Equal(t, int64(0), l.Balance(escrow))
		assert.Equal(t, int64(100), l.Balance(dest))
	})

	t.Run("rolls back every movement on failure", func(t *testing.T) {
		t.Parallel()
		l := ledger.New()
		owner, delegate, escrow, dest := uuid.New(), uuid.New(), uuid.New(), uuid.New()
		require.NoError(t, l.Mint(owner, 1000))
		require.NoError(t, l.Approve(owner, delegate, 1000))

		err := l.Atomic(func(tx *ledger.Tx) error {
			if err := tx.TransferFrom(delegate, owner, escrow, 100); err != nil {
				return err
			}
			// Escrow has only 100; this leg must fail and undo the first.
			return tx.Transfer(escrow, dest, 200)
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assert.Equal(t, int64(1000), l.Balance(owner))
		assert.Equal(t, int64(0), l.Balance(escrow))
		assert.Equal(t, int64(0), l.Balance(dest))
		assert.Equal(t, int64(1000), l.Allowance(owner, delegate))
	})

	t.Run("propagates callback errors unchanged", func(t *testing.T) {
		t.Parallel()
		l := ledger.New()
		sentinel := errors.New("abort")

		err := l.Atomic(func(tx *ledger.Tx) error { return sentinel })
		assert.ErrorIs(t, err, sentinel)
	})
}

func TestLedger_ConcurrentTransfers(t *testing.T) {
	t.Parallel()

	l := ledger.New()
	from, to := uuid.New(), uuid.New()
	require.NoError(t, l.Mint(from, 10_000))

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Transfer(from, to, 100)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), l.Balance(from))
	assert.Equal(t, int64(10_000), l.Balance(to))
}
