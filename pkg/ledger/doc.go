// Package ledger provides an in-memory token custody primitive with account
// balances and bounded, revocable spend delegations.
//
// It models the external custody layer the billing engine operates against:
// a subscriber approves the engine to spend up to a capped amount, and the
// engine debits against that cap with TransferFrom. The Atomic method groups
// several movements into a single all-or-nothing unit so multi-leg
// settlements never leave partially-applied state behind.
//
//	l := ledger.New()
//	_ = l.Mint(subscriber, 1_000)
//	_ = l.Approve(subscriber, engine, 500)
//
//	err := l.Atomic(func(tx *ledger.Tx) error {
//		if err := tx.TransferFrom(engine, subscriber, escrow, 100); err != nil {
//			return err
//		}
//		return tx.Transfer(escrow, settlement, 97)
//	})
//
// Balances are plain int64 amounts in the smallest currency unit; the
// package has no notion of currency or decimals.
package ledger
