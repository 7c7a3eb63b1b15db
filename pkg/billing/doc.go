// Package billing implements a recurring-billing engine over a ledger of
// accounts with bounded spend delegations.
//
// A plan owner registers a Plan (price per term, settlement destination).
// A subscriber enrolls by creating a Subscription, granting the engine a
// capped, revocable authorization over their funds. From then on anyone may
// call ChargeSubscription (the permissionless keeper pattern) and the
// engine decides from stored state and the clock whether a charge is due,
// how much can be collected, and how the proceeds split between the owner
// and the platform fee.
//
// # Lifecycle
//
// A subscription is Active, PastDue, or Closed, with an orthogonal
// pending-cancellation flag:
//
//   - Active: the authorization covers at least one more full period.
//   - PastDue: a risk flag. Set when a charge collects less than the full
//     price, or when a full charge leaves less than one more period's worth
//     of authorization. A later full charge with sufficient remaining
//     authorization clears it.
//   - Pending cancellation: recorded intent to stop. Billing continues
//     unchanged until the subscriber closes; the flag can be cleared again.
//   - Closed: terminal. Set by CloseSubscription, which pays the owner the
//     time-proportional value of the period in progress, revokes the
//     remaining authorization, and releases escrow.
//
// # Money movement
//
// Every collection passes through the subscription's escrow account inside a
// single atomic ledger unit: debit from the subscriber, then distribute the
// owner share (floor of the post-fee amount) and the platform share (the
// remainder). Escrow is a pass-through buffer and holds zero between
// operations, and ownerShare+platformShare always equals the amount moved.
//
// # Usage
//
//	l := ledger.New()
//	svc := billing.NewService(
//		billing.NewMemPlanStore(),
//		billing.NewMemSubscriptionStore(),
//		l,
//		platformAccount,
//	)
//
//	plan, err := svc.CreatePlan(ctx, owner, "pro-weekly", 1000, billing.TermOneWeek, settlement)
//	sub, err := svc.CreateSubscription(ctx, subscriber, plan.ID, 10_000)
//
//	// later, from any caller:
//	res, err := svc.ChargeSubscription(ctx, sub.ID)
//	if errors.Is(err, billing.ErrNotDue) {
//		// retry after the period elapses
//	}
//
// Operations on a single subscription serialize on a per-record lock; a
// concurrent duplicate attempt re-evaluates against the committed record and
// fails the ordinary ErrNotDue / ErrAlreadyClosed checks.
package billing
