package billing

import (
	"time"

	"github.com/dmitrymomot/billingkit/pkg/billing"
)

type planResponse struct {
	ID                  string    `json:"id"`
	OwnerID             string    `json:"owner_id"`
	Code                string    `json:"code"`
	Price               int64     `json:"price"`
	Term                string    `json:"term"`
	SettlementAccountID string    `json:"settlement_account_id"`
	ActiveSubscriptions int64     `json:"active_subscriptions"`
	CreatedAt           time.Time `json:"created_at"`
}

func planPayload(p *billing.Plan) planResponse {
	return planResponse{
		ID:                  p.ID.String(),
		OwnerID:             p.OwnerID.String(),
		Code:                p.Code,
		Price:               p.Price,
		Term:                p.Term.String(),
		SettlementAccountID: p.SettlementAccountID.String(),
		ActiveSubscriptions: p.ActiveSubscriptions,
		CreatedAt:           p.CreatedAt,
	}
}

type subscriptionResponse struct {
	ID                  string     `json:"id"`
	PlanID              string     `json:"plan_id"`
	SubscriberID        string     `json:"subscriber_id"`
	Status              string     `json:"status"`
	PendingCancellation bool       `json:"pending_cancellation"`
	PeriodStartedAt     time.Time  `json:"period_started_at"`
	NextChargeDueAt     time.Time  `json:"next_charge_due_at"`
	CreatedAt           time.Time  `json:"created_at"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`
}

func subscriptionPayload(s *billing.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                  s.ID.String(),
		PlanID:              s.PlanID.String(),
		SubscriberID:        s.SubscriberID.String(),
		Status:              string(s.Status),
		PendingCancellation: s.PendingCancellation,
		PeriodStartedAt:     s.PeriodStartedAt,
		NextChargeDueAt:     s.NextChargeDueAt,
		CreatedAt:           s.CreatedAt,
		CancelledAt:         s.CancelledAt,
		ClosedAt:            s.ClosedAt,
	}
}

type chargeResponse struct {
	SubscriptionID  string    `json:"subscription_id"`
	Collected       int64     `json:"collected"`
	OwnerShare      int64     `json:"owner_share"`
	PlatformShare   int64     `json:"platform_share"`
	Partial         bool      `json:"partial"`
	Status          string    `json:"status"`
	NextChargeDueAt time.Time `json:"next_charge_due_at"`
}

func chargePayload(r *billing.ChargeResult) chargeResponse {
	return chargeResponse{
		SubscriptionID:  r.SubscriptionID.String(),
		Collected:       r.Collected,
		OwnerShare:      r.OwnerShare,
		PlatformShare:   r.PlatformShare,
		Partial:         r.Partial,
		Status:          string(r.Status),
		NextChargeDueAt: r.NextChargeDueAt,
	}
}

type closureResponse struct {
	SubscriptionID string    `json:"subscription_id"`
	Earned         int64     `json:"earned"`
	Collected      int64     `json:"collected"`
	OwnerShare     int64     `json:"owner_share"`
	PlatformShare  int64     `json:"platform_share"`
	ClosedAt       time.Time `json:"closed_at"`
}

func closurePayload(r *billing.ClosureResult) closureResponse {
	return closureResponse{
		SubscriptionID: r.SubscriptionID.String(),
		Earned:         r.Earned,
		Collected:      r.Collected,
		OwnerShare:     r.OwnerShare,
		PlatformShare:  r.PlatformShare,
		ClosedAt:       r.ClosedAt,
	}
}
