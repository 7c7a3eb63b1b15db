package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ownerCodeKey struct {
	owner uuid.UUID
	code  string
}

type memPlanStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*Plan
	byOwner map[ownerCodeKey]uuid.UUID
}

// NewMemPlanStore returns an in-memory PlanStore suitable for tests and
// single-process deployments.
func NewMemPlanStore() PlanStore {
	return &memPlanStore{
		byID:    make(map[uuid.UUID]*Plan),
		byOwner: make(map[ownerCodeKey]uuid.UUID),
	}
}

func (s *memPlanStore) Create(ctx context.Context, plan *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerCodeKey{plan.OwnerID, plan.Code}
	if _, exists := s.byOwner[key]; exists {
		return ErrDuplicatePlan
	}
	cp := *plan
	s.byID[plan.ID] = &cp
	s.byOwner[key] = plan.ID
	return nil
}

func (s *memPlanStore) GetByID(ctx context.Context, id uuid.UUID) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, exists := s.byID[id]
	if !exists {
		return nil, ErrPlanNotFound
	}
	cp := *plan
	return &cp, nil
}

func (s *memPlanStore) GetByOwnerCode(ctx context.Context, ownerID uuid.UUID, code string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byOwner[ownerCodeKey{ownerID, code}]
	if !exists {
		return nil, ErrPlanNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *memPlanStore) AdjustActiveSubscriptions(ctx context.Context, id uuid.UUID, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, exists := s.byID[id]
	if !exists {
		return ErrPlanNotFound
	}
	plan.ActiveSubscriptions = max(plan.ActiveSubscriptions+delta, 0)
	return nil
}

type memSubscriptionStore struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*Subscription
}

// NewMemSubscriptionStore returns an in-memory SubscriptionStore.
func NewMemSubscriptionStore() SubscriptionStore {
	return &memSubscriptionStore{
		byID: make(map[uuid.UUID]*Subscription),
	}
}

func (s *memSubscriptionStore) Create(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneSubscription(sub)
	s.byID[sub.ID] = cp
	return nil
}

func (s *memSubscriptionStore) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.byID[id]
	if !exists {
		return nil, ErrSubscriptionNotFound
	}
	return cloneSubscription(sub), nil
}

func (s *memSubscriptionStore) Save(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.byID[sub.ID]
	if !exists {
		return ErrSubscriptionNotFound
	}
	if stored.Version != sub.Version {
		return ErrStaleSubscription
	}
	cp := cloneSubscription(sub)
	cp.Version = sub.Version + 1
	s.byID[sub.ID] = cp
	return nil
}

func (s *memSubscriptionStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := make([]*Subscription, 0)
	for _, sub := range s.byID {
		if len(due) >= limit {
			break
		}
		if sub.IsDue(now) {
			due = append(due, cloneSubscription(sub))
		}
	}
	return due, nil
}

type memTxManager struct {
	plans PlanStore
	subs  SubscriptionStore
}

// NewMemTxManager returns a pass-through TxManager over the given stores.
// In-memory mutations are individually atomic and the service's per-record
// locks serialize single-process writers, so there is nothing to stage.
func NewMemTxManager(plans PlanStore, subs SubscriptionStore) TxManager {
	return &memTxManager{plans: plans, subs: subs}
}

func (m *memTxManager) InTx(ctx context.Context, fn func(plans PlanStore, subs SubscriptionStore) error) error {
	return fn(m.plans, m.subs)
}

// cloneSubscription deep-copies a record so callers can never mutate stored
// state outside of Save.
func cloneSubscription(sub *Subscription) *Subscription {
	cp := *sub
	if sub.CancelledAt != nil {
		t := *sub.CancelledAt
		cp.CancelledAt = &t
	}
	if sub.ClosedAt != nil {
		t := *sub.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
