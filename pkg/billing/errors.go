package billing

import "errors"

var (
	ErrInvalidPlanConfig = errors.New("invalid plan configuration")
	ErrDuplicatePlan     = errors.New("plan already exists for this owner and code")
	ErrPlanNotFound      = errors.New("plan not found")

	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrStaleSubscription    = errors.New("subscription record changed concurrently")
	ErrInvalidAuthorization = errors.New("spend authorization is missing or empty")

	ErrUnauthorized  = errors.New("caller does not control this subscription")
	ErrNotDue        = errors.New("subscription is not yet due for a charge")
	ErrNotCancelled  = errors.New("subscription has no pending cancellation")
	ErrAlreadyClosed = errors.New("subscription is already closed")

	ErrFailedToLoadCatalog = errors.New("failed to load plan catalog")
)
