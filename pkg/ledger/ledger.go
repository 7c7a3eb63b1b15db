package ledger

import (
	"maps"
	"sync"

	"github.com/google/uuid"
)

type allowanceKey struct {
	owner    uuid.UUID
	delegate uuid.UUID
}

// Ledger is an in-memory token custody layer with bounded spend delegations.
// Accounts exist implicitly: any UUID addresses an account with a zero
// starting balance. All operations are safe for concurrent use.
type Ledger struct {
	mu         sync.Mutex
	balances   map[uuid.UUID]int64
	allowances map[allowanceKey]int64
}

func New() *Ledger {
	return &Ledger{
		balances:   make(map[uuid.UUID]int64),
		allowances: make(map[allowanceKey]int64),
	}
}

// Tx exposes ledger operations inside an Atomic block. Methods on Tx assume
// the ledger lock is already held and must not be used outside the callback.
type Tx struct {
	l *Ledger
}

// Atomic runs fn as a single all-or-nothing unit: if fn returns an error,
// every balance and allowance mutation made through the Tx is rolled back.
func (l *Ledger) Atomic(fn func(tx *Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances := maps.Clone(l.balances)
	allowances := maps.Clone(l.allowances)

	if err := fn(&Tx{l: l}); err != nil {
		l.balances = balances
		l.allowances = allowances
		return err
	}
	return nil
}

// Mint credits amount to account out of thin air. Test and funding helper.
func (l *Ledger) Mint(account uuid.UUID, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mint(account, amount)
}

func (tx *Tx) Mint(account uuid.UUID, amount int64) error {
	return tx.l.mint(account, amount)
}

func (l *Ledger) mint(account uuid.UUID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	l.balances[account] += amount
	return nil
}

// Balance returns the current balance of account.
func (l *Ledger) Balance(account uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

func (tx *Tx) Balance(account uuid.UUID) int64 {
	return tx.l.balances[account]
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to uuid.UUID, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(from, to, amount)
}

func (tx *Tx) Transfer(from, to uuid.UUID, amount int64) error {
	return tx.l.transfer(from, to, amount)
}

func (l *Ledger) transfer(from, to uuid.UUID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if l.balances[from] < amount {
		return ErrInsufficientFunds
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// Approve grants delegate a bounded spend authorization over owner's funds.
// Re-approving replaces the previous outstanding amount.
func (l *Ledger) Approve(owner, delegate uuid.UUID, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{owner, delegate}] = amount
	return nil
}

// Revoke clears any outstanding authorization from owner to delegate.
func (l *Ledger) Revoke(owner, delegate uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.allowances, allowanceKey{owner, delegate})
}

func (tx *Tx) Revoke(owner, delegate uuid.UUID) {
	delete(tx.l.allowances, allowanceKey{owner, delegate})
}

// Allowance returns the outstanding authorized amount from owner to delegate.
func (l *Ledger) Allowance(owner, delegate uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[allowanceKey{owner, delegate}]
}

func (tx *Tx) Allowance(owner, delegate uuid.UUID) int64 {
	return tx.l.allowances[allowanceKey{owner, delegate}]
}

// TransferFrom moves amount from owner's account to dest on the authority of
// delegate's outstanding authorization, reducing it by the same amount.
// Fails without side effects if either the balance or the authorization
// cannot cover the amount.
func (l *Ledger) TransferFrom(delegate, owner, dest uuid.UUID, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferFrom(delegate, owner, dest, amount)
}

func (tx *Tx) TransferFrom(delegate, owner, dest uuid.UUID, amount int64) error {
	return tx.l.transferFrom(delegate, owner, dest, amount)
}

func (l *Ledger) transferFrom(delegate, owner, dest uuid.UUID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	key := allowanceKey{owner, delegate}
	if l.allowances[key] < amount {
		return ErrInsufficientAllowance
	}
	if l.balances[owner] < amount {
		return ErrInsufficientFunds
	}
	l.allowances[key] -= amount
	l.balances[owner] -= amount
	l.balances[dest] += amount
	return nil
}
