package collab

import (
	"context"
	"sync"
)

// Ledger is the opaque stake/token economy. Spend must be consulted
// before room creation, a non-zero buy-in or a game start; a false
// return blocks that action with a user-visible reason. Add credits
// winnings back.
type Ledger interface {
	// Spend debits amount. Returns false (no error) when the balance
	// does not cover it.
	Spend(ctx context.Context, amount float64) (bool, error)
	Add(ctx context.Context, amount float64) error
	Balance(ctx context.Context) (float64, error)
}

// MemoryLedger is an in-process chip balance. Guests get the new-user
// bonus; nothing survives the process.
type MemoryLedger struct {
	mu      sync.Mutex
	balance float64
}

func NewMemoryLedger(initial float64) *MemoryLedger {
	return &MemoryLedger{balance: initial}
}

func (l *MemoryLedger) Spend(_ context.Context, amount float64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount < 0 || l.balance < amount {
		return false, nil
	}
	l.balance -= amount
	return true, nil
}

func (l *MemoryLedger) Add(_ context.Context, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance += amount
	return nil
}

func (l *MemoryLedger) Balance(context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, nil
}
