// Package ledger provides the in-process collateral ledger. It tracks user
// balances, one vault per market, and one fee vault per market, moving exact
// amounts between them. The postgres store carries the durable counterpart.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/farsight-markets/farsight/internal/domain"
)

// InsufficientFundsError reports a debit against a balance that cannot
// cover it.
type InsufficientFundsError struct {
	Account string
	Balance uint64
	Amount  uint64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("ledger: insufficient funds in %s (balance=%d amount=%d)", e.Account, e.Balance, e.Amount)
}

// Memory is a map-backed domain.CollateralLedger.
type Memory struct {
	mu       sync.Mutex
	users    map[string]uint64 // by user address
	vaults   map[string]uint64 // by market ID
	feeVault map[string]uint64 // by market ID
}

// NewMemory returns an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]uint64),
		vaults:   make(map[string]uint64),
		feeVault: make(map[string]uint64),
	}
}

// Fund credits a market vault from outside the system, how an operator
// collateralizes a market before payouts.
func (l *Memory) Fund(marketID string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vaults[marketID] += amount
}

// Deposit credits a user balance from outside the system.
func (l *Memory) Deposit(user string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users[user] += amount
}

// UserBalance returns the user's free balance.
func (l *Memory) UserBalance(user string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users[user]
}

// VaultBalance returns the market vault's balance.
func (l *Memory) VaultBalance(marketID string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.vaults[marketID]
}

// FeeVaultBalance returns the market fee vault's balance.
func (l *Memory) FeeVaultBalance(marketID string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feeVault[marketID]
}

func (l *Memory) DebitUser(_ context.Context, marketID, user string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.users[user]
	if bal < amount {
		return &InsufficientFundsError{Account: "user:" + user, Balance: bal, Amount: amount}
	}
	l.users[user] = bal - amount
	l.vaults[marketID] += amount
	return nil
}

func (l *Memory) CreditUser(_ context.Context, marketID, user string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.vaults[marketID]
	if bal < amount {
		return &InsufficientFundsError{Account: "vault:" + marketID, Balance: bal, Amount: amount}
	}
	l.vaults[marketID] = bal - amount
	l.users[user] += amount
	return nil
}

func (l *Memory) CollectFee(_ context.Context, marketID string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.vaults[marketID]
	if bal < amount {
		return &InsufficientFundsError{Account: "vault:" + marketID, Balance: bal, Amount: amount}
	}
	l.vaults[marketID] = bal - amount
	l.feeVault[marketID] += amount
	return nil
}

var _ domain.CollateralLedger = (*Memory)(nil)
