package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/ledger"
)

// Ledger implements domain.CollateralLedger using PostgreSQL. Balances live
// in a single accounts table keyed by account name; user accounts are
// addressed by address, market vaults as vault:<market>, fee vaults as
// fees:<market>. Balance checks ride on a conditional UPDATE so concurrent
// debits cannot overdraw.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a new Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

var _ domain.CollateralLedger = (*Ledger)(nil)

func vaultAccount(marketID string) string { return "vault:" + marketID }
func feeAccount(marketID string) string   { return "fees:" + marketID }

// Deposit adds external collateral to the user's balance.
func (l *Ledger) Deposit(ctx context.Context, user string, amount uint64) error {
	return l.credit(ctx, user, amount)
}

// Balance returns the account's current balance, zero for unknown accounts.
func (l *Ledger) Balance(ctx context.Context, account string) (uint64, error) {
	var balance int64
	err := db(ctx, l.pool).QueryRow(ctx,
		`SELECT COALESCE((SELECT balance FROM accounts WHERE account = $1), 0)`,
		account,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("postgres: balance of %s: %w", account, err)
	}
	return uint64(balance), nil
}

// DebitUser moves amount from the user's balance into the market vault.
func (l *Ledger) DebitUser(ctx context.Context, marketID, user string, amount uint64) error {
	return l.transfer(ctx, user, vaultAccount(marketID), amount)
}

// CreditUser moves amount from the market vault to the user's balance.
func (l *Ledger) CreditUser(ctx context.Context, marketID, user string, amount uint64) error {
	return l.transfer(ctx, vaultAccount(marketID), user, amount)
}

// CollectFee moves amount from the market vault to the fee vault.
func (l *Ledger) CollectFee(ctx context.Context, marketID string, amount uint64) error {
	return l.transfer(ctx, vaultAccount(marketID), feeAccount(marketID), amount)
}

func (l *Ledger) transfer(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}

	tag, err := db(ctx, l.pool).Exec(ctx,
		`UPDATE accounts SET balance = balance - $2 WHERE account = $1 AND balance >= $2`,
		from, int64(amount))
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		balance, berr := l.Balance(ctx, from)
		if berr != nil {
			return berr
		}
		return &ledger.InsufficientFundsError{Account: from, Balance: balance, Amount: amount}
	}

	return l.credit(ctx, to, amount)
}

func (l *Ledger) credit(ctx context.Context, account string, amount uint64) error {
	_, err := db(ctx, l.pool).Exec(ctx,
		`INSERT INTO accounts (account, balance) VALUES ($1, $2)
		 ON CONFLICT (account) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`,
		account, int64(amount))
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", account, err)
	}
	return nil
}
