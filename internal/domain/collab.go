package domain

import "context"

// CollateralLedger moves collateral between a market's vault, its fee vault,
// and user balances. The engine always passes exact pre-computed amounts and
// an explicit direction; the ledger never decides amounts itself.
type CollateralLedger interface {
	// DebitUser moves amount from the user's balance into the market vault.
	DebitUser(ctx context.Context, marketID, user string, amount uint64) error
	// CreditUser moves amount from the market vault to the user's balance.
	CreditUser(ctx context.Context, marketID, user string, amount uint64) error
	// CollectFee moves amount from the market vault to the fee vault.
	CollectFee(ctx context.Context, marketID string, amount uint64) error
}

// CallerClaim carries the proof of identity collected by the host for the
// caller of a privileged operation.
type CallerClaim struct {
	Actor     string // claimed hex address
	Digest    []byte // operation digest the caller signed
	Signature []byte // 65-byte secp256k1 signature, empty for static auth
}

// Authorizer establishes the boolean "caller is authorized" fact against a
// record's stored owner before any privileged operation runs. A failure is
// reported as a PreconditionError with CodeUnauthorized.
type Authorizer interface {
	Authorize(ctx context.Context, claim CallerClaim, owner string) error
}

// Clock supplies current time as an opaque, monotonically non-decreasing
// integer for resolution-time comparisons.
type Clock interface {
	Now() int64
}
