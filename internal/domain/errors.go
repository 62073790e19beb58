package domain

import (
	"errors"
	"fmt"
)

// Store-level sentinels. Stores speak in these; services translate them into
// the typed engine errors below where the operation semantics require it.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
)

// Code names one specific engine failure. The set is closed: every operation
// fails with exactly one of these, wrapped in the typed error for its family.
type Code string

const (
	CodeQuestionTooLong        Code = "question_too_long"
	CodeInvalidResolutionTime  Code = "invalid_resolution_time"
	CodeInsufficientLiquidity  Code = "insufficient_liquidity"
	CodeMarketResolved         Code = "market_resolved"
	CodeMarketNotResolved      Code = "market_not_resolved"
	CodeInvalidAmount          Code = "invalid_amount"
	CodeUnauthorized           Code = "unauthorized"
	CodeTooEarlyToResolve      Code = "too_early_to_resolve"
	CodeInvalidPrice           Code = "invalid_price"
	CodeInsufficientShares     Code = "insufficient_shares"
	CodeOrderbookFull          Code = "orderbook_full"
	CodeOrderNotFound          Code = "order_not_found"
	CodeFeesTooHigh            Code = "fees_too_high"
	CodeSlippageExceeded       Code = "slippage_exceeded"
	CodeNoWinningShares        Code = "no_winning_shares"
	CodeInvalidAnswerCount     Code = "invalid_answer_count"
	CodeInvalidAnswerIndex     Code = "invalid_answer_index"
	CodeNotOneWinnerMarket     Code = "not_one_winner_market"
	CodeInvalidIndexSet        Code = "invalid_index_set"
	CodeNoConvertiblePositions Code = "no_convertible_positions"
	CodeAnswerAlreadyResolved  Code = "answer_already_resolved"
	CodeWinnerAlreadyDeclared  Code = "winner_already_declared"
	CodeTradeTooLarge          Code = "trade_too_large"
	CodeMissingSiblings        Code = "missing_siblings"
	CodeOverflow               Code = "overflow"
	CodeUnderflow              Code = "underflow"
)

// ValidationError reports a malformed request. Checked first, before any
// state is read or mutated.
type ValidationError struct {
	Code  Code
	Field string
	Value any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s (%s=%v)", e.Code, e.Field, e.Value)
}

// PreconditionError reports a request that is well-formed but conflicts with
// current state. Checked before any mutation.
type PreconditionError struct {
	Code   Code
	Detail string
}

func (e *PreconditionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("precondition: %s", e.Code)
	}
	return fmt.Sprintf("precondition: %s: %s", e.Code, e.Detail)
}

// ResourceLimitError reports a request that exceeds a hard capacity bound.
type ResourceLimitError struct {
	Code   Code
	Limit  uint64
	Actual uint64
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("limit: %s (limit=%d actual=%d)", e.Code, e.Limit, e.Actual)
}

// ArithmeticError reports a checked uint64 operation that would wrap.
// Always fatal to the whole operation; nothing is committed.
type ArithmeticError struct {
	Code Code // CodeOverflow or CodeUnderflow
	Op   string
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic: %s in %s", e.Code, e.Op)
}

// SlippageError reports a trade whose computed outcome fell short of the
// caller's minimum. Checked only after the full matched+pooled computation.
type SlippageError struct {
	Min uint64
	Got uint64
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("slippage: %s (min=%d got=%d)", CodeSlippageExceeded, e.Min, e.Got)
}

// ErrCode extracts the failure Code from any typed engine error in err's
// chain. It returns "" for plain errors.
func ErrCode(err error) Code {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe.Code
	}
	var le *ResourceLimitError
	if errors.As(err, &le) {
		return le.Code
	}
	var ae *ArithmeticError
	if errors.As(err, &ae) {
		return ae.Code
	}
	var se *SlippageError
	if errors.As(err, &se) {
		return CodeSlippageExceeded
	}
	return ""
}
