// Package num provides checked uint64 arithmetic for pool and share math.
// Additions and subtractions fail instead of wrapping; multiplications that
// can exceed 64 bits go through a 256-bit intermediate and are truncated
// back only after the division.
package num

import "github.com/holiman/uint256"

// Add returns a+b, reporting false on overflow.
func Add(a, b uint64) (uint64, bool) {
	s := a + b
	if s < a {
		return 0, false
	}
	return s, true
}

// Sub returns a-b, reporting false on underflow.
func Sub(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}

// Mul returns a*b, reporting false on overflow.
func Mul(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/a != b {
		return 0, false
	}
	return p, true
}

// MulDiv returns floor(a*b/den) with a widened intermediate, so a*b may
// exceed 64 bits as long as the quotient fits. It reports false when den is
// zero or the quotient overflows uint64.
func MulDiv(a, b, den uint64) (uint64, bool) {
	if den == 0 {
		return 0, false
	}
	var x, y uint256.Int
	x.SetUint64(a)
	y.SetUint64(b)
	x.Mul(&x, &y)
	y.SetUint64(den)
	x.Div(&x, &y)
	if !x.IsUint64() {
		return 0, false
	}
	return x.Uint64(), true
}

// Min returns the smaller of a and b.
func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
