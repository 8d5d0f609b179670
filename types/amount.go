package types

import (
	"math"

	"github.com/holiman/uint256"
)

// MaxAmount is the largest token or minor-unit amount the ledger accepts.
// It is the largest value every supported backend can persist in a signed
// 64-bit column.
const MaxAmount uint64 = math.MaxInt64

var maxAmount = uint256.NewInt(MaxAmount)

// MulAmount returns a*b, or ok=false if the product exceeds MaxAmount.
func MulAmount(a, b uint64) (uint64, bool) {
	z, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	return bounded(z, overflow)
}

// AddAmount returns a+b, or ok=false if the sum exceeds MaxAmount.
func AddAmount(a, b uint64) (uint64, bool) {
	z, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	return bounded(z, overflow)
}

// SubAmount returns a-b, or ok=false if b > a.
func SubAmount(a, b uint64) (uint64, bool) {
	z, underflow := new(uint256.Int).SubOverflow(uint256.NewInt(a), uint256.NewInt(b))
	return bounded(z, underflow)
}

func bounded(z *uint256.Int, overflow bool) (uint64, bool) {
	if overflow || z.Gt(maxAmount) {
		return 0, false
	}
	return z.Uint64(), true
}
