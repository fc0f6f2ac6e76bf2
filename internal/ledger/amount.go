package ledger

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// ParseAmount parses a non-negative base-10 integer of at most 256 bits.
func ParseAmount(s string) (*uint256.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a decimal integer", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("amount %s is negative", s)
	}
	v, overflow := uint256.FromBig(n)
	if overflow {
		return nil, fmt.Errorf("amount %s does not fit in 256 bits", s)
	}
	return v, nil
}

// FormatAmount renders v in base 10.
func FormatAmount(v *uint256.Int) string {
	return v.ToBig().String()
}
