package conv

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned when a value does not fit the target type.
var ErrOverflow = errors.New("integer overflow")

// IntToUint converts a non-negative int to uint.
func IntToUint(v int) (uint, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %d cannot be converted to uint (negative)", ErrOverflow, v)
	}
	return uint(v), nil
}

// MulInt64 returns a*b for non-negative a and b, failing instead of wrapping.
func MulInt64(a, b int) (int64, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("%w: %d * %d (negative operand)", ErrOverflow, a, b)
	}
	if a == 0 || b == 0 {
		return 0, nil
	}
	if int64(a) > math.MaxInt64/int64(b) {
		return 0, fmt.Errorf("%w: %d * %d exceeds int64", ErrOverflow, a, b)
	}
	return int64(a) * int64(b), nil
}
