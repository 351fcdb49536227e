package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint
}

// IsPow2 returns true if number is a positive power of two
func IsPow2[T Number](number T) bool {
	return number > 0 && number&(number-1) == 0
}

func CheckPow2[T Number](number T, name string) error {
	if !IsPow2(number) {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// CheckPositive returns ErrInvalidSize if number is zero or negative
func CheckPositive[T Number](number T, name string) error {
	if number <= 0 {
		return cerrors.Wrapf(ErrInvalidSize, "%s is %d", name, number)
	}
	return nil
}

// CeilDiv divides value by divisor, rounding up. value must not be negative and divisor must be positive.
// It does not overflow for any value up to math.MaxInt.
func CeilDiv(value, divisor int) int {
	quotient := value / divisor
	if value%divisor != 0 {
		quotient++
	}
	return quotient
}
