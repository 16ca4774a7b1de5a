package model

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// weiPerEther is the exponent between the smallest unit and one whole coin.
	weiPerEther = 18
	// maxWeiDigits is the number of decimal digits in MaxWei.
	maxWeiDigits = 78
	// maxWeiInput bounds the textual form accepted by ParseWei.
	maxWeiInput = 100
)

// MaxWei is the largest representable amount, 2^256 - 1.
var MaxWei = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), 0)

// ErrInvalidWei is returned when an amount is negative, fractional or not
// a number.
var ErrInvalidWei = errors.New("amount must be a non-negative integer number of wei")

// ParseWei parses a decimal string into a wei amount.  Only non-negative
// integers up to MaxWei are accepted; "1e18" style exponents are allowed as
// long as the result is integral.  The result always has exponent 0.
func ParseWei(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidWei)
	}
	if len(s) > maxWeiInput {
		return decimal.Zero, fmt.Errorf("%w: %d characters", ErrInvalidWei, len(s))
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidWei, s)
	}
	if err := CheckWei(d); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(d.BigInt(), 0), nil
}

// CheckWei validates an amount already held as a decimal.  The exponent
// and digit count are checked before anything that would rescale d, so a
// value like 1e300000000 is rejected without being expanded.
func CheckWei(d decimal.Decimal) error {
	exp := int64(d.Exponent())
	if exp > maxWeiDigits || exp < -maxWeiInput {
		return fmt.Errorf("%w: exponent %d out of range", ErrInvalidWei, exp)
	}
	if d.IsZero() {
		return nil
	}
	if d.IsNegative() {
		return fmt.Errorf("%w: negative", ErrInvalidWei)
	}
	if int64(d.NumDigits())+exp > maxWeiDigits {
		return fmt.Errorf("%w: exceeds 2^256-1", ErrInvalidWei)
	}
	if !d.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidWei, d.String())
	}
	if d.GreaterThan(MaxWei) {
		return fmt.Errorf("%w: exceeds 2^256-1", ErrInvalidWei)
	}
	return nil
}

// Ether renders a wei amount as whole coins, e.g. 1500000000000000000 -> "1.5".
func Ether(wei decimal.Decimal) string {
	return wei.Shift(-weiPerEther).String()
}

// WeiFromEther converts a coin amount ("0.5") to wei.
func WeiFromEther(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidWei, s)
	}
	wei := d.Shift(weiPerEther)
	if err := CheckWei(wei); err != nil {
		return decimal.Zero, err
	}
	return wei, nil
}
