// Package token resolves SPL mint display info and formats raw amounts.
package token

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatAmount renders amount in whole tokens, trimming trailing fractional zeros.
func FormatAmount(amount *big.Int, decimals uint8) string {
	return ToDecimal(amount, decimals).String()
}

// ToDecimal converts a raw amount into whole tokens.
func ToDecimal(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// MaskAddress shortens an address to its first and last five characters.
func MaskAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:5] + "..." + addr[len(addr)-5:]
}
