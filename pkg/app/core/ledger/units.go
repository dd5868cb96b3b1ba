package ledger

import "math/big"

var unitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Units converts n whole tokens into base units (n × 10^18). The
// native asset uses the same resolution.
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), unitScale)
}

// Tenths converts n tenths of a token into base units (n × 10^17).
// Handy for fee arithmetic in tests.
func Tenths(n int64) *big.Int {
	return new(big.Int).Div(new(big.Int).Mul(big.NewInt(n), unitScale), big.NewInt(10))
}
