// Package fees maps an order classification to its trading fee rate.
package fees

// Class distinguishes orders that add liquidity (maker) from orders that
// remove it (taker).
type Class int

const (
	// Maker covers limit orders resting in the book.
	Maker Class = iota
	// Taker covers market orders executed immediately.
	Taker
)

// Fee rates as decimals. Maker is always below taker.
const (
	MakerRate = 0.0002 // 2 bps
	TakerRate = 0.0005 // 5 bps
)

// Rate returns the fee rate for an order class.
func Rate(c Class) float64 {
	if c == Maker {
		return MakerRate
	}
	return TakerRate
}

// Amount returns the fee charged on a notional value.
func Amount(notional float64, c Class) float64 {
	return notional * Rate(c)
}
