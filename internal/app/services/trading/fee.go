package trading

// FeeBps is the platform fee embedded in every trade, in basis points.
const FeeBps = 50

// CalculateFee returns the platform fee on a trade amount.
func CalculateFee(amount float64) float64 {
	return amount * FeeBps / 10000
}
