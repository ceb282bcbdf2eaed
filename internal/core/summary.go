package core

// Sum adds up the signed amounts of txs. An empty slice sums to zero.
func Sum(txs []Transaction) Money {
	var total int64
	for _, t := range txs {
		total += t.Amount.Cents
	}
	return Money{Cents: total}
}
