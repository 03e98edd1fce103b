package eigen

import "math/big"

// weiOrZero parses a decimal wei string, treating "" as zero. Persisted wei
// values are always valid decimal strings; a parse failure indicates
// corrupted storage and is treated as zero rather than panicking, since the
// reconcile CLI is the tool responsible for catching that.
func weiOrZero(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}

// ApplyBuy recomputes the weighted average entry price after a buy fill:
// averageEntryWei' = (oldAvg*oldQty + fillPrice*fillQty) / (oldQty+fillQty).
// P&L accounting is average-cost throughout, never FIFO.
func (p *Position) ApplyBuy(fillQtyRaw, fillPriceWei string) {
	oldQty := weiOrZero(p.TokenBalance)
	oldAvg := weiOrZero(p.AverageEntryWei)
	fillQty := weiOrZero(fillQtyRaw)
	fillPrice := weiOrZero(fillPriceWei)

	if fillQty.Sign() <= 0 {
		return
	}

	newQty := new(big.Int).Add(oldQty, fillQty)

	oldCost := new(big.Int).Mul(oldAvg, oldQty)
	fillCost := new(big.Int).Mul(fillPrice, fillQty)
	totalCost := new(big.Int).Add(oldCost, fillCost)

	var newAvg *big.Int
	if newQty.Sign() == 0 {
		newAvg = big.NewInt(0)
	} else {
		newAvg = new(big.Int).Div(totalCost, newQty)
	}

	p.TokenBalance = newQty.String()
	p.AverageEntryWei = newAvg.String()
	p.BuyCount++
	p.TradeCount++
}

// ApplySell realizes P&L against the current average cost without
// disturbing it, and reduces the held quantity. Returns the realized P&L
// delta in wei for the trade record.
func (p *Position) ApplySell(fillQtyRaw, fillPriceWei string) string {
	oldQty := weiOrZero(p.TokenBalance)
	avg := weiOrZero(p.AverageEntryWei)
	fillQty := weiOrZero(fillQtyRaw)
	fillPrice := weiOrZero(fillPriceWei)

	if fillQty.Sign() <= 0 {
		return "0"
	}
	if fillQty.Cmp(oldQty) > 0 {
		fillQty = oldQty
	}

	proceeds := new(big.Int).Mul(fillPrice, fillQty)
	cost := new(big.Int).Mul(avg, fillQty)
	delta := new(big.Int).Sub(proceeds, cost)

	realized := new(big.Int).Add(weiOrZero(p.RealizedPnlWei), delta)
	p.RealizedPnlWei = realized.String()
	p.TokenBalance = new(big.Int).Sub(oldQty, fillQty).String()
	p.SellCount++
	p.TradeCount++

	return delta.String()
}

// UnrealizedPnl computes unrealized P&L at a given mark price, without
// mutating Position (it is recomputed on read, never persisted).
func (p *Position) UnrealizedPnl(markPriceWei string) string {
	qty := weiOrZero(p.TokenBalance)
	avg := weiOrZero(p.AverageEntryWei)
	mark := weiOrZero(markPriceWei)

	markValue := new(big.Int).Mul(mark, qty)
	costValue := new(big.Int).Mul(avg, qty)
	return new(big.Int).Sub(markValue, costValue).String()
}

// AddWei returns a + b as decimal strings, used for budget bookkeeping.
func AddWei(a, b string) string {
	return new(big.Int).Add(weiOrZero(a), weiOrZero(b)).String()
}

// SubWei returns a - b as decimal strings.
func SubWei(a, b string) string {
	return new(big.Int).Sub(weiOrZero(a), weiOrZero(b)).String()
}

// CmpWei compares two decimal wei strings numerically.
func CmpWei(a, b string) int {
	return weiOrZero(a).Cmp(weiOrZero(b))
}
