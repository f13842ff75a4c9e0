package sim

import "math"

// Account is one agent's state within a window. Position is signed,
// positive long. Cash moves only by realized PnL, fees, and funding.
type Account struct {
	Cash     float64 `json:"cash"`
	Position float64 `json:"position"`
	AvgEntry float64 `json:"avg_entry"`
}

// Equity marks the account to a price.
func (a Account) Equity(mark float64) float64 { return a.Cash + a.Position*mark }

// Notional is the absolute position value at a price.
func (a Account) Notional(mark float64) float64 { return math.Abs(a.Position) * mark }

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// ApplyTrade fills a signed delta at a price, charging the given fee, and
// returns the updated account and the realized PnL. Same-direction fills
// re-weight the average entry; opposing fills realize PnL on the closed
// quantity; a flip resets the average to the fill price.
func ApplyTrade(a Account, delta, price, fee float64) (Account, float64) {
	if delta == 0 {
		return a, 0
	}
	var realized float64
	sameDir := a.Position == 0 || sign(a.Position) == sign(delta)
	if sameDir {
		absPos, absDelta := math.Abs(a.Position), math.Abs(delta)
		a.AvgEntry = (absPos*a.AvgEntry + absDelta*price) / (absPos + absDelta)
		a.Position += delta
	} else {
		absPos, absDelta := math.Abs(a.Position), math.Abs(delta)
		closed := math.Min(absPos, absDelta)
		realized = closed * (price - a.AvgEntry) * sign(a.Position)
		switch {
		case absDelta < absPos:
			a.Position += delta
		case absDelta == absPos:
			a.Position = 0
			a.AvgEntry = 0
		default:
			a.Position += delta
			a.AvgEntry = price
		}
	}
	a.Cash += realized - fee
	return a, realized
}

// NeedsLiquidation reports whether an open position fell below maintenance
// margin at the given mark.
func NeedsLiquidation(a Account, mark float64, maintenanceBps int64) bool {
	if a.Position == 0 {
		return false
	}
	return a.Equity(mark) < a.Notional(mark)*float64(maintenanceBps)/10_000
}

// InitialMarginOK gates trades that increase exposure.
func InitialMarginOK(a Account, mark float64, initialBps int64) bool {
	n := a.Notional(mark)
	return n == 0 || a.Equity(mark) >= n*float64(initialBps)/10_000
}

// LeverageOK enforces the arena's maximum notional-to-equity ratio.
func LeverageOK(a Account, mark float64, maxLeverageBps int64) bool {
	n := a.Notional(mark)
	if n == 0 {
		return true
	}
	eq := a.Equity(mark)
	return eq > 0 && n <= eq*float64(maxLeverageBps)/10_000
}

// LiquidationFill records a forced close.
type LiquidationFill struct {
	Qty   float64
	Price float64
	Fee   float64
}

// LiquidateAtPrice force-closes the whole position at a price and charges
// the liquidation fee on the closed notional.
func LiquidateAtPrice(a Account, price float64, liquidationFeeBps int64) (Account, LiquidationFill) {
	if a.Position == 0 {
		return a, LiquidationFill{Price: price}
	}
	delta := -a.Position
	fee := a.Notional(price) * float64(liquidationFeeBps) / 10_000
	out, _ := ApplyTrade(a, delta, price, fee)
	return out, LiquidationFill{Qty: delta, Price: price, Fee: fee}
}

// ApplyFunding charges funding on the marked position; longs pay when the
// rate is positive.
func ApplyFunding(a Account, mark float64, rateBps int64) Account {
	if rateBps == 0 || a.Position == 0 {
		return a
	}
	a.Cash -= a.Position * mark * float64(rateBps) / 10_000
	return a
}
