// Package leverage opens, averages, closes and force-liquidates margin
// positions, recomputing unrealized P&L and margin ratio on every tick.
package leverage

import (
	"paperdesk/internal/domain"
)

// Maintenance margin and margin call policy constants.
const (
	MaintenanceMarginRate = 0.005
	MarginCallThreshold   = 0.02
)

// direction returns +1 for longs and -1 for shorts.
func direction(side domain.PositionSide) float64 {
	if side == domain.PositionLong {
		return 1
	}
	return -1
}

// liquidationPrice computes the forced-liquidation trigger from the entry
// price. Longs liquidate at or below it, shorts at or above it.
func liquidationPrice(p *domain.Position) float64 {
	lev := float64(p.Leverage)
	if p.Side == domain.PositionLong {
		return p.EntryPrice * (1 - 1/lev + MaintenanceMarginRate + p.TradingFeeRate)
	}
	return p.EntryPrice * (1 + 1/lev + MaintenanceMarginRate + p.TradingFeeRate)
}

// mark refreshes all tick-derived fields against price. The closing fee is
// not charged until the position actually closes.
func mark(p *domain.Position, price float64) {
	p.CurrentPrice = price
	rawPnL := (price - p.EntryPrice) / p.EntryPrice * p.Size * direction(p.Side)
	p.PnL = rawPnL - p.OpeningFee
	if p.Margin > 0 {
		p.PnLPercent = p.PnL / p.Margin * 100
	}
	if p.Size > 0 {
		p.MarginRatio = (p.Margin + p.PnL) / p.Size * float64(p.Leverage)
	}
	p.LiquidationPrice = liquidationPrice(p)
}

// rawPnLAt returns the unrealized P&L before fees at price, scaled by the
// closed ratio.
func rawPnLAt(p *domain.Position, price, ratio float64) float64 {
	return (price - p.EntryPrice) / p.EntryPrice * p.Size * direction(p.Side) * ratio
}

// shouldLiquidate reports whether price has crossed the liquidation
// trigger for the position's side.
func shouldLiquidate(p *domain.Position, price float64) bool {
	if p.Side == domain.PositionLong {
		return price <= p.LiquidationPrice
	}
	return price >= p.LiquidationPrice
}
