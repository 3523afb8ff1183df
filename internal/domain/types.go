// Package domain holds the shared data model of the trading core:
// transactions, pending orders, leverage positions, ticks, and the
// persisted session state shape.
package domain

import (
	"strings"
	"time"
)

// OrderSide is the direction of a spot order.
type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

// PositionSide is the direction of a leverage position.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// TxKind enumerates journal record kinds.
type TxKind string

const (
	TxBuy         TxKind = "buy"
	TxSell        TxKind = "sell"
	TxCloseLong   TxKind = "close_long"
	TxCloseShort  TxKind = "close_short"
	TxLiquidation TxKind = "liquidation"
)

// Transaction is an immutable journal record. Spot trades carry only the
// trade fields; close and liquidation records additionally carry a snapshot
// of the position economics at the time of the event.
type Transaction struct {
	ID     string    `json:"id"`
	Kind   TxKind    `json:"type"`
	Market string    `json:"market"`
	Amount float64   `json:"amount"`
	Price  float64   `json:"price"`
	Total  float64   `json:"total"`
	Fee    float64   `json:"fee"`
	Time   time.Time `json:"time"`

	// Close is set only for close_long, close_short and liquidation records.
	Close *CloseDetail `json:"close,omitempty"`
}

// CloseDetail snapshots the economics of a position close or liquidation.
// Positions are ephemeral; the journal is the durable record.
type CloseDetail struct {
	Leverage   int     `json:"leverage"`
	PnL        float64 `json:"pnl"`
	RawPnL     float64 `json:"rawPnl"`
	OpeningFee float64 `json:"openingFee"`
	ClosingFee float64 `json:"closingFee"`
	EntryPrice float64 `json:"entryPrice"`
	ExitPrice  float64 `json:"exitPrice"`
	Percentage float64 `json:"percentage"`
}

// IsClose reports whether the record closes position exposure.
func (t Transaction) IsClose() bool {
	return t.Kind == TxCloseLong || t.Kind == TxCloseShort || t.Kind == TxLiquidation
}

// IsSpot reports whether the record is a plain spot trade.
func (t Transaction) IsSpot() bool {
	return t.Kind == TxBuy || t.Kind == TxSell
}

// PendingOrder is an escrowed limit order awaiting its trigger price.
// Funds (buy) or base holdings (sell) are reserved at placement and
// released on cancel or converted into a Transaction on execution.
type PendingOrder struct {
	ID         string    `json:"id"`
	Side       OrderSide `json:"type"`
	Market     string    `json:"market"`
	Crypto     string    `json:"crypto"`
	Amount     float64   `json:"amount"`
	LimitPrice float64   `json:"limitPrice"`
	// TotalCost is the escrowed quote amount for buys (notional plus fee).
	TotalCost float64 `json:"totalCost,omitempty"`
	// TotalRevenue is the quote amount credited when a sell executes
	// (notional net of fee).
	TotalRevenue float64   `json:"totalRevenue,omitempty"`
	FeeRate      float64   `json:"feeRate"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Position is an open leveraged position. Margin and opening fee shrink
// proportionally on partial close; the entry price is volume-weighted
// when the position is averaged.
type Position struct {
	ID             string       `json:"id"`
	Side           PositionSide `json:"type"`
	Market         string       `json:"market"`
	Margin         float64      `json:"margin"`
	Leverage       int          `json:"leverage"`
	Size           float64      `json:"size"`
	EntryPrice     float64      `json:"entryPrice"`
	OpeningFee     float64      `json:"openingFee"`
	TradingFeeRate float64      `json:"tradingFeeRate"`

	// Derived on every tick.
	CurrentPrice     float64 `json:"currentPrice"`
	PnL              float64 `json:"pnl"`
	PnLPercent       float64 `json:"pnlPercent"`
	LiquidationPrice float64 `json:"liquidationPrice"`
	MarginRatio      float64 `json:"marginRatio"`

	// Margin call debounce.
	MarginCallWarned   bool      `json:"marginCallWarned"`
	MarginCallWarnedAt time.Time `json:"marginCallWarnedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Tick is an inbound price update from the feed collaborator. Only Market
// and a finite positive Price are required by the core.
type Tick struct {
	Market     string  `json:"market"`
	Price      float64 `json:"price"`
	ChangeRate float64 `json:"change_rate,omitempty"`
	HighPrice  float64 `json:"high_price,omitempty"`
	LowPrice   float64 `json:"low_price,omitempty"`
	Volume     float64 `json:"volume,omitempty"`
}

// State is the persisted session shape handed to the persistence gateway
// on every state change, and loaded back on session start.
type State struct {
	Balances          map[string]float64 `json:"balances"`
	Transactions      []Transaction      `json:"transactions"`
	PendingOrders     []PendingOrder     `json:"pendingOrders"`
	LeveragePositions []Position         `json:"leveragePositions"`
	Timezone          string             `json:"timezone"`
}

// SplitMarket splits a BASE/QUOTE market symbol into its currencies.
func SplitMarket(market string) (base, quote string, ok bool) {
	parts := strings.SplitN(market, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// BaseCurrency returns the base currency of a market symbol, or "".
func BaseCurrency(market string) string {
	base, _, _ := SplitMarket(market)
	return base
}

// QuoteCurrency returns the quote currency of a market symbol, or "".
func QuoteCurrency(market string) string {
	_, quote, _ := SplitMarket(market)
	return quote
}
