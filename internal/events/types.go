package events

import "paperdesk/internal/domain"

// Event enumerates high-level topics inside the trading core.
type Event string

const (
	EventPriceTick      Event = "price_tick"
	EventTradeExecuted  Event = "trade.executed"
	EventOrderPlaced    Event = "order.placed"
	EventOrderCancelled Event = "order.cancelled"
	EventPositionOpened Event = "position.opened"
	EventPositionClosed Event = "position.closed"
	EventLiquidation    Event = "position.liquidated"
	EventMarginCall     Event = "margin_call"
	EventStateChanged   Event = "state.changed"
)

// TradePayload accompanies trade, close and liquidation events.
type TradePayload struct {
	UserID      string             `json:"user_id"`
	Transaction domain.Transaction `json:"transaction"`
}

// OrderPayload accompanies limit order lifecycle events.
type OrderPayload struct {
	UserID string              `json:"user_id"`
	Order  domain.PendingOrder `json:"order"`
}

// MarginCallPayload warns that a position is approaching liquidation.
type MarginCallPayload struct {
	UserID      string  `json:"user_id"`
	PositionID  string  `json:"position_id"`
	Market      string  `json:"market"`
	MarginRatio float64 `json:"margin_ratio"`
	Price       float64 `json:"price"`
}

// StatePayload carries the full persisted shape after any state change.
type StatePayload struct {
	UserID string       `json:"user_id"`
	State  domain.State `json:"state"`
}
