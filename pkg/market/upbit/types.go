package upbit

import (
	"encoding/json"
	"strings"
)

// Ticker is the subset of the exchange ticker frame the engine consumes.
type Ticker struct {
	Code       string  `json:"code"` // exchange form, e.g. "USD-BTC"
	TradePrice float64 `json:"trade_price"`
	ChangeRate float64 `json:"signed_change_rate"`
	HighPrice  float64 `json:"high_price"`
	LowPrice   float64 `json:"low_price"`
	AccVolume  float64 `json:"acc_trade_volume"`
}

// Market returns the BASE/QUOTE form of the ticker's code ("BTC/USD").
func (t Ticker) Market() string {
	return MarketFromCode(t.Code)
}

// CodeFromMarket converts "BTC/USD" into the exchange's "USD-BTC" form.
func CodeFromMarket(market string) string {
	parts := strings.SplitN(market, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return parts[1] + "-" + parts[0]
}

// MarketFromCode converts the exchange's "USD-BTC" form into "BTC/USD".
func MarketFromCode(code string) string {
	parts := strings.SplitN(code, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return parts[1] + "/" + parts[0]
}

// parseTickerMessage decodes only the fields we need.
func parseTickerMessage(msg []byte) (Ticker, error) {
	var t Ticker
	if err := json.Unmarshal(msg, &t); err != nil {
		return Ticker{}, err
	}
	return t, nil
}
