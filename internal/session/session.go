// Package session composes the ledger, journal, spot engine and leverage
// manager into a per-user trading session, and fans ticks and commands
// into them. Sessions are explicit objects owned by the caller; nothing
// in the engine is process-global.
package session

import (
	"log"
	"sync"

	"paperdesk/internal/domain"
	"paperdesk/internal/events"
	"paperdesk/internal/journal"
	"paperdesk/internal/ledger"
	"paperdesk/internal/leverage"
	"paperdesk/internal/market"
	"paperdesk/internal/spot"
	"paperdesk/pkg/num"
)

// Config carries simulation policy for one session.
type Config struct {
	// SeedCurrency and SeedBalance fund a brand new session.
	SeedCurrency string
	SeedBalance  float64

	// ScanActiveMarketOnly restricts the pending order monitor to the
	// session's active market, reproducing the behavior of simulators
	// that only evaluate the market currently on screen. Off by default:
	// every order whose market matches the tick is checked.
	ScanActiveMarketOnly bool

	// Timezone is carried opaque through persistence for the UI.
	Timezone string
}

// DefaultConfig returns the standard paper trading setup.
func DefaultConfig() Config {
	return Config{
		SeedCurrency: "USD",
		SeedBalance:  1_000_000,
		Timezone:     "UTC",
	}
}

// Session is the trading façade for one user. Ticks and commands are
// discrete events serialized by the session mutex and processed to
// completion, so there is no parallel mutation of shared state.
type Session struct {
	UserID string

	mu  sync.Mutex
	cfg Config
	bus *events.Bus

	ledger   *ledger.Ledger
	journal  *journal.Journal
	prices   *market.Table
	spot     *spot.Engine
	leverage *leverage.Manager

	activeMarket string
	timezone     string
}

// New creates a funded session for a user.
func New(userID string, cfg Config, bus *events.Bus) *Session {
	if cfg.SeedCurrency == "" {
		cfg.SeedCurrency = "USD"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}

	l := ledger.NewSeeded(cfg.SeedCurrency, cfg.SeedBalance)
	j := journal.New()
	prices := market.NewTable()

	return &Session{
		UserID:   userID,
		cfg:      cfg,
		bus:      bus,
		ledger:   l,
		journal:  j,
		prices:   prices,
		spot:     spot.NewEngine(userID, l, j, prices, bus),
		leverage: leverage.NewManager(userID, l, j, prices, bus),
		timezone: cfg.Timezone,
	}
}

// HandleTick processes one inbound price update: the price table is
// updated, crossed limit orders execute, and every position on the tick's
// market is re-marked and liquidation-checked. Invalid ticks are dropped
// before touching any state.
func (s *Session) HandleTick(t domain.Tick) bool {
	if t.Market == "" || !num.Positive(t.Price) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.prices.Update(t.Market, t.Price) {
		return false
	}

	var executed []domain.Transaction
	if !s.cfg.ScanActiveMarketOnly || t.Market == s.activeMarket {
		executed = s.spot.CheckPending(t.Market, t.Price)
	}
	liquidated := s.leverage.MarkPrice(t.Market, t.Price)

	if len(executed) > 0 || len(liquidated) > 0 {
		s.publishStateLocked()
	}
	return true
}

// SetActiveMarket records which market the user is currently watching.
func (s *Session) SetActiveMarket(mkt string) {
	s.mu.Lock()
	s.activeMarket = mkt
	s.mu.Unlock()
}

// MarketBuy executes an immediate spot buy.
func (s *Session) MarketBuy(mkt string, amount float64) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.spot.MarketBuy(mkt, amount)
	if err == nil {
		s.publishStateLocked()
	}
	return tx, err
}

// MarketSell executes an immediate spot sell.
func (s *Session) MarketSell(mkt string, amount float64) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.spot.MarketSell(mkt, amount)
	if err == nil {
		s.publishStateLocked()
	}
	return tx, err
}

// PlaceLimit escrows and registers a limit order.
func (s *Session) PlaceLimit(mkt string, side domain.OrderSide, amount, limitPrice float64) (domain.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.spot.PlaceLimit(mkt, side, amount, limitPrice)
	if err == nil {
		s.publishStateLocked()
	}
	return o, err
}

// CancelLimit refunds and removes a limit order; unknown ids are no-ops.
func (s *Session) CancelLimit(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spot.CancelLimit(id)
	s.publishStateLocked()
}

// OpenPosition opens or averages a leveraged position.
func (s *Session) OpenPosition(mkt string, side domain.PositionSide, margin float64, lev int) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.leverage.Open(mkt, side, margin, lev)
	if err == nil {
		s.publishStateLocked()
	}
	return p, err
}

// ClosePosition closes percentage of a position at the current price.
func (s *Session) ClosePosition(id string, percentage float64) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.leverage.Close(id, percentage)
	if err == nil {
		s.publishStateLocked()
	}
	return tx, err
}

// CloseAllPositions closes every open position sequentially.
func (s *Session) CloseAllPositions() []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	closed := s.leverage.CloseAll()
	if len(closed) > 0 {
		s.publishStateLocked()
	}
	return closed
}

// AverageCost returns the weighted average purchase price of a holding.
func (s *Session) AverageCost(currency string) float64 {
	return s.journal.AverageCost(currency, s.ledger.Balance(currency))
}

// Price exposes the last known price for a market.
func (s *Session) Price(mkt string) (float64, bool) {
	return s.prices.Price(mkt)
}

// Snapshot returns the full persisted shape of the session.
func (s *Session) Snapshot() domain.State {
	return domain.State{
		Balances:          s.ledger.Balances(),
		Transactions:      s.journal.Transactions(),
		PendingOrders:     s.spot.Pending(),
		LeveragePositions: s.leverage.Positions(),
		Timezone:          s.timezone,
	}
}

// Restore loads a persisted snapshot with defensive coercion; the session
// must tolerate partially-missing state without crashing.
func (s *Session) Restore(st domain.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.Balances != nil {
		s.ledger.Restore(st.Balances)
	}
	s.journal.Restore(st.Transactions)
	s.spot.Restore(st.PendingOrders)
	s.leverage.Restore(st.LeveragePositions)
	if st.Timezone != "" {
		s.timezone = st.Timezone
	}
	log.Printf("session %s: restored %d txs, %d orders, %d positions",
		s.UserID, s.journal.Len(), len(s.spot.Pending()), len(s.leverage.Positions()))
}

func (s *Session) publishStateLocked() {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.EventStateChanged, events.StatePayload{
		UserID: s.UserID,
		State:  s.Snapshot(),
	})
}
