package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"paperdesk/internal/domain"
	"paperdesk/internal/events"
)

// MockFeed generates synthetic ticks for local development.
type MockFeed struct {
	Bus         *events.Bus
	Markets     []string
	StartPrices map[string]float64
	Step        float64 // random walk step as a fraction of price
	Interval    time.Duration
}

// Start launches the random walk in a goroutine until ctx is cancelled.
func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("mock feed: bus not set")
		return
	}
	if len(m.Markets) == 0 {
		m.Markets = []string{"BTC/USD"}
	}
	if m.Step == 0 {
		m.Step = 0.002
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	prices := make(map[string]float64, len(m.Markets))
	for _, mkt := range m.Markets {
		p := m.StartPrices[mkt]
		if p == 0 {
			p = 100.0
		}
		prices[mkt] = p
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				for _, mkt := range m.Markets {
					// simple geometric random walk
					p := prices[mkt] * (1 + (rand.Float64()*2-1)*m.Step)
					if p <= 0 {
						p = prices[mkt]
					}
					prices[mkt] = p
					m.Bus.Publish(events.EventPriceTick, domain.Tick{
						Market: mkt,
						Price:  p,
					})
				}
			}
		}
	}()
}
