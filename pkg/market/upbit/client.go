// Package upbit streams public ticker data over websocket.
package upbit

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultStreamURL is the exchange's public websocket endpoint.
const DefaultStreamURL = "wss://api.upbit.com/websocket/v1"

// StreamClient manages lightweight streaming from the public websocket.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; url overrides the endpoint
// when non-empty.
func NewStreamClient(url string) *StreamClient {
	if url == "" {
		url = DefaultStreamURL
	}
	return &StreamClient{
		StreamURL: url,
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeTicker listens to ticker frames for the given BASE/QUOTE markets
// and pushes parsed tickers into a channel. It returns the channel and a
// stop function.
func (c *StreamClient) SubscribeTicker(ctx context.Context, markets []string) (<-chan Ticker, func(), error) {
	codes := make([]string, 0, len(markets))
	for _, m := range markets {
		if code := CodeFromMarket(m); code != "" {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return nil, nil, fmt.Errorf("no valid markets to subscribe")
	}

	conn, _, err := c.dialer.DialContext(ctx, c.StreamURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial ticker ws: %w", err)
	}

	sub := []any{
		map[string]string{"ticket": uuid.NewString()},
		map[string]any{"type": "ticker", "codes": codes},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("write ticker subscription: %w", err)
	}

	out := make(chan Ticker, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			close(out)
		})
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				// If connection already closed by caller/context, just exit quietly.
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("ticker ws read error: %v", err)
				return
			}

			parsed, err := parseTickerMessage(msg)
			if err != nil {
				log.Printf("ticker ws parse error: %v", err)
				continue
			}
			if parsed.Code == "" {
				continue
			}
			out <- parsed
		}
	}()

	return out, stop, nil
}

// Stream resubscribes with backoff until the context is cancelled, invoking
// handle for every ticker frame. Backoff doubles up to 30s and resets after
// a healthy connection.
func (c *StreamClient) Stream(ctx context.Context, markets []string, handle func(Ticker)) {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		ch, stop, err := c.SubscribeTicker(ctx, markets)
		if err != nil {
			log.Printf("ticker ws connect failed, retrying in %v: %v", backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}

		connectedAt := time.Now()
		for t := range ch {
			handle(t)
		}
		stop()

		if time.Since(connectedAt) > time.Minute {
			backoff = time.Second
		}
		log.Printf("ticker ws disconnected, reconnecting in %v", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

// Ping keeps the connection alive; useful if the caller wants manual control.
func (c *StreamClient) Ping(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second))
}
