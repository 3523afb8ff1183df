package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// trading_api_check/main.go
//
// Quick smoke check of a running paperdesk server's HTTP surface.
//
// Usage:
//
//   go run ./scripts/trading_api_check
//
// Environment:
//   PAPERDESK_URL            (default "http://localhost:8080")
//   CHECK_USER               (default "api-check")
//   CHECK_MARKET             (default "BTC/USD")
//   CHECK_PLACE_ORDERS       (default "false")
//        - false: read-only endpoints only
//        - true : also places a tiny market order against the sim
//
// Placing orders only touches paper balances; no real venue is involved.

func main() {
	baseURL := envOr("PAPERDESK_URL", "http://localhost:8080")
	user := envOr("CHECK_USER", "api-check")
	market := envOr("CHECK_MARKET", "BTC/USD")
	placeOrders := envOr("CHECK_PLACE_ORDERS", "false") == "true"

	client := &http.Client{Timeout: 10 * time.Second}
	log.Printf("=== paperdesk API check against %s ===", baseURL)

	check(client, http.MethodGet, baseURL+"/health", user, nil)
	check(client, http.MethodGet, baseURL+"/api/v1/system/status", user, nil)
	check(client, http.MethodGet, baseURL+"/api/v1/prices", user, nil)
	check(client, http.MethodGet, baseURL+"/api/v1/state", user, nil)
	check(client, http.MethodGet, baseURL+"/api/v1/journal", user, nil)
	check(client, http.MethodGet, baseURL+"/api/v1/orders", user, nil)
	check(client, http.MethodGet, baseURL+"/api/v1/positions", user, nil)

	if !placeOrders {
		log.Println("CHECK_PLACE_ORDERS=false, skipping order placement")
		log.Println("=== API check complete ===")
		return
	}

	log.Printf("placing tiny market buy on %s", market)
	check(client, http.MethodPost, baseURL+"/api/v1/orders/market", user, map[string]any{
		"market": market,
		"side":   "buy",
		"amount": 0.0001,
	})
	check(client, http.MethodGet, baseURL+"/api/v1/journal", user, nil)

	log.Println("=== API check complete ===")
}

func check(client *http.Client, method, url, user string, body any) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal body for %s: %v", url, err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		log.Fatalf("build request %s: %v", url, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-ID", user)

	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	log.Printf("%s %s -> %d %s", method, url, resp.StatusCode, truncate(string(data)))
}

func truncate(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
