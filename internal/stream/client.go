package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"predeval/internal/domain/models"
	"predeval/internal/domain/repository"
	"predeval/internal/pricestore"
	"predeval/pkg/logger"
)

const defaultStreamURL = "wss://stream.binance.com:9443/stream"

// Client keeps the price store warm with live ticks from a Binance
// combined miniTicker stream. It is strictly best-effort: any failure puts
// it in backoff and reconciliation carries on without it.
type Client struct {
	url        string
	symbols    []string
	store      *pricestore.Store
	maxBackoff time.Duration
	log        *logger.Logger
	state      stateHolder
}

// New creates a stream client. symbols are lower-case Binance spot symbols
// like "btcusdt".
func New(url string, symbols []string, store *pricestore.Store, maxBackoff time.Duration, log *logger.Logger, m repository.Metrics) *Client {
	if url == "" {
		url = defaultStreamURL
	}
	if maxBackoff <= 0 {
		maxBackoff = time.Minute
	}
	c := &Client{
		url:        url,
		symbols:    symbols,
		store:      store,
		maxBackoff: maxBackoff,
		log:        log,
	}
	if m != nil {
		c.state.observer = func(s State) { m.RecordStreamState(s.String()) }
	}
	c.state.set(Disconnected)
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	return c.state.get()
}

// Run connects and consumes until ctx is done, reconnecting with bounded
// exponential backoff.
func (c *Client) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = c.maxBackoff
	bo.MaxElapsedTime = 0 // retry forever

	for {
		if ctx.Err() != nil {
			c.state.set(Disconnected)
			return
		}

		c.state.set(Connecting)
		conn, err := c.connect(ctx)
		if err != nil {
			c.state.set(Backoff)
			if c.log != nil {
				c.log.Warn("stream connect failed", logger.Error(err))
			}
			if !sleep(ctx, bo.NextBackOff()) {
				c.state.set(Disconnected)
				return
			}
			continue
		}

		c.state.set(Connected)
		bo.Reset()
		if c.log != nil {
			c.log.Info("stream connected", logger.Strings("symbols", c.symbols))
		}

		err = c.consume(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			c.state.set(Disconnected)
			return
		}

		c.state.set(Backoff)
		if c.log != nil {
			c.log.Warn("stream dropped, backing off", logger.Error(err))
		}
		if !sleep(ctx, bo.NextBackOff()) {
			c.state.set(Disconnected)
			return
		}
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	streams := make([]string, len(c.symbols))
	for i, s := range c.symbols {
		streams[i] = strings.ToLower(s) + "@miniTicker"
	}
	u := fmt.Sprintf("%s?streams=%s", c.url, strings.Join(streams, "/"))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("stream dial: %w", err)
	}
	return conn, nil
}

func (c *Client) consume(ctx context.Context, conn *websocket.Conn) error {
	// unblock ReadMessage when the caller is done
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream read: %w", err)
		}

		tick, ok := parseTick(b)
		if !ok {
			continue
		}
		c.store.Put(ctx, models.ActualPrice{
			Asset:  tick.asset,
			Bucket: tick.at,
			Price:  tick.price,
			Source: "stream",
		})
	}
}

type tick struct {
	asset string
	price float64
	at    time.Time
}

type combinedFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		EventTime int64  `json:"E"` // ms
		Symbol    string `json:"s"`
		Close     string `json:"c"`
	} `json:"data"`
}

// parseTick extracts one tick from a combined-stream miniTicker frame.
// Frames for unknown symbols or with bad payloads are dropped.
func parseTick(b []byte) (tick, bool) {
	var f combinedFrame
	if err := json.Unmarshal(b, &f); err != nil {
		return tick{}, false
	}
	if f.Data.Symbol == "" || f.Data.Close == "" {
		return tick{}, false
	}

	asset, ok := assetOfSymbol(f.Data.Symbol)
	if !ok {
		return tick{}, false
	}
	price, err := strconv.ParseFloat(f.Data.Close, 64)
	if err != nil || price <= 0 {
		return tick{}, false
	}

	at := time.Now().UTC()
	if f.Data.EventTime > 0 {
		at = time.UnixMilli(f.Data.EventTime).UTC()
	}
	return tick{asset: asset, price: price, at: at}, true
}

// assetOfSymbol maps a Binance spot symbol to a canonical asset name.
func assetOfSymbol(symbol string) (string, bool) {
	s := strings.ToLower(symbol)
	base, found := strings.CutSuffix(s, "usdt")
	if !found || base == "" {
		return "", false
	}
	return models.NormalizeAsset(base), true
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
