// Package venue is the WebSocket client for the trading venue. One connection
// carries both the market-data stream and the order channel; the client
// satisfies domain.MarketFeed and domain.OrderSink.
package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arbcore/arbengine/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// eventBuffer sizes the feed event channel.
	eventBuffer = 1024

	// updateBuffer sizes the order update channel.
	updateBuffer = 256
)

// Client manages the venue WebSocket connection lifecycle: subscriptions,
// keep-alive, reconnection with exponential backoff, and demultiplexing of
// market-data and order messages onto their channels.
type Client struct {
	wsURL  string
	apiKey string
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	// connDone is closed when the current connection is replaced or shut
	// down, stopping the read and ping loops bound to it.
	connDone chan struct{}

	// Markets to re-subscribe on reconnect.
	subscribed []string

	events  chan domain.FeedEvent
	updates chan domain.OrderUpdate

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewClient creates a client for the given venue WebSocket endpoint. apiKey
// may be empty for public (observe-only) access.
func NewClient(wsURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		wsURL:   wsURL,
		apiKey:  apiKey,
		logger:  logger.With(slog.String("component", "venue")),
		events:  make(chan domain.FeedEvent, eventBuffer),
		updates: make(chan domain.OrderUpdate, updateBuffer),
		done:    make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("venue: client closed")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	header := map[string][]string{}
	if c.apiKey != "" {
		header["Authorization"] = []string{"Bearer " + c.apiKey}
	}

	conn, _, err := dialer.DialContext(ctx, c.wsURL, header)
	if err != nil {
		return fmt.Errorf("venue: connect: %w", err)
	}

	// Tear down the loops of any previous connection before handing the
	// channels to the new one.
	if c.connDone != nil {
		close(c.connDone)
	}
	connDone := make(chan struct{})
	c.connDone = connDone
	c.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop(conn, connDone)
	go c.pingLoop(conn, connDone)

	// Restore subscriptions after reconnect.
	if len(c.subscribed) > 0 {
		cmd := wsCommand{Type: "subscribe", Channel: "book", Markets: c.subscribed}
		if err := c.sendCommand(cmd); err != nil {
			return fmt.Errorf("venue: restore subscriptions: %w", err)
		}
	}
	return nil
}

// Subscribe subscribes to book updates for the given markets.
func (c *Client) Subscribe(_ context.Context, marketIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("venue: not connected")
	}
	cmd := wsCommand{Type: "subscribe", Channel: "book", Markets: marketIDs}
	if err := c.sendCommand(cmd); err != nil {
		return fmt.Errorf("venue: subscribe: %w", err)
	}
	c.subscribed = append(c.subscribed, marketIDs...)
	return nil
}

// Events returns the feed event stream.
func (c *Client) Events() <-chan domain.FeedEvent { return c.events }

// RequestSnapshot asks the venue for full ladders for every outcome of the
// market. The snapshots arrive on Events.
func (c *Client) RequestSnapshot(_ context.Context, marketID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("venue: not connected")
	}
	if err := c.sendCommand(wsCommand{Type: "snapshot", MarketID: marketID}); err != nil {
		return fmt.Errorf("venue: request snapshot %s: %w", marketID, err)
	}
	return nil
}

// Place submits an order. The venue's ack or reject arrives on Updates.
func (c *Client) Place(_ context.Context, req domain.OrderRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("venue: not connected")
	}
	cmd := wsCommand{
		Type: "place",
		Order: &orderPayload{
			ClientOrderID: req.ClientOrderID,
			MarketID:      req.MarketID,
			Outcome:       string(req.Outcome),
			Side:          string(req.Side),
			Price:         formatDecimal(req.Price()),
			Size:          formatDecimal(req.Size()),
		},
	}
	if err := c.sendCommand(cmd); err != nil {
		return fmt.Errorf("venue: place %s: %w", req.ClientOrderID, err)
	}
	return nil
}

// Cancel requests cancellation of a working order.
func (c *Client) Cancel(_ context.Context, clientOrderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("venue: not connected")
	}
	if err := c.sendCommand(wsCommand{Type: "cancel", ClientOrderID: clientOrderID}); err != nil {
		return fmt.Errorf("venue: cancel %s: %w", clientOrderID, err)
	}
	return nil
}

// Updates returns the order update stream.
func (c *Client) Updates() <-chan domain.OrderUpdate { return c.updates }

// Close shuts down the connection and stops the loops.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return c.conn.Close()
	}
	return nil
}

// sendCommand sends a JSON command to the WebSocket. Caller must hold c.mu.
func (c *Client) sendCommand(cmd wsCommand) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads messages from one connection until it drops, then hands off
// to reconnect. A closed connDone means the connection was replaced and a
// newer loop owns the stream.
func (c *Client) readLoop(conn *websocket.Conn, connDone <-chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-connDone:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			case <-connDone:
				return
			default:
			}
			c.logger.Warn("connection lost, reconnecting", slog.String("error", err.Error()))
			c.reconnect()
			return // the replacement loop starts inside Connect
		}

		c.handleMessage(message)
	}
}

// pingLoop keeps one connection alive until it is replaced or shut down.
func (c *Client) pingLoop(conn *websocket.Conn, connDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-connDone:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage routes one raw message to the feed or order channel by its
// type field. Unparseable messages are dropped.
func (c *Client) handleMessage(raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	switch envelope.Type {
	case "tick":
		var m tickMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		c.deliverEvent(tickToFeedEvent(m))

	case "snapshot":
		var m snapshotMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		c.deliverEvent(snapshotToFeedEvent(m))

	case "order_ack", "order_fill", "order_reject", "order_cancelled":
		var m orderUpdateMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		if u, ok := updateToDomain(m); ok {
			select {
			case c.updates <- u:
			default:
				c.logger.Error("order update channel full, dropping",
					slog.String("client_order_id", u.ClientOrderID))
			}
		}
	}
}

func (c *Client) deliverEvent(ev domain.FeedEvent) {
	select {
	case c.events <- ev:
	default:
		// A full feed buffer means the consumer is behind; the sequence gap
		// from the drop triggers a resync downstream.
		c.logger.Warn("feed buffer full, dropping event",
			slog.String("market", ev.MarketID),
			slog.Uint64("sequence", ev.Sequence))
	}
}

// reconnect re-establishes the connection with exponential backoff. It blocks
// until successful or the client is closed.
func (c *Client) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-c.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := c.Connect(ctx)
		cancel()

		if err == nil {
			return
		}
		c.logger.Warn("reconnect failed", slog.String("error", err.Error()))

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
