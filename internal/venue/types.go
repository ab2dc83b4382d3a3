package venue

import (
	"strconv"
	"time"

	"github.com/arbcore/arbengine/internal/domain"
)

// wsCommand is the client-to-venue command envelope.
type wsCommand struct {
	Type          string        `json:"type"` // subscribe, snapshot, place, cancel
	Channel       string        `json:"channel,omitempty"`
	Markets       []string      `json:"markets,omitempty"`
	MarketID      string        `json:"market_id,omitempty"`
	ClientOrderID string        `json:"client_order_id,omitempty"`
	Order         *orderPayload `json:"order,omitempty"`
}

// orderPayload is the wire form of an order. Prices and sizes travel as
// decimal strings, the venue's convention for exact quantities.
type orderPayload struct {
	ClientOrderID string `json:"client_order_id"`
	MarketID      string `json:"market_id"`
	Outcome       string `json:"outcome"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Size          string `json:"size"`
}

// wsLevel is one [price, size] ladder entry.
type wsLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// tickMessage is an incremental level change for one side of an outcome book.
type tickMessage struct {
	Type      string `json:"type"`
	MarketID  string `json:"market_id"`
	Outcome   string `json:"outcome"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Sequence  uint64 `json:"sequence"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// snapshotMessage carries the full ladders for one outcome of a market.
type snapshotMessage struct {
	Type      string    `json:"type"`
	MarketID  string    `json:"market_id"`
	Outcome   string    `json:"outcome"`
	Bids      []wsLevel `json:"bids"`
	Asks      []wsLevel `json:"asks"`
	Sequence  uint64    `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
}

// orderUpdateMessage is an asynchronous order event from the venue.
type orderUpdateMessage struct {
	Type          string `json:"type"` // order_ack, order_fill, order_reject, order_cancelled
	ClientOrderID string `json:"client_order_id"`
	VenueOrderID  string `json:"venue_order_id"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	Final         bool   `json:"final"`
	Reason        string `json:"reason"`
	Timestamp     int64  `json:"timestamp"`
}

func parseDecimal(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseLevels(in []wsLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		out = append(out, domain.PriceLevel{Price: parseDecimal(l.Price), Size: parseDecimal(l.Size)})
	}
	return out
}

func parseTimestamp(ms int64) time.Time {
	if ms == 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}

func tickToFeedEvent(m tickMessage) domain.FeedEvent {
	return domain.FeedEvent{
		Type:      domain.FeedEventTick,
		MarketID:  m.MarketID,
		Outcome:   domain.Outcome(m.Outcome),
		Sequence:  m.Sequence,
		Timestamp: parseTimestamp(m.Timestamp),
		Side:      domain.BookSide(m.Side),
		Price:     parseDecimal(m.Price),
		Size:      parseDecimal(m.Size),
	}
}

func snapshotToFeedEvent(m snapshotMessage) domain.FeedEvent {
	return domain.FeedEvent{
		Type:      domain.FeedEventSnapshot,
		MarketID:  m.MarketID,
		Outcome:   domain.Outcome(m.Outcome),
		Sequence:  m.Sequence,
		Timestamp: parseTimestamp(m.Timestamp),
		Bids:      parseLevels(m.Bids),
		Asks:      parseLevels(m.Asks),
	}
}

func updateToDomain(m orderUpdateMessage) (domain.OrderUpdate, bool) {
	u := domain.OrderUpdate{
		ClientOrderID: m.ClientOrderID,
		VenueOrderID:  m.VenueOrderID,
		FillPrice:     parseDecimal(m.Price),
		FillSize:      parseDecimal(m.Size),
		Final:         m.Final,
		Reason:        m.Reason,
		Timestamp:     parseTimestamp(m.Timestamp),
	}
	switch m.Type {
	case "order_ack":
		u.Type = domain.OrderUpdateAck
	case "order_fill":
		u.Type = domain.OrderUpdateFill
	case "order_reject":
		u.Type = domain.OrderUpdateReject
	case "order_cancelled":
		u.Type = domain.OrderUpdateCancelled
	default:
		return domain.OrderUpdate{}, false
	}
	return u, true
}
