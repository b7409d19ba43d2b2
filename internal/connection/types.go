package connection

import (
	"errors"
	"time"

	"github.com/rickgao/marketsync/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no inbound frames)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// SubscribeMessage subscribes the connection to one symbol's trades.
type SubscribeMessage struct {
	Type   string `json:"type"` // "subscribe"
	Symbol string `json:"symbol"`
}

// Frame types sent by the streaming source.
const (
	FrameTrade = "trade"
	FramePing  = "ping"
	FrameError = "error"
)

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://ws.finnhub.io)
	Token            string        // API token, sent as the token query parameter
	PingTimeout      time.Duration // Max time without any inbound frame before the connection is stale
	WriteTimeout     time.Duration // Write deadline for sends
	HandshakeTimeout time.Duration // Dial handshake deadline
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       1000,
	}
}

// FeedConfig configures the live feed.
type FeedConfig struct {
	Symbols              []string      // Symbols subscribed on every connect
	BufferSize           int           // Recent ticks kept (default: 20)
	ReconnectBaseDelay   time.Duration // First reconnect delay (default: 1s)
	ReconnectMaxDelay    time.Duration // Backoff cap (default: 30s)
	MaxReconnectAttempts int           // Consecutive failures before giving up (default: 5)
}

// DefaultFeedConfig returns sensible defaults.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		BufferSize:           20,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

// Stats is a point-in-time view of the feed.
type Stats struct {
	State         model.ConnectionState `json:"state"`
	Attempts      int                   `json:"attempts"`
	MaxAttempts   int                   `json:"max_attempts"`
	Symbols       []string              `json:"symbols"`
	Buffered      int                   `json:"buffered"`
	TicksReceived int64                 `json:"ticks_received"`
	Reconnects    int64                 `json:"reconnects"`
	ConnectedAt   time.Time             `json:"connected_at,omitempty"`
	LastError     string                `json:"last_error,omitempty"`
}
