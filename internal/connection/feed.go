package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/rickgao/marketsync/internal/metrics"
	"github.com/rickgao/marketsync/internal/model"
)

// Dialer opens a connected Client.
type Dialer func(ctx context.Context) (Client, error)

// NewDialer returns a Dialer producing WebSocket clients for cfg.
func NewDialer(cfg ClientConfig, logger *slog.Logger) Dialer {
	return func(ctx context.Context) (Client, error) {
		c := NewClient(cfg, logger)
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Backoff returns the reconnect delay after attempt consecutive failures:
// min(base * 2^attempt, max).
func Backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}

type eventKind int

const (
	evDialed eventKind = iota // dial finished, client or err set
	evFrame                   // inbound message
	evLost                    // connection error
	evTimer                   // reconnect timer fired
	evRetry                   // manual retry
)

// event is the single message type of the run loop queue. gen ties dial,
// frame and loss events to a connection, and timer events to a schedule.
type event struct {
	kind   eventKind
	gen    uint64
	client Client
	msg    TimestampedMessage
	err    error
}

// published is the state readers see.
type published struct {
	state       model.ConnectionState
	attempts    int
	lastErr     string
	connectedAt time.Time
	reconnects  int64
}

// Feed maintains the live trade feed connection.
type Feed struct {
	cfg     FeedConfig
	dial    Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics
	buffer  *TickBuffer

	events chan event

	// Owned by the run loop
	state    model.ConnectionState
	attempts int
	gen      uint64
	client   Client
	pumpStop chan struct{}
	timer    *time.Timer
	timerSeq uint64

	mu  sync.RWMutex
	pub published

	subsMu sync.Mutex
	subs   map[chan struct{}]struct{}

	afterFunc func(time.Duration, func()) *time.Timer
	newID     func(symbol string, ts int64) string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFeed creates a Feed. m may be nil.
func NewFeed(cfg FeedConfig, dial Dialer, m *metrics.Metrics, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultFeedConfig()
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.MaxReconnectAttempts < 1 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}

	return &Feed{
		cfg:       cfg,
		dial:      dial,
		logger:    logger.With("component", "feed"),
		metrics:   m,
		buffer:    NewTickBuffer(cfg.BufferSize),
		events:    make(chan event, 64),
		subs:      make(map[chan struct{}]struct{}),
		afterFunc: time.AfterFunc,
		newID:     newTickID,
	}
}

// Start connects and keeps the feed running until Stop or ctx ends.
func (f *Feed) Start(ctx context.Context) error {
	if f.ctx != nil {
		return errors.New("feed already started")
	}
	f.ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go f.run()

	f.logger.Info("live feed started",
		"symbols", len(f.cfg.Symbols),
		"buffer", f.cfg.BufferSize,
		"max_attempts", f.cfg.MaxReconnectAttempts,
	)
	return nil
}

// Stop closes the connection and waits for every feed goroutine.
func (f *Feed) Stop(ctx context.Context) error {
	if f.cancel != nil {
		f.cancel()
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.logger.Info("live feed stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry resets the attempt counter and reconnects. It is the way out of the
// error state; while connected or connecting it does nothing.
func (f *Feed) Retry() error {
	if f.ctx == nil {
		return errors.New("feed not started")
	}
	if f.ctx.Err() != nil {
		return ErrAlreadyClosed
	}
	if !f.post(event{kind: evRetry}) {
		return ErrAlreadyClosed
	}
	return nil
}

// State returns the connection state.
func (f *Feed) State() model.ConnectionState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pub.state
}

// Attempts returns the consecutive failed connection attempts.
func (f *Feed) Attempts() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pub.attempts
}

// Ticks returns the buffered ticks, most recent arrival first.
func (f *Feed) Ticks() []model.TradeTick {
	return f.buffer.Snapshot()
}

// Subscribe registers for change notifications (new ticks or state change).
// Notifications are coalesced: a slow reader sees one pending signal, then
// reads the current Ticks and State. Call cancel to unregister.
func (f *Feed) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	f.subsMu.Lock()
	f.subs[ch] = struct{}{}
	f.subsMu.Unlock()

	return ch, func() {
		f.subsMu.Lock()
		delete(f.subs, ch)
		f.subsMu.Unlock()
	}
}

// Stats returns a point-in-time view of the feed.
func (f *Feed) Stats() Stats {
	f.mu.RLock()
	p := f.pub
	f.mu.RUnlock()

	return Stats{
		State:         p.state,
		Attempts:      p.attempts,
		MaxAttempts:   f.cfg.MaxReconnectAttempts,
		Symbols:       append([]string(nil), f.cfg.Symbols...),
		Buffered:      f.buffer.Len(),
		TicksReceived: f.buffer.Total(),
		Reconnects:    p.reconnects,
		ConnectedAt:   p.connectedAt,
		LastError:     p.lastErr,
	}
}

// run is the only goroutine that touches connection state.
func (f *Feed) run() {
	defer f.wg.Done()
	defer f.shutdown()

	f.connect()

	for {
		select {
		case <-f.ctx.Done():
			return
		case ev := <-f.events:
			f.handle(ev)
		}
	}
}

func (f *Feed) handle(ev event) {
	switch ev.kind {
	case evDialed:
		if ev.gen != f.gen || f.state != model.StateConnecting {
			if ev.client != nil {
				ev.client.Close()
			}
			return
		}
		if ev.err != nil {
			f.fail(ev.err)
			return
		}
		f.onConnected(ev.client)

	case evFrame:
		if ev.gen != f.gen || f.client == nil {
			return
		}
		f.handleFrame(ev.msg)

	case evLost:
		if ev.gen != f.gen || f.client == nil {
			return
		}
		f.dropConnection()
		f.fail(ev.err)

	case evTimer:
		if ev.gen != f.timerSeq || f.timer == nil {
			return
		}
		f.timer = nil
		f.connect()

	case evRetry:
		if f.state == model.StateConnected || f.state == model.StateConnecting {
			f.logger.Debug("retry ignored", "state", f.state)
			return
		}
		f.logger.Info("manual retry")
		f.attempts = 0
		f.connect()
	}
}

// connect starts a dial in a helper goroutine; the result comes back as an event.
func (f *Feed) connect() {
	f.stopTimer()
	f.gen++
	gen := f.gen
	f.setState(model.StateConnecting, nil)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		c, err := f.dial(f.ctx)
		if !f.post(event{kind: evDialed, gen: gen, client: c, err: err}) && c != nil {
			c.Close()
		}
	}()
}

func (f *Feed) onConnected(c Client) {
	f.client = c
	f.pumpStop = make(chan struct{})

	f.wg.Add(1)
	go f.pump(f.gen, c, f.pumpStop)

	// Subscriptions do not survive a reconnect.
	for _, sym := range f.cfg.Symbols {
		data, err := json.Marshal(SubscribeMessage{Type: "subscribe", Symbol: sym})
		if err == nil {
			err = c.Send(data)
		}
		if err != nil {
			f.dropConnection()
			f.fail(fmt.Errorf("subscribe %s: %w", sym, err))
			return
		}
	}

	f.attempts = 0
	f.setState(model.StateConnected, nil)
	f.logger.Info("subscribed", "symbols", f.cfg.Symbols)
}

// fail handles an unexpected close or a failed dial.
func (f *Feed) fail(err error) {
	if f.attempts >= f.cfg.MaxReconnectAttempts {
		f.setState(model.StateError, err)
		f.logger.Error("giving up on live feed, manual retry required",
			"attempts", f.attempts,
			"error", err,
		)
		return
	}

	delay := Backoff(f.cfg.ReconnectBaseDelay, f.cfg.ReconnectMaxDelay, f.attempts)
	f.attempts++
	f.setState(model.StateDisconnected, err)
	f.schedule(delay)

	f.mu.Lock()
	f.pub.reconnects++
	f.mu.Unlock()
	f.metrics.IncReconnects()

	f.logger.Warn("live feed disconnected, reconnect scheduled",
		"attempt", f.attempts,
		"delay", delay,
		"error", err,
	)
}

// schedule replaces any pending reconnect timer.
func (f *Feed) schedule(d time.Duration) {
	f.stopTimer()
	f.timerSeq++
	seq := f.timerSeq
	f.timer = f.afterFunc(d, func() {
		f.post(event{kind: evTimer, gen: seq})
	})
}

func (f *Feed) stopTimer() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

func (f *Feed) dropConnection() {
	if f.client == nil {
		return
	}
	close(f.pumpStop)
	f.client.Close()
	f.client = nil
}

func (f *Feed) shutdown() {
	f.stopTimer()
	f.dropConnection()
	f.setState(model.StateDisconnected, nil)
}

// pump forwards one connection's messages and errors to the run loop.
func (f *Feed) pump(gen uint64, c Client, stop <-chan struct{}) {
	defer f.wg.Done()

	for {
		select {
		case <-stop:
			return
		case <-f.ctx.Done():
			return
		case msg := <-c.Messages():
			if !f.post(event{kind: evFrame, gen: gen, msg: msg}) {
				return
			}
		case err := <-c.Errors():
			f.post(event{kind: evLost, gen: gen, err: err})
			return
		}
	}
}

func (f *Feed) post(ev event) bool {
	select {
	case f.events <- ev:
		return true
	case <-f.ctx.Done():
		return false
	}
}

func (f *Feed) handleFrame(msg TimestampedMessage) {
	if !gjson.ValidBytes(msg.Data) {
		f.logger.Debug("ignoring malformed frame", "bytes", len(msg.Data))
		return
	}

	switch typ := gjson.GetBytes(msg.Data, "type").String(); typ {
	case FrameTrade:
		ticks := f.parseTrades(msg)
		for _, t := range ticks {
			f.buffer.Push(t)
		}
		if len(ticks) > 0 {
			f.metrics.IncTicks(len(ticks))
			f.notify()
		}
	case FramePing:
		// Keep-alive only; liveness is tracked by the client.
	case FrameError:
		f.logger.Warn("feed error frame", "msg", gjson.GetBytes(msg.Data, "msg").String())
	default:
		f.logger.Debug("ignoring frame", "type", typ)
	}
}

func (f *Feed) parseTrades(msg TimestampedMessage) []model.TradeTick {
	var ticks []model.TradeTick
	gjson.GetBytes(msg.Data, "data").ForEach(func(_, v gjson.Result) bool {
		sym := v.Get("s").String()
		if sym == "" {
			return true
		}
		ts := v.Get("t").Int()

		var conds []string
		for _, c := range v.Get("c").Array() {
			conds = append(conds, c.String())
		}

		ticks = append(ticks, model.TradeTick{
			ID:         f.newID(sym, ts),
			Symbol:     sym,
			Price:      v.Get("p").Float(),
			Volume:     v.Get("v").Float(),
			Timestamp:  ts,
			Conditions: conds,
			ReceivedAt: msg.ReceivedAt,
		})
		return true
	})
	return ticks
}

func (f *Feed) setState(s model.ConnectionState, err error) {
	prev := f.state
	f.state = s

	f.mu.Lock()
	f.pub.state = s
	f.pub.attempts = f.attempts
	if err != nil {
		f.pub.lastErr = err.Error()
	}
	if s == model.StateConnected {
		f.pub.connectedAt = time.Now()
		f.pub.lastErr = ""
	}
	f.mu.Unlock()

	f.metrics.SetFeedState(s)
	if prev != s {
		f.logger.Debug("feed state changed", "from", prev, "to", s, "attempts", f.attempts)
	}
	f.notify()
}

func (f *Feed) notify() {
	f.subsMu.Lock()
	defer f.subsMu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// newTickID builds a per-tick id. The upstream gives none that is unique per
// message, so symbol and exchange time get a random suffix.
func newTickID(symbol string, ts int64) string {
	return fmt.Sprintf("%s-%d-%s", symbol, ts, uuid.NewString()[:8])
}
