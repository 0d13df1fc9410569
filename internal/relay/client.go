// Package relay implements the websocket client side of the Nostr relay
// protocol: publishing signed events, filter subscriptions, and bounded
// collection of stored results. The end-of-stored-events signal (EOSE) is the
// primary completion mechanism; a configurable window is the fallback so no
// call can hang on a relay that never sends it.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jimd-den/BlackPaper/internal/codec"
)

// Default timeouts; overridable per client.
const (
	DefaultDialTimeout    = 10 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultCollectWindow  = 5 * time.Second
	defaultPublishTimeout = 10 * time.Second
)

// Client is one websocket connection to a relay.
type Client struct {
	url string
	log *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	subs    map[string]*Subscription
	pending map[string]chan okResult

	writeTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

type okResult struct {
	accepted bool
	reason   string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithWriteTimeout sets the per-message write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout = d }
}

// Dial connects to a relay websocket URL and starts the read loop.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:          url,
		log:          slog.Default(),
		subs:         make(map[string]*Subscription),
		pending:      make(map[string]chan okResult),
		writeTimeout: DefaultWriteTimeout,
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	dialer := websocket.Dialer{HandshakeTimeout: DefaultDialTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	c.conn = conn

	go c.readLoop()
	return c, nil
}

// URL returns the relay URL.
func (c *Client) URL() string { return c.url }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close shuts the connection down. Safe to call multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// readLoop parses frames off the wire and dispatches them until the
// connection drops.
func (c *Client) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("relay connection lost", "relay", c.url, "error", err)
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch decodes one relay frame. Unknown or malformed frames are logged
// and dropped; a bad frame never takes the connection down.
func (c *Client) dispatch(data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 2 {
		c.log.Warn("malformed relay frame", "relay", c.url)
		return
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return
	}

	switch label {
	case "EVENT":
		if len(frame) < 3 {
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		var ev codec.Event
		if err := json.Unmarshal(frame[2], &ev); err != nil {
			c.log.Warn("undecodable event frame", "relay", c.url, "sub", subID)
			return
		}
		c.mu.Lock()
		sub := c.subs[subID]
		c.mu.Unlock()
		if sub != nil {
			sub.deliver(&ev)
		}

	case "EOSE":
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		c.mu.Lock()
		sub := c.subs[subID]
		c.mu.Unlock()
		if sub != nil {
			sub.markEOSE()
		}

	case "OK":
		if len(frame) < 3 {
			return
		}
		var eventID string
		var accepted bool
		if err := json.Unmarshal(frame[1], &eventID); err != nil {
			return
		}
		if err := json.Unmarshal(frame[2], &accepted); err != nil {
			return
		}
		reason := ""
		if len(frame) > 3 {
			_ = json.Unmarshal(frame[3], &reason)
		}
		c.mu.Lock()
		ch := c.pending[eventID]
		delete(c.pending, eventID)
		c.mu.Unlock()
		if ch != nil {
			ch <- okResult{accepted: accepted, reason: reason}
		}

	case "CLOSED":
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		reason := ""
		if len(frame) > 2 {
			_ = json.Unmarshal(frame[2], &reason)
		}
		c.log.Warn("relay closed subscription", "relay", c.url, "sub", subID, "reason", reason)
		c.mu.Lock()
		sub := c.subs[subID]
		c.mu.Unlock()
		if sub != nil {
			sub.markEOSE()
		}

	case "NOTICE":
		var msg string
		_ = json.Unmarshal(frame[1], &msg)
		c.log.Info("relay notice", "relay", c.url, "message", msg)
	}
}

// Publish sends a signed event and waits for the relay's OK up to the context
// deadline. Rejection reasons are surfaced as-is.
func (c *Client) Publish(ctx context.Context, e *codec.Event) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()
	}

	ch := make(chan okResult, 1)
	c.mu.Lock()
	c.pending[e.ID] = ch
	c.mu.Unlock()

	if err := c.writeJSON([]any{"EVENT", e}); err != nil {
		c.mu.Lock()
		delete(c.pending, e.ID)
		c.mu.Unlock()
		return fmt.Errorf("publish to %s: %w", c.url, err)
	}

	select {
	case res := <-ch:
		if !res.accepted {
			return fmt.Errorf("relay %s rejected event: %s", c.url, res.reason)
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, e.ID)
		c.mu.Unlock()
		return fmt.Errorf("publish to %s: %w", c.url, ctx.Err())
	case <-c.done:
		return fmt.Errorf("publish to %s: connection closed", c.url)
	}
}

// Subscription is one live REQ on a relay.
type Subscription struct {
	id      string
	client  *Client
	onEvent func(*codec.Event)

	eoseOnce sync.Once
	eose     chan struct{}

	unsubOnce sync.Once
}

// Subscribe opens a subscription for the given filters. Events are delivered
// to onEvent from the read goroutine, in arrival order, with no completeness
// guarantee. Callers must Unsubscribe when done.
func (c *Client) Subscribe(ctx context.Context, filters []codec.Filter, onEvent func(*codec.Event)) (*Subscription, error) {
	sub := &Subscription{
		id:      uuid.NewString(),
		client:  c,
		onEvent: onEvent,
		eose:    make(chan struct{}),
	}

	c.mu.Lock()
	c.subs[sub.id] = sub
	c.mu.Unlock()

	req := make([]any, 0, len(filters)+2)
	req = append(req, "REQ", sub.id)
	for _, f := range filters {
		req = append(req, f)
	}
	if err := c.writeJSON(req); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("subscribe to %s: %w", c.url, err)
	}
	return sub, nil
}

func (s *Subscription) deliver(e *codec.Event) {
	if s.onEvent != nil {
		s.onEvent(e)
	}
}

func (s *Subscription) markEOSE() {
	s.eoseOnce.Do(func() { close(s.eose) })
}

// EOSE is closed when the relay reports end of stored events.
func (s *Subscription) EOSE() <-chan struct{} { return s.eose }

// Unsubscribe sends CLOSE and detaches the subscription. Safe to call any
// number of times; it is the cleanup path for both normal completion and the
// fallback timeout.
func (s *Subscription) Unsubscribe() {
	s.unsubOnce.Do(func() {
		c := s.client
		c.mu.Lock()
		delete(c.subs, s.id)
		c.mu.Unlock()
		// Best effort: the relay drops the REQ when the write fails anyway.
		_ = c.writeJSON([]any{"CLOSE", s.id})
	})
}

// Collect gathers stored events matching the filters until the relay signals
// EOSE or the window elapses, whichever comes first. The window is the safety
// net for relays that never send EOSE, not the primary completion mechanism.
func (c *Client) Collect(ctx context.Context, filters []codec.Filter, window time.Duration) ([]*codec.Event, error) {
	if window <= 0 {
		window = DefaultCollectWindow
	}

	var mu sync.Mutex
	var events []*codec.Event
	sub, err := c.Subscribe(ctx, filters, func(e *codec.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	timer := time.NewTimer(window)
	defer timer.Stop()

	select {
	case <-sub.EOSE():
	case <-timer.C:
		c.log.Debug("collect window elapsed before EOSE", "relay", c.url)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
	}

	mu.Lock()
	defer mu.Unlock()
	return events, nil
}
