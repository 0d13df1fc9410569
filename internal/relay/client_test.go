package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jimd-den/BlackPaper/internal/codec"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeRelay is an in-process relay speaking just enough of the protocol for
// the client tests: it answers REQ with canned stored events plus EOSE, and
// EVENT with an OK verdict.
type fakeRelay struct {
	srv *httptest.Server

	mu       sync.Mutex
	stored   []codec.Event
	reject   bool
	skipEOSE bool

	published []codec.Event
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	f := &fakeRelay{}
	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f.handle(conn, data)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeRelay) handle(conn *websocket.Conn, data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 2 {
		return
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch label {
	case "REQ":
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		for _, e := range f.stored {
			conn.WriteJSON([]any{"EVENT", subID, e})
		}
		if !f.skipEOSE {
			conn.WriteJSON([]any{"EOSE", subID})
		}
	case "EVENT":
		var e codec.Event
		if err := json.Unmarshal(frame[1], &e); err != nil {
			return
		}
		f.published = append(f.published, e)
		if f.reject {
			conn.WriteJSON([]any{"OK", e.ID, false, "blocked: test policy"})
		} else {
			conn.WriteJSON([]any{"OK", e.ID, true, ""})
		}
	}
}

func (f *fakeRelay) store(events ...codec.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, events...)
}

func storedEvent(id string) codec.Event {
	return codec.Event{
		ID:        id,
		PubKey:    strings.Repeat("ab", 32),
		CreatedAt: time.Now().Unix(),
		Kind:      codec.KindDiscourse,
		Tags:      []codec.Tag{{codec.TagEntity, codec.EntityHypothesis}},
		Content:   "{}",
		Sig:       strings.Repeat("cd", 64),
	}
}

func TestClientCollect(t *testing.T) {
	t.Run("returns stored events on EOSE", func(t *testing.T) {
		relay := newFakeRelay(t)
		relay.store(storedEvent("ev-1"), storedEvent("ev-2"))

		c, err := Dial(context.Background(), relay.url(), WithLogger(quietLog))
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer c.Close()

		start := time.Now()
		events, err := c.Collect(context.Background(), []codec.Filter{{Kinds: []int{codec.KindDiscourse}}}, 5*time.Second)
		if err != nil {
			t.Fatalf("Collect() error = %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("Collect() returned %d events, want 2", len(events))
		}
		if events[0].ID != "ev-1" || events[1].ID != "ev-2" {
			t.Errorf("Collect() order = [%s, %s]", events[0].ID, events[1].ID)
		}
		// EOSE must short-circuit the window rather than wait it out.
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("Collect() took %v despite EOSE", elapsed)
		}
	})

	t.Run("falls back to the window when EOSE never arrives", func(t *testing.T) {
		relay := newFakeRelay(t)
		relay.skipEOSE = true
		relay.store(storedEvent("ev-1"))

		c, err := Dial(context.Background(), relay.url(), WithLogger(quietLog))
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer c.Close()

		events, err := c.Collect(context.Background(), nil, 150*time.Millisecond)
		if err != nil {
			t.Fatalf("Collect() error = %v", err)
		}
		if len(events) != 1 {
			t.Errorf("Collect() returned %d events, want 1", len(events))
		}
	})

	t.Run("honours context cancellation", func(t *testing.T) {
		relay := newFakeRelay(t)
		relay.skipEOSE = true

		c, err := Dial(context.Background(), relay.url(), WithLogger(quietLog))
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if _, err := c.Collect(ctx, nil, 10*time.Second); err == nil {
			t.Error("Collect() with cancelled context should fail")
		}
	})
}

func TestClientPublish(t *testing.T) {
	t.Run("accepted event", func(t *testing.T) {
		relay := newFakeRelay(t)
		c, err := Dial(context.Background(), relay.url(), WithLogger(quietLog))
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer c.Close()

		e := storedEvent("pub-1")
		if err := c.Publish(context.Background(), &e); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	})

	t.Run("relay rejection surfaces the reason", func(t *testing.T) {
		relay := newFakeRelay(t)
		relay.reject = true
		c, err := Dial(context.Background(), relay.url(), WithLogger(quietLog))
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer c.Close()

		e := storedEvent("pub-2")
		err = c.Publish(context.Background(), &e)
		if err == nil {
			t.Fatal("Publish() should fail on rejection")
		}
		if !strings.Contains(err.Error(), "blocked: test policy") {
			t.Errorf("Publish() error = %q, want rejection reason included", err)
		}
	})
}

func TestSubscriptionUnsubscribe(t *testing.T) {
	relay := newFakeRelay(t)
	c, err := Dial(context.Background(), relay.url(), WithLogger(quietLog))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	sub, err := c.Subscribe(context.Background(), nil, func(*codec.Event) {})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	// Repeated unsubscribe must be a no-op, not a panic or double CLOSE.
	sub.Unsubscribe()
	sub.Unsubscribe()

	c.mu.Lock()
	remaining := len(c.subs)
	c.mu.Unlock()
	if remaining != 0 {
		t.Errorf("subscription map has %d entries after Unsubscribe, want 0", remaining)
	}
}

func TestPool(t *testing.T) {
	t.Run("collect deduplicates across relays", func(t *testing.T) {
		a := newFakeRelay(t)
		b := newFakeRelay(t)
		a.store(storedEvent("shared"), storedEvent("only-a"))
		b.store(storedEvent("shared"), storedEvent("only-b"))

		p, err := NewPool(context.Background(), []string{a.url(), b.url()}, quietLog)
		if err != nil {
			t.Fatalf("NewPool() error = %v", err)
		}
		defer p.Close()

		events, err := p.Collect(context.Background(), nil, 5*time.Second)
		if err != nil {
			t.Fatalf("Collect() error = %v", err)
		}
		ids := make(map[string]int)
		for _, e := range events {
			ids[e.ID]++
		}
		if len(events) != 3 {
			t.Errorf("Collect() returned %d events, want 3 after dedup", len(events))
		}
		if ids["shared"] != 1 {
			t.Errorf("duplicate event appeared %d times, want 1", ids["shared"])
		}
	})

	t.Run("publish succeeds when one relay accepts", func(t *testing.T) {
		good := newFakeRelay(t)
		bad := newFakeRelay(t)
		bad.reject = true

		p, err := NewPool(context.Background(), []string{good.url(), bad.url()}, quietLog)
		if err != nil {
			t.Fatalf("NewPool() error = %v", err)
		}
		defer p.Close()

		e := storedEvent("fanout-1")
		res, err := p.Publish(context.Background(), &e)
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if len(res.Accepted) != 1 || len(res.Failed) != 1 {
			t.Errorf("Publish() accepted=%d failed=%d, want 1/1", len(res.Accepted), len(res.Failed))
		}
	})

	t.Run("publish fails when every relay rejects", func(t *testing.T) {
		bad := newFakeRelay(t)
		bad.reject = true

		p, err := NewPool(context.Background(), []string{bad.url()}, quietLog)
		if err != nil {
			t.Fatalf("NewPool() error = %v", err)
		}
		defer p.Close()

		e := storedEvent("fanout-2")
		if _, err := p.Publish(context.Background(), &e); err == nil {
			t.Error("Publish() should fail when all relays reject")
		}
	})

	t.Run("dialing tolerates unreachable relays", func(t *testing.T) {
		good := newFakeRelay(t)
		p, err := NewPool(context.Background(), []string{"ws://127.0.0.1:1/nope", good.url()}, quietLog)
		if err != nil {
			t.Fatalf("NewPool() error = %v", err)
		}
		defer p.Close()
		if got := len(p.Relays()); got != 1 {
			t.Errorf("pool kept %d relays, want 1", got)
		}
	})

	t.Run("fails when no relay is reachable", func(t *testing.T) {
		if _, err := NewPool(context.Background(), []string{"ws://127.0.0.1:1/nope"}, quietLog); err == nil {
			t.Error("NewPool() should fail with zero reachable relays")
		}
	})
}
