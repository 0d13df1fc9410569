package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jimd-den/BlackPaper/internal/codec"
)

// Pool fans operations across several relays. Publishing succeeds when at
// least one relay accepts; collection merges results from all relays and
// deduplicates by event id, since relays routinely carry overlapping sets.
type Pool struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients []*Client
}

// NewPool dials every URL and keeps the connections that succeed. It fails
// only when no relay at all is reachable.
func NewPool(ctx context.Context, urls []string, log *slog.Logger, opts ...Option) (*Pool, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{log: log}

	for _, u := range urls {
		c, err := Dial(ctx, u, append(opts, WithLogger(log))...)
		if err != nil {
			log.Warn("relay unreachable, skipping", "relay", u, "error", err)
			continue
		}
		p.clients = append(p.clients, c)
	}
	if len(p.clients) == 0 {
		return nil, fmt.Errorf("no relays reachable out of %d", len(urls))
	}
	return p, nil
}

// Relays returns the URLs of the live connections.
func (p *Pool) Relays() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	urls := make([]string, len(p.clients))
	for i, c := range p.clients {
		urls[i] = c.URL()
	}
	return urls
}

// Close shuts down every connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.Close()
	}
	p.clients = nil
}

// PublishResult reports per-relay publish outcomes.
type PublishResult struct {
	Accepted []string
	Failed   map[string]error
}

// OK reports whether at least one relay accepted the event.
func (r PublishResult) OK() bool { return len(r.Accepted) > 0 }

// Publish fans the event out to every relay concurrently. The result carries
// which relays accepted and which failed; an error is returned only when all
// of them rejected or timed out.
func (p *Pool) Publish(ctx context.Context, e *codec.Event) (PublishResult, error) {
	p.mu.RLock()
	clients := make([]*Client, len(p.clients))
	copy(clients, p.clients)
	p.mu.RUnlock()

	res := PublishResult{Failed: make(map[string]error)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			err := c.Publish(ctx, e)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed[c.URL()] = err
				return
			}
			res.Accepted = append(res.Accepted, c.URL())
		}(c)
	}
	wg.Wait()

	if !res.OK() {
		return res, fmt.Errorf("event %s rejected by all %d relays", e.ID, len(clients))
	}
	for url, err := range res.Failed {
		p.log.Warn("relay did not accept event", "relay", url, "event", e.ID, "error", err)
	}
	return res, nil
}

// Collect queries every relay concurrently and merges the results, keeping
// the first copy of each event id. It returns as soon as every relay has
// signalled EOSE, or when the window elapses for the stragglers.
func (p *Pool) Collect(ctx context.Context, filters []codec.Filter, window time.Duration) ([]*codec.Event, error) {
	p.mu.RLock()
	clients := make([]*Client, len(p.clients))
	copy(clients, p.clients)
	p.mu.RUnlock()

	type relayResult struct {
		events []*codec.Event
		err    error
	}
	results := make(chan relayResult, len(clients))
	for _, c := range clients {
		go func(c *Client) {
			events, err := c.Collect(ctx, filters, window)
			results <- relayResult{events: events, err: err}
		}(c)
	}

	seen := make(map[string]bool)
	var merged []*codec.Event
	var firstErr error
	for range clients {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		for _, e := range r.events {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			merged = append(merged, e)
		}
	}

	// A partial answer from the responsive relays beats failing the query.
	if merged == nil && firstErr != nil {
		return nil, firstErr
	}
	return merged, nil
}

// Watch opens a live subscription on every relay and forwards deduplicated
// events to onEvent until the context ends.
func (p *Pool) Watch(ctx context.Context, filters []codec.Filter, onEvent func(*codec.Event)) error {
	p.mu.RLock()
	clients := make([]*Client, len(p.clients))
	copy(clients, p.clients)
	p.mu.RUnlock()

	var seenMu sync.Mutex
	seen := make(map[string]bool)
	dedup := func(e *codec.Event) {
		seenMu.Lock()
		dup := seen[e.ID]
		seen[e.ID] = true
		seenMu.Unlock()
		if !dup {
			onEvent(e)
		}
	}

	var subs []*Subscription
	for _, c := range clients {
		sub, err := c.Subscribe(ctx, filters, dedup)
		if err != nil {
			p.log.Warn("live subscription failed", "relay", c.URL(), "error", err)
			continue
		}
		subs = append(subs, sub)
	}
	if len(subs) == 0 {
		return fmt.Errorf("no relay accepted the subscription")
	}

	go func() {
		<-ctx.Done()
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()
	return nil
}
