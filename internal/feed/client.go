package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"anonedits/internal/domain"
)

const (
	defaultBackoffStep = time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// Handler receives edits one at a time, in feed order.
type Handler func(ctx context.Context, edit domain.EditEvent)

type Client struct {
	url         string
	userAgent   string
	wikis       map[string]struct{}
	httpClient  *http.Client
	backoffStep time.Duration
	maxBackoff  time.Duration

	lastEventID string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// WithWikis limits delivered edits to the given wiki identifiers ("enwiki").
func WithWikis(wikis ...string) Option {
	return func(cl *Client) {
		if len(wikis) == 0 {
			return
		}
		cl.wikis = make(map[string]struct{}, len(wikis))
		for _, w := range wikis {
			cl.wikis[w] = struct{}{}
		}
	}
}

func WithBackoff(step, max time.Duration) Option {
	return func(cl *Client) {
		cl.backoffStep = step
		cl.maxBackoff = max
	}
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		httpClient:  &http.Client{},
		backoffStep: defaultBackoffStep,
		maxBackoff:  defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LastEventID is the id of the last event received, sent on reconnect so the
// stream resumes where it left off.
func (c *Client) LastEventID() string {
	return c.lastEventID
}

// Listen streams edits to handle until ctx is cancelled, reconnecting after
// any disconnect. The wait between attempts grows linearly up to the maximum
// and resets once a connection delivers an event.
func (c *Client) Listen(ctx context.Context, handle Handler) error {
	if handle == nil {
		return errors.New("feed: handler cannot be nil")
	}

	attempt := 0
	for {
		received, err := c.stream(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		if received > 0 {
			attempt = 0
		}
		attempt++

		wait := c.backoff(attempt)
		reconnectsTotal.Inc()
		log.Warn("Feed disconnected, reconnecting", "error", err, "events", received, "retry_in", wait)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	wait := time.Duration(attempt) * c.backoffStep
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	return wait
}

// stream runs one connection and returns how many events it delivered.
func (c *Client) stream(ctx context.Context, handle Handler) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, fmt.Errorf("feed: create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.lastEventID != "" {
		req.Header.Set("Last-Event-ID", c.lastEventID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("feed: connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("feed: HTTP %d: %s", resp.StatusCode, string(body))
	}

	log.Info("Connected to recent changes feed", "url", c.url)

	reader := newEventReader(resp.Body)
	received := 0
	for {
		event, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return received, errors.New("feed: stream closed by server")
			}
			return received, fmt.Errorf("feed: read: %w", err)
		}
		received++
		eventsReceivedTotal.Inc()

		if event.ID != "" {
			c.lastEventID = event.ID
		}
		if event.Type != "message" {
			continue
		}

		var change RecentChange
		if err := json.Unmarshal([]byte(event.Data), &change); err != nil {
			log.Debug("Skipping undecodable feed event", "error", err)
			continue
		}
		if !c.accepts(change.Wiki) {
			continue
		}

		handle(ctx, change.EditEvent())
	}
}

func (c *Client) accepts(wiki string) bool {
	if c.wikis == nil {
		return true
	}
	_, ok := c.wikis[wiki]
	return ok
}
