package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"anonedits/internal/domain"
)

const anonEdit = `{"type":"edit","title":"Test Page","user":"10.0.0.42","wiki":"enwiki","comment":"typo","timestamp":1700000000,"server_url":"https://en.wikipedia.org","server_script_path":"/w","revision":{"old":100,"new":101}}`

func TestRecentChangeEditEvent(t *testing.T) {
	cases := []struct {
		name      string
		change    RecentChange
		url       string
		anonymous bool
	}{
		{
			name: "anonymous ipv4 edit",
			change: RecentChange{Type: "edit", Title: "P", User: "10.0.0.1", Wiki: "enwiki",
				ServerURL: "https://en.wikipedia.org", ServerScriptPath: "/w", Revision: &Revision{Old: 1, New: 2}},
			url:       "https://en.wikipedia.org/w/index.php?diff=2&oldid=1",
			anonymous: true,
		},
		{
			name: "anonymous ipv6 page creation",
			change: RecentChange{Type: "new", Title: "P", User: "2001:db8::1", Wiki: "dewiki",
				ServerURL: "https://de.wikipedia.org", ServerScriptPath: "/w", Revision: &Revision{New: 7}},
			url:       "https://de.wikipedia.org/w/index.php?diff=7",
			anonymous: true,
		},
		{
			name:   "registered user",
			change: RecentChange{Type: "edit", Title: "P", User: "Alice", ServerURL: "https://x.org", Revision: &Revision{Old: 1, New: 2}},
			url:    "https://x.org/index.php?diff=2&oldid=1",
		},
		{
			name:      "log entry has no diff",
			change:    RecentChange{Type: "log", Title: "P", User: "10.0.0.1", ServerURL: "https://x.org"},
			anonymous: true,
		},
		{
			name:   "temporary account name is not an address",
			change: RecentChange{Type: "categorize", Title: "P", User: "~2024-12345"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := tc.change.EditEvent()
			if event.URL != tc.url {
				t.Fatalf("URL = %q, want %q", event.URL, tc.url)
			}
			if event.Anonymous != tc.anonymous {
				t.Fatalf("Anonymous = %v, want %v", event.Anonymous, tc.anonymous)
			}
			if event.Page != tc.change.Title || event.Editor != tc.change.User {
				t.Fatalf("event = %+v", event)
			}
		})
	}
}

func TestEventReader(t *testing.T) {
	stream := ": keepalive\n" +
		"event: message\nid: [{\"offset\":1}]\ndata: {\"a\":\ndata: 1}\n\n" +
		"data: plain\r\n\r\n" +
		"\n" +
		"event: message\ndata: partial"

	reader := newEventReader(strings.NewReader(stream))

	first, err := reader.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Type != "message" || first.ID != `[{"offset":1}]` || first.Data != "{\"a\":\n1}" {
		t.Fatalf("first event = %+v", first)
	}

	second, err := reader.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Type != "message" || second.Data != "plain" {
		t.Fatalf("second event = %+v", second)
	}

	if _, err := reader.Next(); err != io.EOF {
		t.Fatalf("Next after trailing partial event = %v, want io.EOF", err)
	}
}

func TestListenDeliversFilteredEditsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept header = %q", r.Header.Get("Accept"))
		}
		if r.Header.Get("User-Agent") != "anonedits-test" {
			t.Errorf("User-Agent header = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "id: 1\ndata: %s\n\n", anonEdit)
		fmt.Fprint(w, "id: 2\ndata: {\"type\":\"edit\",\"title\":\"Other\",\"user\":\"1.2.3.4\",\"wiki\":\"frwiki\"}\n\n")
		fmt.Fprint(w, "id: 3\ndata: {\"type\":\"edit\",\"title\":\"Second\",\"user\":\"Bob\",\"wiki\":\"enwiki\"}\n\n")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		edits []domain.EditEvent
	)
	client := NewClient(server.URL, WithWikis("enwiki"), WithUserAgent("anonedits-test"), WithBackoff(time.Hour, time.Hour))

	done := make(chan error, 1)
	go func() {
		done <- client.Listen(ctx, func(_ context.Context, edit domain.EditEvent) {
			mu.Lock()
			edits = append(edits, edit)
			n := len(edits)
			mu.Unlock()
			if n == 2 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Listen: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(edits) != 2 {
		t.Fatalf("edits = %d, want 2", len(edits))
	}
	if edits[0].Page != "Test Page" || !edits[0].Anonymous || edits[0].URL != "https://en.wikipedia.org/w/index.php?diff=101&oldid=100" {
		t.Fatalf("first edit = %+v", edits[0])
	}
	if edits[1].Page != "Second" || edits[1].Anonymous {
		t.Fatalf("second edit = %+v", edits[1])
	}
}

func TestListenResumesWithLastEventID(t *testing.T) {
	var (
		mu      sync.Mutex
		headers []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = append(headers, r.Header.Get("Last-Event-ID"))
		n := len(headers)
		mu.Unlock()
		fmt.Fprintf(w, "id: event-%d\ndata: %s\n\n", n, anonEdit)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	count := 0
	client := NewClient(server.URL, WithBackoff(time.Millisecond, 10*time.Millisecond))
	err := client.Listen(ctx, func(context.Context, domain.EditEvent) {
		count++
		if count == 2 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(headers) < 2 {
		t.Fatalf("connections = %d, want at least 2", len(headers))
	}
	if headers[0] != "" || headers[1] != "event-1" {
		t.Fatalf("Last-Event-ID headers = %v", headers)
	}
	if client.LastEventID() != "event-2" {
		t.Fatalf("LastEventID = %q", client.LastEventID())
	}
}

func TestBackoffIsLinearAndCapped(t *testing.T) {
	client := NewClient("http://unused", WithBackoff(time.Second, 3*time.Second))
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, w := range want {
		if got := client.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
}
