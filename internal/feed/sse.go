package feed

import (
	"bufio"
	"io"
	"strings"
)

const maxEventSize = 1 << 20

// Event is one server-sent event.
type Event struct {
	ID   string
	Type string
	Data string
}

// eventReader splits a text/event-stream body into events. Comment lines and
// unknown fields are ignored; multiple data lines are joined with "\n".
type eventReader struct {
	scanner *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &eventReader{scanner: scanner}
}

// Next returns the next complete event. It returns io.EOF when the stream
// ends cleanly, and discards a trailing event without a blank line.
func (r *eventReader) Next() (Event, error) {
	var (
		event   Event
		data    []string
		hasData bool
	)

	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")

		if line == "" {
			if !hasData {
				event = Event{ID: event.ID}
				continue
			}
			event.Data = strings.Join(data, "\n")
			if event.Type == "" {
				event.Type = "message"
			}
			return event, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "id":
			event.ID = value
		case "event":
			event.Type = value
		case "data":
			data = append(data, value)
			hasData = true
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}
