package streaming

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SSEWriter frames JSON payloads as Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for an event stream. w must support flushing.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteRetry tells the client how long to wait before reconnecting
func (s *SSEWriter) WriteRetry(d time.Duration) error {
	return s.flush(fmt.Sprintf("retry: %d\n\n", d.Milliseconds()))
}

// WriteEvent writes one event whose data is the JSON encoding of payload.
// An empty id is omitted.
func (s *SSEWriter) WriteEvent(event, id string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event, err)
	}

	var frame strings.Builder
	if id != "" {
		frame.WriteString("id: " + id + "\n")
	}
	if event != "" {
		frame.WriteString("event: " + event + "\n")
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		frame.WriteString("data: ")
		frame.Write(line)
		frame.WriteByte('\n')
	}
	frame.WriteByte('\n')
	return s.flush(frame.String())
}

// WriteComment writes a comment frame; clients ignore it, proxies see traffic
func (s *SSEWriter) WriteComment(text string) error {
	return s.flush(": " + text + "\n\n")
}

func (s *SSEWriter) flush(frame string) error {
	if _, err := io.WriteString(s.w, frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Event is one parsed SSE event
type Event struct {
	ID   string
	Name string
	Data []byte
}

// ParseSSEStream reads events until EOF, ctx is done or handle returns an
// error. Comments and events without data are skipped. EOF returns nil.
func ParseSSEStream(ctx context.Context, reader *bufio.Reader, handle func(Event) error) error {
	var (
		ev   Event
		data [][]byte
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) > 0 {
				ev.Data = bytes.Join(data, []byte("\n"))
				if err := handle(ev); err != nil {
					return err
				}
			}
			ev, data = Event{}, nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			ev.ID = value
		case "event":
			ev.Name = value
		case "data":
			data = append(data, []byte(value))
		}
	}
}

// cycleID renders the SSE id of a snapshot
func cycleID(cycle uint64) string {
	return strconv.FormatUint(cycle, 10)
}
