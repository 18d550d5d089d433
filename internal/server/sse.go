package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/telnet2/go-practice/go-ipcbind/internal/event"
)

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second
)

// sseWriter writes Server-Sent Events frames and flushes after each one.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, rc: http.NewResponseController(w)}, nil
}

// writeEvent writes one frame. id becomes the client's Last-Event-ID and is
// omitted when empty.
func (s *sseWriter) writeEvent(eventType, id string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	var frame bytes.Buffer
	if id != "" {
		fmt.Fprintf(&frame, "id: %s\n", id)
	}
	fmt.Fprintf(&frame, "event: %s\ndata: %s\n\n", eventType, payload)
	if _, err := s.w.Write(frame.Bytes()); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseWriter) writeHeartbeat() error {
	if _, err := io.WriteString(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// streamEvents streams every bus envelope whose wire name matches the
// optional glob in the pattern query parameter.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		writeError(w, http.StatusBadRequest, "invalid pattern %q", pattern)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	messages, err := s.host.Bus().Tap(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	if err := sse.writeEvent("connected", "", map[string]string{"pattern": pattern}); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			msg.Ack()

			if pattern != "" {
				matched, _ := doublestar.Match(pattern, msg.Metadata.Get(event.MetaName))
				if !matched {
					continue
				}
			}
			if err := sse.writeEvent("message", msg.UUID, json.RawMessage(msg.Payload)); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.writeHeartbeat(); err != nil {
				return
			}
		}
	}
}
