package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"evermore/internal/stream"
)

// ssePayload is the JSON body of one server-sent event.
type ssePayload struct {
	Type          string `json:"type"`
	Text          string `json:"text,omitempty"`
	VersionID     string `json:"versionId,omitempty"`
	VersionNumber int    `json:"versionNumber,omitempty"`
	Message       string `json:"message,omitempty"`
	Retryable     bool   `json:"retryable,omitempty"`
}

// sseBridge adapts stream handler callbacks onto an event queue a single
// HTTP handler goroutine drains. The queue is closed after the terminal
// event so the drain loop exits. Handler sends select against done so that
// once the drain loop stops (client disconnect), the channel dispatcher is
// never left blocked on a full queue — Abort must stay reachable.
type sseBridge struct {
	events chan ssePayload
	done   chan struct{}
	once   sync.Once
}

func newSSEBridge() *sseBridge {
	return &sseBridge{
		events: make(chan ssePayload, 16),
		done:   make(chan struct{}),
	}
}

// stop releases any handler blocked on the queue. Idempotent.
func (b *sseBridge) stop() {
	b.once.Do(func() { close(b.done) })
}

// send queues one payload, giving up when the bridge has stopped draining.
func (b *sseBridge) send(payload ssePayload) bool {
	select {
	case b.events <- payload:
		return true
	case <-b.done:
		return false
	}
}

func (b *sseBridge) handlers() stream.Handlers {
	return stream.Handlers{
		OnChunk: func(text string) {
			b.send(ssePayload{Type: "chunk", Text: text})
		},
		OnDone: func(versionID string, versionNumber int) {
			b.send(ssePayload{Type: "done", VersionID: versionID, VersionNumber: versionNumber})
			close(b.events)
		},
		OnError: func(message string, retryable bool) {
			b.send(ssePayload{Type: "error", Message: message, Retryable: retryable})
			close(b.events)
		},
	}
}

// serve writes the queue to the response as an SSE stream. If the client
// disconnects first the bridge is stopped before the channel is aborted:
// the dispatcher may be mid-delivery holding the channel mutex, and it has
// to be released from the queue before Abort can take that mutex.
func (b *sseBridge) serve(w http.ResponseWriter, r *http.Request, ch *stream.Channel) {
	defer b.stop()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			b.stop()
			ch.Abort()
			return
		case payload, open := <-b.events:
			if !open {
				return
			}
			body, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", body)
			flusher.Flush()
		}
	}
}
