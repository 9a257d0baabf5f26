package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/talentbridge/platform/internal/notify"
	"github.com/talentbridge/platform/internal/realtime"
)

// Subscriber is the live-connection side of the real-time channel,
// consumed by the SSE stream endpoint. *realtime.Hub satisfies it.
type Subscriber interface {
	Subscribe(target notify.Target) *realtime.Subscription
	Unsubscribe(sub *realtime.Subscription)
}

// streamHeartbeat keeps idle SSE connections from being reaped by proxies.
const streamHeartbeat = 25 * time.Second

// StreamNotifications handles GET /v1/notifications/stream?role=&recipient_id=.
// It registers the client with the hub and relays events as server-sent
// events until the client disconnects. Missed events are not replayed here;
// clients reconcile through the poll endpoint.
func (h *Handler) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	if h.subs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "stream_unavailable",
			"Real-time stream unavailable", "")
		return
	}

	role, recipientID, ok := h.targetFromQuery(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		h.writeError(w, http.StatusInternalServerError, "stream_unavailable",
			"Streaming unsupported by connection", "")
		return
	}

	target := notify.Target{Role: role, RecipientID: recipientID}
	sub := h.subs.Subscribe(target)
	defer h.subs.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info("stream opened",
		zap.String("subscriber_id", sub.ID.String()),
		zap.String("role", role),
		zap.Bool("broadcast_only", recipientID == nil),
	)

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("stream closed",
				zap.String("subscriber_id", sub.ID.String()),
			)
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case ev, open := <-sub.C:
			if !open {
				return
			}
			data, err := json.Marshal(ev.Payload)
			if err != nil {
				h.logger.Error("failed to marshal stream payload", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
			flusher.Flush()
		}
	}
}
