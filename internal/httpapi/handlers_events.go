package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/carbonlabs/carbon/internal/eventbus"
)

// keepAliveInterval is how often events sends a comment line to keep
// intermediaries from closing an idle connection.
const keepAliveInterval = 15 * time.Second

// events handles GET /events, an SSE stream of CacheItemEvents filtered by
// the optional cache= and type= query parameters.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, fmt.Errorf("streaming unsupported"))
		return
	}

	filter := filterFromQuery(r)
	sub := s.bus.Subscribe(filter)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		delivery, err := recvWithTimeout(ctx, sub, keepAliveInterval)
		if err != nil {
			return
		}
		if delivery == nil {
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
			continue
		}
		if delivery.Lagged > 0 {
			fmt.Fprintf(w, "event: lagged\ndata: {\"dropped\":%d}\n\n", delivery.Lagged)
			flusher.Flush()
			continue
		}
		payload, err := delivery.Event.ToJSON()
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", delivery.Event.SSEName(), payload)
		flusher.Flush()
	}
}

// recvWithTimeout wraps Subscription.Recv with a keep-alive deadline,
// returning (nil, nil) on timeout so the caller can emit a comment line,
// and (nil, err) only when the request's own context is done.
func recvWithTimeout(ctx context.Context, sub *eventbus.Subscription, timeout time.Duration) (*eventbus.Delivery, error) {
	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d, err := sub.Recv(subCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	return &d, nil
}

func filterFromQuery(r *http.Request) eventbus.Filter {
	var f eventbus.Filter
	if caches := r.URL.Query().Get("cache"); caches != "" {
		f.CacheNames = make(map[string]struct{})
		for _, c := range strings.Split(caches, ",") {
			if c = strings.TrimSpace(c); c != "" {
				f.CacheNames[c] = struct{}{}
			}
		}
	}
	if kinds := r.URL.Query().Get("type"); kinds != "" {
		f.Kinds = make(map[eventbus.Kind]struct{})
		for _, k := range strings.Split(kinds, ",") {
			if k = strings.TrimSpace(k); k != "" {
				f.Kinds[eventbus.Kind(k)] = struct{}{}
			}
		}
	}
	return f
}
