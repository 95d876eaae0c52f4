package guard

import (
	"fmt"
	"net/http"
	"time"

	"github.com/2beens/blogportal/internal/session"

	log "github.com/sirupsen/logrus"
)

const defaultHeartbeat = 15 * time.Second

// eventNavigator records the replace-navigation so it can be sent as event.
type eventNavigator struct {
	path string
}

func (n *eventNavigator) Replace(path string) {
	n.path = path
}

// WatchHandler streams the session state of the requesting client as
// server-sent events. A guarded page keeps it open; once the session turns
// anonymous (e.g. logout from another tab) a single navigate event carrying
// the login path is sent and the stream ends.
func WatchHandler(cfg Config, heartbeat time.Duration) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := session.FromContext(r.Context())
		if !ok {
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		updates, cancel := m.Subscribe()
		defer cancel()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		g := New(cfg)
		nav := &eventNavigator{}
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case snap := <-updates:
				if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", snap.State); err != nil {
					log.Debugf("session watch [%s]: write: %s", m.ClientID(), err)
					return
				}
				if g.Evaluate(snap, nav) == DecisionRedirect && nav.path != "" {
					fmt.Fprintf(w, "event: navigate\ndata: %s\n\n", nav.path)
					flusher.Flush()
					return
				}
				flusher.Flush()
			}
		}
	}
}
