package guard

import (
	"net/http"

	"github.com/2beens/blogportal/internal/session"
	"github.com/2beens/blogportal/internal/telemetry/metrics"
	"github.com/2beens/blogportal/internal/telemetry/tracing"
	"github.com/2beens/blogportal/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// refreshSeconds is how soon a loading page asks the browser to retry
const refreshSeconds = "1"

const defaultLoadingPage = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>Loading</title></head><body><p>Loading...</p></body></html>`

// httpNavigator turns a replace-navigation into a 302 response.
type httpNavigator struct {
	w    http.ResponseWriter
	r    *http.Request
	done bool
}

func (n *httpNavigator) Replace(path string) {
	if n.done {
		return
	}
	n.done = true
	http.Redirect(n.w, n.r, path, http.StatusFound)
}

// Middleware guards every route below it. Each request is one render: while
// the client session initializes, the loading handler is served and nothing
// else; an anonymous client gets a single redirect to the login path.
func Middleware(cfg Config, loading http.Handler, metricsManager *metrics.Manager) func(next http.Handler) http.Handler {
	if loading == nil {
		loading = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pkg.WriteResponse(w, pkg.ContentType.HTML, defaultLoadingPage, http.StatusOK)
		})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.GlobalTracer.Start(r.Context(), "guard."+string(cfg.Zone))
			defer span.End()

			m, ok := session.FromContext(ctx)
			if !ok {
				log.Errorf("guard [%s]: no session in request context for %s", cfg.Zone, r.URL.Path)
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				span.SetStatus(codes.Error, "no-session")
				return
			}

			snap := m.Snapshot()
			span.SetAttributes(
				attribute.String("session.state", snap.State.String()),
				attribute.Int64("session.revision", int64(snap.Revision)),
			)

			nav := &httpNavigator{w: w, r: r}
			switch New(cfg).Evaluate(snap, nav) {
			case DecisionLoading:
				w.Header().Set("Refresh", refreshSeconds)
				w.Header().Set("Cache-Control", "no-store")
				loading.ServeHTTP(w, r.WithContext(ctx))
				span.SetStatus(codes.Ok, "loading")
			case DecisionRedirect:
				log.Tracef("guard [%s]: anonymous => %s", cfg.Zone, cfg.LoginPath)
				if metricsManager != nil {
					metricsManager.CounterGuardRedirects.WithLabelValues(string(cfg.Zone)).Inc()
				}
				span.SetStatus(codes.Ok, "redirect")
			default:
				span.SetStatus(codes.Ok, "render")
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}
