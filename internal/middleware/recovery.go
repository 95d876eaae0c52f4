package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/2beens/blogportal/internal/telemetry/metrics"
	"github.com/2beens/blogportal/pkg"

	log "github.com/sirupsen/logrus"
)

const panicPage = `<!DOCTYPE html><html><body><h1>Something went wrong</h1><p>Please try again later.</p></body></html>`

// PanicRecovery turns a panicking page handler into a 500 page. Aborted
// responses are re-raised so net/http can drop the connection.
func PanicRecovery(metricsManager *metrics.Manager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(respWriter http.ResponseWriter, req *http.Request) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(r)
				}

				log.WithFields(log.Fields{
					"request_id": RequestIDFromContext(req.Context()),
					"route":      routeName(req),
				}).Errorf("http: panic serving %s: %v\n%s", req.URL.Path, r, debug.Stack())
				if metricsManager != nil {
					metricsManager.CounterHandleRequestPanic.Inc()
				}
				pkg.WriteResponse(respWriter, pkg.ContentType.HTML, panicPage, http.StatusInternalServerError)
			}()

			next.ServeHTTP(respWriter, req)
		})
	}
}
