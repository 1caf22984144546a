package bgrun

import (
	"net/http"

	"git.unix.lgbt/diamondburned/bgrun/bgrun/wire"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewStatusHandler creates an HTTP handler exposing the registry and,
// if gatherer is not nil, the daemon's metrics:
//
//	GET /running   same JSON list as the socket's running request
//	GET /metrics   Prometheus metrics
//	GET /health    "ok"
func NewStatusHandler(reg *Registry, gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/running", func(w http.ResponseWriter, _ *http.Request) {
		b, err := wire.EncodeRunning(reg.Entries())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	}).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	return r
}
