// Package httpapi monta as rotas HTTP do processo.
package httpapi

import (
	"encoding/json"
	"net/http"

	metrics "github.com/armon/go-metrics"
	"github.com/go-chi/chi/v5"
)

// SetupRoutes expõe o websocket do menu, o health check agregado e as métricas.
func SetupRoutes(ws http.Handler, health http.HandlerFunc, sink *metrics.InmemSink) http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", ws.ServeHTTP)
	r.Get("/health", health)
	if sink != nil {
		r.Get("/metrics", Metrics(sink))
	}
	return r
}

// Metrics serializa o último intervalo do sink em memória.
func Metrics(sink *metrics.InmemSink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := sink.DisplayMetrics(w, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summary)
	}
}
