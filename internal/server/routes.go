package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *HttpServer) loadRoutes(mux *http.ServeMux) http.HandlerFunc {
	mux.HandleFunc("POST /Apna-Browser/Initialize-Payment", s.initializePayment)
	mux.HandleFunc("POST /Apna-Browser/Complete-Payment", s.completePayment)
	mux.HandleFunc("GET /{$}", s.home)
	mux.HandleFunc("GET /healthcheck", s.healthCheck)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return mux.ServeHTTP
}
