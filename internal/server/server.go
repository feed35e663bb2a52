package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"apna-payments/internal/dtos"
	"apna-payments/internal/services"

	"github.com/prometheus/client_golang/prometheus"
)

type HttpServer struct {
	is       services.IntentsInterface
	defaults dtos.PaymentDefaults
	gatherer prometheus.Gatherer
	port     string
	server   *http.Server
}

func NewServer(port string, is services.IntentsInterface, defaults dtos.PaymentDefaults, gatherer prometheus.Gatherer) *HttpServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &HttpServer{
		is:       is,
		defaults: defaults,
		gatherer: gatherer,
		port:     port,
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		portNum = 8080
	}
	// Built up front so Shutdown never races ListenAndServe on the field.
	s.server = s.createHTTPServer(portNum)
	return s
}

func (s *HttpServer) ListenAndServe() error {
	return s.server.ListenAndServe()
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the routed handler with the middleware chain applied.
func (s *HttpServer) Handler() http.Handler {
	router := s.loadRoutes(http.NewServeMux())
	middlewareChain := NewChain(
		s.recoverPanic,
		s.logRequest,
		s.noCache,
		s.enableCors,
	)
	return middlewareChain(router)
}

func (s *HttpServer) createHTTPServer(port int) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		IdleTimeout:  60 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
	}
}
