// Package api exposes tip submission, quotes, fee settings and balances over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"tip-settlement/internal/logging"
	"tip-settlement/internal/observability"
	"tip-settlement/internal/tipping"
)

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	service  *tipping.Service
	auth     *Authenticator
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	origins  []string
}

// Options contains configuration for creating a Server.
type Options struct {
	Service        *tipping.Service
	Auth           AuthConfig
	Logger         logrus.FieldLogger
	Metrics        *observability.Metrics
	Gatherer       prometheus.Gatherer // Served on /metrics. Default: prometheus.DefaultGatherer
	AllowedOrigins []string            // Default: any origin
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	logger := logging.OrDiscard(opts.Logger)
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		service:  opts.Service,
		auth:     NewAuthenticator(opts.Auth, logger),
		logger:   logger,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		origins:  origins,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", observability.Handler(s.gatherer))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/tips", s.handleSubmitTip)
		r.Get("/tips/{tipID}", s.handleGetTip)
		r.Get("/tips/{tipID}/postings", s.handleGetPostings)

		r.Post("/quotes", s.handleQuote)

		r.Get("/fees/{recipientID}", s.handleListFees)
		r.Get("/fees/{recipientID}/{contentID}", s.handleGetFee)
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			// An empty content id addresses the recipient-wide default.
			r.Put("/fees/{recipientID}", s.handleSetFee)
			r.Put("/fees/{recipientID}/{contentID}", s.handleSetFee)
		})

		r.Get("/balances/{network}/{address}", s.handleGetBalance)
		r.Get("/balances/{network}/{address}/tips", s.handleTipsTo)
	})

	return r
}

// observe logs and counts every request by its route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.RecordHTTP(route, status, elapsed)

		entry := s.logger.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"duration":   elapsed,
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("request failed")
		} else {
			entry.Debug("request served")
		}
	})
}

func tippingRequest(req submitTipRequest, amount uint256.Int) tipping.TipRequest {
	return tipping.TipRequest{
		Network:     req.Network,
		TxID:        req.TxID,
		EventIndex:  req.EventIndex,
		From:        req.From,
		To:          req.To,
		RecipientID: req.RecipientID,
		ContentID:   req.ContentID,
		Amount:      amount,
		Memo:        req.Memo,
	}
}
