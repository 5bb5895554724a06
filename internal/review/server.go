package review

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server handles HTTP requests for estimate reviews
type Server struct {
	service  *Service
	gatherer prometheus.Gatherer
	mux      *http.ServeMux
}

// NewServer creates a new Server with default mux. A nil gatherer disables
// the /metrics endpoint.
func NewServer(service *Service, gatherer prometheus.Gatherer) *Server {
	return NewServerWithMux(service, gatherer, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, gatherer prometheus.Gatherer, mux *http.ServeMux) *Server {
	s := &Server{
		service:  service,
		gatherer: gatherer,
		mux:      mux,
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/classify", s.handleClassify)

	s.mux.HandleFunc("GET /api/reviews/{id}/file", s.handleGetDocument)
	s.mux.HandleFunc("GET /api/reviews/{id}/export.xlsx", s.handleExportReview)
	s.mux.HandleFunc("POST /api/reviews/{id}/analyze", s.handleReanalyze)
	s.mux.HandleFunc("GET /api/reviews/{id}", s.handleGetReview)
	s.mux.HandleFunc("DELETE /api/reviews/{id}", s.handleDeleteReview)
	s.mux.HandleFunc("GET /api/reviews", s.handleListReviews)
	s.mux.HandleFunc("POST /api/reviews", s.handleUploadReview)

	s.mux.HandleFunc("GET /api/operations/summary", s.handleOperationsSummary)
	s.mux.HandleFunc("GET /api/operations", s.handleListOperations)
	s.mux.HandleFunc("DELETE /api/operations", s.handleClearOperations)

	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.corsMiddleware(s.mux))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux).ServeHTTP(w, r)
}
