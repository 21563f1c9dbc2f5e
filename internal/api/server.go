// Package api exposes the scanner core's use cases over HTTP, per the
// four-endpoint surface plus a statistics and metrics endpoint the
// expanded spec adds.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/secinto/httpobservatory/internal/api/middleware"
	"github.com/secinto/httpobservatory/internal/application/scanning"
	"github.com/secinto/httpobservatory/internal/battery"
	"github.com/secinto/httpobservatory/internal/batchrunner"
	"github.com/secinto/httpobservatory/internal/domain/scan"
	"github.com/secinto/httpobservatory/internal/grader"
	"github.com/secinto/httpobservatory/internal/persistence"
	secerrors "github.com/secinto/httpobservatory/internal/shared/errors"
)

// Orchestrator is the narrow surface the API needs from
// internal/application/scanning, kept as an interface so server tests
// can stub it without a real retriever.
type Orchestrator interface {
	Scan(ctx context.Context, hostString string, overrides battery.Overrides) (scanning.Result, error)
	ScanFullDetails(ctx context.Context, hostString string, overrides battery.Overrides) (scanning.Result, error)
	AnalyzeGet(ctx context.Context, hostString string, overrides battery.Overrides) (scanning.Result, []scan.Row, error)
	AnalyzePost(ctx context.Context, hostString string, overrides battery.Overrides) (scanning.Result, []scan.Row, error)
	ScanBatchFullDetails(ctx context.Context, urls []string, overrides battery.Overrides) (map[string]batchrunner.Entry, error)
}

// StatsProvider is the narrow surface the /api/v2/stats endpoint needs.
type StatsProvider interface {
	Stats() (persistence.Stats, error)
}

// Config wires the Server to its collaborators.
type Config struct {
	Orchestrator Orchestrator
	Stats        StatsProvider
	BaseURL      string
	AuthToken    string // empty disables JWT auth on mutating endpoints
	Logger       *zap.Logger
	CORSOrigins  []string
	RateLimit    float64 // requests per second, per client; <= 0 disables the limiter
	RateBurst    int
	Registerer   prometheus.Registerer
}

type Server struct {
	cfg      Config
	mux      *http.ServeMux
	limiters *rateLimiterMap
	metrics  *metrics
}

func NewServer(cfg Config) *Server {
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}
	srv := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		limiters: newRateLimiterMap(),
		metrics:  newMetrics(cfg.Registerer),
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// RequestID -> Logging -> RateLimit -> CORS -> Auth (per-route) -> Handler.
	handler := middleware.RequestID(s.withLogging(s.withRateLimit(s.withCORS(s.mux))))
	handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	auth := middleware.Auth(s.cfg.AuthToken, func(w http.ResponseWriter, r *http.Request, err error) {
		s.writeError(w, r, http.StatusUnauthorized, err)
	})

	s.mux.Handle("/api/v2/scan", auth(http.HandlerFunc(s.handleScan)))
	s.mux.Handle("/api/v2/scanFullDetails", auth(http.HandlerFunc(s.handleScanFullDetails)))
	s.mux.Handle("/api/v2/analyze", http.HandlerFunc(s.handleAnalyze)) // GET is unauthenticated read, POST gated below
	s.mux.Handle("/api/v2/scanBatchFullDetails", auth(http.HandlerFunc(s.handleScanBatch)))
	s.mux.Handle("/api/v2/stats", http.HandlerFunc(s.handleStats))
	s.mux.Handle("/healthz", http.HandlerFunc(s.handleHealth))
	s.mux.Handle("/metrics", promhttp.HandlerFor(prometheusGatherer(s.cfg.Registerer), promhttp.HandlerOpts{}))
}

func prometheusGatherer(reg prometheus.Registerer) prometheus.Gatherer {
	if g, ok := reg.(prometheus.Gatherer); ok {
		return g
	}
	return prometheus.DefaultGatherer
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scanRequest struct {
	Host string `json:"host"`
}

func (s *Server) readHost(w http.ResponseWriter, r *http.Request) (string, bool) {
	switch r.Method {
	case http.MethodGet:
		host := r.URL.Query().Get("host")
		if host == "" {
			s.writeError(w, r, http.StatusUnprocessableEntity, secerrors.ErrMissingHost)
			return "", false
		}
		return host, true
	case http.MethodPost:
		if host := r.URL.Query().Get("host"); host != "" {
			return host, true
		}
		r.Body = http.MaxBytesReader(w, r.Body, 65536)
		var req scanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Host == "" {
			s.writeError(w, r, http.StatusUnprocessableEntity, secerrors.ErrMissingHost)
			return "", false
		}
		return req.Host, true
	default:
		s.methodNotAllowed(w, r)
		return "", false
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}
	host, ok := s.readHost(w, r)
	if !ok {
		return
	}
	start := time.Now()
	res, err := s.cfg.Orchestrator.Scan(r.Context(), host, nil)
	if err != nil {
		s.writeScanError(w, r, err)
		return
	}
	s.observe(res, time.Since(start))
	writeJSON(w, http.StatusOK, s.toResponse(res, nil))
}

func (s *Server) handleScanFullDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}
	host, ok := s.readHost(w, r)
	if !ok {
		return
	}
	start := time.Now()
	res, err := s.cfg.Orchestrator.ScanFullDetails(r.Context(), host, nil)
	if err != nil {
		s.writeScanError(w, r, err)
		return
	}
	s.observe(res, time.Since(start))
	writeJSON(w, http.StatusOK, s.toResponse(res, nil))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		host, ok := s.readHost(w, r)
		if !ok {
			return
		}
		start := time.Now()
		res, history, err := s.cfg.Orchestrator.AnalyzeGet(r.Context(), host, nil)
		if err != nil {
			s.writeScanError(w, r, err)
			return
		}
		s.observe(res, time.Since(start))
		writeJSON(w, http.StatusOK, s.toResponse(res, history))
	case http.MethodPost:
		auth := middleware.Auth(s.cfg.AuthToken, func(w http.ResponseWriter, r *http.Request, err error) {
			s.writeError(w, r, http.StatusUnauthorized, err)
		})
		auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, ok := s.readHost(w, r)
			if !ok {
				return
			}
			start := time.Now()
			res, history, err := s.cfg.Orchestrator.AnalyzePost(r.Context(), host, nil)
			if err != nil {
				s.writeScanError(w, r, err)
				return
			}
			s.observe(res, time.Since(start))
			writeJSON(w, http.StatusOK, s.toResponse(res, history))
		})).ServeHTTP(w, r)
	default:
		s.methodNotAllowed(w, r)
	}
}

type batchRequest struct {
	URLs []string `json:"urls"`
}

// batchResponse carries a job ID so a caller can correlate a batch
// submission with the server's logs for that run; no state is kept
// under the ID since every batch is served synchronously.
type batchResponse struct {
	JobID   string                       `json:"job_id"`
	Results map[string]batchrunner.Entry `json:"results"`
}

func (s *Server) handleScanBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}
	jobID := uuid.NewString()
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.URLs) == 0 {
		s.writeError(w, r, http.StatusUnprocessableEntity, secerrors.ErrEmptyBatch)
		return
	}
	if s.cfg.Logger != nil {
		s.cfg.Logger.Info("batch scan submitted", zap.String("job_id", jobID), zap.Int("urls", len(req.URLs)))
	}
	results, err := s.cfg.Orchestrator.ScanBatchFullDetails(r.Context(), req.URLs, nil)
	if err != nil {
		s.writeScanError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{JobID: jobID, Results: results})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Stats == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("statistics surface not available"))
		return
	}
	stats, err := s.cfg.Stats.Stats()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// scanResponse is a ScanReport enriched with the API-layer fields the
// core's grader.ScanReport intentionally does not know about.
type scanResponse struct {
	grader.ScanReport
	SiteKey    string     `json:"site_key"`
	DetailsURL string     `json:"details_url,omitempty"`
	History    []scan.Row `json:"history,omitempty"`
}

func (s *Server) toResponse(res scanning.Result, history []scan.Row) scanResponse {
	return scanResponse{
		ScanReport: res.Report,
		SiteKey:    res.Row.SiteKey,
		DetailsURL: fmt.Sprintf("%s/api/v2/scanFullDetails?host=%s", strings.TrimRight(s.cfg.BaseURL, "/"), res.Row.SiteKey),
		History:    history,
	}
}

func (s *Server) observe(res scanning.Result, duration time.Duration) {
	grade := ""
	if res.Report.Grade != nil {
		grade = string(*res.Report.Grade)
	}
	outcome := "success"
	if res.Report.Error != "" {
		outcome = "retrieval-error"
	}
	s.metrics.observeScan(res.FromCache, grade, outcome, duration)
}

// writeScanError maps a validation error to 422; anything else (the
// caller already folded retrieval failures into a successful Result with
// Report.Error set, never an error return) becomes a 500.
func (s *Server) writeScanError(w http.ResponseWriter, r *http.Request, err error) {
	switch err {
	case secerrors.ErrInvalidHostname, secerrors.ErrInvalidHostnameLookup, secerrors.ErrInvalidPort,
		secerrors.ErrEmptyBatch, secerrors.ErrBatchTooLarge, secerrors.ErrMissingHost:
		s.writeError(w, r, http.StatusUnprocessableEntity, err)
	default:
		s.writeError(w, r, http.StatusInternalServerError, err)
	}
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		clientIP := clientIPOf(r)
		limiter := s.limiters.getLimiter(clientIP, s.cfg.RateLimit, s.cfg.RateBurst)
		if !limiter.Allow() {
			// Rate-limit exhaustion is not an error: the request is not
			// rejected and passes to the handler unchanged, exactly as an
			// allowed one does. Whether a retrieval runs is decided by
			// the cooldown cache behind the handler, not by this limiter.
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIPOf(r *http.Request) string {
	clientIP := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx > 0 {
			clientIP = strings.TrimSpace(forwarded[:idx])
		} else {
			clientIP = strings.TrimSpace(forwarded)
		}
	}
	if idx := strings.LastIndex(clientIP, ":"); idx > 0 {
		clientIP = clientIP[:idx]
	}
	return clientIP
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowOrigin := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			allowed := false
			for _, o := range s.cfg.CORSOrigins {
				if o == origin {
					allowed = true
					allowOrigin = origin
					break
				}
			}
			if !allowed {
				allowOrigin = ""
			}
		}
		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		duration := time.Since(start)
		if s.cfg.Logger != nil {
			requestID := middleware.GetRequestID(r.Context())
			s.cfg.Logger.Info("http_request",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", lrw.statusCode),
				zap.Duration("duration", duration),
				zap.Int64("bytes", lrw.bytesWritten),
			)
		}
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		if s.cfg.Logger != nil {
			s.requestLogger(r).Error("internal_server_error", zap.Error(err), zap.Int("status", status))
		}
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "message": msg})
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if s.cfg.Logger == nil {
		return zap.NewNop()
	}
	requestID := middleware.GetRequestID(r.Context())
	return s.cfg.Logger.With(
		zap.String("request_id", requestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// rateLimiterMap manages per-IP rate limiters with automatic cleanup.
type rateLimiterMap struct {
	mu       sync.RWMutex
	limiters map[string]*ipLimiter
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiterMap() *rateLimiterMap {
	m := &rateLimiterMap{limiters: make(map[string]*ipLimiter)}
	go m.cleanupLoop()
	return m
}

func (m *rateLimiterMap) getLimiter(ip string, rps float64, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, exists := m.limiters[ip]
	if !exists {
		l = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst), lastSeen: time.Now()}
		m.limiters[ip] = l
	} else {
		l.lastSeen = time.Now()
	}
	return l.limiter
}

func (m *rateLimiterMap) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		m.mu.Lock()
		for ip, l := range m.limiters {
			if time.Since(l.lastSeen) > 5*time.Minute {
				delete(m.limiters, ip)
			}
		}
		m.mu.Unlock()
	}
}
