// Package server exposes the pipeline's HTTP surface: the read API, a
// health endpoint aggregating adapter connectivity, Prometheus metrics
// exposition, and basic stats. The real-time transport itself lives
// outside this module; this is only the read boundary.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Aayush-engineer/chatflux/errors"
	"github.com/Aayush-engineer/chatflux/reader"
)

// Pinger reports adapter connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BrokerStatus reports broker connectivity.
type BrokerStatus interface {
	IsHealthy() bool
}

// Counter reports stored event counts.
type Counter interface {
	Count(ctx context.Context, streamID string) (int64, error)
}

// Server is the HTTP read surface.
type Server struct {
	reader  *reader.Reader
	store   Pinger
	cache   Pinger
	broker  BrokerStatus
	counter Counter
	metrics http.Handler
	logger  *slog.Logger

	httpServer *http.Server
	startTime  time.Time
}

// New creates the HTTP server on the given port.
func New(
	port int,
	rd *reader.Reader,
	store Pinger,
	cache Pinger,
	broker BrokerStatus,
	counter Counter,
	metricsHandler http.Handler,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		reader:  rd,
		store:   store,
		cache:   cache,
		broker:  broker,
		counter: counter,
		metrics: metricsHandler,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("POST /get_messages", s.handleGetMessages)
	mux.HandleFunc("GET /stats", s.handleStats)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving. Listen errors after startup are logged, not
// returned; a bind failure is returned synchronously.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.WrapFatal(err, "Server", "Start", "bind "+s.httpServer.Addr)
	}
	s.startTime = time.Now()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed",
				"component", "server",
				"error", err)
		}
	}()

	s.logger.Info("HTTP server started",
		"component", "server",
		"addr", s.httpServer.Addr)
	return nil
}

// Stop shuts the server down gracefully within timeout.
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"success": false,
			"error":   "endpoint not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"service": "chatflux",
		"endpoints": map[string]string{
			"health":   "GET /health",
			"metrics":  "GET /metrics",
			"messages": "POST /get_messages",
			"stats":    "GET /stats",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	services := map[string]string{
		"store":  pingStatus(ctx, s.store),
		"cache":  pingStatus(ctx, s.cache),
		"broker": brokerStatus(s.broker),
	}

	healthy := true
	for _, status := range services {
		if status != "connected" {
			healthy = false
		}
	}

	code := http.StatusOK
	status := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "degraded"
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startTime).Seconds(),
		"services":  services,
	})
}

// getMessagesRequest mirrors the read API surface: limit 1..100, optional
// before cursor, stream defaulting to global.
type getMessagesRequest struct {
	Limit  int             `json:"limit"`
	Before json.RawMessage `json:"before"`
	RoomID string          `json:"roomId"`
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	var req getMessagesRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   "validation failed",
				"details": "malformed request body",
			})
			return
		}
	}

	before, err := parseBefore(req.Before)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "validation failed",
			"details": "malformed before cursor",
		})
		return
	}

	result, err := s.reader.Read(r.Context(), req.RoomID, req.Limit, before)
	if err != nil {
		if errors.IsInvalid(err) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}
		s.logger.Error("Read failed",
			"component", "server",
			"error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "failed to fetch messages",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"count":    result.Count,
		"messages": result.Events,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.counter.Count(r.Context(), "")
	if err != nil {
		s.logger.Error("Stats query failed",
			"component", "server",
			"error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "failed to fetch statistics",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats": map[string]any{
			"totalMessages": total,
			"serverUptime":  time.Since(s.startTime).Seconds(),
			"timestamp":     time.Now().UnixMilli(),
		},
	})
}

func pingStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "not configured"
	}
	if err := p.Ping(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}

func brokerStatus(b BrokerStatus) string {
	if b == nil {
		return "not configured"
	}
	if !b.IsHealthy() {
		return "disconnected"
	}
	return "connected"
}

// parseBefore accepts the cursor as Unix milliseconds or an RFC 3339
// timestamp. Absent cursor returns 0.
func parseBefore(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		if ms < 0 {
			return 0, errors.ErrInvalidData
		}
		return ms, nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, errors.ErrInvalidData
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return 0, errors.ErrInvalidData
	}
	return t.UnixMilli(), nil
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
