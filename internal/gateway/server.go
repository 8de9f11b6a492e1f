// Package gateway is the inbound HTTP surface: it receives Evolution API
// webhook events, screens them synchronously, and hands surviving events to
// the dispatch engine without blocking the webhook response.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nosdois/duet/internal/bus"
	"github.com/nosdois/duet/internal/config"
	"github.com/nosdois/duet/internal/dispatch"
)

// maxWebhookBody bounds the accepted webhook payload size.
const maxWebhookBody = 1 << 20 // 1 MiB

// Server is the webhook gateway HTTP server.
type Server struct {
	cfg        config.GatewayConfig
	dispatcher *dispatch.Dispatcher

	rateLimiter *ipRateLimiter

	inflight sync.WaitGroup // fire-and-forget dispatches
	baseCtx  context.Context
	cancel   context.CancelFunc

	httpServer *http.Server
}

// NewServer creates the gateway server.
// rate_limit_rpm > 0 enables the per-IP webhook rate limit; <= 0 disables it.
func NewServer(cfg config.GatewayConfig, dispatcher *dispatch.Dispatcher) *Server {
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		baseCtx:    baseCtx,
		cancel:     cancel,
	}
	if cfg.RateLimitRPM > 0 {
		s.rateLimiter = newIPRateLimiter(cfg.RateLimitRPM, 5)
	}
	return s
}

// BuildMux registers all routes.
func (s *Server) BuildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleHealth)
	return mux
}

// Start listens until ctx is cancelled, then shuts down: the listener stops
// first, and in-flight dispatches get the configured grace period to finish
// their outbound sends.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		s.cancel()
		return fmt.Errorf("gateway server: %w", err)
	}

	s.drain()
	return nil
}

// drain waits for in-flight dispatches up to the shutdown grace period,
// then cancels whatever is still running.
func (s *Server) drain() {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGraceDuration()):
		slog.Warn("shutdown grace elapsed, cancelling in-flight dispatches")
	}
	s.cancel()

	// Give cancelled dispatches a moment to unwind before the process exits.
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

// handleWebhook acknowledges every well-formed event immediately. Screening
// (self, duplicate) happens synchronously so the response status reflects
// it; everything heavier runs in a goroutine.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
		return
	}
	if !s.authorized(r) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	env, err := decodeEnvelope(r.Body, maxWebhookBody)
	if err != nil {
		slog.Warn("malformed webhook payload", "error", err)
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	if env.Event != eventMessagesUpsert {
		slog.Debug("webhook event ignored", "event", env.Event)
		s.respond(w, bus.Status("ignored_event"))
		return
	}

	msg := env.Data.toInbound()
	if status := s.dispatcher.Screen(msg); status != "" {
		s.respond(w, status)
		return
	}

	// Fire and forget. The dispatch runs on the server's base context so it
	// survives the webhook request ending but is cancelled on shutdown.
	dispatchID := uuid.NewString()
	slog.Debug("webhook accepted",
		"dispatch_id", dispatchID, "chat_id", msg.ChatID, "message_id", msg.ID)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		// A panicking dispatch is fatal to that message only, never to the
		// process.
		defer func() {
			if r := recover(); r != nil {
				slog.Error("dispatch panicked, message dropped",
					"dispatch_id", dispatchID, "chat_id", msg.ChatID, "panic", r)
			}
		}()
		status := s.dispatcher.Process(s.baseCtx, msg)
		slog.Debug("dispatch finished",
			"dispatch_id", dispatchID, "chat_id", msg.ChatID, "status", string(status))
	}()

	s.respond(w, bus.StatusOK)
}

func (s *Server) respond(w http.ResponseWriter, status bus.Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": string(status)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok","service":"duet-gateway"}`)
}

// authorized checks the optional shared webhook secret. No configured
// secret means open (Evolution deployments often sit on a private network).
func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.WebhookSecret == "" {
		return true
	}
	got := r.Header.Get("apikey")
	if got == "" {
		got = r.Header.Get("X-Webhook-Secret")
	}
	if got != s.cfg.WebhookSecret {
		slog.Warn("webhook rejected: bad secret", "remote", r.RemoteAddr)
		return false
	}
	return true
}

func (s *Server) allow(r *http.Request) bool {
	if s.rateLimiter == nil {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return s.rateLimiter.allow(host)
}

// ipRateLimiter keeps one token bucket per remote IP, with lazy pruning of
// idle entries.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiterEntry
	limit    rate.Limit
	burst    int
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(rpm, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters: make(map[string]*ipLimiterEntry),
		limit:    rate.Limit(float64(rpm) / 60.0),
		burst:    burst,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) > 1024 {
			l.prune(now)
		}
		entry = &ipLimiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

func (l *ipRateLimiter) prune(now time.Time) {
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > 10*time.Minute {
			delete(l.limiters, ip)
		}
	}
}
