// Package server exposes the HTTP surface: the webhook endpoints feeding
// the channel adapters, the study REST routes, the websocket upgrade and
// the status pages.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/estudolab/estudai/internal/channels"
	"github.com/estudolab/estudai/internal/channels/telegram"
	"github.com/estudolab/estudai/internal/channels/webhook"
	"github.com/estudolab/estudai/internal/config"
	"github.com/estudolab/estudai/internal/mcp"
	"github.com/estudolab/estudai/internal/providers"
	"github.com/estudolab/estudai/internal/state"
	"github.com/estudolab/estudai/internal/tracing"
)

// serverVersion is the version reported by the root status envelope.
const serverVersion = "1.0.0"

// maxBodyBytes bounds inbound request bodies.
const maxBodyBytes = 1 << 20

// Server routes HTTP traffic into the message layer.
type Server struct {
	cfg    config.ServerConfig
	router *mcp.Router
	store  state.Store

	telegram  *telegram.Adapter
	webhook   *webhook.Adapter
	ws        http.Handler
	provider  providers.Provider
	collector *tracing.Collector

	limiter *channels.InboundLimiter

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates the server. Optional collaborators are attached with
// the Set methods before BuildMux or Start.
func NewServer(cfg config.ServerConfig, router *mcp.Router, store state.Store) *Server {
	s := &Server{
		cfg:    cfg,
		router: router,
		store:  store,
	}

	// rate_limit_rpm > 0  → enabled at that many requests per minute
	// rate_limit_rpm == 0 → disabled (default)
	if cfg.RateLimitRPM > 0 {
		s.limiter = channels.NewInboundLimiter(time.Minute, cfg.RateLimitRPM)
	}

	return s
}

// SetTelegram attaches the telegram adapter behind POST /webhook/telegram.
func (s *Server) SetTelegram(a *telegram.Adapter) { s.telegram = a }

// SetWebhook attaches the webhook adapter behind POST /webhook/n8n.
func (s *Server) SetWebhook(a *webhook.Adapter) { s.webhook = a }

// SetWS attaches the websocket upgrade handler behind GET /ws.
func (s *Server) SetWS(h http.Handler) { s.ws = h }

// SetProvider attaches the model provider used by the study routes.
func (s *Server) SetProvider(p providers.Provider) { s.provider = p }

// SetCollector attaches the dispatch trace collector shown on /status.
func (s *Server) SetCollector(c *tracing.Collector) { s.collector = c }

// BuildMux creates and caches the mux with all routes registered. Call it
// after the Set methods; additional listeners (e.g. a tailnet one) can
// serve Handler() alongside Start.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)

	mux.HandleFunc("/webhook/telegram", s.limited(s.handleTelegramWebhook))
	mux.HandleFunc("/webhook/n8n", s.limited(s.handleN8NWebhook))

	mux.HandleFunc("/estudos/gerar-resumo", s.limited(s.handleGerarResumo))
	mux.HandleFunc("/estudos/gerar-quiz", s.limited(s.handleGerarQuiz))
	mux.HandleFunc("/estudos/avaliar-quiz", s.limited(s.handleAvaliarQuiz))
	mux.HandleFunc("/estudos/salvar-progresso", s.limited(s.handleSalvarProgresso))
	mux.HandleFunc("/estudos/recuperar-progresso", s.limited(s.handleRecuperarProgresso))
	mux.HandleFunc("/estudos/revisar", s.limited(s.handleRevisar))
	mux.HandleFunc("/estudos/quiz", s.limited(s.handleQuizLegacy))

	if s.ws != nil {
		mux.Handle("/ws", s.ws)
	}

	s.mux = mux
	return mux
}

// Handler returns the mux wrapped in the CORS middleware. Every listener
// should serve this, not the bare mux.
func (s *Server) Handler() http.Handler {
	return cors(s.BuildMux())
}

// Start begins listening and blocks until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	handler := s.Handler()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	slog.Info("server starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// cors answers preflight requests and stamps the permissive headers the
// n8n flows and browser clients expect.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limited applies the per-client inbound window when configured.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"status":  "error",
				"message": "Limite de requisições excedido",
			})
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}

// handleRoot reports the server as online, keeping the envelope the first
// deployment answered with.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "online",
		"message": "MCP Server está ativo",
		"version": serverVersion,
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// handleStatus returns an operational snapshot: registered agents and
// channels, in-flight dispatches and the collector's recent records.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]any{
		"status":    "online",
		"agents":    s.router.AgentIDs(),
		"channels":  s.router.AdapterIDs(),
		"in_flight": s.router.InFlight(),
	}

	if s.collector != nil {
		stats := s.collector.Stats()
		resp["dispatches"] = map[string]any{
			"total":    stats.Total,
			"outcomes": stats.Outcomes,
		}
		recent := s.collector.Recent(10)
		entries := make([]map[string]any, 0, len(recent))
		for _, rec := range recent {
			entries = append(entries, map[string]any{
				"at":          rec.At.UTC().Format(time.RFC3339),
				"message_id":  rec.MessageID,
				"kind":        rec.Kind,
				"source":      rec.Source,
				"agent_id":    rec.AgentID,
				"outcome":     rec.Outcome,
				"duration_ms": rec.Duration.Milliseconds(),
			})
		}
		resp["recent"] = entries
	}

	writeJSON(w, http.StatusOK, resp)
}
