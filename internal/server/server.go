package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hearthside/chorebank/internal/handler"
	"github.com/hearthside/chorebank/internal/middleware"
	"github.com/hearthside/chorebank/internal/reconcile"
	"github.com/hearthside/chorebank/internal/store"
	ws "github.com/hearthside/chorebank/internal/websocket"
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	service     *reconcile.Service
	memberH     *handler.MemberHandler
	choreH      *handler.ChoreHandler
	ledgerH     *handler.LedgerHandler
	settingsH   *handler.SettingsHandler
	penaltyH    *handler.PenaltyHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	memberStore := store.NewFamilyMemberStore(db)
	choreStore := store.NewChoreStore(db)
	ledgerStore := store.NewLedgerStore(db)
	settingsStore := store.NewSettingsStore(db)

	service := reconcile.NewService(db, choreStore, ledgerStore, memberStore, settingsStore, hub,
		logger.With("component", "reconcile"))

	return &Server{
		db:          db,
		hub:         hub,
		service:     service,
		memberH:     handler.NewMemberHandler(memberStore, hub, logger.With("component", "member")),
		choreH:      handler.NewChoreHandler(choreStore, memberStore, service, hub, logger.With("component", "chore")),
		ledgerH:     handler.NewLedgerHandler(ledgerStore, memberStore, hub, logger.With("component", "ledger")),
		settingsH:   handler.NewSettingsHandler(settingsStore, logger.With("component", "settings")),
		penaltyH:    handler.NewPenaltyHandler(memberStore, service, logger.With("component", "penalty")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Service returns the reconciliation service for scheduled jobs.
func (s *Server) Service() *reconcile.Service {
	return s.service
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Family member routes
	mux.HandleFunc("GET /api/family-members", s.memberH.List)
	mux.HandleFunc("POST /api/family-members", s.memberH.Create)
	mux.HandleFunc("PUT /api/family-members/{id}", s.memberH.Update)
	mux.HandleFunc("DELETE /api/family-members/{id}", s.memberH.Delete)

	// PIN routes; verify is rate limited to slow down guessing
	mux.HandleFunc("POST /api/family-members/{id}/pin", s.memberH.SetPIN)
	mux.HandleFunc("DELETE /api/family-members/{id}/pin", s.memberH.ClearPIN)
	mux.HandleFunc("POST /api/family-members/{id}/pin/verify", s.rateLimitedHandler(s.memberH.VerifyPIN))

	// Chore definition routes
	mux.HandleFunc("POST /api/chores", s.choreH.Create)
	mux.HandleFunc("GET /api/chores", s.choreH.List)
	mux.HandleFunc("GET /api/chores/{id}", s.choreH.Get)
	mux.HandleFunc("PUT /api/chores/{id}", s.choreH.Update)
	mux.HandleFunc("DELETE /api/chores/{id}", s.choreH.Delete)

	// Occurrence routes; status changes run through the reconciliation engine
	mux.HandleFunc("POST /api/chores/{id}/logs/{date}/status", s.choreH.ChangeStatus)
	mux.HandleFunc("GET /api/chores/{id}/logs/{date}", s.choreH.GetLog)
	mux.HandleFunc("GET /api/chores/{id}/progress", s.choreH.Progress)
	mux.HandleFunc("GET /api/family-members/{id}/progress", s.choreH.MemberProgress)

	// Ledger routes
	mux.HandleFunc("GET /api/family-members/{id}/balance", s.ledgerH.Balance)
	mux.HandleFunc("GET /api/family-members/{id}/transactions", s.ledgerH.Transactions)
	mux.HandleFunc("POST /api/family-members/{id}/payouts", s.ledgerH.Payout)
	mux.HandleFunc("POST /api/family-members/{id}/adjustments", s.ledgerH.Adjustment)

	// Settings routes
	mux.HandleFunc("GET /api/settings", s.settingsH.GetAll)
	mux.HandleFunc("PUT /api/settings", s.settingsH.Update)

	// Weekly penalty reconciliation
	mux.HandleFunc("POST /api/penalties/run", s.penaltyH.Run)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
