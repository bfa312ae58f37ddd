package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"trading-botv1/internal/ledger"
	"trading-botv1/internal/model"
	"trading-botv1/internal/signal"
	"trading-botv1/internal/store/sqlite"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Server serves the dashboard REST API and WebSocket endpoint.
type Server struct {
	hub       *Hub
	store     *sqlite.Store
	book      *ledger.Ledger
	mdl       *signal.Model
	symbols   []string
	startedAt time.Time
	srv       *http.Server
}

// NewServer wires the dashboard against the durable store, the in-memory
// position book, and the active model.
func NewServer(addr string, hub *Hub, store *sqlite.Store, book *ledger.Ledger, mdl *signal.Model, symbols []string) *Server {
	s := &Server{
		hub:       hub,
		store:     store,
		book:      book,
		mdl:       mdl,
		symbols:   symbols,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/signals", s.handleSignals)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/training", s.handleTraining)

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[dashboard] server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[dashboard] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the dashboard server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[dashboard] ws upgrade error: %v", err)
		return
	}
	s.hub.HandleWSRequest(conn)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	signals24h, err := s.store.SignalCountSince(time.Now().Add(-24 * time.Hour))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	realized, err := s.store.TotalClosedPnL()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	open := s.book.OpenPositions()
	writeJSON(w, map[string]interface{}{
		"uptime":          time.Since(s.startedAt).Round(time.Second).String(),
		"symbols":         s.symbols,
		"ws_clients":      s.hub.ClientCount(),
		"open_positions":  len(open),
		"unrealized_pnl":  s.book.TotalUnrealizedPnL(),
		"realized_pnl":    realized,
		"signals_24h":     signals24h,
		"model":           s.mdl.Info(),
	})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}

	recs, err := s.store.RecentSignals(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []model.SignalRecord{}
	}
	writeJSON(w, recs)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)

	recent, err := s.store.RecentPositions(50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, map[string]interface{}{
		"open":   s.book.OpenPositions(),
		"recent": recent,
	})
}

func (s *Server) handleTraining(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)

	runs, err := s.store.RecentTrainingRuns(10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []sqlite.TrainingRun{}
	}
	writeJSON(w, runs)
}
