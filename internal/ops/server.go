// Package ops serves health checks, metrics and a read-only view of the ledger.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/suspectuso/xlm-tipbot/internal/ledger"
)

const entriesLimit = 50

// Pinger is a dependency checked by /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Journal reads accounts and their ledger entries
type Journal interface {
	Account(ctx context.Context, adapter, uniqueID string) (*ledger.Account, error)
	Entries(ctx context.Context, adapter, uniqueID string, limit int) ([]ledger.Entry, error)
}

// Server exposes the operational endpoints
type Server struct {
	journal Journal
	checks  map[string]Pinger
	log     *slog.Logger

	server *http.Server
}

// NewServer creates an ops server. checks are pinged by /health.
func NewServer(journal Journal, checks map[string]Pinger, log *slog.Logger) *Server {
	return &Server{
		journal: journal,
		checks:  checks,
		log:     log,
	}
}

// Router returns the HTTP routes
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/accounts/{adapter}/{id}", s.handleAccount).Methods("GET")
	return r
}

// Start serves on port until ctx is done
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting ops server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			s.log.Warn("health check failed", "check", name, "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(name + " unavailable"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type entryView struct {
	Kind      ledger.EntryKind `json:"kind"`
	Delta     string           `json:"delta"`
	Reference string           `json:"reference,omitempty"`
	Memo      string           `json:"memo,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

type accountView struct {
	Adapter       string      `json:"adapter"`
	UniqueID      string      `json:"unique_id"`
	Balance       string      `json:"balance"`
	WalletAddress string      `json:"wallet_address,omitempty"`
	Entries       []entryView `json:"entries"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	adapter, id := vars["adapter"], vars["id"]

	acct, err := s.journal.Account(r.Context(), adapter, id)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
		return
	}
	if err != nil {
		s.log.Error("load account", "adapter", adapter, "unique_id", id, "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	entries, err := s.journal.Entries(r.Context(), adapter, id, entriesLimit)
	if err != nil {
		s.log.Error("load entries", "adapter", adapter, "unique_id", id, "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	view := accountView{
		Adapter:       acct.Adapter,
		UniqueID:      acct.UniqueID,
		Balance:       acct.BalanceText(),
		WalletAddress: acct.WalletAddress,
		Entries:       make([]entryView, 0, len(entries)),
	}
	for _, e := range entries {
		view.Entries = append(view.Entries, entryView{
			Kind:      e.Kind,
			Delta:     ledger.FormatAmount(e.Delta),
			Reference: e.Reference,
			Memo:      e.Memo,
			CreatedAt: e.CreatedAt.UTC(),
		})
	}
	respondJSON(w, http.StatusOK, view)
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
