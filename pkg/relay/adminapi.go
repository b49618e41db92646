// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

// adminAPI serves the read-only status surface and the operator actions
// (ledger reset). It never mutates forwarder runtime state directly.
type adminAPI struct {
	orch *Orchestrator
	srv  *http.Server
	log  zerolog.Logger
}

func newAdminAPI(orch *Orchestrator, addr string, log zerolog.Logger) *adminAPI {
	a := &adminAPI{
		orch: orch,
		log:  log.With().Str("component", "admin_api").Logger(),
	}
	router := httprouter.New()
	router.GET("/api/status", a.handleStatus)
	router.POST("/api/reset-db", a.handleResetDB)
	a.srv = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a
}

// Run serves until ctx is cancelled, then shuts the server down.
func (a *adminAPI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(shutdownCtx)
	}()
	a.log.Info().Str("addr", a.srv.Addr).Msg("Starting admin API")
	err := a.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// handleStatus doubles as the health check endpoint.
func (a *adminAPI) handleStatus(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	snap := a.orch.Status()
	a.writeJSON(w, map[string]any{
		"running":     snap.Running,
		"auth_status": snap.AuthStatus,
		"forwarders":  snap.Forwarders,
		"status":      "ok",
	})
}

func (a *adminAPI) handleResetDB(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	a.log.Info().Str("remote_addr", r.RemoteAddr).Msg("Ledger reset requested")
	ok := a.orch.ResetLedger()
	a.writeJSON(w, map[string]any{"success": ok})
}

func (a *adminAPI) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Warn().Err(err).Msg("Failed to write response")
	}
}
