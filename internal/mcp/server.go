package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SteelMorgan/vpngate-harvester/internal/config"
	"github.com/SteelMorgan/vpngate-harvester/internal/handlers"
	"github.com/SteelMorgan/vpngate-harvester/internal/store"
	"github.com/rs/zerolog/log"
)

// Server serves the read-only query tools over stored server histories
type Server struct {
	cfg        *config.Config
	httpServer *http.Server

	// Handlers
	listServersHandler   *handlers.ListServersHandler
	serverHistoryHandler *handlers.ServerHistoryHandler
}

// NewServer creates a new MCP server. The caller owns gateway.
func NewServer(cfg *config.Config, gateway store.Gateway) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("store is required")
	}

	return &Server{
		cfg:                  cfg,
		listServersHandler:   handlers.NewListServersHandler(gateway),
		serverHistoryHandler: handlers.NewServerHistoryHandler(gateway),
	}, nil
}

// Handler returns the tool endpoints
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Register tool endpoints
	mux.HandleFunc("/tools/list_servers", s.handleListServers)
	mux.HandleFunc("/tools/get_server_history", s.handleGetServerHistory)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	return mux
}

// Start serves HTTP until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	log.Info().
		Int("port", s.cfg.MCPPort).
		Msg("MCP server starting...")

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.MCPPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().Int("port", s.cfg.MCPPort).Msg("MCP server started")

	<-ctx.Done()
	return nil
}

// Stop stops the MCP server gracefully
func (s *Server) Stop() error {
	log.Info().Msg("MCP server stopping...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Error shutting down HTTP server")
		}
	}

	log.Info().Msg("MCP server stopped")
	return nil
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		CountryCode string `json:"country_code,omitempty"`
		Limit       int    `json:"limit,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	result, err := s.listServersHandler.ListServers(r.Context(), handlers.ListServersParams{
		CountryCode: req.CountryCode,
		Limit:       req.Limit,
	})
	if err != nil {
		writeError(w, err, "Failed to list servers")
		return
	}

	writeResult(w, result)
}

func (s *Server) handleGetServerHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name string `json:"name"`
		From string `json:"from,omitempty"`
		To   string `json:"to,omitempty"`
		Mode string `json:"mode,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	params, err := historyParams(req.Name, req.From, req.To, req.Mode)
	if err != nil {
		writeError(w, err, "Invalid server history request")
		return
	}

	result, err := s.serverHistoryHandler.GetServerHistory(r.Context(), params)
	if err != nil {
		writeError(w, err, "Failed to get server history")
		return
	}

	writeResult(w, result)
}

// historyParams builds handler params from raw tool arguments
func historyParams(name, from, to, mode string) (handlers.ServerHistoryParams, error) {
	fromTime, err := handlers.ParseTime(from, "from")
	if err != nil {
		return handlers.ServerHistoryParams{}, err
	}
	toTime, err := handlers.ParseTime(to, "to")
	if err != nil {
		return handlers.ServerHistoryParams{}, err
	}
	if mode == "" {
		mode = handlers.ModeMinimal
	}
	return handlers.ServerHistoryParams{
		Name: name,
		From: fromTime,
		To:   toTime,
		Mode: mode,
	}, nil
}

// decodeBody accepts an empty body as an empty request
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeError(w http.ResponseWriter, err error, msg string) {
	var valErr *handlers.ValidationError
	if errors.As(err, &valErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(valErr)
		return
	}
	if errors.Is(err, handlers.ErrServerNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	log.Error().Err(err).Msg(msg)
	http.Error(w, fmt.Sprintf("Internal error: %v", err), http.StatusInternalServerError)
}

func writeResult(w http.ResponseWriter, result string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(result))
}
