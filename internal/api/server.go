// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api serves the controller-facing session API. Only the
// configured controller address may drive the session endpoints; the
// dataplane keeps filtering regardless of whether this server is up.
package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/pushkar-gr/Aegis/internal/clock"
	"github.com/pushkar-gr/Aegis/internal/config"
	"github.com/pushkar-gr/Aegis/internal/ebpf"
	"github.com/pushkar-gr/Aegis/internal/errors"
	"github.com/pushkar-gr/Aegis/internal/flowtable"
	"github.com/pushkar-gr/Aegis/internal/logging"
	"github.com/pushkar-gr/Aegis/internal/metrics"
	"github.com/pushkar-gr/Aegis/internal/reaper"
)

// Server handles session API requests.
type Server struct {
	cfg        *config.Config
	table      *flowtable.Table
	offload    *ebpf.Offload
	reaper     *reaper.Reaper
	clk        clock.Clock
	metrics    *metrics.Metrics
	logger     *logging.Logger
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// ServerOptions holds dependencies for the session API server.
type ServerOptions struct {
	Config  *config.Config
	Table   *flowtable.Table
	Offload *ebpf.Offload
	Reaper  *reaper.Reaper
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// NewServer creates the session API server with the provided options.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Config == nil || opts.Table == nil {
		return nil, errors.New(errors.KindValidation, "api server requires config and session table")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewReal()
	}
	s := &Server{
		cfg:     opts.Config,
		table:   opts.Table,
		offload: opts.Offload,
		reaper:  opts.Reaper,
		clk:     clk,
		metrics: opts.Metrics,
		logger:  logging.WithComponent("api"),
		router:  mux.NewRouter(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
		},
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.controllerOnly)
	api.HandleFunc("/sessions", s.handleSubmitSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/monitor", s.handleMonitorSessions).Methods("GET")
	api.HandleFunc("/ipchange", s.handleIPChange).Methods("POST")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving. TLS is used when certificates are configured;
// a CA bundle additionally requires client certificates.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := s.cfg.TLSConfigured()
	if useTLS {
		tlsCfg, err := s.tlsConfig()
		if err != nil {
			return err
		}
		s.httpServer.TLSConfig = tlsCfg
	}

	go func() {
		s.logger.Info("Session API listening",
			"addr", s.cfg.ListenAddr,
			"tls", useTLS,
			"controller", s.cfg.ControllerAddr().String())
		var err error
		if useTLS {
			err = s.httpServer.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("Session API server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down, waiting for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS13}
	if s.cfg.CAFile != "" {
		pem, err := os.ReadFile(s.cfg.CAFile)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindInternal, "reading CA bundle %s", s.cfg.CAFile)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf(errors.KindValidation, "no certificates in CA bundle %s", s.cfg.CAFile)
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg, nil
}

// controllerOnly rejects requests from anyone but the configured
// controller. The session endpoints mutate admission state, so the
// transport peer address is checked even when mTLS already vouches for
// the client.
func (s *Server) controllerOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		peer, err := netip.ParseAddrPort(r.RemoteAddr)
		if err != nil {
			respondWithError(w, http.StatusForbidden, "unrecognized peer address")
			return
		}
		addr := peer.Addr().Unmap()
		if !addr.Is4() || addr != s.cfg.ControllerAddr() {
			s.logger.Warn("Rejected session API request", "peer", addr.String())
			respondWithError(w, http.StatusForbidden, "requests accepted from the controller only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.table.Len(),
	})
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
