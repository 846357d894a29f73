// Package bridge is the loopback HTTP surface the browser extension talks
// to. It accepts message envelopes, hands them to the worker's dispatcher
// and writes the handler's reply back as JSON. Handler failures are already
// folded into {success:false} responses, so the bridge itself only reports
// transport-level problems.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/labai-app/tracking-agent/api/schemas"
	"github.com/labai-app/tracking-agent/internal/config"
)

// fastjson handles the hot envelope path; message volume scales with every
// click and scroll in the tracked page.
var fastjson = jsoniter.ConfigCompatibleWithStandardLibrary

// Dispatcher routes a decoded message to its handler. Implemented by the
// worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg schemas.Message) any
}

// Server is the loopback bridge.
type Server struct {
	cfg        config.BridgeConfig
	dispatcher Dispatcher
	log        *zap.Logger
	server     *http.Server
}

// NewServer creates the bridge over the given dispatcher.
func NewServer(cfg config.BridgeConfig, dispatcher Dispatcher, logger *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        logger.Named("bridge"),
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, schemas.Response{
			Success: false, Error: "POST only",
		})
		return
	}

	var msg schemas.Message
	if err := fastjson.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, schemas.Response{
			Success: false, Error: "invalid JSON envelope",
		})
		return
	}

	started := time.Now()
	reply := s.dispatcher.Dispatch(r.Context(), msg)
	s.log.Debug("Dispatched message",
		zap.String("action", string(msg.Action)),
		zap.Duration("took", time.Since(started)))

	writeJSON(w, http.StatusOK, reply)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = fastjson.NewEncoder(w).Encode(body)
}

// Routes builds the bridge mux. Exposed for httptest.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/v1/message", s.handleMessage)
	return mux
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Bridge listening", zap.String("address", s.cfg.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("bridge server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down bridge")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("bridge shutdown failed: %w", err)
	}
	return nil
}
