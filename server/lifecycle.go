package server

import (
	"context"
	"net/http"
	"time"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/logger"
)

// Start starts the background services and serves HTTP on addr until
// Stop is called. It returns nil after a clean shutdown.
func (s *HarvesterServer) Start(addr string) error {
	s.startBackgroundServices()

	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Infow("HTTP server listening", logger.FieldAddress, addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "failed to serve on %s", addr)
	}
	return nil
}

// Stop shuts the server down: workers first so no job is left half
// written, then the listener, stream clients and remaining goroutines.
func (s *HarvesterServer) Stop(ctx context.Context) error {
	s.logger.Infow("Initiating server shutdown")

	if s.started.Load() {
		if s.pool != nil {
			s.logger.Infow("Stopping workers")
			s.pool.Stop()
		}
		if s.ticker != nil {
			s.ticker.Stop()
		}
	}

	var shutdownErr error
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "http shutdown")
		}
	}

	// Close stream connections before cancelling so the pumps exit on
	// a read error rather than racing the context.
	s.mu.Lock()
	clients := make([]*streamClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
		delete(s.clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
	if len(clients) > 0 {
		s.logger.Infow("Closed stream clients", "count", len(clients))
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Infow("Server shutdown complete")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Goroutine shutdown timed out, forcing exit", "timeout", ShutdownTimeout)
	}
	return shutdownErr
}
