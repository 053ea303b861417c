// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package httpserver implements an HTTP server with a context-driven
// lifecycle, used to expose auxiliary endpoints such as metrics.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Server is an HTTP server with a name and a run lifecycle
// driven by a context.
type Server struct {
	name       string
	address    string
	addressSet chan struct{}
	handler    http.Handler
	logger     Logger
	optional   optionalSettings
}

// New creates a new HTTP server with a name, a listening address,
// an HTTP handler and a logger, together with optional settings.
func New(name, address string, handler http.Handler,
	logger Logger, options ...Option) *Server {
	return &Server{
		name:       name,
		address:    address,
		addressSet: make(chan struct{}),
		handler:    handler,
		logger:     logger,
		optional:   newOptionalSettings(options),
	}
}

// GetAddress returns the address the server is listening on.
// It blocks until the server has started listening.
func (s *Server) GetAddress() (address string) {
	<-s.addressSet
	return s.address
}

// Run runs the server, closing the ready channel once it is listening
// and writing the final run error, or nil, to the done channel once it
// has shut down. The server shuts down when the context is canceled.
func (s *Server) Run(ctx context.Context, ready chan<- struct{}, done chan<- error) {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		done <- fmt.Errorf("%s server failed listening: %w", s.name, err)
		return
	}

	s.address = listener.Addr().String()
	close(s.addressSet)
	s.logger.Info(s.name + " server listening on " + s.address)

	server := http.Server{
		Addr:              s.address,
		Handler:           s.handler,
		ReadTimeout:       s.optional.readTimeout,
		ReadHeaderTimeout: s.optional.readHeaderTimeout,
	}

	serveDone := make(chan error)
	go func() {
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
			return
		}
		serveDone <- nil
	}()

	close(ready)

	select {
	case err := <-serveDone:
		done <- fmt.Errorf("%s server crashed: %w", s.name, err)
		return
	case <-ctx.Done():
		s.logger.Warn(s.name + " server shutting down: " + ctx.Err().Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		s.optional.shutdownTimeout)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	if err != nil {
		done <- fmt.Errorf("%s server failed shutting down: %w", s.name, err)
		return
	}

	<-serveDone
	s.logger.Info(s.name + " server shut down")
	done <- nil
}
