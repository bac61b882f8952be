// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/specialistvlad/gridsplit/internal/ctxlog"
	"github.com/specialistvlad/gridsplit/internal/model"
	"github.com/specialistvlad/gridsplit/internal/nodestore"
	"github.com/specialistvlad/gridsplit/internal/topology"
	"github.com/zclconf/go-cty/cty"
)

// healthHandler answers liveness probes.
func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// withData reports whether the request asked for tile pixels inline.
func withData(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("data"))
	return err == nil && v
}

func (app *App) nodesHandler(w http.ResponseWriter, r *http.Request) {
	snaps := app.snapshots()
	vals := make([]cty.Value, 0, len(snaps))
	for _, snap := range snaps {
		vals = append(vals, model.NodeValue(snap, withData(r)))
	}
	app.writeJSON(w, cty.TupleVal(vals))
}

func (app *App) nodeHandler(w http.ResponseWriter, r *http.Request) {
	st, err := app.Node(r.PathValue("name"))
	if err != nil {
		app.writeLookupError(w, err)
		return
	}
	app.writeJSON(w, model.NodeValue(st.Snapshot(), withData(r)))
}

// tileHandler serves the encoded bytes of one rendered tile.
func (app *App) tileHandler(w http.ResponseWriter, r *http.Request) {
	st, err := app.Node(r.PathValue("name"))
	if err != nil {
		app.writeLookupError(w, err)
		return
	}
	handle := r.PathValue("handle")
	if _, err := topology.ParseHandleID(handle); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tile, ok := st.Output(handle)
	if !ok {
		http.Error(w, fmt.Sprintf("tile %s of %s is not rendered", handle, st.ID()), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", tile.MediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(tile.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", tile.FileName()))
	if _, err := w.Write(tile.Data); err != nil {
		ctxlog.FromContext(app.ctx).Debug("Tile download interrupted.", "node", st.ID(), "handle", handle, "error", err)
	}
}

func (app *App) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, nodestore.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (app *App) writeJSON(w http.ResponseWriter, v cty.Value) {
	body, err := model.MarshalJSON(v)
	if err != nil {
		ctxlog.FromContext(app.ctx).Error("Failed to encode response.", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// Handler returns the HTTP routes served on Config.Listen.
func (app *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", app.healthHandler)
	mux.HandleFunc("GET /nodes", app.nodesHandler)
	mux.HandleFunc("GET /nodes/{name}", app.nodeHandler)
	mux.HandleFunc("GET /nodes/{name}/{handle}", app.tileHandler)
	mux.Handle("/socket.io/", app.feed.Handler())
	return mux
}

// startServer binds Config.Listen and serves Handler in the background.
func (app *App) startServer() error {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Configuring HTTP server.")
	if app.config.Listen == "" {
		logger.Debug("HTTP server not started: disabled")
		return nil
	}

	ln, err := net.Listen("tcp", app.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.config.Listen, err)
	}

	app.mu.Lock()
	app.listenAddr = ln.Addr().String()
	app.httpServer = &http.Server{
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := app.httpServer
	app.mu.Unlock()

	go func() {
		logger.Info("🩺 HTTP server starting", "address", "http://"+ln.Addr().String())
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

// Addr returns the address the HTTP server is bound to, or "" when it is
// not running.
func (app *App) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.listenAddr
}

func (app *App) closeServer() error {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Closing HTTP server...")

	app.mu.Lock()
	srv := app.httpServer
	app.httpServer = nil
	app.listenAddr = ""
	app.mu.Unlock()

	if srv == nil {
		logger.Debug("HTTP server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(app.ctx, 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down HTTP server...")
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
		return err
	}

	logger.Debug("HTTP server shut down gracefully.")
	return nil
}
