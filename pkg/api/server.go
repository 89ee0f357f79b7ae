// PCBoven Core
// Copyright (c) 2026 The PCBoven Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of PCBoven Core.
//
// PCBoven Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// PCBoven Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with PCBoven Core.  If not, see <http://www.gnu.org/licenses/>.

// Package api serves the oven control surface: WebSocket JSON-RPC at /api
// plus a few read-only REST endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/olahol/melody"
	"github.com/pcboven/pcboven-core/pkg/api/methods"
	apimiddleware "github.com/pcboven/pcboven-core/pkg/api/middleware"
	"github.com/pcboven/pcboven-core/pkg/api/models/requests"
	"github.com/pcboven/pcboven-core/pkg/api/validation"
	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/pcboven/pcboven-core/pkg/control"
	"github.com/pcboven/pcboven-core/pkg/database"
	"github.com/pcboven/pcboven-core/pkg/database/historydb"
	"github.com/pcboven/pcboven-core/pkg/device"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/pcboven/pcboven-core/pkg/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownMethod = errors.New("unknown method")
	// ErrNotPermitted is returned for oven commands from a client that is
	// neither on loopback nor named in allowed_ips.
	ErrNotPermitted = errors.New("oven control not permitted from this address")
)

var JSONRPCErrorParseError = models.ErrorObject{
	Code:    -32700,
	Message: "Parse error",
}
var JSONRPCErrorInvalidRequest = models.ErrorObject{
	Code:    -32600,
	Message: "Invalid Request",
}
var JSONRPCErrorMethodNotFound = models.ErrorObject{
	Code:    -32601,
	Message: "Method not found",
}
var JSONRPCErrorInvalidParams = models.ErrorObject{
	Code:    -32602,
	Message: "Invalid params",
}
var JSONRPCErrorServerError = models.ErrorObject{
	Code:    -32000,
	Message: "Server error",
}
var JSONRPCErrorNotConnected = models.ErrorObject{
	Code:    -32001,
	Message: "Oven not connected",
}
var JSONRPCErrorAlreadyConnected = models.ErrorObject{
	Code:    -32002,
	Message: "Oven already connected",
}
var JSONRPCErrorSubmissionFailed = models.ErrorObject{
	Code:    -32003,
	Message: "Command submission failed",
}
var JSONRPCErrorNotPermitted = models.ErrorObject{
	Code:    -32004,
	Message: "Not permitted",
}

var methodMap = map[string]func(requests.RequestEnv) (any, error){
	models.MethodConnected:        methods.HandleConnected,
	models.MethodState:            methods.HandleState,
	models.MethodTarget:           methods.HandleTarget,
	models.MethodFilamentsEnable:  methods.HandleFilamentsEnable,
	models.MethodFilamentsDisable: methods.HandleFilamentsDisable,
	models.MethodSimulation:       methods.HandleSimulation,
	models.MethodHistory:          methods.HandleHistory,
	models.MethodVersion:          methods.HandleVersion,
}

// controlMethods drive the heater and need a trusted client.
var controlMethods = map[string]struct{}{
	models.MethodTarget:           {},
	models.MethodFilamentsEnable:  {},
	models.MethodFilamentsDisable: {},
	models.MethodSimulation:       {},
}

// errorObject maps a handler error to its JSON-RPC error. The message of
// the original error is kept so clients see what went wrong.
func errorObject(err error) models.ErrorObject {
	var obj models.ErrorObject
	var verr *validation.Error
	switch {
	case errors.Is(err, ErrUnknownMethod):
		obj = JSONRPCErrorMethodNotFound
	case errors.Is(err, validation.ErrMissingParams),
		errors.Is(err, validation.ErrInvalidParams),
		errors.As(err, &verr):
		obj = JSONRPCErrorInvalidParams
	case errors.Is(err, device.ErrNotConnected):
		obj = JSONRPCErrorNotConnected
	case errors.Is(err, device.ErrAlreadyConnected),
		errors.Is(err, device.ErrRealDeviceConnected):
		obj = JSONRPCErrorAlreadyConnected
	case errors.Is(err, transport.ErrSubmissionFailed):
		obj = JSONRPCErrorSubmissionFailed
	case errors.Is(err, ErrNotPermitted):
		obj = JSONRPCErrorNotPermitted
	default:
		obj = JSONRPCErrorServerError
	}
	obj.Message = err.Error()
	return obj
}

func handleRequest(env requests.RequestEnv, req models.RequestObject) (any, error) { //nolint:gocritic // env is copied per request
	method := strings.ToLower(req.Method)
	fn, ok := methodMap[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, req.Method)
	}
	if _, ok := controlMethods[method]; ok && !env.IsLocal && !env.Trusted {
		return nil, fmt.Errorf("%w: %s", ErrNotPermitted, req.Method)
	}
	env.ID = *req.ID
	env.Params = req.Params
	return fn(env)
}

func marshalResponse(id uuid.UUID, result any, rpcErr *models.ErrorObject) ([]byte, error) {
	resp := models.ResponseObject{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
		Error:   rpcErr,
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("error marshalling response: %w", err)
	}
	return data, nil
}

func sendResponse(session *melody.Session, id uuid.UUID, result any) error {
	data, err := marshalResponse(id, result, nil)
	if err != nil {
		return err
	}
	if err := session.Write(data); err != nil {
		return fmt.Errorf("error writing response: %w", err)
	}
	return nil
}

func sendError(session *melody.Session, id uuid.UUID, rpcErr models.ErrorObject) error {
	log.Debug().Int("code", rpcErr.Code).Str("message", rpcErr.Message).Msg("sending error")
	data, err := marshalResponse(id, nil, &rpcErr)
	if err != nil {
		return err
	}
	if err := session.Write(data); err != nil {
		return fmt.Errorf("error writing error response: %w", err)
	}
	return nil
}

type Server struct {
	cfg      *config.Instance
	ctrl     *control.Controller
	history  database.HistoryDBI
	limiter  *apimiddleware.IPRateLimiter
	ipFilter *apimiddleware.IPFilter
	ws       *melody.Melody
	router   chi.Router
	srv      *http.Server
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer builds the router. history may be nil when the telemetry log is
// disabled.
func NewServer(cfg *config.Instance, ctrl *control.Controller, history database.HistoryDBI) *Server {
	s := &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		history:  history,
		limiter:  apimiddleware.NewIPRateLimiter(nil),
		ipFilter: apimiddleware.NewIPFilter(cfg.AllowedIPs()),
		ws:       melody.New(),
	}
	s.ws.Upgrader.CheckOrigin = apimiddleware.OriginChecker(cfg.AllowedOrigins())
	s.ws.HandleMessage(apimiddleware.WebSocketRateLimitHandler(s.limiter, s.handleWSMessage))
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	origins := s.cfg.AllowedOrigins()
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.NoCache)
	r.Use(apimiddleware.HTTPIPFilterMiddleware(s.ipFilter))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
	}))

	r.Group(func(r chi.Router) {
		r.Use(apimiddleware.HTTPRateLimitMiddleware(s.limiter))

		r.Get("/api", func(w http.ResponseWriter, r *http.Request) {
			if err := s.ws.HandleRequest(w, r); err != nil {
				log.Error().Err(err).Msg("handling websocket request")
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ApiRequestTimeout))
			r.Get("/api/state", s.handleRESTState)
			r.Get("/api/connected", s.handleRESTConnected)
			r.Get("/api/history.csv", s.handleRESTHistoryCSV)
		})
	})
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("error writing json response")
	}
}

func (s *Server) handleRESTState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.ctrl.GetState())
}

func (s *Server) handleRESTConnected(w http.ResponseWriter, _ *http.Request) {
	conn := s.ctrl.Connection()
	writeJSON(w, models.ConnectedResponse{Connected: conn.Active(), Kind: conn.Kind})
}

func (s *Server) handleRESTHistoryCSV(w http.ResponseWriter, _ *http.Request) {
	if s.history == nil {
		http.Error(w, methods.ErrHistoryDisabled.Error(), http.StatusNotFound)
		return
	}
	samples, err := s.history.RecentSamples(historydb.MaxLimit)
	if err != nil {
		log.Error().Err(err).Msg("error reading history")
		http.Error(w, "error reading history", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := historydb.WriteCSV(&buf, samples); err != nil {
		log.Error().Err(err).Msg("error encoding history")
		http.Error(w, "error encoding history", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="history.csv"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Debug().Err(err).Msg("error writing csv response")
	}
}

func (s *Server) handleWSMessage(session *melody.Session, msg []byte) {
	// heartbeat
	if bytes.Equal(msg, []byte("ping")) {
		if err := session.Write([]byte("pong")); err != nil {
			log.Error().Err(err).Msg("sending pong")
		}
		return
	}

	var req models.RequestObject
	if !json.Valid(msg) || json.Unmarshal(msg, &req) != nil {
		log.Warn().Msg("data not valid json")
		if err := sendError(session, uuid.Nil, JSONRPCErrorParseError); err != nil {
			log.Error().Err(err).Msg("error sending error response")
		}
		return
	}

	var id uuid.UUID
	if req.ID != nil {
		id = *req.ID
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		log.Warn().Str("jsonrpc", req.JSONRPC).Str("method", req.Method).Msg("invalid request")
		if err := sendError(session, id, JSONRPCErrorInvalidRequest); err != nil {
			log.Error().Err(err).Msg("error sending error response")
		}
		return
	}

	if req.ID == nil {
		log.Debug().Str("method", req.Method).Msg("received notification, ignoring")
		return
	}

	log.Debug().Str("method", req.Method).Stringer("id", id).Msg("received request")
	resp, err := handleRequest(requests.RequestEnv{
		Context: session.Request.Context(),
		Control: s.ctrl,
		History: s.history,
		IsLocal: apimiddleware.IsLoopbackAddr(session.Request.RemoteAddr),
		Trusted: s.ipFilter.Lists(session.Request.RemoteAddr),
	}, req)
	if err != nil {
		log.Warn().Err(err).Str("method", req.Method).Msg("request failed")
		if err := sendError(session, id, errorObject(err)); err != nil {
			log.Error().Err(err).Msg("error sending error response")
		}
		return
	}

	if err := sendResponse(session, id, resp); err != nil {
		log.Error().Err(err).Msg("error sending response")
	}
}

// changedNotification is broadcast on every hub signal. It has no params;
// clients re-query the state.
func changedNotification() []byte {
	data, err := json.Marshal(models.RequestObject{
		JSONRPC: "2.0",
		Method:  models.NotificationChanged,
	})
	if err != nil {
		log.Error().Err(err).Msg("marshalling notification")
		return nil
	}
	return data
}

func (s *Server) broadcastChanges(ctx context.Context) {
	sub := s.ctrl.Subscribe()
	defer s.ctrl.Unsubscribe(sub.ID())

	notif := changedNotification()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C():
			if !ok {
				return
			}
			if err := s.ws.Broadcast(notif); err != nil && !errors.Is(err, melody.ErrClosed) {
				log.Error().Err(err).Msg("broadcasting notification")
			}
		}
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.APIListen()
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln in the background until Stop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.limiter.StartCleanup(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.broadcastChanges(ctx)
	}()
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", ln.Addr().String()).Msg("api server listening")
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api server stopped")
		}
	}()
	return nil
}

func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	s.cancel()
	if err := s.ws.Close(); err != nil && !errors.Is(err, melody.ErrClosed) {
		log.Warn().Err(err).Msg("error closing websocket sessions")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("error shutting down api server")
	}
	s.wg.Wait()
}
