package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// maxRequestBytes bounds a single JSON-RPC request body.
const maxRequestBytes = 8 << 20

// Health is the liveness document served on GET /health. Followers compare
// Instance against the lease to make sure the process answering the port is
// the one that claimed it.
type Health struct {
	Status   string `json:"status"`
	PID      int    `json:"pid"`
	Instance string `json:"instance"`
	Role     string `json:"role"`
	Port     int    `json:"port"`
}

// ServerOptions supplies the process-level hooks of a Server.
type ServerOptions struct {
	// Health reports the process identity for GET /health.
	Health func() Health
	// Status reports free-form diagnostics for GET /status.
	Status func() any
	// Shutdown is invoked by POST /shutdown. Nil disables the route.
	Shutdown func()
	Logger   zerolog.Logger
}

// Server exposes a Handler over the loopback HTTP endpoint.
type Server struct {
	handler Handler
	opts    ServerOptions
	log     zerolog.Logger
	mux     *http.ServeMux
}

// NewServer builds the HTTP handler for h.
//
// Routes:
//   - POST /          JSON-RPC 2.0 calls
//   - GET  /health    liveness probe
//   - GET  /status    diagnostics
//   - POST /shutdown  graceful stop request
//
// Example:
//
//	srv := &http.Server{Handler: rpc.NewServer(rpc.NewLocal(store), opts), ReadHeaderTimeout: 5 * time.Second}
//	go srv.Serve(ln)
func NewServer(h Handler, opts ServerOptions) *Server {
	s := &Server{
		handler: h,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "rpc").Logger(),
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("/", s.handleRPC)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/shutdown", s.handleShutdown)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleRPC decodes one JSON-RPC request, dispatches it and writes the
// response.
//
// Endpoint: POST /
//
// Response:
//   - 200 OK with a JSON-RPC response, for both results and business errors
//   - 404 Not Found: any path other than /
//   - 405 Method Not Allowed: non-POST request
//
// Calls run to completion even when the caller disconnects.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, Response{
			JSONRPC: jsonrpcVersion,
			Error:   &ErrorObject{Code: codeParseError, Message: "parse error: " + err.Error()},
		})
		return
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		writeJSON(w, Response{
			JSONRPC: jsonrpcVersion,
			ID:      req.ID,
			Error:   &ErrorObject{Code: codeInvalidRequest, Message: "invalid request"},
		})
		return
	}

	resp := Response{JSONRPC: jsonrpcVersion, ID: req.ID}
	result, err := Dispatch(context.WithoutCancel(r.Context()), s.handler, req.Method, req.Params)
	if err == nil {
		resp.Result, err = json.Marshal(result)
	}
	if err != nil {
		resp.Result = nil
		resp.Error = NewErrorObject(err)
		s.log.Debug().
			Str("method", req.Method).
			Str("code", string(resp.Error.Data.Code)).
			Msg(resp.Error.Message)
	}
	writeJSON(w, resp)
}

// handleHealth answers liveness probes.
//
// Endpoint: GET /health
//
// Response:
//   - 200 OK: {"status":"ok","pid":...,"instance":...,"role":...,"port":...}
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h := Health{Status: "ok"}
	if s.opts.Health != nil {
		h = s.opts.Health()
		h.Status = "ok"
	}
	writeJSON(w, h)
}

// handleStatus serves diagnostics.
//
// Endpoint: GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var status any = map[string]string{"status": "ok"}
	if s.opts.Status != nil {
		status = s.opts.Status()
	}
	writeJSON(w, status)
}

// handleShutdown asks the process to stop.
//
// Endpoint: POST /shutdown
//
// Response:
//   - 202 Accepted: shutdown requested
//   - 404 Not Found: shutdown is not enabled
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if s.opts.Shutdown == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.log.Info().Msg("shutdown requested over loopback")
	w.WriteHeader(http.StatusAccepted)
	go s.opts.Shutdown()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
