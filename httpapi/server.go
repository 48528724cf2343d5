// Package httpapi is the thin HTTP surface over the log queue and
// election engine: plain net/http + encoding/json, handler-per-route
// on an http.ServeMux, no router dependency.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gochaorg/logd/election"
	"github.com/gochaorg/logd/internal/logging"
	"github.com/gochaorg/logd/internal/metrics"
	"github.com/gochaorg/logd/logqueue"
)

// BuildInfo is reported by GET /version.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// Server wires a Queue and optional Node behind an http.ServeMux.
type Server struct {
	mux     *http.ServeMux
	queue   *logqueue.Queue
	node    *election.Node // nil when the election engine is disabled
	build   BuildInfo
	metrics *metrics.Metrics
}

// New builds the routed mux described by the HTTP surface. node may be
// nil if the election engine is disabled for this process.
func New(queue *logqueue.Queue, node *election.Node, m *metrics.Metrics, build BuildInfo) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		queue:   queue,
		node:    node,
		build:   build,
		metrics: m,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.Handle("/version", errHandler(s.handleVersion))
	s.mux.Handle("/logs", errHandler(s.handleLogs))
	s.mux.Handle("/logs/tail", errHandler(s.handleTail))
	s.mux.Handle("/logs/switch", errHandler(s.handleSwitch))
	s.mux.Handle("/logs/", errHandler(s.handleLogRoutes))
	s.mux.Handle("/election/status", errHandler(s.handleElectionStatus))
	s.mux.Handle("/election/nominate", errHandler(s.handleElectionNominate))
	s.mux.Handle("/election/rpc/ping", errHandler(s.handleElectionRPCPing))
	s.mux.Handle("/election/rpc/nominate", errHandler(s.handleElectionRPCNominate))
}

// errHandler adapts a handler that can fail into an http.Handler,
// mapping the error to a status code and writing it as the body,
// matching the teacher's errHandlerFunc convention.
func errHandler(h func(w http.ResponseWriter, r *http.Request) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			status, msg := statusFor(err)
			logging.Default().Warn("http request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			http.Error(w, msg, status)
		}
	})
}

// statusFor maps a queue/election error to an HTTP status and message.
// Invalid client input (bad request shape) maps to 400, an unknown log id
// to 404, and an election EpochNotMatch or AlreadyVoted to 409; everything
// else the core layers can return maps to 500, named by its error kind.
func statusFor(err error) (int, string) {
	var badRequest *invalidRequest
	if errors.As(err, &badRequest) {
		return http.StatusBadRequest, badRequest.Error()
	}

	var qerr *logqueue.Error
	if errors.As(err, &qerr) {
		if qerr.Code == logqueue.CodeLogIdNotFound {
			return http.StatusNotFound, qerr.Error()
		}
		return http.StatusInternalServerError, qerr.Error()
	}

	var emErr *election.EpochNotMatch
	if errors.As(err, &emErr) {
		return http.StatusConflict, emErr.Error()
	}
	var avErr *election.AlreadyVoted
	if errors.As(err, &avErr) {
		return http.StatusConflict, avErr.Error()
	}

	return http.StatusInternalServerError, err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
