package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/batchsched/pkg/leader"
	"github.com/cuemby/batchsched/pkg/log"
	"github.com/cuemby/batchsched/pkg/metrics"
	"github.com/cuemby/batchsched/pkg/platform"
	"github.com/cuemby/batchsched/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Server serves the admin HTTP surface over a platform.Store snapshot
// and, if present, a leader.Node for Raft status and cluster-join
// writes.
type Server struct {
	store    platform.Store
	leader   *leader.Node
	logger   zerolog.Logger
	router   chi.Router
	http     *http.Server
	readOnly bool
}

// New builds a Server; leaderNode may be nil in a standalone
// (non-Raft) deployment, in which case /status reports raft as
// disabled and /raft/join answers 503 rather than panicking. readOnlyMode forces
// every write route to 403 regardless of leadership, for a replica
// that should only ever be queried.
func New(store platform.Store, leaderNode *leader.Node, readOnlyMode bool) *Server {
	s := &Server{
		store:    store,
		leader:   leaderNode,
		logger:   log.WithComponent("api"),
		readOnly: readOnlyMode,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(s.instrument)
	if s.readOnly {
		r.Use(readOnly)
	}

	r.Get("/healthz", metrics.HealthHandler())
	r.Get("/readyz", metrics.ReadyHandler())
	r.Get("/livez", metrics.LivenessHandler())
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Get("/status", s.handleStatus)

	r.Route("/queues", func(r chi.Router) {
		r.Get("/", s.handleListQueues)
		r.Post("/{name}/state", s.handleSetQueueState)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Get("/{id}", s.handleGetJob)
	})

	r.Get("/gantt", s.handleListGantt)

	r.Post("/raft/join", s.handleRaftJoin)

	return r
}

// instrument records request counts/durations under pkg/metrics,
// mirroring the teacher's read-only gRPC interceptor's role of
// wrapping every request with cross-cutting policy.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// ListenAndServe starts the HTTP server on addr and blocks until it
// returns an error (including http.ErrServerClosed after Shutdown).
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("admin API listening")
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler exposes the router directly, for tests.
func (s *Server) Handler() http.Handler { return s.router }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.leader == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"raft": "disabled"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"raft":      s.leader.GetRaftStats(),
		"is_leader": s.leader.IsLeader(),
	})
}

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := s.store.ListQueues()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, queues)
}

type setQueueStateRequest struct {
	State types.QueueState `json:"state"`
}

func (s *Server) handleSetQueueState(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req setQueueStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.State != types.QueueActive && req.State != types.QueueNotActive {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid state %q", req.State))
		return
	}

	var err error
	if s.leader != nil {
		err = s.leader.SetQueueState(name, req.State)
	} else {
		err = s.store.SetQueueState(name, req.State)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "state": string(req.State)})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var states []types.JobState
	if q := r.URL.Query().Get("state"); q != "" {
		states = []types.JobState{types.JobState(q)}
	} else {
		states = allJobStates
	}
	jobs, err := s.store.ListJobsInStates(states...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

var allJobStates = []types.JobState{
	types.JobWaiting, types.JobHold, types.JobToAckReservation, types.JobToLaunch,
	types.JobLaunching, types.JobRunning, types.JobFinishing, types.JobSuspended,
	types.JobResuming, types.JobToError, types.JobError, types.JobTerminated,
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid job id"))
		return
	}
	job, err := s.store.GetJob(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("job %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListGantt(w http.ResponseWriter, r *http.Request) {
	assignments, err := s.store.ListGanttAssignments()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

type raftJoinRequest struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

func (s *Server) handleRaftJoin(w http.ResponseWriter, r *http.Request) {
	if s.leader == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("raft is disabled on this replica"))
		return
	}
	var req raftJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.NodeID == "" || req.Address == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("node_id and address are required"))
		return
	}
	if err := s.leader.AddVoter(req.NodeID, req.Address); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"joined": req.NodeID})
}
