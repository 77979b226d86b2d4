// Package server exposes gate evaluation over HTTP. The server is a
// pure cloud party: clients upload a cloud key and ciphertext blobs,
// then request gate evaluations by storage handle. No secret key ever
// reaches this process.
package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/queue"
	"github.com/luxfi/tfhe/internal/storage"
)

// Config holds server configuration.
type Config struct {
	Address string
	MaxBlob int64 // largest accepted upload in bytes
	Perf    tfhe.PerformanceParameters
	Params  tfhe.ParametersLiteral
	Storage storage.Storage
	Queue   queue.Queue
	Logger  *slog.Logger

	// InProcessWorker consumes the job queue inside the server process,
	// for single-node deployments without dedicated workers. The worker
	// starts when the first cloud key is installed.
	InProcessWorker bool
}

// Server evaluates gates for remote clients.
type Server struct {
	cfg   Config
	ctx   *tfhe.Context
	store storage.Storage
	queue queue.Queue
	log   *slog.Logger

	vmMu sync.RWMutex
	vm   *tfhe.VirtualMachine

	workerOnce sync.Once
	workerStop context.CancelFunc
}

// New creates a server. The cloud key arrives later via the API, so
// the server starts without an evaluator and returns 409 for gate
// requests until one is uploaded.
func New(cfg Config) (*Server, error) {
	if cfg.Storage == nil {
		return nil, errors.New("server: storage backend is required")
	}
	if cfg.MaxBlob == 0 {
		cfg.MaxBlob = 1 << 30
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, err := tfhe.NewContext(cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("server context: %w", err)
	}
	return &Server{
		cfg:   cfg,
		ctx:   ctx,
		store: cfg.Storage,
		queue: cfg.Queue,
		log:   cfg.Logger,
	}, nil
}

// SetCloudKey installs an evaluation key directly, bypassing the HTTP
// upload. Workers sharing a process with the server use this.
func (s *Server) SetCloudKey(ck *tfhe.CloudKey) error {
	vm, err := s.ctx.MakeVirtualMachine(ck, s.cfg.Perf)
	if err != nil {
		return err
	}
	s.vmMu.Lock()
	s.vm = vm
	s.vmMu.Unlock()

	if s.cfg.InProcessWorker && s.queue != nil {
		s.workerOnce.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			s.workerStop = cancel
			go s.workerLoop(ctx)
		})
	}
	return nil
}

// Close stops the in-process worker, if any. The storage and queue
// backends are owned by the caller and stay open.
func (s *Server) Close() error {
	if s.workerStop != nil {
		s.workerStop()
	}
	return nil
}

// workerLoop drains the job queue using whatever cloud key is current
// at the time each job runs.
func (s *Server) workerLoop(ctx context.Context) {
	for {
		job, err := s.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			s.log.Error("pop job", "err", err)
			return
		}

		job.Status = queue.StatusProcessing
		if err := s.queue.Update(ctx, job); err != nil {
			s.log.Error("update job", "id", job.ID, "err", err)
		}

		handle, err := EvaluateGate(ctx, s.ctx, s.virtualMachine(), s.store, job)
		if err != nil {
			job.Status = queue.StatusFailed
			job.Error = err.Error()
			s.log.Error("job failed", "id", job.ID, "gate", job.Gate, "err", err)
		} else {
			job.Status = queue.StatusCompleted
			job.ResultHandle = string(handle)
		}
		if err := s.queue.Update(ctx, job); err != nil {
			s.log.Error("update job", "id", job.ID, "err", err)
		}
	}
}

func (s *Server) virtualMachine() *tfhe.VirtualMachine {
	s.vmMu.RLock()
	defer s.vmMu.RUnlock()
	return s.vm
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/cloudkey", s.handleCloudKey)
	mux.HandleFunc("/ciphertexts", s.handleCiphertexts)
	mux.HandleFunc("/ciphertexts/", s.handleCiphertext)
	mux.HandleFunc("/gates", s.handleGate)
	mux.HandleFunc("/jobs", s.handleJobPush)
	mux.HandleFunc("/jobs/", s.handleJobGet)

	return s.logMiddleware(mux)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.vmMu.RLock()
	ready := s.vm != nil
	s.vmMu.RUnlock()

	status := map[string]any{
		"status": "ok",
		"ready":  ready,
		"device": s.ctx.Device().Name(),
		"queue":  s.queue != nil,
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCloudKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBlob))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ck, err := s.ctx.LoadCloudKey(bytes.NewReader(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.SetCloudKey(ck); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("cloud key installed", "bytes", len(body))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCiphertexts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBlob))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Reject blobs that do not parse as ciphertext arrays; storage is
	// not a general blob service.
	if _, err := s.ctx.LoadCiphertext(bytes.NewReader(body)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	handle, err := s.store.Store(r.Context(), body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInsufficientStorage)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"handle": string(handle)})
}

func (s *Server) handleCiphertext(w http.ResponseWriter, r *http.Request) {
	handle := storage.Handle(strings.TrimPrefix(r.URL.Path, "/ciphertexts/"))
	switch r.Method {
	case http.MethodGet:
		data, err := s.store.Load(r.Context(), handle)
		if err != nil {
			httpStorageError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	case http.MethodDelete:
		if err := s.store.Delete(r.Context(), handle); err != nil {
			httpStorageError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "GET or DELETE required", http.StatusMethodNotAllowed)
	}
}

// GateRequest asks for one batched gate evaluation. Inputs are handles
// of previously stored ciphertext arrays in gate-argument order.
// CONSTANT gates take a shape and a constant instead of inputs.
type GateRequest struct {
	Gate     string   `json:"gate"`
	Inputs   []string `json:"inputs,omitempty"`
	Constant bool     `json:"constant,omitempty"`
	Shape    []int    `json:"shape,omitempty"`
}

// GateResponse carries the handle of the stored result.
type GateResponse struct {
	Handle string `json:"handle"`
}

func (s *Server) handleGate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req GateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	vm := s.virtualMachine()
	if vm == nil {
		http.Error(w, "no cloud key installed", http.StatusConflict)
		return
	}

	handle, err := EvaluateGate(r.Context(), s.ctx, vm, s.store, &queue.Job{
		Gate:     req.Gate,
		Inputs:   req.Inputs,
		Constant: req.Constant,
		Shape:    req.Shape,
	})
	if err != nil {
		httpGateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GateResponse{Handle: string(handle)})
}

func (s *Server) handleJobPush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if s.queue == nil {
		http.Error(w, "no job queue configured", http.StatusNotImplemented)
		return
	}
	var req GateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := tfhe.ParseGate(req.Gate); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := &queue.Job{
		ID:       newJobID(),
		Gate:     req.Gate,
		Inputs:   req.Inputs,
		Constant: req.Constant,
		Shape:    req.Shape,
	}
	if err := s.queue.Push(r.Context(), job); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID})
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET required", http.StatusMethodNotAllowed)
		return
	}
	if s.queue == nil {
		http.Error(w, "no job queue configured", http.StatusNotImplemented)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	job, err := s.queue.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, storage.ErrInvalidHandle):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func httpGateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, tfhe.ErrUnknownGate),
		errors.Is(err, tfhe.ErrShapeMismatch),
		errors.Is(err, tfhe.ErrParamsMismatch),
		errors.Is(err, tfhe.ErrInvalidFormat):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func newJobID() string {
	var b [16]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
