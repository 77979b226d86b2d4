// Command tfhe-server runs the gate evaluation HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/queue"
	"github.com/luxfi/tfhe/internal/storage"
	"github.com/luxfi/tfhe/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr        = flag.String("addr", ":8448", "HTTP server address")
		paramsName  = flag.String("params", "std128", "parameter set (std128 or test)")
		storageKind = flag.String("storage", "memory", "storage backend (memory, file, redis)")
		storageDir  = flag.String("storage-dir", "./data", "directory for the file backend")
		storageMB   = flag.Int64("storage-mb", 4096, "capacity of the memory backend in MB")
		redisAddr   = flag.String("redis", "localhost:6379", "Redis address")
		redisDB     = flag.Int("redis-db", 0, "Redis database number")
		queueKind   = flag.String("queue", "none", "job queue backend (none, memory, redis)")
		queueName   = flag.String("queue-name", "gates", "queue name for the redis backend")
		inProc      = flag.Bool("worker", false, "run a job worker inside the server process")
		parallel    = flag.Int("parallelism", 0, "bootstraps evaluated concurrently (0 = all cores)")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	params, err := paramsByName(*paramsName)
	if err != nil {
		return err
	}

	store, err := buildStorage(*storageKind, *storageDir, *storageMB, *redisAddr, *redisDB)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	var q queue.Queue
	switch *queueKind {
	case "none":
	case "memory":
		q = queue.NewMemoryQueue(1024)
	case "redis":
		q, err = queue.NewRedisQueue(queue.RedisConfig{Addr: *redisAddr, DB: *redisDB}, *queueName)
		if err != nil {
			return fmt.Errorf("create queue: %w", err)
		}
	default:
		return fmt.Errorf("unknown queue backend %q", *queueKind)
	}
	if q != nil {
		defer q.Close()
	}

	srv, err := server.New(server.Config{
		Address:         *addr,
		Params:          params,
		Storage:         store,
		Queue:           q,
		Logger:          log,
		InProcessWorker: *inProc,
		Perf: tfhe.PerformanceParameters{
			BootstrapParallelism: *parallel,
		},
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", *addr, "params", *paramsName, "storage", *storageKind)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func paramsByName(name string) (tfhe.ParametersLiteral, error) {
	switch name {
	case "std128":
		return tfhe.ParamsSTD128, nil
	case "test":
		return tfhe.ParamsTest, nil
	default:
		return tfhe.ParametersLiteral{}, fmt.Errorf("unknown parameter set %q", name)
	}
}

func buildStorage(kind, dir string, capacityMB int64, redisAddr string, redisDB int) (storage.Storage, error) {
	switch kind {
	case "memory":
		return storage.NewMemoryStorage(capacityMB), nil
	case "file":
		return storage.NewFileStorage(dir)
	case "redis":
		return storage.NewRedisStorage(storage.RedisConfig{Addr: redisAddr, DB: redisDB}, 24*time.Hour)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}
