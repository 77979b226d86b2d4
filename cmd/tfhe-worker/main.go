// Command tfhe-worker consumes gate evaluation jobs from a Redis queue.
// Workers are the scale-out path: several of them can share one queue
// and one storage backend, each holding a copy of the cloud key.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/compute"
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
		cloudKeyPath = flag.String("cloudkey", "", "path to the serialized cloud key (required)")
		paramsName   = flag.String("params", "std128", "parameter set (std128 or test)")
		numLoops     = flag.Int("loops", 1, "concurrent worker loops in this process")
		parallel     = flag.Int("parallelism", 0, "bootstraps evaluated concurrently per loop (0 = all cores)")
		redisAddr    = flag.String("redis", "localhost:6379", "Redis address")
		redisDB      = flag.Int("redis-db", 0, "Redis database number")
		queueName    = flag.String("queue", "gates", "queue name")
		storageKind  = flag.String("storage", "redis", "storage backend (file, redis)")
		storageDir   = flag.String("storage-dir", "./data", "directory for the file backend")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *cloudKeyPath == "" {
		return fmt.Errorf("-cloudkey is required")
	}
	lit, err := paramsByName(*paramsName)
	if err != nil {
		return err
	}

	fheCtx, err := tfhe.NewContext(lit, tfhe.WithDevice(compute.NewParallelDevice(0)))
	if err != nil {
		return err
	}

	f, err := os.Open(*cloudKeyPath)
	if err != nil {
		return fmt.Errorf("open cloud key: %w", err)
	}
	ck, err := fheCtx.LoadCloudKey(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("load cloud key: %w", err)
	}

	q, err := queue.NewRedisQueue(queue.RedisConfig{Addr: *redisAddr, DB: *redisDB}, *queueName)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer q.Close()

	var store storage.Storage
	switch *storageKind {
	case "file":
		store, err = storage.NewFileStorage(*storageDir)
	case "redis":
		store, err = storage.NewRedisStorage(storage.RedisConfig{Addr: *redisAddr, DB: *redisDB}, 24*time.Hour)
	default:
		err = fmt.Errorf("unknown storage backend %q", *storageKind)
	}
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	pp := tfhe.PerformanceParameters{BootstrapParallelism: *parallel}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("worker starting", "loops", *numLoops, "queue", *queueName, "storage", *storageKind)

	var wg sync.WaitGroup
	errCh := make(chan error, *numLoops)
	for i := 0; i < *numLoops; i++ {
		w, err := server.NewWorker(fheCtx, ck, pp, store, q, log.With("loop", i))
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				errCh <- err
				stop()
			}
		}()
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
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
