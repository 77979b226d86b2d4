package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/queue"
	"github.com/luxfi/tfhe/internal/storage"
)

// EvaluateGate runs one gate job against storage: it loads the input
// arrays, evaluates, stores the serialized result, and returns its
// handle. The synchronous API endpoint and the queue worker share this
// path so both produce identical results for identical jobs.
func EvaluateGate(ctx context.Context, fheCtx *tfhe.Context, vm *tfhe.VirtualMachine, store storage.Storage, job *queue.Job) (storage.Handle, error) {
	gate, err := tfhe.ParseGate(job.Gate)
	if err != nil {
		return "", err
	}
	if len(job.Inputs) != gate.Arity() {
		return "", fmt.Errorf("%w: %v takes %d inputs, got %d",
			tfhe.ErrUnknownGate, gate, gate.Arity(), len(job.Inputs))
	}

	inputs := make([]*tfhe.LweSampleArray, len(job.Inputs))
	for i, h := range job.Inputs {
		blob, err := store.Load(ctx, storage.Handle(h))
		if err != nil {
			return "", fmt.Errorf("input %d: %w", i, err)
		}
		arr, err := fheCtx.LoadCiphertext(bytes.NewReader(blob))
		if err != nil {
			return "", fmt.Errorf("input %d: %w", i, err)
		}
		inputs[i] = arr
	}

	var shape []int
	if gate == tfhe.GateCONSTANT {
		shape = job.Shape
	} else {
		shape = inputs[0].Shape()
	}
	dest, err := vm.EmptyCiphertext(shape...)
	if err != nil {
		return "", err
	}
	if err := vm.Apply(gate, dest, job.Constant, inputs...); err != nil {
		return "", err
	}

	blob, err := dest.MarshalBinary()
	if err != nil {
		return "", err
	}
	return store.Store(ctx, blob)
}

// Worker consumes gate jobs from a queue. Several workers may share one
// queue; each needs the cloud key installed before Run.
type Worker struct {
	ctx   *tfhe.Context
	vm    *tfhe.VirtualMachine
	store storage.Storage
	queue queue.Queue
	log   *slog.Logger
}

// NewWorker builds a worker bound to a queue and storage backend.
func NewWorker(fheCtx *tfhe.Context, ck *tfhe.CloudKey, pp tfhe.PerformanceParameters, store storage.Storage, q queue.Queue, log *slog.Logger) (*Worker, error) {
	vm, err := fheCtx.MakeVirtualMachine(ck, pp)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{ctx: fheCtx, vm: vm, store: store, queue: q, log: log}, nil
}

// Run processes jobs until the context is canceled or the queue
// closes. Job failures are recorded on the job and do not stop the
// loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
				return nil
			}
			return err
		}

		job.Status = queue.StatusProcessing
		if err := w.queue.Update(ctx, job); err != nil {
			w.log.Error("update job", "id", job.ID, "err", err)
		}

		handle, err := EvaluateGate(ctx, w.ctx, w.vm, w.store, job)
		if err != nil {
			job.Status = queue.StatusFailed
			job.Error = err.Error()
			w.log.Error("job failed", "id", job.ID, "gate", job.Gate, "err", err)
		} else {
			job.Status = queue.StatusCompleted
			job.ResultHandle = string(handle)
			w.log.Info("job done", "id", job.ID, "gate", job.Gate, "result", job.ResultHandle)
		}
		if err := w.queue.Update(ctx, job); err != nil {
			w.log.Error("update job", "id", job.ID, "err", err)
		}
	}
}
