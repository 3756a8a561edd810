package poller

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"figurineForge/models"
)

// ErrAlreadyPolling enforces the single-active-poller invariant: a second
// loop for the same task id is a caller bug, so Start refuses it instead of
// serializing behind a lock.
var ErrAlreadyPolling = errors.New("task already has an active poller")

// Registry owns the background poll loops started fire-and-forget by the
// HTTP layer. Loops run on the registry's base context, not the request
// context, so they outlive the submitting request.
type Registry struct {
	baseCtx context.Context
	poller  *Poller
	logger  *zap.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

func NewRegistry(baseCtx context.Context, p *Poller, logger *zap.Logger) *Registry {
	return &Registry{
		baseCtx: baseCtx,
		poller:  p,
		logger:  logger,
		active:  make(map[string]context.CancelFunc),
	}
}

func (r *Registry) Start(task *models.Task, onProgress ProgressFunc) error {
	r.mu.Lock()
	if _, ok := r.active[task.TaskID]; ok {
		r.mu.Unlock()
		return ErrAlreadyPolling
	}
	ctx, cancel := context.WithCancel(r.baseCtx)
	r.active[task.TaskID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.remove(task.TaskID)

		final, err := r.poller.Poll(ctx, task, onProgress)
		if err != nil {
			r.logger.Warn("Poll loop ended with error",
				zap.String("task_id", task.TaskID),
				zap.String("status", string(final.Status)),
				zap.Error(err),
			)
			return
		}
		r.logger.Info("Poll loop finished",
			zap.String("task_id", task.TaskID),
			zap.String("status", string(final.Status)),
			zap.String("download_status", string(final.DownloadStatus)),
		)
	}()

	return nil
}

// Stop cancels the active loop for a task id, if any. Callers that want to
// restart polling must Stop first.
func (r *Registry) Stop(taskID string) bool {
	r.mu.Lock()
	cancel, ok := r.active[taskID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Shutdown cancels every loop and waits for them to observe it.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	for _, cancel := range r.active {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Registry) remove(taskID string) {
	r.mu.Lock()
	if cancel, ok := r.active[taskID]; ok {
		cancel()
		delete(r.active, taskID)
	}
	r.mu.Unlock()
}
