package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"figurineForge/artifact"
	"figurineForge/events"
	"figurineForge/meshy"
	"figurineForge/models"
)

var (
	// ErrTimedOut means the attempt budget ran out before the vendor
	// reached a terminal state.
	ErrTimedOut = errors.New("conversion timed out")
	// ErrConversionFailed is the vendor's own terminal failure.
	ErrConversionFailed = errors.New("conversion failed")
	// ErrMissingArtifact means the vendor claimed success without a model
	// url. Contract violation, not a retry case.
	ErrMissingArtifact = errors.New("vendor reported success without a model url")
)

// Progress bands. The vendor's 0-100 is scaled into 30-90 so the overall
// number never regresses when the download and reconcile phases take over.
// The exact constants are a smoothing heuristic; the monotonic clamp is the
// contract.
const (
	ProgressSubmitted   = 10
	progressVendorBase  = 30
	progressVendorSpan  = 60
	progressDownloading = 90
	progressPersisted   = 95
	progressDone        = 100
)

type VendorClient interface {
	Status(ctx context.Context, taskID string) (*meshy.JobStatus, error)
}

type TaskStore interface {
	UpsertTask(ctx context.Context, task *models.Task) error
}

type SnapshotCache interface {
	Set(ctx context.Context, taskID string, snap models.StatusSnapshot) error
}

type ArtifactStore interface {
	Persist(ctx context.Context, ownerID, taskID, modelURL, thumbnailURL string) (*artifact.PersistResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, task *models.Task, modelURL string) (string, bool, error)
}

// Clock abstracts the inter-tick delay so tests drive the loop without real
// time passing.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type ProgressFunc func(models.StatusSnapshot)

// Poller drives one task from submission to a terminal state: poll the
// vendor on a fixed interval, then download and reconcile on success. Each
// tick fully completes, side effects included, before the next is scheduled.
type Poller struct {
	vendor      VendorClient
	store       TaskStore
	cache       SnapshotCache
	artifacts   ArtifactStore
	reconciler  Reconciler
	publisher   events.Publisher
	clock       Clock
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger
}

func New(
	vendor VendorClient,
	store TaskStore,
	cache SnapshotCache,
	artifacts ArtifactStore,
	reconciler Reconciler,
	publisher events.Publisher,
	interval time.Duration,
	maxAttempts int,
	logger *zap.Logger,
) *Poller {
	return &Poller{
		vendor:      vendor,
		store:       store,
		cache:       cache,
		artifacts:   artifacts,
		reconciler:  reconciler,
		publisher:   publisher,
		clock:       realClock{},
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Poll runs the loop until the task is terminal or ctx is cancelled. The
// returned task reflects the last persisted state. Download or reconcile
// failures after a vendor success degrade the result instead of failing it;
// the error is non-nil only for failure, timeout and contract violations.
func (p *Poller) Poll(ctx context.Context, task *models.Task, onProgress ProgressFunc) (*models.Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return task, err
		}

		st, err := p.vendor.Status(ctx, task.TaskID)
		task.Attempts++

		if err != nil {
			if ctx.Err() != nil {
				return task, ctx.Err()
			}
			p.logger.Warn("Vendor status check failed",
				zap.String("task_id", task.TaskID),
				zap.Int("attempt", task.Attempts),
				zap.Error(err),
			)
			if task.Attempts >= p.maxAttempts {
				return p.timeOut(ctx, task, onProgress)
			}
			if !p.wait(ctx) {
				return task, ctx.Err()
			}
			continue
		}

		status, known := meshy.MapStatus(st.Status)
		if !known {
			p.logger.Warn("Unrecognized vendor status, treating as processing",
				zap.String("task_id", task.TaskID),
				zap.String("raw_status", st.Status),
			)
		}

		switch status {
		case models.StatusSucceeded:
			return p.finish(ctx, task, st, onProgress)

		case models.StatusFailed:
			task.Status = models.StatusFailed
			task.ErrorMessage = "vendor reported failure"
			p.persistState(ctx, task)
			p.report(onProgress, task)
			p.publish(ctx, task)
			return task, fmt.Errorf("%w: task %s", ErrConversionFailed, task.TaskID)

		default:
			task.Status = models.StatusProcessing
			task.Progress = scaleProgress(task.Progress, st.Progress)
			p.persistState(ctx, task)
			p.report(onProgress, task)
			if task.Attempts >= p.maxAttempts {
				return p.timeOut(ctx, task, onProgress)
			}
			if !p.wait(ctx) {
				return task, ctx.Err()
			}
		}
	}
}

func (p *Poller) finish(ctx context.Context, task *models.Task, st *meshy.JobStatus, onProgress ProgressFunc) (*models.Task, error) {
	if st.ModelURL == "" {
		task.Status = models.StatusFailed
		task.ErrorMessage = "vendor reported success without a model url"
		p.persistState(ctx, task)
		p.report(onProgress, task)
		p.publish(ctx, task)
		return task, fmt.Errorf("%w: task %s", ErrMissingArtifact, task.TaskID)
	}

	task.Status = models.StatusSucceeded
	task.ModelURL = st.ModelURL
	task.ThumbnailURL = st.ThumbnailURL
	task.DownloadStatus = models.DownloadInProgress
	if task.Progress < progressDownloading {
		task.Progress = progressDownloading
	}
	p.persistState(ctx, task)
	p.report(onProgress, task)

	res, err := p.artifacts.Persist(ctx, task.OwnerID, task.TaskID, st.ModelURL, st.ThumbnailURL)
	if err != nil {
		// generation succeeded; the vendor url stays usable, so the task
		// is complete with degraded persistence
		p.logger.Error("Artifact persistence failed",
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
		task.DownloadStatus = models.DownloadFailed
		task.Progress = progressDone
		p.persistState(ctx, task)
		p.report(onProgress, task)
		p.publish(ctx, task)
		return task, nil
	}

	task.PersistedModelURL = res.ModelURL
	task.PersistedThumbnailURL = res.ThumbnailURL
	task.DownloadStatus = models.DownloadCompleted
	task.Progress = progressPersisted
	p.persistState(ctx, task)
	p.report(onProgress, task)

	if _, _, err := p.reconciler.Reconcile(ctx, task, res.ModelURL); err != nil {
		// the artifact is safe in our storage; gallery linkage can be
		// retried out of band, and the snapshot carries the gap
		p.logger.Error("Figurine reconciliation failed",
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
		task.ReconcileStatus = models.ReconcileFailed
	} else {
		task.ReconcileStatus = models.ReconcileCompleted
	}

	task.Progress = progressDone
	p.persistState(ctx, task)
	p.report(onProgress, task)
	p.publish(ctx, task)
	return task, nil
}

func (p *Poller) timeOut(ctx context.Context, task *models.Task, onProgress ProgressFunc) (*models.Task, error) {
	task.Status = models.StatusTimedOut
	task.ErrorMessage = "conversion did not finish within the polling budget"
	p.persistState(ctx, task)
	p.report(onProgress, task)
	p.publish(ctx, task)
	return task, fmt.Errorf("%w: task %s after %d attempts", ErrTimedOut, task.TaskID, task.Attempts)
}

func (p *Poller) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(p.interval):
		return true
	}
}

func (p *Poller) persistState(ctx context.Context, task *models.Task) {
	if err := p.store.UpsertTask(ctx, task); err != nil {
		p.logger.Error("Task upsert failed",
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
	}
	if err := p.cache.Set(ctx, task.TaskID, task.Snapshot()); err != nil {
		p.logger.Warn("Snapshot cache write failed",
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
	}
}

func (p *Poller) report(onProgress ProgressFunc, task *models.Task) {
	if onProgress != nil {
		onProgress(task.Snapshot())
	}
}

func (p *Poller) publish(ctx context.Context, task *models.Task) {
	if p.publisher == nil {
		return
	}
	snap := task.Snapshot()
	event := &events.TaskEvent{
		TaskID:   task.TaskID,
		OwnerID:  task.OwnerID,
		Status:   task.Status,
		Progress: task.Progress,
		ModelURL: snap.ModelURL,
	}
	if err := p.publisher.PublishTaskEvent(ctx, event); err != nil {
		p.logger.Warn("Task event publish failed",
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
	}
}

func scaleProgress(prev, vendorProgress int) int {
	if vendorProgress < 0 {
		vendorProgress = 0
	}
	if vendorProgress > 100 {
		vendorProgress = 100
	}
	scaled := progressVendorBase + vendorProgress*progressVendorSpan/100
	if scaled < prev {
		return prev
	}
	return scaled
}
