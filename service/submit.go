package service

import (
	"context"

	"go.uber.org/zap"

	"figurineForge/events"
	"figurineForge/models"
	"figurineForge/poller"
	"figurineForge/repository"
	"figurineForge/validation"
)

type VendorSubmitter interface {
	Submit(ctx context.Context, kind models.TaskKind, sourceRef string, cfg models.GenerationConfig) (string, error)
}

// Submitter validates input, submits the job to the vendor and writes the
// initial task row. Polling is started by the caller.
type Submitter struct {
	vendor    VendorSubmitter
	repo      repository.TaskRepository
	cache     poller.SnapshotCache
	publisher events.Publisher
	logger    *zap.Logger
}

func NewSubmitter(vendor VendorSubmitter, repo repository.TaskRepository, cache poller.SnapshotCache, publisher events.Publisher, logger *zap.Logger) *Submitter {
	return &Submitter{
		vendor:    vendor,
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
	}
}

// Submit returns the vendor-assigned task id. Validation failures and vendor
// quota errors surface before any task row exists.
func (s *Submitter) Submit(ctx context.Context, in *validation.SubmitInput) (*models.Task, error) {
	if err := validation.ValidateSubmit(in); err != nil {
		return nil, err
	}

	sourceRef := in.Prompt
	if in.Kind == models.KindImageTo3D {
		sourceRef = in.ImageRef
		if sourceRef == "" {
			sourceRef = validation.DataURI(in.ImageMIME, in.ImageData)
		}
	}

	taskID, err := s.vendor.Submit(ctx, in.Kind, sourceRef, in.Config)
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		TaskID:          taskID,
		OwnerID:         in.OwnerID,
		Kind:            in.Kind,
		Status:          models.StatusPending,
		Progress:        poller.ProgressSubmitted,
		SourceRef:       sourceRef,
		DownloadStatus:  models.DownloadPending,
		ReconcileStatus: models.ReconcilePending,
	}

	if err := s.repo.UpsertTask(ctx, task); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, task.TaskID, task.Snapshot()); err != nil {
		s.logger.Warn("Snapshot cache write failed",
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
	}

	if s.publisher != nil {
		event := &events.TaskEvent{
			TaskID:   task.TaskID,
			OwnerID:  task.OwnerID,
			Status:   task.Status,
			Progress: task.Progress,
		}
		if err := s.publisher.PublishTaskEvent(ctx, event); err != nil {
			s.logger.Warn("Task event publish failed",
				zap.String("task_id", task.TaskID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Conversion task created",
		zap.String("task_id", task.TaskID),
		zap.String("owner_id", task.OwnerID),
		zap.String("kind", string(task.Kind)),
	)

	return task, nil
}
