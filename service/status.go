package service

import (
	"context"

	"figurineForge/cache"
	"figurineForge/models"
	"figurineForge/repository"
)

// StatusService serves the caller-facing snapshot: cache first, task row on
// miss (warming the cache on the way out).
type StatusService struct {
	repo  repository.TaskRepository
	cache *cache.StatusCache
}

func NewStatusService(repo repository.TaskRepository, cache *cache.StatusCache) *StatusService {
	return &StatusService{repo: repo, cache: cache}
}

func (s *StatusService) Snapshot(ctx context.Context, taskID string) (*models.StatusSnapshot, error) {
	if s.cache != nil {
		if snap, err := s.cache.Get(ctx, taskID); err == nil {
			return snap, nil
		}
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	snap := task.Snapshot()
	if s.cache != nil {
		s.cache.Set(ctx, taskID, snap)
	}

	return &snap, nil
}
