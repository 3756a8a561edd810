package repository

import (
	"context"
	"errors"

	"figurineForge/models"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrFigurineNotFound = errors.New("figurine not found")
)

// TaskRepository is the durable store of conversion tasks. Upsert is keyed by
// the vendor task id, so replaying a write converges instead of duplicating.
type TaskRepository interface {
	UpsertTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
}

// FigurineRepository owns the user-visible gallery rows.
type FigurineRepository interface {
	FindFigurineBySource(ctx context.Context, ownerID, sourceRef string) (*models.Figurine, error)
	CreateFigurine(ctx context.Context, fig *models.Figurine) error
	SetFigurineModelURL(ctx context.Context, id, modelURL string) error
}

type Repository interface {
	TaskRepository
	FigurineRepository
}
