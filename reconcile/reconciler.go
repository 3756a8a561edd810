package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"figurineForge/models"
	"figurineForge/repository"
)

// ErrReconcileFailed wraps any failure to link a finished task to a figurine.
// The persisted artifact is unaffected; callers treat this as recoverable.
var ErrReconcileFailed = errors.New("figurine reconciliation failed")

const maxTitleRunes = 50

// Reconciler attaches a finished conversion to the figurine it belongs to:
// an existing row matching the task's source reference, or exactly one new
// row. Re-running after a crash finds the row created the first time.
type Reconciler struct {
	repo   repository.FigurineRepository
	logger *zap.Logger
}

func NewReconciler(repo repository.FigurineRepository, logger *zap.Logger) *Reconciler {
	return &Reconciler{repo: repo, logger: logger}
}

func (r *Reconciler) Reconcile(ctx context.Context, task *models.Task, modelURL string) (figurineID string, created bool, err error) {
	existing, err := r.repo.FindFigurineBySource(ctx, task.OwnerID, task.SourceRef)
	if err == nil {
		// only the model url moves; title and source stay as the user made them
		if err := r.repo.SetFigurineModelURL(ctx, existing.ID, modelURL); err != nil {
			return "", false, fmt.Errorf("%w: update figurine %s: %v", ErrReconcileFailed, existing.ID, err)
		}

		r.logger.Info("Figurine updated",
			zap.String("task_id", task.TaskID),
			zap.String("figurine_id", existing.ID),
		)

		return existing.ID, false, nil
	}
	if !errors.Is(err, repository.ErrFigurineNotFound) {
		return "", false, fmt.Errorf("%w: lookup: %v", ErrReconcileFailed, err)
	}

	fig := &models.Figurine{
		ID:             uuid.New().String(),
		OwnerID:        task.OwnerID,
		Title:          deriveTitle(task),
		SourceImageURL: task.SourceRef,
		ModelURL:       modelURL,
	}

	if err := r.repo.CreateFigurine(ctx, fig); err != nil {
		return "", false, fmt.Errorf("%w: create: %v", ErrReconcileFailed, err)
	}

	r.logger.Info("Figurine created",
		zap.String("task_id", task.TaskID),
		zap.String("figurine_id", fig.ID),
	)

	return fig.ID, true, nil
}

func deriveTitle(task *models.Task) string {
	if task.Kind == models.KindTextTo3D {
		title := strings.TrimSpace(task.SourceRef)
		if runes := []rune(title); len(runes) > maxTitleRunes {
			title = string(runes[:maxTitleRunes-3]) + "..."
		}
		if title != "" {
			return title
		}
	}

	id := task.TaskID
	if len(id) > 8 {
		id = id[:8]
	}
	return "Figurine " + id
}
