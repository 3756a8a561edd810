package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"figurineForge/database"
	"figurineForge/models"
)

type PostgresRepo struct {
	db *database.DB
}

func NewPostgresRepo(db *database.DB) Repository {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) UpsertTask(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (
			task_id, owner_id, kind, status, progress, source_ref,
			model_url, thumbnail_url, persisted_model_url, persisted_thumbnail_url,
			download_status, reconcile_status, attempts, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (task_id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			model_url = EXCLUDED.model_url,
			thumbnail_url = EXCLUDED.thumbnail_url,
			persisted_model_url = EXCLUDED.persisted_model_url,
			persisted_thumbnail_url = EXCLUDED.persisted_thumbnail_url,
			download_status = EXCLUDED.download_status,
			reconcile_status = EXCLUDED.reconcile_status,
			attempts = EXCLUDED.attempts,
			error_message = EXCLUDED.error_message,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		task.TaskID,
		task.OwnerID,
		task.Kind,
		task.Status,
		task.Progress,
		task.SourceRef,
		task.ModelURL,
		task.ThumbnailURL,
		task.PersistedModelURL,
		task.PersistedThumbnailURL,
		task.DownloadStatus,
		task.ReconcileStatus,
		task.Attempts,
		task.ErrorMessage,
	).Scan(&task.CreatedAt, &task.UpdatedAt)

	return err
}

func (r *PostgresRepo) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	query := `
		SELECT task_id, owner_id, kind, status, progress, source_ref,
			model_url, thumbnail_url, persisted_model_url, persisted_thumbnail_url,
			download_status, reconcile_status, attempts, error_message, created_at, updated_at
		FROM tasks
		WHERE task_id = $1
	`

	row := r.db.Pool.QueryRow(ctx, query, taskID)

	var task models.Task
	err := row.Scan(
		&task.TaskID,
		&task.OwnerID,
		&task.Kind,
		&task.Status,
		&task.Progress,
		&task.SourceRef,
		&task.ModelURL,
		&task.ThumbnailURL,
		&task.PersistedModelURL,
		&task.PersistedThumbnailURL,
		&task.DownloadStatus,
		&task.ReconcileStatus,
		&task.Attempts,
		&task.ErrorMessage,
		&task.CreatedAt,
		&task.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	return &task, nil
}

func (r *PostgresRepo) FindFigurineBySource(ctx context.Context, ownerID, sourceRef string) (*models.Figurine, error) {
	query := `
		SELECT id, owner_id, title, source_image_url, model_url, created_at, updated_at
		FROM figurines
		WHERE owner_id = $1 AND source_image_url = $2
		ORDER BY created_at
		LIMIT 1
	`

	row := r.db.Pool.QueryRow(ctx, query, ownerID, sourceRef)

	var fig models.Figurine
	err := row.Scan(
		&fig.ID,
		&fig.OwnerID,
		&fig.Title,
		&fig.SourceImageURL,
		&fig.ModelURL,
		&fig.CreatedAt,
		&fig.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFigurineNotFound
		}
		return nil, err
	}

	return &fig, nil
}

func (r *PostgresRepo) CreateFigurine(ctx context.Context, fig *models.Figurine) error {
	query := `
		INSERT INTO figurines (id, owner_id, title, source_image_url, model_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	return r.db.Pool.QueryRow(ctx, query,
		fig.ID,
		fig.OwnerID,
		fig.Title,
		fig.SourceImageURL,
		fig.ModelURL,
	).Scan(&fig.CreatedAt, &fig.UpdatedAt)
}

func (r *PostgresRepo) SetFigurineModelURL(ctx context.Context, id, modelURL string) error {
	query := `
		UPDATE figurines
		SET model_url = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.Pool.Exec(ctx, query, modelURL, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrFigurineNotFound
	}

	return nil
}
