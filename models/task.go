package models

import (
	"time"
)

type TaskKind string

const (
	KindImageTo3D TaskKind = "image_to_3d"
	KindTextTo3D  TaskKind = "text_to_3d"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusSucceeded  TaskStatus = "succeeded"
	StatusFailed     TaskStatus = "failed"
	StatusTimedOut   TaskStatus = "timed_out"
)

// Terminal reports whether no further status transition is allowed.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut:
		return true
	default:
		return false
	}
}

type DownloadStatus string

const (
	DownloadPending    DownloadStatus = "pending"
	DownloadInProgress DownloadStatus = "downloading"
	DownloadCompleted  DownloadStatus = "completed"
	DownloadFailed     DownloadStatus = "failed"
)

// ReconcileStatus tracks whether the finished artifact was linked to a
// figurine. A failed linkage leaves the task succeeded; the gap is retried
// out of band.
type ReconcileStatus string

const (
	ReconcilePending   ReconcileStatus = "pending"
	ReconcileCompleted ReconcileStatus = "completed"
	ReconcileFailed    ReconcileStatus = "failed"
)

// GenerationConfig carries the vendor-facing generation options. Zero values
// mean "vendor default"; validation rejects anything outside the closed sets.
type GenerationConfig struct {
	ArtStyle        string `json:"art_style,omitempty"`
	AIModel         string `json:"ai_model,omitempty"`
	Topology        string `json:"topology,omitempty"`
	TargetPolycount int    `json:"target_polycount,omitempty"`
	TextureRichness string `json:"texture_richness,omitempty"`
	Moderation      bool   `json:"moderation,omitempty"`
	NegativePrompt  string `json:"negative_prompt,omitempty"`
}

// Task is the durable record of one external conversion job, keyed by the
// vendor-assigned task id.
type Task struct {
	TaskID                string
	OwnerID               string
	Kind                  TaskKind
	Status                TaskStatus
	Progress              int
	SourceRef             string
	ModelURL              string
	ThumbnailURL          string
	PersistedModelURL     string
	PersistedThumbnailURL string
	DownloadStatus        DownloadStatus
	ReconcileStatus       ReconcileStatus
	Attempts              int
	ErrorMessage          string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// StatusSnapshot is the caller-facing view of a task, served from the cache
// or derived from the row.
type StatusSnapshot struct {
	TaskID          string          `json:"task_id"`
	Status          TaskStatus      `json:"status"`
	Progress        int             `json:"progress"`
	ModelURL        string          `json:"model_url,omitempty"`
	ThumbnailURL    string          `json:"thumbnail_url,omitempty"`
	DownloadStatus  DownloadStatus  `json:"download_status"`
	ReconcileStatus ReconcileStatus `json:"reconcile_status"`
	ErrorMessage    string          `json:"error_message,omitempty"`
}

// Snapshot prefers our persisted copies over the vendor-hosted URLs; a task
// with failed persistence still exposes the vendor URL as fallback.
func (t *Task) Snapshot() StatusSnapshot {
	modelURL := t.PersistedModelURL
	if modelURL == "" {
		modelURL = t.ModelURL
	}
	thumbURL := t.PersistedThumbnailURL
	if thumbURL == "" {
		thumbURL = t.ThumbnailURL
	}

	return StatusSnapshot{
		TaskID:          t.TaskID,
		Status:          t.Status,
		Progress:        t.Progress,
		ModelURL:        modelURL,
		ThumbnailURL:    thumbURL,
		DownloadStatus:  t.DownloadStatus,
		ReconcileStatus: t.ReconcileStatus,
		ErrorMessage:    t.ErrorMessage,
	}
}
