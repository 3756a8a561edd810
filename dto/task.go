package dto

import "figurineForge/models"

type SubmitRequest struct {
	Kind     string                  `json:"kind"`
	Prompt   string                  `json:"prompt,omitempty"`
	ImageURL string                  `json:"image_url,omitempty"`
	Config   models.GenerationConfig `json:"config"`
}

type TaskResponse struct {
	TaskID          string `json:"task_id"`
	Status          string `json:"status"`
	Progress        int    `json:"progress"`
	ModelURL        string `json:"model_url,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	DownloadStatus  string `json:"download_status"`
	ReconcileStatus string `json:"reconcile_status"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func FromSnapshot(snap *models.StatusSnapshot) *TaskResponse {
	return &TaskResponse{
		TaskID:          snap.TaskID,
		Status:          string(snap.Status),
		Progress:        snap.Progress,
		ModelURL:        snap.ModelURL,
		ThumbnailURL:    snap.ThumbnailURL,
		DownloadStatus:  string(snap.DownloadStatus),
		ReconcileStatus: string(snap.ReconcileStatus),
		ErrorMessage:    snap.ErrorMessage,
	}
}
