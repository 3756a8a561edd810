package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"figurineForge/dto"
	"figurineForge/meshy"
	"figurineForge/middleware"
	"figurineForge/models"
	"figurineForge/poller"
	"figurineForge/repository"
	"figurineForge/validation"
)

const defaultOwner = "anonymous"

type SubmitService interface {
	Submit(ctx context.Context, in *validation.SubmitInput) (*models.Task, error)
}

type StatusSource interface {
	Snapshot(ctx context.Context, taskID string) (*models.StatusSnapshot, error)
}

type PollStarter interface {
	Start(task *models.Task, onProgress poller.ProgressFunc) error
}

type TaskHandler struct {
	submitter SubmitService
	status    StatusSource
	pollers   PollStarter
	logger    *zap.Logger
}

func NewTaskHandler(submitter SubmitService, status StatusSource, pollers PollStarter, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		submitter: submitter,
		status:    status,
		pollers:   pollers,
		logger:    logger,
	}
}

// Create accepts either a JSON body (prompt or image url) or a multipart
// upload with an "image" file, submits the job and starts the poll loop.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	input, err := h.parseInput(r)
	if err != nil {
		h.handleError(w, "Invalid input", err, traceID, http.StatusBadRequest)
		return
	}

	task, err := h.submitter.Submit(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, meshy.ErrQuotaExceeded):
			h.handleError(w, "Vendor quota exceeded", err, traceID, http.StatusTooManyRequests)
		case errors.Is(err, meshy.ErrTransient):
			h.handleError(w, "Vendor unavailable", err, traceID, http.StatusServiceUnavailable)
		case errors.Is(err, meshy.ErrRejected):
			h.handleError(w, "Vendor rejected job", err, traceID, http.StatusBadGateway)
		case isValidationError(err):
			h.handleError(w, "Invalid input", err, traceID, http.StatusBadRequest)
		default:
			h.handleError(w, "Failed to create task", err, traceID, http.StatusInternalServerError)
		}
		return
	}

	if err := h.pollers.Start(task, nil); err != nil {
		h.logger.Warn("Poll loop not started",
			zap.String("trace_id", traceID),
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
	}

	h.logger.Info("Task submitted",
		zap.String("trace_id", traceID),
		zap.String("task_id", task.TaskID),
		zap.String("kind", string(task.Kind)),
	)

	snap := task.Snapshot()
	h.respondJSON(w, http.StatusAccepted, dto.FromSnapshot(&snap))
}

func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	taskID := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if taskID == "" || strings.Contains(taskID, "/") {
		h.handleError(w, "Task ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	snap, err := h.status.Snapshot(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get task status", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, dto.FromSnapshot(snap))
}

func (h *TaskHandler) parseInput(r *http.Request) (*validation.SubmitInput, error) {
	owner := r.Header.Get("X-Owner-ID")
	if owner == "" {
		owner = defaultOwner
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return h.parseMultipart(r, owner)
	}

	var req dto.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}

	return &validation.SubmitInput{
		Kind:     models.TaskKind(req.Kind),
		OwnerID:  owner,
		ImageRef: req.ImageURL,
		Prompt:   req.Prompt,
		Config:   req.Config,
	}, nil
}

func (h *TaskHandler) parseMultipart(r *http.Request, owner string) (*validation.SubmitInput, error) {
	if err := r.ParseMultipartForm(validation.MaxImageBytes); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, validation.ErrImageRequired
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, validation.MaxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > validation.MaxImageBytes {
		return nil, validation.ErrImageTooLarge
	}

	mime, err := validation.DetectImageMIME(data)
	if err != nil {
		return nil, err
	}

	return &validation.SubmitInput{
		Kind:      models.KindImageTo3D,
		OwnerID:   owner,
		ImageData: data,
		ImageMIME: mime,
		Config: models.GenerationConfig{
			ArtStyle:        r.FormValue("art_style"),
			AIModel:         r.FormValue("ai_model"),
			Topology:        r.FormValue("topology"),
			TextureRichness: r.FormValue("texture_richness"),
			NegativePrompt:  r.FormValue("negative_prompt"),
			Moderation:      r.FormValue("moderation") == "true",
			TargetPolycount: atoiOrZero(r.FormValue("target_polycount")),
		},
	}, nil
}

func isValidationError(err error) bool {
	for _, target := range []error{
		validation.ErrUnknownKind,
		validation.ErrImageRequired,
		validation.ErrPromptRequired,
		validation.ErrImageTooLarge,
		validation.ErrInvalidImageType,
		validation.ErrInvalidArtStyle,
		validation.ErrInvalidTopology,
		validation.ErrInvalidPolycount,
		validation.ErrInvalidTextureRichness,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func (h *TaskHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
