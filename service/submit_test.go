package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"figurineForge/meshy"
	"figurineForge/models"
	"figurineForge/poller"
	"figurineForge/repository"
	"figurineForge/validation"
)

type mockVendor struct {
	calls    int
	submitFn func(ctx context.Context, kind models.TaskKind, sourceRef string, cfg models.GenerationConfig) (string, error)
}

func (m *mockVendor) Submit(ctx context.Context, kind models.TaskKind, sourceRef string, cfg models.GenerationConfig) (string, error) {
	m.calls++
	if m.submitFn != nil {
		return m.submitFn(ctx, kind, sourceRef, cfg)
	}
	return "task-42", nil
}

type mockTaskRepo struct {
	tasks     map[string]*models.Task
	upsertErr error
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: make(map[string]*models.Task)}
}

func (m *mockTaskRepo) UpsertTask(ctx context.Context, task *models.Task) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	stored := *task
	m.tasks[task.TaskID] = &stored
	return nil
}

func (m *mockTaskRepo) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	if task, ok := m.tasks[taskID]; ok {
		return task, nil
	}
	return nil, repository.ErrTaskNotFound
}

type noopCache struct{ sets int }

func (c *noopCache) Set(ctx context.Context, taskID string, snap models.StatusSnapshot) error {
	c.sets++
	return nil
}

func newTestSubmitter(t *testing.T, vendor *mockVendor, repo *mockTaskRepo) *Submitter {
	return NewSubmitter(vendor, repo, &noopCache{}, nil, zaptest.NewLogger(t))
}

func TestSubmitter_TextPrompt(t *testing.T) {
	vendor := &mockVendor{}
	repo := newMockTaskRepo()
	s := newTestSubmitter(t, vendor, repo)

	task, err := s.Submit(context.Background(), &validation.SubmitInput{
		Kind:    models.KindTextTo3D,
		OwnerID: "user-1",
		Prompt:  "a red dragon",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if task.TaskID != "task-42" {
		t.Errorf("Expected task-42, got %s", task.TaskID)
	}
	if task.Status != models.StatusPending {
		t.Errorf("Expected pending, got %s", task.Status)
	}
	if task.Progress != poller.ProgressSubmitted {
		t.Errorf("Expected submit-band progress, got %d", task.Progress)
	}
	if task.SourceRef != "a red dragon" {
		t.Errorf("Expected prompt as source ref, got %s", task.SourceRef)
	}
	if task.ReconcileStatus != models.ReconcilePending {
		t.Errorf("Expected reconcile pending, got %s", task.ReconcileStatus)
	}
	if _, ok := repo.tasks["task-42"]; !ok {
		t.Error("Task row not written")
	}
}

func TestSubmitter_RawImageBecomesDataURI(t *testing.T) {
	var gotSourceRef string
	vendor := &mockVendor{submitFn: func(ctx context.Context, kind models.TaskKind, sourceRef string, cfg models.GenerationConfig) (string, error) {
		gotSourceRef = sourceRef
		return "task-42", nil
	}}
	s := newTestSubmitter(t, vendor, newMockTaskRepo())

	_, err := s.Submit(context.Background(), &validation.SubmitInput{
		Kind:      models.KindImageTo3D,
		OwnerID:   "user-1",
		ImageData: []byte{0x89, 0x50, 0x4E, 0x47},
		ImageMIME: "image/png",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if !strings.HasPrefix(gotSourceRef, "data:image/png;base64,") {
		t.Errorf("Expected data uri source ref, got %s", gotSourceRef)
	}
}

func TestSubmitter_ValidationFailsBeforeNetwork(t *testing.T) {
	vendor := &mockVendor{}
	s := newTestSubmitter(t, vendor, newMockTaskRepo())

	_, err := s.Submit(context.Background(), &validation.SubmitInput{
		Kind: models.KindTextTo3D,
	})
	if !errors.Is(err, validation.ErrPromptRequired) {
		t.Fatalf("Expected ErrPromptRequired, got %v", err)
	}
	if vendor.calls != 0 {
		t.Errorf("Vendor must not be called on invalid input, got %d calls", vendor.calls)
	}
}

func TestSubmitter_QuotaErrorSurfaced(t *testing.T) {
	vendor := &mockVendor{submitFn: func(ctx context.Context, kind models.TaskKind, sourceRef string, cfg models.GenerationConfig) (string, error) {
		return "", meshy.ErrQuotaExceeded
	}}
	repo := newMockTaskRepo()
	s := newTestSubmitter(t, vendor, repo)

	_, err := s.Submit(context.Background(), &validation.SubmitInput{
		Kind:   models.KindTextTo3D,
		Prompt: "a red dragon",
	})
	if !errors.Is(err, meshy.ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded, got %v", err)
	}
	if len(repo.tasks) != 0 {
		t.Error("No task row should exist after vendor rejection")
	}
}
