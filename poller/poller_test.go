package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"figurineForge/artifact"
	"figurineForge/meshy"
	"figurineForge/models"
)

type fakeVendor struct {
	calls int
	fn    func(call int) (*meshy.JobStatus, error)
}

func (f *fakeVendor) Status(ctx context.Context, taskID string) (*meshy.JobStatus, error) {
	f.calls++
	return f.fn(f.calls)
}

type fakeStore struct {
	upserts []models.Task
}

func (f *fakeStore) UpsertTask(ctx context.Context, task *models.Task) error {
	f.upserts = append(f.upserts, *task)
	return nil
}

type fakeCache struct {
	sets int
}

func (f *fakeCache) Set(ctx context.Context, taskID string, snap models.StatusSnapshot) error {
	f.sets++
	return nil
}

type fakeArtifacts struct {
	calls  int
	result *artifact.PersistResult
	err    error
}

func (f *fakeArtifacts) Persist(ctx context.Context, ownerID, taskID, modelURL, thumbnailURL string) (*artifact.PersistResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeReconciler struct {
	calls int
	err   error
}

func (f *fakeReconciler) Reconcile(ctx context.Context, task *models.Task, modelURL string) (string, bool, error) {
	f.calls++
	if f.err != nil {
		return "", false, f.err
	}
	return "figurine-1", true, nil
}

// immediateClock fires ticks without real delay.
type immediateClock struct{}

func (immediateClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// stuckClock never fires; used to test cancellation during the wait.
type stuckClock struct{}

func (stuckClock) After(d time.Duration) <-chan time.Time { return nil }

type testEnv struct {
	poller     *Poller
	vendor     *fakeVendor
	store      *fakeStore
	artifacts  *fakeArtifacts
	reconciler *fakeReconciler
}

func newTestEnv(t *testing.T, maxAttempts int, vendorFn func(int) (*meshy.JobStatus, error)) *testEnv {
	env := &testEnv{
		vendor: &fakeVendor{fn: vendorFn},
		store:  &fakeStore{},
		artifacts: &fakeArtifacts{result: &artifact.PersistResult{
			ModelURL:     "http://files/user-1/models/task-1.glb",
			ThumbnailURL: "http://files/user-1/thumbnails/task-1.png",
		}},
		reconciler: &fakeReconciler{},
	}
	env.poller = New(env.vendor, env.store, &fakeCache{}, env.artifacts, env.reconciler, nil,
		5*time.Second, maxAttempts, zaptest.NewLogger(t))
	env.poller.clock = immediateClock{}
	return env
}

func newTask() *models.Task {
	return &models.Task{
		TaskID:          "task-1",
		OwnerID:         "user-1",
		Kind:            models.KindTextTo3D,
		Status:          models.StatusPending,
		Progress:        ProgressSubmitted,
		SourceRef:       "a red dragon",
		DownloadStatus:  models.DownloadPending,
		ReconcileStatus: models.ReconcilePending,
	}
}

func TestPoller_SuccessAfterPending(t *testing.T) {
	env := newTestEnv(t, 60, func(call int) (*meshy.JobStatus, error) {
		if call <= 3 {
			return &meshy.JobStatus{Status: "PENDING", Progress: 0}, nil
		}
		return &meshy.JobStatus{
			Status:       "SUCCEEDED",
			Progress:     100,
			ModelURL:     "https://vendor/x.glb",
			ThumbnailURL: "https://vendor/x.png",
		}, nil
	})

	final, err := env.poller.Poll(context.Background(), newTask(), nil)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	if final.Status != models.StatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", final.Status)
	}
	if final.DownloadStatus != models.DownloadCompleted {
		t.Errorf("Expected download completed, got %s", final.DownloadStatus)
	}
	if final.PersistedModelURL != "http://files/user-1/models/task-1.glb" {
		t.Errorf("Unexpected persisted model url: %s", final.PersistedModelURL)
	}
	if final.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", final.Progress)
	}
	if env.vendor.calls != 4 {
		t.Errorf("Expected 4 status checks, got %d", env.vendor.calls)
	}
	if env.artifacts.calls != 1 {
		t.Errorf("Expected 1 persist call, got %d", env.artifacts.calls)
	}
	if env.reconciler.calls != 1 {
		t.Errorf("Expected 1 reconcile call, got %d", env.reconciler.calls)
	}
	if final.ReconcileStatus != models.ReconcileCompleted {
		t.Errorf("Expected reconcile completed, got %s", final.ReconcileStatus)
	}

	snap := final.Snapshot()
	if snap.ModelURL != "http://files/user-1/models/task-1.glb" {
		t.Errorf("Snapshot should expose persisted url, got %s", snap.ModelURL)
	}
}

func TestPoller_MonotonicProgress(t *testing.T) {
	// vendor progress regresses; the reported progress must not
	vendorProgress := []int{50, 20, 80}
	env := newTestEnv(t, 60, func(call int) (*meshy.JobStatus, error) {
		if call <= len(vendorProgress) {
			return &meshy.JobStatus{Status: "IN_PROGRESS", Progress: vendorProgress[call-1]}, nil
		}
		return &meshy.JobStatus{Status: "completed", Progress: 100, ModelURL: "https://vendor/x.glb"}, nil
	})

	var seen []int
	_, err := env.poller.Poll(context.Background(), newTask(), func(snap models.StatusSnapshot) {
		seen = append(seen, snap.Progress)
	})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	if len(seen) == 0 {
		t.Fatal("Expected progress reports")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Errorf("Progress regressed at %d: %v", i, seen)
		}
	}
}

func TestPoller_MissingArtifact(t *testing.T) {
	env := newTestEnv(t, 60, func(call int) (*meshy.JobStatus, error) {
		return &meshy.JobStatus{Status: "SUCCEEDED", Progress: 100}, nil
	})

	final, err := env.poller.Poll(context.Background(), newTask(), nil)
	if !errors.Is(err, ErrMissingArtifact) {
		t.Fatalf("Expected ErrMissingArtifact, got %v", err)
	}

	if final.Status != models.StatusFailed {
		t.Errorf("Expected status failed, got %s", final.Status)
	}
	if env.artifacts.calls != 0 {
		t.Errorf("Expected no persist calls, got %d", env.artifacts.calls)
	}
	if env.reconciler.calls != 0 {
		t.Errorf("Expected no reconcile calls, got %d", env.reconciler.calls)
	}
}

func TestPoller_DegradedDownload(t *testing.T) {
	env := newTestEnv(t, 60, func(call int) (*meshy.JobStatus, error) {
		return &meshy.JobStatus{Status: "SUCCEEDED", Progress: 100, ModelURL: "https://vendor/x.glb"}, nil
	})
	env.artifacts.err = errors.New("connection reset")

	final, err := env.poller.Poll(context.Background(), newTask(), nil)
	if err != nil {
		t.Fatalf("Degraded persistence must not fail the task: %v", err)
	}

	if final.Status != models.StatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", final.Status)
	}
	if final.DownloadStatus != models.DownloadFailed {
		t.Errorf("Expected download failed, got %s", final.DownloadStatus)
	}
	if env.reconciler.calls != 0 {
		t.Errorf("Expected no reconcile calls, got %d", env.reconciler.calls)
	}
	if final.ReconcileStatus != models.ReconcilePending {
		t.Errorf("Reconcile never ran, expected pending, got %s", final.ReconcileStatus)
	}

	snap := final.Snapshot()
	if snap.ModelURL != "https://vendor/x.glb" {
		t.Errorf("Vendor url must remain usable, got %s", snap.ModelURL)
	}
}

func TestPoller_ReconcileFailureStillSucceeds(t *testing.T) {
	env := newTestEnv(t, 60, func(call int) (*meshy.JobStatus, error) {
		return &meshy.JobStatus{Status: "SUCCEEDED", Progress: 100, ModelURL: "https://vendor/x.glb"}, nil
	})
	env.reconciler.err = errors.New("figurines table unavailable")

	final, err := env.poller.Poll(context.Background(), newTask(), nil)
	if err != nil {
		t.Fatalf("Reconcile failure must not fail the task: %v", err)
	}
	if final.DownloadStatus != models.DownloadCompleted {
		t.Errorf("Expected download completed, got %s", final.DownloadStatus)
	}
	if final.PersistedModelURL == "" {
		t.Error("Persisted url must survive reconcile failure")
	}
	if final.ReconcileStatus != models.ReconcileFailed {
		t.Errorf("Expected reconcile failed, got %s", final.ReconcileStatus)
	}

	// the gap must be visible to callers, not only in logs
	snap := final.Snapshot()
	if snap.ReconcileStatus != models.ReconcileFailed {
		t.Errorf("Snapshot must expose the failed linkage, got %s", snap.ReconcileStatus)
	}

	last := env.store.upserts[len(env.store.upserts)-1]
	if last.ReconcileStatus != models.ReconcileFailed {
		t.Errorf("Persisted row must carry the failed linkage, got %s", last.ReconcileStatus)
	}
}

func TestPoller_VendorFailure(t *testing.T) {
	env := newTestEnv(t, 60, func(call int) (*meshy.JobStatus, error) {
		return &meshy.JobStatus{Status: "FAILED"}, nil
	})

	final, err := env.poller.Poll(context.Background(), newTask(), nil)
	if !errors.Is(err, ErrConversionFailed) {
		t.Fatalf("Expected ErrConversionFailed, got %v", err)
	}
	if final.Status != models.StatusFailed {
		t.Errorf("Expected status failed, got %s", final.Status)
	}
}

func TestPoller_TimeoutOnExactBudget(t *testing.T) {
	env := newTestEnv(t, 60, func(call int) (*meshy.JobStatus, error) {
		return &meshy.JobStatus{Status: "IN_PROGRESS", Progress: 10}, nil
	})

	final, err := env.poller.Poll(context.Background(), newTask(), nil)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("Expected ErrTimedOut, got %v", err)
	}

	if env.vendor.calls != 60 {
		t.Errorf("Expected exactly 60 status checks, got %d", env.vendor.calls)
	}
	if final.Status != models.StatusTimedOut {
		t.Errorf("Expected status timed_out, got %s", final.Status)
	}
}

func TestPoller_TransientErrorsConsumeBudget(t *testing.T) {
	env := newTestEnv(t, 5, func(call int) (*meshy.JobStatus, error) {
		return nil, meshy.ErrTransient
	})

	_, err := env.poller.Poll(context.Background(), newTask(), nil)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("Expected ErrTimedOut, got %v", err)
	}
	if env.vendor.calls != 5 {
		t.Errorf("Expected 5 status checks, got %d", env.vendor.calls)
	}
}

func TestPoller_UnrecognizedStatusKeepsPolling(t *testing.T) {
	env := newTestEnv(t, 60, func(call int) (*meshy.JobStatus, error) {
		if call == 1 {
			return &meshy.JobStatus{Status: "SPARKLING", Progress: 40}, nil
		}
		return &meshy.JobStatus{Status: "SUCCEEDED", Progress: 100, ModelURL: "https://vendor/x.glb"}, nil
	})

	final, err := env.poller.Poll(context.Background(), newTask(), nil)
	if err != nil {
		t.Fatalf("Unrecognized status must not fail the poll: %v", err)
	}
	if final.Status != models.StatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", final.Status)
	}
}

func TestPoller_CancellationStopsLoop(t *testing.T) {
	env := newTestEnv(t, 60, func(call int) (*meshy.JobStatus, error) {
		return &meshy.JobStatus{Status: "IN_PROGRESS", Progress: 10}, nil
	})
	env.poller.clock = stuckClock{}

	ctx, cancel := context.WithCancel(context.Background())

	_, err := env.poller.Poll(ctx, newTask(), func(snap models.StatusSnapshot) {
		cancel()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	if env.vendor.calls != 1 {
		t.Errorf("Expected no further ticks after cancellation, got %d", env.vendor.calls)
	}
	if env.artifacts.calls != 0 {
		t.Errorf("Expected no side effects after cancellation, got %d persist calls", env.artifacts.calls)
	}
}

func TestPoller_SingleTerminalTransition(t *testing.T) {
	env := newTestEnv(t, 60, func(call int) (*meshy.JobStatus, error) {
		if call == 1 {
			return &meshy.JobStatus{Status: "processing", Progress: 50}, nil
		}
		return &meshy.JobStatus{Status: "SUCCEEDED", Progress: 100, ModelURL: "https://vendor/x.glb"}, nil
	})

	if _, err := env.poller.Poll(context.Background(), newTask(), nil); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	terminalSeen := false
	for _, row := range env.store.upserts {
		if terminalSeen && row.Status != models.StatusSucceeded {
			t.Errorf("Status mutated after terminal transition: %s", row.Status)
		}
		if row.Status.Terminal() {
			terminalSeen = true
		}
	}
	if !terminalSeen {
		t.Error("Expected a terminal status write")
	}
}

func TestScaleProgress(t *testing.T) {
	tests := []struct {
		prev, vendor, want int
	}{
		{10, 0, 30},
		{10, 50, 60},
		{10, 100, 90},
		{70, 20, 70},
		{10, -5, 30},
		{10, 150, 90},
	}

	for _, tt := range tests {
		if got := scaleProgress(tt.prev, tt.vendor); got != tt.want {
			t.Errorf("scaleProgress(%d, %d) = %d, want %d", tt.prev, tt.vendor, got, tt.want)
		}
	}
}
