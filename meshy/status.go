package meshy

import "figurineForge/models"

// The vendor does not normalize its own status strings; every spelling seen
// in the wild lives in this table and nowhere else.
var statusTable = map[string]models.TaskStatus{
	"SUCCEEDED":   models.StatusSucceeded,
	"completed":   models.StatusSucceeded,
	"IN_PROGRESS": models.StatusProcessing,
	"PENDING":     models.StatusProcessing,
	"pending":     models.StatusProcessing,
	"processing":  models.StatusProcessing,
	"FAILED":      models.StatusFailed,
	"failed":      models.StatusFailed,
}

// MapStatus normalizes a raw vendor status string. Unrecognized strings map
// to Processing with known=false so the caller can log and keep polling
// instead of failing the task.
func MapStatus(raw string) (status models.TaskStatus, known bool) {
	if s, ok := statusTable[raw]; ok {
		return s, true
	}
	return models.StatusProcessing, false
}
