package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionWarmup pre-resolves permission sets for recently
	// active users so checks hit a warm cache.
	TaskPermissionWarmup = "acl:warmup"
	// TaskIntegrityScan audits the permission stores for drift.
	TaskIntegrityScan = "acl:integrity"
)

// PermissionWarmupPayload bounds which users are warmed.
type PermissionWarmupPayload struct {
	// Lookback is a Go duration string; users whose last permission
	// check falls within it are warmed. Defaults to 24h.
	Lookback string `json:"lookback,omitempty"`
	// Limit caps the number of users per run. Defaults to 200.
	Limit int `json:"limit,omitempty"`
}

// NewPermissionWarmupTask constructs an Asynq task.
func NewPermissionWarmupTask(payload PermissionWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionWarmup, data), nil
}

// IntegrityScanPayload configures the nightly scan.
type IntegrityScanPayload struct {
	// ExpiredOverrideNotice flags expired overrides still present in the
	// store. They are harmless at read time but clutter listings.
	ExpiredOverrideNotice bool `json:"expired_override_notice,omitempty"`
}

// NewIntegrityScanTask constructs an Asynq task.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityScan, data), nil
}
