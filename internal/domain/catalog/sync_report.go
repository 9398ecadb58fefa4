package catalog

import (
	"fmt"
	"time"
)

// SyncStatus is the outcome class of a reconciliation run
type SyncStatus string

const (
	SyncStatusCompleted      SyncStatus = "completed"
	SyncStatusFailed         SyncStatus = "failed"
	SyncStatusAlreadyRunning SyncStatus = "already_running"
)

// SyncTrigger names what started a reconciliation run
type SyncTrigger string

const (
	SyncTriggerHTTP     SyncTrigger = "http"
	SyncTriggerSchedule SyncTrigger = "schedule"
	SyncTriggerStartup  SyncTrigger = "startup"
	SyncTriggerManual   SyncTrigger = "manual"
)

// SyncReport is the structured result of one reconciliation run
type SyncReport struct {
	Success        bool          `json:"success"`
	Status         SyncStatus    `json:"status"`
	Message        string        `json:"message"`
	ProcessedCount int           `json:"processedCount"`
	CreatedCount   int           `json:"createdCount"`
	UpdatedCount   int           `json:"updatedCount"`
	UnchangedCount int           `json:"unchangedCount"`
	DeletedCount   int64         `json:"deletedCount"`
	Errors         []string      `json:"errors"`
	StartedAt      time.Time     `json:"startedAt"`
	FinishedAt     time.Time     `json:"finishedAt"`
	Duration       time.Duration `json:"durationNs"`
}

// NewSyncReport starts an empty report
func NewSyncReport() *SyncReport {
	return &SyncReport{
		Errors:    []string{},
		StartedAt: time.Now(),
	}
}

// AddError records an error line with its context
func (r *SyncReport) AddError(context string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", context, err))
}

// Fail closes the report as a failed run
func (r *SyncReport) Fail(status SyncStatus, message string) *SyncReport {
	r.Success = false
	r.Status = status
	r.Message = message
	r.finish()
	return r
}

// Complete closes the report as a successful run with the summary message
func (r *SyncReport) Complete() *SyncReport {
	r.Success = true
	r.Status = SyncStatusCompleted
	r.Message = r.Summary()
	r.finish()
	return r
}

// Summary renders the counts the storefront operators are used to reading
func (r *SyncReport) Summary() string {
	return fmt.Sprintf(
		"Sincronización completada. Productos procesados: %d. Creados: %d. Actualizados: %d. Eliminados: %d. Errores: %d.",
		r.ProcessedCount, r.CreatedCount, r.UpdatedCount, r.DeletedCount, len(r.Errors),
	)
}

func (r *SyncReport) finish() {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
}
