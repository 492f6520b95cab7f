// Package temporal schedules auto clock-out reminders as Temporal workflows.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/shiftfence/internal/core/domain"
	"github.com/samirrijal/shiftfence/internal/workflows"
)

// WorkflowStarter is the subset of client.Client the scheduler needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	CancelWorkflow(ctx context.Context, workflowID string, runID string) error
}

// Scheduler implements ports.ReminderScheduler.
type Scheduler struct {
	client    WorkflowStarter
	taskQueue string
	grace     time.Duration
}

// NewScheduler creates a Scheduler starting workflows on taskQueue.
func NewScheduler(c WorkflowStarter, taskQueue string, grace time.Duration) *Scheduler {
	if taskQueue == "" {
		taskQueue = workflows.TaskQueue
	}
	if grace <= 0 {
		grace = workflows.DefaultGrace
	}
	return &Scheduler{client: c, taskQueue: taskQueue, grace: grace}
}

// ScheduleAutoClockOutReminder starts the reminder workflow for ev.ShiftID.
// A reminder already running for the shift is reused.
func (s *Scheduler) ScheduleAutoClockOutReminder(ctx context.Context, ev domain.GeofenceEvent) error {
	if ev.ShiftID == "" {
		return fmt.Errorf("schedule reminder: %w: shift id is required", domain.ErrInvalidRequest)
	}
	opts := client.StartWorkflowOptions{
		ID:                       workflows.WorkflowID(ev.ShiftID),
		TaskQueue:                s.taskQueue,
		WorkflowExecutionTimeout: s.grace + time.Hour,
	}
	input := workflows.ReminderInput{
		ShiftID:        ev.ShiftID,
		WorkerID:       ev.WorkerID,
		OrganizationID: ev.OrganizationID,
		Location:       ev.Location,
		ExitedAt:       ev.Timestamp,
		Grace:          s.grace,
	}
	if _, err := s.client.ExecuteWorkflow(ctx, opts, workflows.AutoClockOutReminderWorkflow, input); err != nil {
		return fmt.Errorf("start reminder workflow: %w", err)
	}
	slog.InfoContext(ctx, "auto clock-out reminder scheduled",
		"shift_id", ev.ShiftID, "worker_id", ev.WorkerID, "grace", s.grace.String())
	return nil
}

// CancelAutoClockOutReminder cancels the reminder workflow of shiftID. A
// reminder that already finished or never started is ignored.
func (s *Scheduler) CancelAutoClockOutReminder(ctx context.Context, shiftID string) error {
	if shiftID == "" {
		return fmt.Errorf("cancel reminder: %w: shift id is required", domain.ErrInvalidRequest)
	}
	err := s.client.CancelWorkflow(ctx, workflows.WorkflowID(shiftID), "")
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel reminder workflow: %w", err)
	}
	slog.InfoContext(ctx, "auto clock-out reminder cancelled", "shift_id", shiftID)
	return nil
}
