package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// TaskQueue is the default task queue of the escalator worker.
const TaskQueue = "auto-clock-out-reminders"

// DefaultGrace is how long a worker has to come back or clock out before
// managers are alerted again.
const DefaultGrace = 15 * time.Minute

// ReminderInput is the input of AutoClockOutReminderWorkflow.
type ReminderInput struct {
	ShiftID        string
	WorkerID       string
	OrganizationID string
	Location       domain.Coordinate
	ExitedAt       time.Time
	Grace          time.Duration
}

// WorkflowID returns the reminder workflow ID for a shift. One reminder runs
// per shift at a time.
func WorkflowID(shiftID string) string {
	return "auto-clock-out-" + shiftID
}

// AutoClockOutReminderWorkflow waits for the grace period, then escalates the
// AUTO_CLOCK_OUT alert to managers if the shift is still open. It never
// closes the shift. The tracker cancels it when the worker comes back inside;
// cancellation during the wait ends the workflow without escalating.
func AutoClockOutReminderWorkflow(ctx workflow.Context, input ReminderInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting auto clock-out reminder", "shiftID", input.ShiftID, "workerID", input.WorkerID)

	grace := input.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	if err := workflow.Sleep(ctx, grace); err != nil {
		if temporal.IsCanceledError(err) {
			logger.Info("Worker returned within grace period", "shiftID", input.ShiftID)
		}
		return err
	}

	var open bool
	if err := workflow.ExecuteActivity(ctx, "IsShiftOpen", input.WorkerID, input.ShiftID).Get(ctx, &open); err != nil {
		return err
	}
	if !open {
		logger.Info("Shift closed within grace period", "shiftID", input.ShiftID)
		return nil
	}

	if err := workflow.ExecuteActivity(ctx, "EscalateAutoClockOut", input).Get(ctx, nil); err != nil {
		return err
	}
	logger.Info("Auto clock-out escalated", "shiftID", input.ShiftID)
	return nil
}
