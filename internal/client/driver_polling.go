package client

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// completeStatus is the backend's terminal status line. Completion requires
// both this exact text and progress 100: the backend can report 100 while
// final bookkeeping (the merge and rename) is still running, and that must
// not stop the polling schedule.
const completeStatus = "Download Complete!"

// poll drives one session's polling state machine until a terminal state.
// Each observation is rendered unconditionally, even when progress is
// unchanged or regresses; the sequence guard only protects against
// observations from superseded sessions.
func (c *Controller) poll(ctx context.Context, seq uint64, id string) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Cancelled or superseded; the schedule dies with the context.
			return ctx.Err()

		case <-ticker.C:
			report, err := c.backend.Progress(ctx, id)
			if !c.isCurrent(seq) {
				return nil
			}
			if err != nil {
				c.logger.Warn("poll failed",
					zap.String("id", id),
					zap.Uint64("seq", seq),
					zap.Error(err))
				c.sink.ShowError(err.Error())
				return err
			}

			if report.Failed {
				c.sink.ShowError(report.Status)
				return &PollError{Message: report.Status}
			}

			c.sink.ShowProgress(report.Progress)
			c.sink.ShowStatus(report.Status, StatusNeutral)

			if report.Progress == 100 && report.Status == completeStatus {
				c.logger.Info("session complete",
					zap.String("id", id),
					zap.String("file_name", report.FileName))
				c.sink.ShowComplete(report.FileName)
				return nil
			}
		}
	}
}
