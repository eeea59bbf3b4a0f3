package engine

import (
	"errors"
	"log/slog"

	"github.com/leapstack-labs/condpredict/internal/meta"
	"github.com/leapstack-labs/condpredict/internal/state"
)

// recordStart stores the run and its parameters. History is best effort, so
// failures are logged and the run continues without an id.
func (e *Engine) recordStart(run *meta.Run) string {
	if e.store == nil {
		return ""
	}

	rec, err := e.store.CreateRun(ToolName, ToolVersion, run.Start())
	if err != nil {
		e.logger.Warn("failed to record run", slog.String("error", err.Error()))
		return ""
	}

	params := make([]state.Parameter, len(run.Parameters))
	for i, p := range run.Parameters {
		params[i] = state.Parameter{Name: p.Name, Value: p.Value}
	}
	if err := e.store.AddParameters(rec.ID, params); err != nil {
		e.logger.Warn("failed to record run parameters", slog.String("run_id", rec.ID), slog.String("error", err.Error()))
	}
	return rec.ID
}

func (e *Engine) recordCompletion(res *Result, runErr error) {
	if e.store == nil || res.RunID == "" {
		return
	}

	c := state.Completion{Status: state.RunStatusSuccess}
	switch {
	case errors.Is(runErr, ErrMissingJoinKey):
		c.Status = state.RunStatusCancelled
		c.Error = runErr.Error()
	case runErr != nil:
		c.Status = state.RunStatusFailed
		c.Error = runErr.Error()
	default:
		c.OutPath = res.OutNetwork
		c.MetadataPath = res.MetadataPath
	}

	if err := e.store.CompleteRun(res.RunID, e.clock.Now(), c); err != nil {
		e.logger.Warn("failed to complete run record", slog.String("run_id", res.RunID), slog.String("error", err.Error()))
	}
}
