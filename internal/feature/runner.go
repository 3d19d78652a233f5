package feature

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"algodata/internal/connector"
	"algodata/internal/models"
)

// Run executes one feature calculation pass for an execution. An inactive
// execution or feature is skipped silently; no new qualifying data is a
// normal outcome, not an error.
func (s *Service) Run(ctx context.Context, executionID uint64) error {
	exec, err := s.Repo.GetFeatureExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("run feature: load execution %d: %w", executionID, err)
	}
	if exec == nil || !exec.Active || exec.Feature == nil || !exec.Feature.Active {
		return nil
	}

	lookback, err := models.ParseLookback(exec.Feature.Lookback)
	if err != nil {
		return fmt.Errorf("run feature %q: %w", exec.Name, err)
	}

	from, err := s.NextDataFrom(ctx, exec.ID, lookback)
	if err != nil {
		return fmt.Errorf("run feature %q: %w", exec.Name, err)
	}
	if from == nil {
		s.Logger.Debug("no new data for execution", zap.String("execution", exec.Name))
		return nil
	}

	feat, err := s.Registry.Feature(exec.Feature.ConnectorName)
	if err != nil {
		return fmt.Errorf("run feature %q: %w", exec.Name, err)
	}

	series, err := s.fetchInputs(ctx, exec, *from)
	if err != nil {
		return fmt.Errorf("run feature %q: %w", exec.Name, err)
	}
	if len(series) == 0 {
		return nil
	}

	results, err := feat.Calculate(ctx, connector.FeatureRequest{
		Execution: *exec,
		Feature:   *exec.Feature,
		From:      *from,
		Inputs:    series,
	})
	if err != nil {
		return fmt.Errorf("run feature %q: calculate: %w", exec.Name, err)
	}

	stored, err := s.storeResults(ctx, exec.ID, *from, results)
	if err != nil {
		return fmt.Errorf("run feature %q: %w", exec.Name, err)
	}
	if stored > 0 {
		s.Logger.Info("feature results stored",
			zap.String("execution", exec.Name),
			zap.Int("results", stored),
			zap.Time("from", *from))
	}
	return nil
}

// RunAll runs every active execution, isolating failures per execution.
func (s *Service) RunAll(ctx context.Context) error {
	execs, err := s.Repo.ListActiveFeatureExecutions(ctx)
	if err != nil {
		return fmt.Errorf("run features: list executions: %w", err)
	}
	failed := 0
	for _, exec := range execs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Run(ctx, exec.ID); err != nil {
			failed++
			s.Logger.Error("feature run failed", zap.String("execution", exec.Name), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("run features: %d of %d executions failed", failed, len(execs))
	}
	return nil
}
