// Package scheduler keeps the cron schedule in line with the database
// configuration. Nothing mutates the schedule as a side effect of a config
// write; instead Reconcile computes the desired set of entries from the
// active source periods and feature executions and converges the runner onto
// it. It runs periodically and after every config mutation through the API.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	cronrunner "algodata/internal/cron"
	"algodata/internal/feature"
	"algodata/internal/models"
	"algodata/internal/pricedata"
	"algodata/internal/repository"
)

type Reconciler struct {
	Runner   *cronrunner.Runner
	Repo     repository.Repository
	Prices   *pricedata.Service
	Features *feature.Service
	Logger   *zap.Logger

	mu      sync.Mutex
	entries map[string]scheduledEntry
}

type scheduledEntry struct {
	id   cron.EntryID
	spec string
}

type desiredEntry struct {
	spec string
	job  func(context.Context)
}

func New(runner *cronrunner.Runner, repo repository.Repository, prices *pricedata.Service, features *feature.Service, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		Runner:   runner,
		Repo:     repo,
		Prices:   prices,
		Features: features,
		Logger:   logger,
		entries:  make(map[string]scheduledEntry),
	}
}

// Reconcile converges the cron runner onto the configuration: one retrieval
// entry per active source period of an active source, one calculation entry
// per active feature execution of an active feature. Entries whose config
// vanished or changed spec are removed; missing ones are added. An invalid
// spec skips that entry and is reported at the end, the rest still converge.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	desired, err := r.desired(ctx)
	if err != nil {
		return fmt.Errorf("reconcile schedule: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, current := range r.entries {
		want, ok := desired[key]
		if ok && want.spec == current.spec {
			continue
		}
		r.Runner.Remove(current.id)
		delete(r.entries, key)
		r.Logger.Info("schedule entry removed", zap.String("entry", key))
	}

	invalid := 0
	for key, want := range desired {
		if _, ok := r.entries[key]; ok {
			continue
		}
		id, err := r.Runner.Add(want.spec, want.job)
		if err != nil {
			invalid++
			r.Logger.Error("schedule entry rejected",
				zap.String("entry", key),
				zap.String("spec", want.spec),
				zap.Error(err))
			continue
		}
		r.entries[key] = scheduledEntry{id: id, spec: want.spec}
		r.Logger.Info("schedule entry added",
			zap.String("entry", key),
			zap.String("spec", want.spec))
	}
	if invalid > 0 {
		return fmt.Errorf("reconcile schedule: %d entries had invalid specs", invalid)
	}
	return nil
}

func (r *Reconciler) desired(ctx context.Context) (map[string]desiredEntry, error) {
	out := make(map[string]desiredEntry)

	periods, err := r.Repo.ListActiveSourcePeriods(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source periods: %w", err)
	}
	for _, sp := range periods {
		if sp.Source == nil || !sp.Source.Active {
			continue
		}
		spec, err := models.RetrievalSpec(sp.Period)
		if err != nil {
			r.Logger.Error("source period has unsupported candle period",
				zap.Uint64("source_period", sp.ID),
				zap.String("period", sp.Period))
			continue
		}
		id := sp.ID
		out[fmt.Sprintf("retrieval:%d", id)] = desiredEntry{
			spec: spec,
			job: func(jobCtx context.Context) {
				if err := r.Prices.RetrievePrices(jobCtx, id); err != nil {
					r.Logger.Error("scheduled retrieval failed",
						zap.Uint64("source_period", id), zap.Error(err))
				}
			},
		}
	}

	execs, err := r.Repo.ListActiveFeatureExecutions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list feature executions: %w", err)
	}
	for _, exec := range execs {
		if exec.Feature == nil || !exec.Feature.Active || exec.Feature.Schedule == "" {
			continue
		}
		id := exec.ID
		out[fmt.Sprintf("feature:%d", id)] = desiredEntry{
			spec: exec.Feature.Schedule,
			job: func(jobCtx context.Context) {
				if err := r.Features.Run(jobCtx, id); err != nil {
					r.Logger.Error("scheduled feature run failed",
						zap.Uint64("execution", id), zap.Error(err))
				}
			},
		}
	}

	return out, nil
}

// EntryCount reports how many entries the reconciler currently manages.
func (r *Reconciler) EntryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
