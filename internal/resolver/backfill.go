package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// BackfillResult summarizes a backfill run.
type BackfillResult struct {
	SlugsAssigned int
	RelatedFilled int
	Failed        int
	Duration      time.Duration
	Errors        []string
}

// Backfill assigns slugs to every topic without one, then regenerates
// related topics wherever they are empty. Per-topic failures are collected
// and do not stop the run.
func (r *Resolver) Backfill(ctx context.Context) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{}

	missingSlugs, err := r.store.ListMissingSlugs(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("backfilling slugs", "count", len(missingSlugs))
	for _, topic := range missingSlugs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := r.assignSlug(ctx, topic); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.SlugsAssigned++
	}

	missingRelated, err := r.store.ListMissingRelated(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("backfilling related topics", "count", len(missingRelated))
	for _, topic := range missingRelated {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := r.fillRelated(ctx, topic); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", topic.Title, err))
			continue
		}
		result.RelatedFilled++
	}

	result.Duration = time.Since(start)
	return result, nil
}
