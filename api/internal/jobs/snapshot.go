package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/api/internal/snapshots"
	"facility-compliance-system/shared/logx"
	"facility-compliance-system/shared/metricsx"
)

const TypeComplianceSnapshot = "compliance.snapshot"

type Summarizer interface {
	BuildSummary(ctx context.Context) (lifecycle.ComplianceSummary, error)
}

// Snapshotter recomputes the compliance summary on a schedule, refreshes the cached copy
// and appends the figures to the time series store.
type Snapshotter struct {
	Summaries Summarizer
	Writer    snapshots.Writer
	Cache     lifecycle.JSONCache
	CacheTTL  time.Duration
	Env       string
	Logger    logx.Logger
}

func (s *Snapshotter) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeComplianceSnapshot, s.HandleSnapshot)
}

func (s *Snapshotter) HandleSnapshot(ctx context.Context, _ *asynq.Task) error {
	start := time.Now()
	sum, err := s.Summaries.BuildSummary(ctx)
	if err != nil {
		return err
	}
	if ttl, ok := sum.CacheTTL(sum.GeneratedAt, s.CacheTTL); s.Cache != nil && ok {
		if err := s.Cache.SetJSON(ctx, lifecycle.SummaryCacheKey, sum, ttl); err != nil {
			s.Logger.Warn(ctx, "summary_cache_write_failed", "compliance summary cache write failed", slog.String("error", err.Error()))
		}
	}
	if s.Writer != nil {
		if err := snapshots.Write(ctx, s.Writer, sum, s.Env); err != nil {
			metricsx.IncInfluxWriteFailure()
			s.Logger.Error(ctx, "snapshot_write_failed", "compliance snapshot write failed",
				slog.String("error_code", "UNAVAILABLE"),
				slog.String("error", err.Error()),
			)
			return err
		}
	}
	metricsx.ObserveComplianceSnapshot(time.Since(start), sum.CompletionRate)
	s.Logger.Info(ctx, "compliance_snapshot", "compliance snapshot taken",
		slog.Int("completion_rate", sum.CompletionRate),
		slog.Int("overdue", len(sum.Overdue)),
	)
	return nil
}
