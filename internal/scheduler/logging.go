package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/upkeep/internal/observability/context"
	obslogger "github.com/smallbiznis/upkeep/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/upkeep/internal/observability/metrics"
	"go.uber.org/zap"
)

const schedulerActorID = "scheduler"

// jobRun tracks one pass of a job so start and finish lines share a run_id.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time
	batches   int
	processed int
	failures  int
}

type jobRunKey struct{}

func (r *jobRun) recordBatch(size int) {
	if r == nil {
		return
	}
	r.batches++
	if size > 0 {
		r.processed += size
	}
}

func (r *jobRun) fail() {
	if r != nil {
		r.failures++
	}
}

func (r *jobRun) summary(now time.Time) []zap.Field {
	return []zap.Field{
		zap.String("job", r.job),
		zap.String("run_id", r.runID),
		zap.Int64("duration_ms", now.Sub(r.startedAt).Milliseconds()),
		zap.Int("batches", r.batches),
		zap.Int("processed_count", r.processed),
		zap.Int("error_count", r.failures),
	}
}

// startRun attaches a jobRun to ctx unless one is already there. owner
// reports whether the caller created it and so must call finishRun.
func (s *Scheduler) startRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok && run != nil {
		return ctx, run, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = obscontext.WithActor(context.WithValue(ctx, jobRunKey{}, run), "system", schedulerActorID)
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", batchSize),
	)
	return ctx, run, true
}

func (s *Scheduler) finishRun(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := run.summary(s.clock.Now())
	if run.failures > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) jobError(ctx context.Context, run *jobRun, event string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.fail()
	job := jobDueCheck
	if run != nil {
		job = run.job
	}
	fields = append([]zap.Field{
		zap.String("job", job),
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
	}, fields...)
	s.logger(ctx).Error(event, fields...)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}
