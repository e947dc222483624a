package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/upkeep/internal/audit/domain"
	"github.com/smallbiznis/upkeep/internal/authorization"
	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
	"github.com/smallbiznis/upkeep/internal/clock"
	"github.com/smallbiznis/upkeep/internal/config"
	maintenancedomain "github.com/smallbiznis/upkeep/internal/maintenance/domain"
	obsmetrics "github.com/smallbiznis/upkeep/internal/observability/metrics"
	"github.com/smallbiznis/upkeep/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const (
	jobDueCheck     = "due_check"
	dueCheckLockKey = "upkeep:lock:due_check"
	auditActionDue  = "client.mark_due"
	auditTargetType = "client"
	resourceClients = "client"
)

type Params struct {
	fx.In

	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	MaintenanceSvc maintenancedomain.Service
	AuthzSvc       authorization.Service
	AuditSvc       auditdomain.Service             `optional:"true"`
	Locker         *ratelimit.Locker               `optional:"true"`
	Holder         *config.MaintenanceConfigHolder `optional:"true"`
	Config         Config                          `optional:"true"`
}

type Scheduler struct {
	log            *zap.Logger
	cfg            Config
	genID          *snowflake.Node
	clock          clock.Clock
	maintenanceSvc maintenancedomain.Service
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	locker         *ratelimit.Locker
	holder         *config.MaintenanceConfigHolder

	mu           sync.Mutex
	lastDueCheck time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.MaintenanceSvc == nil || p.AuthzSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:            p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:            p.Config.withDefaults(),
		genID:          p.GenID,
		clock:          p.Clock,
		maintenanceSvc: p.MaintenanceSvc,
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		locker:         p.Locker,
		holder:         p.Holder,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.startRun(ctx, name, batchSize)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.failures == 0 {
			run.fail()
		}
		s.finishRun(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick resumes the work
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every job whose interval has elapsed.
func (s *Scheduler) RunOnce(parent context.Context) error {
	dueCfg := s.holder.Get().DueCheck
	if !dueCfg.Enabled || !s.dueCheckElapsed(dueCfg.Interval) {
		return nil
	}

	err := s.runJob(parent, jobDueCheck, dueCfg.BatchSize, s.cfg.JobTimeout, s.DueCheckJob)
	if err == nil {
		now := s.clock.Now()
		s.mu.Lock()
		s.lastDueCheck = now
		s.mu.Unlock()
		obsmetrics.Scheduler().MarkSuccess(jobDueCheck, now)
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) dueCheckElapsed(interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastDueCheck.IsZero() {
		return true
	}
	return !s.clock.Now().Before(s.lastDueCheck.Add(interval))
}

// DueCheckJob moves active clients past their next billing date to due, one
// batch at a time, until a short batch signals nothing is left.
func (s *Scheduler) DueCheckJob(ctx context.Context) error {
	batchSize := s.holder.Get().DueCheck.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultMaintenanceConfig().DueCheck.BatchSize
	}
	ctx, run, owner := s.startRun(ctx, jobDueCheck, batchSize)
	if owner {
		defer s.finishRun(ctx, run)
	}

	if err := s.authzSvc.Authorize(ctx, authorization.ActorSystem, authorization.ObjectClient, authorization.ActionClientMarkDue); err != nil {
		s.jobError(ctx, run, "due_check.authorize.failed", err)
		return err
	}

	lease, acquired, err := s.locker.Acquire(ctx, dueCheckLockKey, s.cfg.LockTTL)
	if err != nil {
		s.jobError(ctx, run, "due_check.lock.failed", err)
		return err
	}
	if !acquired {
		obsmetrics.Scheduler().IncLeaseSkipped(jobDueCheck)
		s.logger(ctx).Debug("due_check.skipped", zap.String("reason", "lease_held"))
		return nil
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			s.logger(ctx).Warn("due_check.lock.release_failed", zap.Error(err))
		}
	}()

	schedMetrics := obsmetrics.Scheduler()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		records, err := s.maintenanceSvc.MarkOverdue(ctx, batchSize)
		if err != nil {
			s.jobError(ctx, run, "due_check.batch.failed", err, zap.Int("processed_count", run.processed))
			return err
		}
		for _, record := range records {
			s.auditMarkedDue(ctx, record)
		}
		run.recordBatch(len(records))
		schedMetrics.AddBatchProcessed(jobDueCheck, resourceClients, len(records))

		if len(records) < batchSize {
			return nil
		}
		if err := lease.Extend(ctx, s.cfg.LockTTL); err != nil {
			s.jobError(ctx, run, "due_check.lock.extend_failed", err)
			return err
		}
	}
}

func (s *Scheduler) auditMarkedDue(ctx context.Context, record *clientdomain.ClientRecord) {
	if s.auditSvc == nil || record == nil {
		return
	}
	actorID := schedulerActorID
	targetID := record.ID.String()
	metadata := map[string]any{
		"client_id":       record.ClientCode,
		"previous_status": string(clientdomain.StatusActive),
		"status":          string(record.Status),
	}
	if record.NextBillingDate != nil {
		metadata["next_billing_date"] = record.NextBillingDate.UTC().Format(time.RFC3339)
	}

	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeSystem), &actorID, auditActionDue, auditTargetType, &targetID, metadata); err != nil {
		s.logger(ctx).Warn("due_check.audit.failed", zap.String("client_id", record.ClientCode), zap.Error(err))
	}
}
