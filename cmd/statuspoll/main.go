package main

import (
	"context"
	"errors"

	"github.com/smallbiznis/upkeep/internal/clock"
	"github.com/smallbiznis/upkeep/internal/config"
	"github.com/smallbiznis/upkeep/internal/observability"
	obsmetrics "github.com/smallbiznis/upkeep/internal/observability/metrics"
	"github.com/smallbiznis/upkeep/internal/popup"
	"github.com/smallbiznis/upkeep/internal/statusclient"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		clock.Module,

		fx.Provide(NewStatusClient),
		fx.Provide(NewPoller),
		fx.Invoke(StartPoller),
	)
	app.Run()
}

func NewStatusClient(cfg config.Config, log *zap.Logger) (*statusclient.Client, error) {
	return statusclient.New(statusclient.Config{
		BaseURL:    cfg.PublicStatusURL,
		RetryCount: 2,
	}, log)
}

func NewPoller(cfg config.Config, holder *config.MaintenanceConfigHolder, client *statusclient.Client, clk clock.Clock, log *zap.Logger, metrics *obsmetrics.Metrics) (*statusclient.Poller, error) {
	if cfg.PollClientCode == "" {
		return nil, errors.New("POLL_CLIENT_ID is required")
	}
	popupCfg := holder.Get().Popup

	noticeLog := log.Named("statuspoll")
	return statusclient.NewPoller(client, clk, statusclient.PollerConfig{
		ClientCode:      cfg.PollClientCode,
		Interval:        popupCfg.PollInterval,
		DismissCooldown: popupCfg.DismissCooldown,
	}, log, func(notice popup.Notice) {
		metrics.RecordPopupNotice(context.Background(), string(notice.Severity))
		noticeLog.Info("maintenance notice",
			zap.String("client_code", cfg.PollClientCode),
			zap.String("severity", string(notice.Severity)),
			zap.Bool("dismissible", notice.Dismissible),
			zap.String("title", notice.Title),
			zap.String("message", notice.Message),
		)
	}), nil
}

func StartPoller(lc fx.Lifecycle, poller *statusclient.Poller) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())
			go poller.Run(runCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		},
	})
}
