package statusclient

import (
	"context"
	"time"

	"github.com/smallbiznis/upkeep/internal/clock"
	maintenancedomain "github.com/smallbiznis/upkeep/internal/maintenance/domain"
	"github.com/smallbiznis/upkeep/internal/popup"
	"go.uber.org/zap"
)

// Fetcher is satisfied by *Client.
type Fetcher interface {
	Fetch(ctx context.Context, clientCode string) (maintenancedomain.PublicStatus, error)
}

type PollerConfig struct {
	ClientCode      string
	Interval        time.Duration
	DismissCooldown time.Duration
}

// Poller periodically evaluates the popup policy for one tenant. Fetch
// failures never produce a notice.
type Poller struct {
	fetcher   Fetcher
	tracker   *popup.DismissalTracker
	cfg       PollerConfig
	log       *zap.Logger
	onDisplay func(popup.Notice)
}

func NewPoller(fetcher Fetcher, clk clock.Clock, cfg PollerConfig, log *zap.Logger, onDisplay func(popup.Notice)) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.DismissCooldown <= 0 {
		cfg.DismissCooldown = time.Hour
	}
	return &Poller{
		fetcher:   fetcher,
		tracker:   popup.NewDismissalTracker(clk, cfg.DismissCooldown),
		cfg:       cfg,
		log:       log.Named("statusclient.poller"),
		onDisplay: onDisplay,
	}
}

// Check fetches the status once and reports whether a notice was displayed.
func (p *Poller) Check(ctx context.Context) (popup.Notice, bool) {
	status, err := p.fetcher.Fetch(ctx, p.cfg.ClientCode)
	if err != nil {
		p.log.Warn("status fetch failed, hiding notice",
			zap.String("client_code", p.cfg.ClientCode),
			zap.Error(err),
		)
		return popup.Notice{}, false
	}

	notice := popup.Evaluate(status)
	if !p.tracker.ShouldDisplay(p.cfg.ClientCode, notice) {
		return notice, false
	}
	if p.onDisplay != nil {
		p.onDisplay(notice)
	}
	return notice, true
}

// Dismiss hides dismissible notices for the configured cooldown.
func (p *Poller) Dismiss() {
	p.tracker.Dismiss(p.cfg.ClientCode)
}

// Run checks immediately, then once per interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
