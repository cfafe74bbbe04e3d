package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vascofialho-nl/releasecheck/clock"
	"github.com/vascofialho-nl/releasecheck/logger"
	"github.com/vascofialho-nl/releasecheck/models"
	"github.com/vascofialho-nl/releasecheck/notify"
	"github.com/vascofialho-nl/releasecheck/store"
)

var _ Poller = (*DefaultPoller)(nil)

// Poller drives update checks on an interval.
type Poller interface {
	Start(ctx context.Context) error
	Stop()
	PollOnce(ctx context.Context) (*models.UpdateTransient, error)
}

// Checker is the part of the update checker the poller drives.
type Checker interface {
	GetLocalVersion(ctx context.Context) (string, error)
	ApplyToTransient(ctx context.Context, t *models.UpdateTransient) (*models.UpdateTransient, error)
}

// DefaultPoller plays the host's scheduled update cycle: it records the
// installed version in the update transient, lets the checker fill in the
// response and persists the result.
type DefaultPoller struct {
	// cycleMu serializes the load, apply and save of the update transient
	// between the ticker and on-demand callers.
	cycleMu  sync.Mutex
	checker  Checker
	pluginID string
	store    store.Store
	notifier notify.Notifier
	clock    clock.Clock
	logger   logger.Logger
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// Params holds configuration for creating a new Poller.
type Params struct {
	Config   Config
	Checker  Checker
	PluginID string
	Store    store.Store
	// Notifier receives every update found. Optional.
	Notifier notify.Notifier
	Clock    clock.Clock
	Logger   logger.Logger
}

// New creates a new update poller.
func New(p Params) *DefaultPoller {
	p.Config.Defaults()

	log := p.Logger
	if log == nil {
		log = logger.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}

	return &DefaultPoller{
		checker:  p.Checker,
		pluginID: p.PluginID,
		store:    p.Store,
		notifier: p.Notifier,
		clock:    clk,
		logger:   log,
		interval: p.Config.Interval,
	}
}

// Start begins the polling loop.
func (p *DefaultPoller) Start(ctx context.Context) error {
	if p.store == nil {
		return errors.New("poller: store is required")
	}
	if p.checker == nil {
		return errors.New("poller: checker is required")
	}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go p.run(ctx)
	return nil
}

// Stop stops the polling loop.
func (p *DefaultPoller) Stop() {
	if p.stop != nil {
		close(p.stop)
		<-p.done
		p.stop = nil
	}
}

func (p *DefaultPoller) run(ctx context.Context) {
	defer close(p.done)

	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *DefaultPoller) tick(ctx context.Context) {
	if _, err := p.PollOnce(ctx); err != nil {
		// config errors are already logged by the checker
		p.logger.DebugW("poll cycle ended with error", "error", err)
	}
}

// PollOnce runs a single update cycle and returns the saved transient.
func (p *DefaultPoller) PollOnce(ctx context.Context) (*models.UpdateTransient, error) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	if n, err := p.store.PurgeExpired(ctx); err != nil {
		p.logger.WarnW("failed to purge expired transients", "error", err)
	} else if n > 0 {
		p.logger.DebugW("purged expired transients", "count", n)
	}

	t, err := p.store.LoadUpdateTransient(ctx)
	if err != nil {
		return nil, err
	}

	local, err := p.checker.GetLocalVersion(ctx)
	switch {
	case err == nil:
		t.MarkChecked(p.pluginID, local, p.clock.Now())
	case !t.HasChecked():
		// the checker would skip, so this is the only report for the cycle
		p.logger.ErrorW("update check failed", "plugin", p.pluginID, "error", err)
		return t, err
	}

	t, checkErr := p.checker.ApplyToTransient(ctx, t)
	if t == nil {
		return nil, checkErr
	}

	if err := p.store.SaveUpdateTransient(ctx, t); err != nil {
		p.logger.ErrorW("failed to save update transient", "error", err)
		return t, err
	}

	if d, ok := t.Response[p.pluginID]; ok && p.notifier != nil {
		if err := p.notifier.Notify(ctx, d); err != nil {
			p.logger.WarnW("failed to announce update", "plugin", p.pluginID, "new_version", d.NewVersion, "error", err)
		}
	}
	return t, checkErr
}
