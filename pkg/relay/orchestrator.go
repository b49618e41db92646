// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/telegram-relay/pkg/relay/ledger"
	"github.com/aiku/telegram-relay/pkg/relay/textfilter"
)

// StatusSnapshot is the read-only process state served by the admin API.
type StatusSnapshot struct {
	Running    bool              `json:"running"`
	AuthStatus string            `json:"auth_status"`
	Forwarders []ForwarderStatus `json:"forwarders"`
}

// Orchestrator owns the process lifecycle: it shares one network
// connection and one ledger across all rules, starts one forwarder per
// rule, schedules ledger pruning, and serves the admin API until the
// context is cancelled.
type Orchestrator struct {
	net    Network
	cfg    *Config
	ledger *ledger.Ledger
	log    zerolog.Logger

	authStatus func() string

	mu         sync.Mutex
	forwarders []*Forwarder
	cron       *cron.Cron
}

func NewOrchestrator(net Network, cfg *Config, led *ledger.Ledger, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		net:    net,
		cfg:    cfg,
		ledger: led,
		log:    log.With().Str("component", "orchestrator").Logger(),
	}
}

// SetAuthStatusFunc wires the transport's auth state into the status
// surface. Optional; the default reports "unknown".
func (o *Orchestrator) SetAuthStatusFunc(fn func() string) {
	o.authStatus = fn
}

// Run blocks until ctx is cancelled. The dialog cache is warmed once,
// shared by all rules, before any rule-specific resolution begins. A rule
// whose endpoints fail to resolve is logged and skipped; it never halts
// the orchestrator or sibling rules.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.net.WarmCache(ctx); err != nil {
		o.log.Warn().Err(err).Msg("Could not warm dialog cache")
	}

	started := 0
	for i, rc := range o.cfg.Relay.Rules {
		fwd, err := o.buildForwarder(rc)
		if err != nil {
			o.log.Error().Err(err).Int("rule", i).Msg("Invalid rule, skipping")
			continue
		}
		if err := fwd.Start(ctx); err != nil {
			o.log.Error().Err(err).Int("rule", i).
				Str("source", rc.Source).
				Str("destination", rc.Destination).
				Msg("Failed to start forwarder, rule disabled")
		} else {
			started++
		}
		o.mu.Lock()
		o.forwarders = append(o.forwarders, fwd)
		o.mu.Unlock()
	}
	o.log.Info().Int("started", started).Int("configured", len(o.cfg.Relay.Rules)).Msg("Forwarders started, waiting for messages")

	o.startPruneJob()

	g, gctx := errgroup.WithContext(ctx)
	if o.cfg.Admin.ListenAddr != "" {
		api := newAdminAPI(o, o.cfg.Admin.ListenAddr, o.log)
		g.Go(func() error {
			return api.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	err := g.Wait()
	o.shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildForwarder constructs the per-rule filter policy and forwarder.
func (o *Orchestrator) buildForwarder(rc RuleConfig) (*Forwarder, error) {
	var policy textfilter.Policy
	switch rc.FilterMode {
	case "", FilterModeTransform:
		policy = textfilter.NewTransform(rc.Filters, o.log.With().Str("component", "textfilter").Logger())
	case FilterModeKeywords:
		policy = textfilter.NewKeywords(rc.Filters)
	default:
		return nil, fmt.Errorf("unknown filter_mode %q", rc.FilterMode)
	}
	rule := Rule{
		Source:      rc.Source,
		Destination: rc.Destination,
		Policy:      policy,
		Delay:       time.Duration(o.cfg.RuleDelay(rc)) * time.Second,
	}
	media := MediaPolicy{
		ReplacementImage: o.cfg.Relay.ReplacementImage,
		CaptionedOnly:    o.cfg.Relay.ReplaceCaptionedOnly,
		AlwaysReplace:    o.cfg.Relay.AlwaysReplaceMedia,
	}
	return NewForwarder(o.net, o.ledger, rule, media, o.log), nil
}

func (o *Orchestrator) startPruneJob() {
	days := o.cfg.Ledger.RetentionDays
	if days <= 0 || o.cfg.Ledger.PruneSchedule == "" {
		return
	}
	c := cron.New()
	_, err := c.AddFunc(o.cfg.Ledger.PruneSchedule, func() {
		o.ledger.PruneOlderThan(days)
	})
	if err != nil {
		o.log.Warn().Err(err).Str("schedule", o.cfg.Ledger.PruneSchedule).Msg("Invalid prune schedule, pruning disabled")
		return
	}
	c.Start()
	o.mu.Lock()
	o.cron = c
	o.mu.Unlock()
	o.log.Info().Str("schedule", o.cfg.Ledger.PruneSchedule).Int("retention_days", days).Msg("Ledger prune job scheduled")
}

// shutdown stops forwarders (subscriptions first) and the prune job.
func (o *Orchestrator) shutdown() {
	o.mu.Lock()
	forwarders := append([]*Forwarder(nil), o.forwarders...)
	c := o.cron
	o.cron = nil
	o.mu.Unlock()
	for _, fwd := range forwarders {
		fwd.Stop()
	}
	if c != nil {
		c.Stop()
	}
	o.log.Info().Msg("Orchestrator stopped")
}

// ResetLedger clears the dedup ledger. Exposed for the admin API.
func (o *Orchestrator) ResetLedger() bool {
	return o.ledger.Reset()
}

// Status assembles the process snapshot for the status surface.
func (o *Orchestrator) Status() StatusSnapshot {
	o.mu.Lock()
	forwarders := append([]*Forwarder(nil), o.forwarders...)
	o.mu.Unlock()

	snap := StatusSnapshot{
		AuthStatus: "unknown",
		Forwarders: make([]ForwarderStatus, 0, len(forwarders)),
	}
	if o.authStatus != nil {
		snap.AuthStatus = o.authStatus()
	}
	for _, fwd := range forwarders {
		st := fwd.Status()
		snap.Forwarders = append(snap.Forwarders, st)
		if st.Running {
			snap.Running = true
		}
	}
	return snap
}
