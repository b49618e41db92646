// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/ptr"

	"github.com/aiku/telegram-relay/pkg/relay/ledger"
	"github.com/aiku/telegram-relay/pkg/relay/textfilter"
)

// Rule is the immutable binding a Forwarder owns for its lifetime.
type Rule struct {
	Source      string
	Destination string
	Policy      textfilter.Policy
	Delay       time.Duration
}

// MediaPolicy controls when original media is substituted with the
// placeholder image.
type MediaPolicy struct {
	// ReplacementImage is the local placeholder asset path. If the file
	// is missing, replacement degrades to text-only sends.
	ReplacementImage string
	// CaptionedOnly restricts replacement to media carrying caption text.
	CaptionedOnly bool
	// AlwaysReplace replaces every photo/document regardless of caption.
	AlwaysReplace bool
}

// ForwarderStatus is a read-only snapshot for the status surface.
type ForwarderStatus struct {
	Running     bool       `json:"running"`
	Source      string     `json:"source"`
	Destination string     `json:"destination"`
	LastSendAt  *time.Time `json:"last_send_at,omitempty"`
}

// Forwarder relays messages for one rule: it resolves both endpoints,
// subscribes to the source's new-message events, filters and rate-limits
// each message, executes the send/fallback protocol, and records the
// outcome in the ledger.
type Forwarder struct {
	net    Network
	ledger *ledger.Ledger
	rule   Rule
	media  MediaPolicy
	log    zerolog.Logger

	// pipeMu serializes the event pipeline. The transport dispatches one
	// goroutine per event, so without it a burst of events would race
	// between the dedup check and the ledger mark, and between the
	// rate-limit wait and the lastSend update.
	pipeMu sync.Mutex

	mu       sync.Mutex
	running  bool
	lastSend time.Time
	src      Entity
	dst      Entity
	cancel   func()
}

// NewForwarder binds one rule. Start must be called before any messages
// are relayed.
func NewForwarder(net Network, led *ledger.Ledger, rule Rule, media MediaPolicy, log zerolog.Logger) *Forwarder {
	return &Forwarder{
		net:    net,
		ledger: led,
		rule:   rule,
		media:  media,
		log: log.With().
			Str("source", rule.Source).
			Str("destination", rule.Destination).
			Logger(),
	}
}

// Start resolves both endpoints and subscribes to the source. A
// resolution failure leaves the forwarder stopped and is returned to the
// caller; it never affects sibling forwarders.
func (f *Forwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		f.log.Warn().Msg("Forwarder is already running")
		return nil
	}
	f.mu.Unlock()

	src, err := f.net.Resolve(ctx, f.rule.Source)
	if err != nil {
		return fmt.Errorf("failed to resolve source %q: %w", f.rule.Source, err)
	}
	dst, err := f.net.Resolve(ctx, f.rule.Destination)
	if err != nil {
		return fmt.Errorf("failed to resolve destination %q: %w", f.rule.Destination, err)
	}
	f.log.Info().
		Int64("source_id", src.ID).Str("source_title", src.Title).
		Int64("destination_id", dst.ID).Str("destination_title", dst.Title).
		Msg("Resolved rule endpoints")

	cancel := f.net.Subscribe(src.ID, f.handleMessage)

	f.mu.Lock()
	f.src = src
	f.dst = dst
	f.cancel = cancel
	f.running = true
	f.mu.Unlock()
	f.log.Info().Msg("Forwarding started")
	return nil
}

// Stop tears down the event subscription before clearing runtime state.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	wasRunning := f.running
	f.running = false
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if wasRunning {
		f.log.Info().Msg("Forwarding stopped")
	}
}

// Status returns a snapshot of the forwarder's runtime state.
func (f *Forwarder) Status() ForwarderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := ForwarderStatus{
		Running:     f.running,
		Source:      f.rule.Source,
		Destination: f.rule.Destination,
	}
	if !f.lastSend.IsZero() {
		st.LastSendAt = ptr.Ptr(f.lastSend)
	}
	return st
}

// handleMessage is the per-event pipeline: dedup check, filter gate,
// rate limit, send/fallback, ledger record. Events are processed one at
// a time per forwarder, so the rate-limit spacing holds and a message
// redelivered concurrently is sent at most once. Every terminal outcome
// (sent, exhausted, or deliberately skipped) marks the message so
// redelivery never re-processes it.
func (f *Forwarder) handleMessage(ctx context.Context, msg *Message) {
	f.pipeMu.Lock()
	defer f.pipeMu.Unlock()

	log := f.log.With().Int64("message_id", msg.ID).Logger()

	if f.ledger.IsForwarded(msg.ID) {
		log.Debug().Msg("Message already forwarded, skipping")
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	decision := f.rule.Policy.Decide(text)
	if !decision.Admit {
		log.Info().Msg("Message rejected by keyword filter")
		f.ledger.MarkForwarded(msg.ID)
		return
	}
	filtered := decision.Rewritten
	if filtered != text {
		log.Debug().Msg("Message text rewritten by filters")
	}
	if filtered == "" && !hasMedia(msg) {
		log.Info().Msg("Message filtered out completely, dropping")
		f.ledger.MarkForwarded(msg.ID)
		return
	}

	f.waitRateLimit(ctx)
	if ctx.Err() != nil {
		return
	}

	f.mu.Lock()
	f.lastSend = time.Now()
	f.mu.Unlock()

	if err := f.sendWithFloodRetry(ctx, msg, filtered); err != nil {
		log.Error().Err(err).Msg("Giving up on message after exhausting fallback chain")
	}
	f.ledger.MarkForwarded(msg.ID)
}

// waitRateLimit suspends until at least the configured delay has elapsed
// since this forwarder's previous send. Per-forwarder state: concurrent
// rules pace independently.
func (f *Forwarder) waitRateLimit(ctx context.Context) {
	if f.rule.Delay <= 0 {
		return
	}
	f.mu.Lock()
	last := f.lastSend
	f.mu.Unlock()
	if last.IsZero() {
		return
	}
	remaining := f.rule.Delay - time.Since(last)
	if remaining <= 0 {
		return
	}
	f.log.Debug().Dur("delay", remaining).Msg("Rate limiting send")
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// sendWithFloodRetry runs the send protocol, sleeping out transport
// flood-control signals and retrying the same event until a non-flood
// outcome or cancellation.
func (f *Forwarder) sendWithFloodRetry(ctx context.Context, msg *Message, caption string) error {
	for {
		err := f.send(ctx, msg, caption)
		var rl *RateLimitedError
		if !errors.As(err, &rl) {
			return err
		}
		f.log.Warn().Dur("retry_after", rl.RetryAfter).Msg("Transport rate limit hit, sleeping")
		timer := time.NewTimer(rl.RetryAfter)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		timer.Stop()
	}
}

func hasMedia(msg *Message) bool {
	return msg.Media != nil && msg.Media.Kind != MediaNone
}
