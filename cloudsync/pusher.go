/*
Package cloudsync pushes committed order events to the cloud backend.

PURPOSE:
  The edge device is the source of truth; the cloud is a follower.
  This pusher subscribes to the broadcast hub, batches events over a
  short debounce window, and POSTs them upstream. The sales flow never
  waits on the network.

DELIVERY:
  At-least-once. The cloud deduplicates by event id. The pusher tracks
  the highest sequence acknowledged upstream; after a lag signal from
  the hub or an exhausted push it falls back to reading the gap
  straight from the store (EventsSince), so dropped hub deliveries are
  recovered rather than lost.

FILTERING:
  Device-internal event types are never pushed upstream.

CRITICAL INVARIANTS:
  1. Pushing never blocks command execution
  2. Events reach the cloud in sequence order within a batch
  3. A hub overflow is repaired from the store, not ignored

SEE ALSO:
  - broadcast/hub.go: the subscription this consumes
  - ordersync/service.go: the inverse direction (clients catching up)
*/
package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mesa/pos-edge/broadcast"
	"github.com/mesa/pos-edge/ledger"
)

// internalEvents never leave the device.
var internalEvents = map[ledger.EventType]struct{}{
	ledger.EventItemRestored: {},
}

// Batch is the upstream wire format.
type Batch struct {
	DeviceID string              `json:"device_id"`
	Events   []ledger.OrderEvent `json:"events"`
}

// Options configures a Pusher.
type Options struct {
	CloudURL    string
	DeviceID    string
	Debounce    time.Duration // batching window after the first buffered event
	MaxAttempts uint64        // backoff attempts per batch before resync
	ChunkSize   int           // events per request during store resync
}

// Pusher drains a hub subscription into the cloud endpoint.
type Pusher struct {
	store      ledger.Store
	sub        *broadcast.Subscription
	client     *retryablehttp.Client
	opts   Options
	logger *zap.Logger

	// lastPushed is read by LastPushed while Run's goroutine advances it.
	lastPushed atomic.Uint64
}

// NewPusher builds a pusher over an existing hub subscription.
func NewPusher(store ledger.Store, sub *broadcast.Subscription, opts Options, logger *zap.Logger) *Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 200
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.Logger = nil

	return &Pusher{
		store:  store,
		sub:    sub,
		client: client,
		opts:   opts,
		logger: logger,
	}
}

// Run consumes the subscription until ctx is cancelled. Buffered
// events are flushed on shutdown.
func (p *Pusher) Run(ctx context.Context) error {
	var (
		buffer []ledger.OrderEvent
		timer  *time.Timer
		timerC <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			if len(buffer) > 0 {
				// Best effort: one shot, detached from the cancelled ctx.
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := p.pushOnce(flushCtx, buffer); err != nil {
					p.logger.Warn("shutdown flush failed", zap.Error(err))
				}
				cancel()
			}
			return ctx.Err()

		case e, ok := <-p.sub.Events():
			if !ok {
				stopTimer()
				return nil
			}
			if _, internal := internalEvents[e.Type]; internal {
				continue
			}
			buffer = append(buffer, e)
			if timer == nil {
				timer = time.NewTimer(p.opts.Debounce)
				timerC = timer.C
			}

		case <-timerC:
			timer = nil
			timerC = nil
			p.pushBatch(ctx, buffer)
			buffer = nil

		case <-p.sub.Lag():
			// The hub dropped events for us; the buffer may have holes.
			// Repair from the store instead of pushing it.
			stopTimer()
			buffer = nil
			p.resync(ctx)
		}
	}
}

// LastPushed reports the highest sequence acknowledged by the cloud.
func (p *Pusher) LastPushed() uint64 {
	return p.lastPushed.Load()
}

func (p *Pusher) pushBatch(ctx context.Context, events []ledger.OrderEvent) {
	if len(events) == 0 {
		return
	}

	backoff := retry.WithMaxRetries(p.opts.MaxAttempts,
		retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := p.pushOnce(ctx, events); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		p.logger.Error("batch push exhausted retries, falling back to store resync",
			zap.Int("events", len(events)),
			zap.Error(err),
		)
		p.resync(ctx)
		return
	}

	through := events[len(events)-1].Sequence
	p.lastPushed.Store(through)
	p.logger.Info("pushed batch",
		zap.Int("events", len(events)),
		zap.Uint64("through_sequence", through),
	)
}

func (p *Pusher) pushOnce(ctx context.Context, events []ledger.OrderEvent) error {
	body, err := json.Marshal(Batch{DeviceID: p.opts.DeviceID, Events: events})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		p.opts.CloudURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push: cloud returned %d", resp.StatusCode)
	}
	return nil
}

// resync reads the gap between lastPushed and the store head and
// pushes it in sequence-ordered chunks.
func (p *Pusher) resync(ctx context.Context) {
	missed := p.sub.Missed()
	p.logger.Warn("resyncing from store",
		zap.Uint64("last_pushed", p.lastPushed.Load()),
		zap.Uint64("hub_dropped", missed),
	)

	for {
		events, err := p.store.EventsSince(ctx, p.lastPushed.Load(), p.opts.ChunkSize)
		if err != nil {
			p.logger.Error("resync read failed", zap.Error(err))
			return
		}
		if len(events) == 0 {
			break
		}

		outbound := events[:0:0]
		for _, e := range events {
			if _, internal := internalEvents[e.Type]; internal {
				continue
			}
			outbound = append(outbound, e)
		}

		if len(outbound) > 0 {
			backoff := retry.WithMaxRetries(p.opts.MaxAttempts,
				retry.NewExponential(500*time.Millisecond))
			err = retry.Do(ctx, backoff, func(ctx context.Context) error {
				if err := p.pushOnce(ctx, outbound); err != nil {
					return retry.RetryableError(err)
				}
				return nil
			})
			if err != nil {
				p.logger.Error("resync push failed; will retry on next trigger", zap.Error(err))
				return
			}
		}

		// Advance past skipped internal events too.
		p.lastPushed.Store(events[len(events)-1].Sequence)
	}

	p.sub.ResetMissed()
	p.logger.Info("resync complete", zap.Uint64("through_sequence", p.lastPushed.Load()))
}
