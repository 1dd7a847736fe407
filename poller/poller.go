package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"circrfid/reader"
)

// Poller owns the single outstanding poll against the selected vendor.
// Starting a poll cancels the previous one.
type Poller struct {
	vendor reader.Vendor
	log    *zap.Logger

	mu      sync.Mutex
	gen     uint64
	current *Handle
}

// Handle identifies one poll.
type Handle struct {
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Gen returns the poll's generation number.
func (h *Handle) Gen() uint64 { return h.gen }

// Done is closed once the poll is cancelled.
func (h *Handle) Done() <-chan struct{} { return h.ctx.Done() }

// Stopped is closed once the poll goroutine has exited.
func (h *Handle) Stopped() <-chan struct{} { return h.stopped }

// Cancel stops the poll. It is safe to call more than once.
func (h *Handle) Cancel() { h.cancel() }

func New(vendor reader.Vendor, log *zap.Logger) *Poller {
	return &Poller{vendor: vendor, log: log.Named("poller")}
}

// Poll cancels any outstanding poll, then reads the pad every vendor poll
// interval and calls onSettled at most once, with the first snapshot the
// Settler accepts. Read errors are logged and polling continues until the
// handle is cancelled. onSettled runs on the poll goroutine.
func (p *Poller) Poll(ctx context.Context, noWait bool, onSettled func(*Handle, reader.Snapshot)) *Handle {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.current != nil {
		p.current.Cancel()
	}
	p.gen++
	h := &Handle{gen: p.gen, ctx: ctx, cancel: cancel, stopped: make(chan struct{})}
	p.current = h
	p.mu.Unlock()

	go p.run(h, &Settler{NoWait: noWait}, onSettled)
	return h
}

// Current reports whether h is the most recent poll and still running.
// Results from any other handle are stale.
func (p *Poller) Current(h *Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return h != nil && p.current == h && h.ctx.Err() == nil
}

// Stop cancels the outstanding poll, if any.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Cancel()
	}
}

func (p *Poller) run(h *Handle, s *Settler, onSettled func(*Handle, reader.Snapshot)) {
	defer close(h.stopped)

	interval := p.vendor.PollInterval()
	if interval <= 0 {
		interval = reader.DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := p.vendor.ReadTags(h.ctx)
		if h.ctx.Err() != nil {
			return
		}
		if err != nil {
			p.log.Warn("reader unreachable", zap.String("vendor", p.vendor.Name()), zap.Error(err))
			continue
		}
		if !s.Tick(snap) {
			continue
		}

		p.log.Debug("pad settled", zap.Uint64("gen", h.gen), zap.Int("tags", len(snap.Items)))
		onSettled(h, snap)
		return
	}
}
