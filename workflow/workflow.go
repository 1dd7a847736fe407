// Package workflow hands tags read from the pad to the host page, one
// page load at a time, following the delivery plan of the current mode.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"circrfid/action"
	"circrfid/host"
	"circrfid/poller"
	"circrfid/queue"
	"circrfid/reader"
)

var (
	// ErrMultipleTags means a single-item page found more than one tag on the pad.
	ErrMultipleTags = errors.New("more than one rfid tag on the reader")
	// ErrNotDelivered means the host never received the barcodes. Queued
	// barcodes are put back in the unprocessed queue.
	ErrNotDelivered = errors.New("barcodes not delivered")
)

const multipleTagsMessage = "More than one RFID tag is on the reader. Please remove all but one RFID tag."

const (
	// WrongTransferMarker is a dialog that reloads the page by itself.
	WrongTransferMarker = "#wrong-transfer-modal"
	// NeedsConfirmationMarker is a dialog the librarian must dismiss.
	NeedsConfirmationMarker = "#circ-needsconfirmation-modal"
	// RenewApproveMarker is the renewal approval button.
	RenewApproveMarker = "button.approve"
)

// DefaultHaltMarkers are the page messages that stop one-at-a-time
// processing until the librarian chooses to continue.
var DefaultHaltMarkers = []string{
	"#hold-found1",
	"#hold-found2",
	"#item-transfer-modal",
	"#restricted_backdated",
	"#transfer-trigger",
	"#wrong-branch-modal",
	"p.problem.ret_badbarcode",
	"p.problem.ret_blocked",
	"p.problem.ret_charged",
	"p.problem.ret_datacorrupt",
	"p.problem.ret_ispermenant",
	"p.problem.ret_refund",
	"p.problem.ret_restored",
	"p.problem.ret_withdrawn",
	"p.ret_checkinmsg",
}

// Config holds workflow settings.
type Config struct {
	HaltMarkers []string `yaml:"halt_markers"`
}

// Wait is what a halted driver is waiting for.
type Wait int

const (
	WaitNone Wait = iota
	// WaitContinue waits for SignalContinue.
	WaitContinue
	// WaitDismiss waits for the confirmation dialog to be dismissed.
	WaitDismiss
	// WaitReload waits for the host to load another page.
	WaitReload
)

func (w Wait) String() string {
	switch w {
	case WaitNone:
		return "none"
	case WaitContinue:
		return "continue"
	case WaitDismiss:
		return "dismiss"
	case WaitReload:
		return "reload"
	}
	return "unknown"
}

// Settled is a poll result waiting to be handled on the engine loop.
type Settled struct {
	Handle   *poller.Handle
	Snapshot reader.Snapshot
}

// Driver runs the delivery plan for the current page. It is not safe for
// concurrent use: every method except Settled must be called from the
// goroutine that owns the queue.
type Driver struct {
	halts   []string
	q       *queue.Queue
	vendor  reader.Vendor
	poller  *poller.Poller
	host    host.Host
	log     *zap.Logger
	settled chan Settled

	page    action.Page
	plan    action.Plan
	active  bool
	wait    Wait
	resumed bool
	field   string
	sent    uint64
}

func New(cfg Config, q *queue.Queue, vendor reader.Vendor, p *poller.Poller, h host.Host, log *zap.Logger) *Driver {
	halts := cfg.HaltMarkers
	if len(halts) == 0 {
		halts = DefaultHaltMarkers
	}
	return &Driver{
		halts:   halts,
		q:       q,
		vendor:  vendor,
		poller:  p,
		host:    h,
		log:     log.Named("workflow"),
		settled: make(chan Settled, 1),
	}
}

// Settled delivers poll results. Pass each one to HandleSettled.
func (d *Driver) Settled() <-chan Settled { return d.settled }

// Deliveries counts the times barcodes were written to the host.
func (d *Driver) Deliveries() uint64 { return d.sent }

// Waiting reports what a halted driver waits for.
func (d *Driver) Waiting() Wait { return d.wait }

// Begin starts processing a freshly loaded page. Any halt from the
// previous page is forgotten.
func (d *Driver) Begin(ctx context.Context, page action.Page, plan action.Plan) error {
	d.poller.Stop()
	d.page = page
	d.plan = plan
	d.active = true
	d.wait = WaitNone
	d.resumed = false
	d.field = page.Fields[plan.Field]

	d.log.Debug("begin",
		zap.String("mode", string(plan.Mode)),
		zap.Stringer("policy", plan.Policy),
		zap.String("field", plan.Field))
	return d.run(ctx)
}

// Continue resumes a driver halted on a page message.
func (d *Driver) Continue(ctx context.Context) error {
	return d.resume(ctx, WaitContinue)
}

// Dismiss resumes a driver waiting on a confirmation dialog.
func (d *Driver) Dismiss(ctx context.Context) error {
	return d.resume(ctx, WaitDismiss)
}

func (d *Driver) resume(ctx context.Context, w Wait) error {
	if !d.active || d.wait != w {
		d.log.Debug("ignoring resume", zap.Stringer("signal", w), zap.Stringer("waiting", d.wait))
		return nil
	}
	d.wait = WaitNone
	d.resumed = true
	return d.run(ctx)
}

// Suspend stops polling until the next Begin.
func (d *Driver) Suspend() {
	d.poller.Stop()
	d.active = false
}

// FieldChanged records an edit the librarian made to the plan's field.
func (d *Driver) FieldChanged(field, value string) {
	if field == d.plan.Field {
		d.field = value
	}
}

func (d *Driver) run(ctx context.Context) error {
	switch d.plan.Policy {
	case action.OneAtATime:
		if !d.resumed {
			if w := d.interrupt(); w != WaitNone {
				return d.halt(ctx, w)
			}
		}
		if !d.page.HasField(d.plan.Field) {
			d.log.Debug("page has no barcode field", zap.String("field", d.plan.Field))
			return nil
		}
		return d.next(ctx)
	case action.Batch, action.OneAndDone:
		if !d.page.HasField(d.plan.Field) {
			d.log.Debug("page has no barcode field", zap.String("field", d.plan.Field))
			return nil
		}
		d.poll(ctx, false)
		return nil
	}
	return fmt.Errorf("unknown policy %v", d.plan.Policy)
}

// interrupt inspects the page for dialogs and messages that stop
// one-at-a-time processing.
func (d *Driver) interrupt() Wait {
	halt := false
	for _, m := range d.halts {
		if d.page.Has(m) {
			halt = true
			break
		}
	}
	prompt := true
	if d.plan.Mode == action.Renew && d.page.Has(RenewApproveMarker) {
		halt = true
		prompt = false
	}

	switch {
	case d.page.Has(WrongTransferMarker):
		return WaitReload
	case d.page.Has(NeedsConfirmationMarker):
		return WaitDismiss
	case halt && prompt:
		return WaitContinue
	case halt:
		return WaitReload
	}
	return WaitNone
}

func (d *Driver) halt(ctx context.Context, w Wait) error {
	d.wait = w
	d.log.Info("halted", zap.Stringer("waiting", w))
	if w == WaitContinue {
		return d.host.PromptContinue(ctx)
	}
	return nil
}

// next delivers the newest queued barcode, or polls for more.
func (d *Driver) next(ctx context.Context) error {
	for {
		b, ok, err := d.q.PopNext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			d.poll(ctx, true)
			return nil
		}
		first, err := d.q.MarkProcessed(ctx, b)
		if err != nil {
			return err
		}
		if !first {
			continue
		}
		return d.requeueOnFailure(ctx, d.deliver(ctx, b, []string{b}, true), []string{b})
	}
}

// requeueOnFailure undoes MarkProcessed for barcodes the host never got, so
// they are delivered again once the host is back.
func (d *Driver) requeueOnFailure(ctx context.Context, err error, barcodes []string) error {
	if !errors.Is(err, ErrNotDelivered) {
		return err
	}
	d.log.Warn("host unreachable, barcodes requeued", zap.Strings("barcodes", barcodes), zap.Error(err))
	if uerr := d.q.Unmark(ctx, barcodes); uerr != nil {
		return errors.Join(err, uerr)
	}
	return err
}

func (d *Driver) poll(ctx context.Context, noWait bool) {
	d.poller.Poll(ctx, noWait, func(h *poller.Handle, snap reader.Snapshot) {
		select {
		case d.settled <- Settled{Handle: h, Snapshot: snap}:
		case <-h.Done():
		}
	})
}

// HandleSettled consumes a poll result. Results from superseded polls are
// dropped.
func (d *Driver) HandleSettled(ctx context.Context, s Settled) error {
	if !d.active || !d.poller.Current(s.Handle) {
		d.log.Debug("dropping stale poll result", zap.Uint64("gen", s.Handle.Gen()))
		return nil
	}
	pad := s.Snapshot.Barcodes()

	switch d.plan.Policy {
	case action.OneAtATime:
		if _, err := d.q.Merge(ctx, pad); err != nil {
			return err
		}
		return d.next(ctx)

	case action.Batch:
		return d.batch(ctx, pad)

	case action.OneAndDone:
		b, err := OneTag(s.Snapshot)
		if err != nil {
			d.log.Warn("cannot deliver", zap.Error(err), zap.Strings("pad", pad))
			if err := d.host.Alert(ctx, multipleTagsMessage); err != nil {
				d.log.Warn("alert failed", zap.Error(err))
			}
			d.poll(ctx, false)
			return nil
		}
		return d.deliver(ctx, b, []string{b}, d.plan.AutoSubmit)
	}
	return nil
}

func (d *Driver) batch(ctx context.Context, pad []string) error {
	queued, err := d.q.Merge(ctx, pad)
	if err != nil {
		return err
	}

	var unseen []string
	for _, b := range queued {
		first, err := d.q.MarkProcessed(ctx, b)
		if err != nil {
			return err
		}
		if first {
			unseen = append(unseen, b)
		}
	}
	if len(unseen) == 0 {
		d.poll(ctx, false)
		return nil
	}

	value := d.field + strings.Join(unseen, "\r\n") + "\r\n"
	if err := d.deliver(ctx, value, unseen, d.plan.AutoSubmit); err != nil {
		return d.requeueOnFailure(ctx, err, unseen)
	}
	if !d.plan.AutoSubmit {
		// Keep collecting: further stacks are appended to the field.
		d.poll(ctx, false)
	}
	return nil
}

// deliver writes value into the plan's field, applies the security policy
// to barcodes and submits.
func (d *Driver) deliver(ctx context.Context, value string, barcodes []string, submit bool) error {
	if err := d.host.SetField(ctx, d.plan.Field, value); err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrNotDelivered, d.plan.Field, err)
	}
	d.field = value
	d.sent++
	d.setSecurity(ctx, barcodes)

	if !submit {
		return nil
	}
	d.log.Info("submitting", zap.String("mode", string(d.plan.Mode)), zap.Strings("barcodes", barcodes))
	if err := d.host.Submit(ctx, d.plan.Field, d.plan.SubmitControl); err != nil {
		return fmt.Errorf("submit %s: %w", d.plan.Field, err)
	}
	return nil
}

// setSecurity toggles each barcode in turn. Failures are logged only.
func (d *Driver) setSecurity(ctx context.Context, barcodes []string) {
	if d.plan.Security == action.SecurityIgnore {
		return
	}
	secure := d.plan.Security == action.SecurityEnable
	for _, b := range barcodes {
		if err := d.vendor.SetSecurity(ctx, b, secure); err != nil {
			d.log.Warn("security toggle failed", zap.String("barcode", b), zap.Bool("secure", secure), zap.Error(err))
		}
	}
}

// OneTag returns the only barcode on the pad.
func OneTag(snap reader.Snapshot) (string, error) {
	if len(snap.Items) != 1 {
		return "", fmt.Errorf("%w: %d tags", ErrMultipleTags, len(snap.Items))
	}
	return snap.Items[0].Barcode, nil
}
