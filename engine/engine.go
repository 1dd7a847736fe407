// Package engine runs the station's single event loop. Host signals and
// settled pad reads are handled one at a time on the loop goroutine, which
// is the only goroutine that mutates the queue.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"circrfid/action"
	"circrfid/host"
	"circrfid/indicator"
	"circrfid/queue"
	"circrfid/workflow"
)

// Engine dispatches host signals to the action context and workflow driver.
type Engine struct {
	q      *queue.Queue
	actx   *action.Context
	driver *workflow.Driver
	ind    indicator.Indicator
	log    *zap.Logger

	page     *action.Page
	switched *action.Plan
}

// New wires an engine. driver may be nil when no reader was found; the
// queue still follows page changes and UI actions.
func New(q *queue.Queue, driver *workflow.Driver, h host.Host, ind indicator.Indicator, log *zap.Logger) *Engine {
	log = log.Named("engine")
	screen, _ := ind.(indicator.QueueDisplay)
	q.OnChange(func(v queue.View) {
		if screen != nil {
			screen.ShowQueue(v)
		}
		if err := h.ShowQueue(context.Background(), v); err != nil {
			log.Warn("show queue failed", zap.Error(err))
		}
	})
	return &Engine{
		q:      q,
		actx:   action.NewContext(q),
		driver: driver,
		ind:    ind,
		log:    log,
	}
}

// Run handles signals and poll results until ctx is done or signals is
// closed.
func (e *Engine) Run(ctx context.Context, signals <-chan host.Signal) error {
	var settled <-chan workflow.Settled
	if e.driver != nil {
		settled = e.driver.Settled()
		defer e.driver.Suspend()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-signals:
			if !ok {
				return nil
			}
			if err := e.Handle(ctx, s); err != nil {
				e.log.Warn("signal failed", zap.String("type", string(s.Type)), zap.Error(err))
			}
		case r := <-settled:
			before := e.driver.Deliveries()
			if err := e.driver.HandleSettled(ctx, r); err != nil {
				e.log.Warn("delivery failed", zap.Error(err))
			}
			e.status(before)
		}
	}
}

// Handle processes one host signal.
func (e *Engine) Handle(ctx context.Context, s host.Signal) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.log.Debug("signal", zap.String("type", string(s.Type)))

	switch s.Type {
	case host.SignalPage:
		p := *s.Page
		e.page = &p
		e.switched = nil
		return e.begin(ctx)

	case host.SignalField:
		if e.page != nil {
			if e.page.Fields == nil {
				e.page.Fields = map[string]string{}
			}
			e.page.Fields[s.Field] = s.Value
		}
		if e.driver != nil {
			e.driver.FieldChanged(s.Field, s.Value)
		}
		return nil

	case host.SignalContinue:
		return e.resume(ctx, (*workflow.Driver).Continue)

	case host.SignalDismiss:
		return e.resume(ctx, (*workflow.Driver).Dismiss)

	case host.SignalHidden:
		if e.driver != nil {
			e.driver.Suspend()
		}
		e.ind.Idle()
		return nil

	case host.SignalVisible:
		return e.rerun(ctx)

	case host.SignalReset:
		if err := e.actx.Clear(ctx); err != nil {
			return err
		}
		return e.rerun(ctx)

	case host.SignalSwitch:
		mode, err := action.ParseMode(s.Mode)
		if err != nil {
			return err
		}
		plan, ok := action.PlanFor(mode)
		if !ok {
			return fmt.Errorf("no plan for mode %q", mode)
		}
		if s.Field != "" {
			plan.Field = s.Field
		}
		if err := e.actx.Switch(ctx, mode); err != nil {
			return err
		}
		e.switched = &plan
		return e.beginSwitched(ctx)

	case host.SignalRemove:
		return e.q.Remove(ctx, s.Barcode)

	case host.SignalProcessed:
		return e.q.Promote(ctx, s.Barcode)
	}
	return nil
}

// rerun restarts processing of the current page, or of the switched tab.
func (e *Engine) rerun(ctx context.Context) error {
	if e.switched != nil {
		if err := e.actx.Switch(ctx, e.switched.Mode); err != nil {
			return err
		}
		return e.beginSwitched(ctx)
	}
	if e.page == nil {
		return nil
	}
	return e.begin(ctx)
}

func (e *Engine) begin(ctx context.Context) error {
	mode, changed, err := e.actx.Evaluate(ctx, *e.page)
	if err != nil {
		return err
	}
	plan, ok := action.PlanFor(mode)
	if !ok {
		e.log.Debug("no rfid action on page", zap.String("url", e.page.URL))
		if e.driver != nil {
			e.driver.Suspend()
		}
		e.ind.Idle()
		return nil
	}
	if plan.ResetEachLoad && !changed {
		if err := e.actx.Switch(ctx, mode); err != nil {
			return err
		}
	}
	return e.start(ctx, *e.page, plan)
}

// beginSwitched starts the switched tab's plan. The tab's input is shown
// by the switch, so the page is treated as having it.
func (e *Engine) beginSwitched(ctx context.Context) error {
	var p action.Page
	if e.page != nil {
		p = *e.page
	}
	p.Markers = append(append([]string(nil), p.Markers...), e.switched.Field)
	return e.start(ctx, p, *e.switched)
}

func (e *Engine) start(ctx context.Context, page action.Page, plan action.Plan) error {
	if e.driver == nil {
		e.log.Info("no reader, not processing page", zap.String("mode", string(plan.Mode)))
		e.ind.ReaderLost()
		return nil
	}
	before := e.driver.Deliveries()
	if err := e.driver.Begin(ctx, page, plan); err != nil {
		return err
	}
	e.status(before)
	return nil
}

func (e *Engine) resume(ctx context.Context, fn func(*workflow.Driver, context.Context) error) error {
	if e.driver == nil {
		return errors.New("no reader")
	}
	before := e.driver.Deliveries()
	if err := fn(e.driver, ctx); err != nil {
		return err
	}
	e.status(before)
	return nil
}

// status updates the indicator after the driver ran; before is the
// delivery count from just before.
func (e *Engine) status(before uint64) {
	switch {
	case e.driver.Deliveries() != before:
		e.ind.Delivered()
	case e.driver.Waiting() != workflow.WaitNone:
		e.ind.Attention()
	default:
		e.ind.Waiting()
	}
}

// View returns the queue contents for display.
func (e *Engine) View(ctx context.Context) (queue.View, error) {
	return e.q.View(ctx)
}
