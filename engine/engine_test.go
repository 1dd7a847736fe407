package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"circrfid/action"
	"circrfid/host"
	"circrfid/indicator"
	"circrfid/kv"
	"circrfid/poller"
	"circrfid/queue"
	"circrfid/reader"
	"circrfid/workflow"
)

type fakeHost struct {
	mu    sync.Mutex
	calls []string
	views []queue.View
}

func (h *fakeHost) record(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, fmt.Sprintf(format, args...))
}

func (h *fakeHost) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *fakeHost) SetField(_ context.Context, field, value string) error {
	h.record("set %s=%q", field, value)
	return nil
}

func (h *fakeHost) Submit(_ context.Context, field, control string) error {
	h.record("submit %s", field)
	return nil
}

func (h *fakeHost) Alert(_ context.Context, msg string) error {
	h.record("alert %s", msg)
	return nil
}

func (h *fakeHost) PromptContinue(context.Context) error {
	h.record("prompt")
	return nil
}

func (h *fakeHost) ShowQueue(_ context.Context, v queue.View) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.views = append(h.views, v)
	return nil
}

func (h *fakeHost) lastView() queue.View {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.views) == 0 {
		return queue.View{}
	}
	return h.views[len(h.views)-1]
}

type pad struct {
	mu       sync.Mutex
	barcodes []string
}

func (p *pad) put(b ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.barcodes = b
}

func (p *pad) Name() string                                    { return "pad" }
func (p *pad) Init() error                                     { return nil }
func (p *pad) Probe(context.Context) (bool, error)             { return true, nil }
func (p *pad) PollInterval() time.Duration                     { return time.Millisecond }
func (p *pad) Close() error                                    { return nil }
func (p *pad) SetSecurity(context.Context, string, bool) error { return nil }

func (p *pad) ReadTags(context.Context) (reader.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := reader.Snapshot{Items: []reader.Tag{}}
	for _, b := range p.barcodes {
		s.Items = append(s.Items, reader.Tag{Barcode: b})
	}
	return s, nil
}

type states struct {
	indicator.Noop
	mu    sync.Mutex
	last  string
	views []queue.View
}

func (s *states) ShowQueue(v queue.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, v)
}

func (s *states) shown() []queue.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]queue.View(nil), s.views...)
}

func (s *states) set(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = v
}

func (s *states) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *states) Idle()       { s.set("idle") }
func (s *states) Waiting()    { s.set("waiting") }
func (s *states) Delivered()  { s.set("delivered") }
func (s *states) Attention()  { s.set("attention") }
func (s *states) ReaderLost() { s.set("lost") }

type rig struct {
	e     *Engine
	q     *queue.Queue
	h     *fakeHost
	pad   *pad
	ind   *states
	store kv.Store
}

func newRig(t *testing.T, withReader bool) *rig {
	t.Helper()
	store := kv.NewMemory()
	q := queue.New(store, "pad")
	h := &fakeHost{}
	p := &pad{}
	ind := &states{}

	var d *workflow.Driver
	if withReader {
		pl := poller.New(p, zap.NewNop())
		t.Cleanup(pl.Stop)
		d = workflow.New(workflow.Config{}, q, p, pl, h, zap.NewNop())
	}
	return &rig{e: New(q, d, h, ind, zap.NewNop()), q: q, h: h, pad: p, ind: ind, store: store}
}

func (r *rig) run(t *testing.T) chan<- host.Signal {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan host.Signal)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.e.Run(ctx, signals)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return signals
}

func pageSignal(url string, markers ...string) host.Signal {
	return host.Signal{Type: host.SignalPage, Page: &action.Page{URL: url, Markers: markers}}
}

func TestBatchCheckoutEndToEnd(t *testing.T) {
	r := newRig(t, true)
	r.pad.put("A", "B")
	signals := r.run(t)

	signals <- pageSignal("/cgi-bin/koha/circ/circulation.pl", "h1:Batch check out", "#barcodelist")

	require.Eventually(t, func() bool { return len(r.h.Calls()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{`set #barcodelist="A\r\nB\r\n"`, "submit #barcodelist"}, r.h.Calls())
	assert.Equal(t, "delivered", r.ind.get())

	v := r.h.lastView()
	assert.Equal(t, "batch_checkout", v.Mode)
	assert.Equal(t, []string{"B", "A"}, v.Processed)
}

func TestModeTransitionResetsQueue(t *testing.T) {
	r := newRig(t, true)
	ctx := context.Background()

	require.NoError(t, r.e.Handle(ctx, pageSignal("/circ/circulation.pl")))
	require.NoError(t, r.q.SetUnprocessed(ctx, []string{"A", "B"}))

	require.NoError(t, r.e.Handle(ctx, pageSignal("/circ/returns.pl")))
	v, err := r.e.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.View{Mode: "checkin", Unprocessed: []string{}, Processed: []string{}}, v)
}

func TestQueueChangesReachScreen(t *testing.T) {
	r := newRig(t, true)
	ctx := context.Background()

	require.NoError(t, r.e.Handle(ctx, pageSignal("/circ/returns.pl")))
	require.NoError(t, r.q.SetUnprocessed(ctx, []string{"A"}))

	views := r.ind.shown()
	require.NotEmpty(t, views)
	assert.Equal(t, queue.View{Mode: "checkin", Unprocessed: []string{"A"}, Processed: []string{}}, views[len(views)-1])
	assert.Equal(t, r.h.lastView(), views[len(views)-1])
}

func TestOneAtATimeAcrossReloads(t *testing.T) {
	r := newRig(t, true)
	ctx := context.Background()
	require.NoError(t, r.e.Handle(ctx, pageSignal("/circ/returns.pl")))
	require.NoError(t, r.q.SetUnprocessed(ctx, []string{"A", "B"}))

	require.NoError(t, r.e.Handle(ctx, pageSignal("/circ/returns.pl", "#barcode")))
	require.NoError(t, r.e.Handle(ctx, pageSignal("/circ/returns.pl", "#barcode")))

	assert.Equal(t, []string{`set #barcode="B"`, "submit #barcode", `set #barcode="A"`, "submit #barcode"}, r.h.Calls())
	assert.Equal(t, "delivered", r.ind.get())
}

func TestHaltAndContinue(t *testing.T) {
	r := newRig(t, true)
	ctx := context.Background()
	require.NoError(t, r.e.Handle(ctx, pageSignal("/circ/returns.pl")))
	require.NoError(t, r.q.SetUnprocessed(ctx, []string{"A"}))

	require.NoError(t, r.e.Handle(ctx, pageSignal("/circ/returns.pl", "#barcode", "p.problem.ret_withdrawn")))
	assert.Equal(t, []string{"prompt"}, r.h.Calls())
	assert.Equal(t, "attention", r.ind.get())

	require.NoError(t, r.e.Handle(ctx, host.Signal{Type: host.SignalContinue}))
	assert.Equal(t, []string{"prompt", `set #barcode="A"`, "submit #barcode"}, r.h.Calls())
}

func TestResetEachLoad(t *testing.T) {
	r := newRig(t, true)
	ctx := context.Background()
	require.NoError(t, r.e.Handle(ctx, pageSignal("/tools/batchMod.pl")))
	_, err := r.q.MarkProcessed(ctx, "A")
	require.NoError(t, err)

	require.NoError(t, r.e.Handle(ctx, pageSignal("/tools/batchMod.pl")))
	processed, err := r.q.Processed(ctx)
	require.NoError(t, err)
	assert.Empty(t, processed)
}

func TestQueueSignals(t *testing.T) {
	r := newRig(t, true)
	ctx := context.Background()
	require.NoError(t, r.q.SetUnprocessed(ctx, []string{"A", "B", "C"}))

	require.NoError(t, r.e.Handle(ctx, host.Signal{Type: host.SignalRemove, Barcode: "A"}))
	require.NoError(t, r.e.Handle(ctx, host.Signal{Type: host.SignalProcessed, Barcode: "C"}))

	v := r.h.lastView()
	assert.Equal(t, []string{"B"}, v.Unprocessed)
	assert.Equal(t, []string{"C"}, v.Processed)

	assert.Error(t, r.e.Handle(ctx, host.Signal{Type: host.SignalRemove}))
}

func TestSwitchToSearchTab(t *testing.T) {
	r := newRig(t, true)
	r.pad.put("Z")
	signals := r.run(t)

	signals <- pageSignal("/cgi-bin/koha/mainpage.pl")
	signals <- host.Signal{Type: host.SignalSwitch, Mode: "search"}

	require.Eventually(t, func() bool { return len(r.h.Calls()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`set #search-form="Z"`, "submit #search-form"}, r.h.Calls())
}

func TestSwitchFieldOverride(t *testing.T) {
	r := newRig(t, true)
	ctx := context.Background()
	require.NoError(t, r.q.SetUnprocessed(ctx, []string{"A"}))
	require.NoError(t, r.e.Handle(ctx, pageSignal("/mainpage.pl")))

	require.NoError(t, r.e.Handle(ctx, host.Signal{Type: host.SignalSwitch, Mode: "checkin", Field: "#ret_barcode"}))
	assert.Equal(t, "waiting", r.ind.get())

	v, err := r.e.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "checkin", v.Mode)
	assert.Empty(t, v.Unprocessed, "switching tabs starts a fresh session")
}

func TestHiddenVisibleAndReset(t *testing.T) {
	r := newRig(t, true)
	ctx := context.Background()
	require.NoError(t, r.e.Handle(ctx, pageSignal("/circ/returns.pl")))

	require.NoError(t, r.e.Handle(ctx, host.Signal{Type: host.SignalHidden}))
	assert.Equal(t, "idle", r.ind.get())

	require.NoError(t, r.q.SetUnprocessed(ctx, []string{"A"}))
	require.NoError(t, r.e.Handle(ctx, host.Signal{Type: host.SignalReset}))

	v, err := r.e.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "checkin", v.Mode, "reset re-evaluates the page")
	assert.Empty(t, v.Unprocessed)

	require.NoError(t, r.e.Handle(ctx, host.Signal{Type: host.SignalVisible}))
	assert.Equal(t, "waiting", r.ind.get())
}

func TestWithoutReader(t *testing.T) {
	r := newRig(t, false)
	ctx := context.Background()

	require.NoError(t, r.e.Handle(ctx, pageSignal("/circ/returns.pl", "#barcode")))
	assert.Equal(t, "lost", r.ind.get())

	mode, err := r.q.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "checkin", mode)

	assert.Error(t, r.e.Handle(ctx, host.Signal{Type: host.SignalContinue}))
	assert.Empty(t, r.h.Calls())
}

func TestRunStopsOnClosedSignals(t *testing.T) {
	r := newRig(t, true)
	signals := make(chan host.Signal)
	close(signals)
	assert.NoError(t, r.e.Run(context.Background(), signals))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.e.Run(ctx, make(chan host.Signal)), context.Canceled)
}
