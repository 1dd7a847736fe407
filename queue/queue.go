package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"circrfid/kv"
)

const (
	keyMode        = "previous_action"
	keyUnprocessed = "unprocessed_barcodes"
	keyProcessed   = "processed_barcodes"
)

// View is a snapshot of the queue for display.
type View struct {
	Mode        string   `json:"mode"`
	Unprocessed []string `json:"unprocessed"`
	// Processed is most recently processed first.
	Processed []string `json:"processed"`
}

// Queue is the persisted session state for one reader vendor.
// It is not safe for concurrent mutation; the engine loop owns it.
type Queue struct {
	store    kv.Store
	prefix   string
	onChange func(View)
}

// New creates a queue whose keys live under namespace (usually the vendor
// name), so different vendor integrations never share state.
func New(store kv.Store, namespace string) *Queue {
	return &Queue{store: store, prefix: "rfid:" + namespace + ":"}
}

// OnChange registers a hook called after every mutation.
func (q *Queue) OnChange(fn func(View)) {
	q.onChange = fn
}

// Mode returns the mode persisted by the previous page load, or "" if none.
func (q *Queue) Mode(ctx context.Context) (string, error) {
	v, _, err := q.store.Get(ctx, q.prefix+keyMode)
	return v, err
}

// SetMode persists the current mode.
func (q *Queue) SetMode(ctx context.Context, mode string) error {
	return q.store.Set(ctx, q.prefix+keyMode, mode)
}

// Unprocessed returns the unprocessed barcodes, oldest first.
func (q *Queue) Unprocessed(ctx context.Context) ([]string, error) {
	return q.list(ctx, keyUnprocessed)
}

// SetUnprocessed replaces the unprocessed barcodes.
func (q *Queue) SetUnprocessed(ctx context.Context, barcodes []string) error {
	if err := q.setList(ctx, keyUnprocessed, barcodes); err != nil {
		return err
	}
	q.changed(ctx)
	return nil
}

// Processed returns the processed barcodes in the order they were processed.
func (q *Queue) Processed(ctx context.Context) ([]string, error) {
	return q.list(ctx, keyProcessed)
}

// SetProcessed replaces the processed barcodes.
func (q *Queue) SetProcessed(ctx context.Context, barcodes []string) error {
	if err := q.setList(ctx, keyProcessed, barcodes); err != nil {
		return err
	}
	q.changed(ctx)
	return nil
}

// Merge reconciles a pad read into the unprocessed queue and persists the
// result.
func (q *Queue) Merge(ctx context.Context, pad []string) ([]string, error) {
	unprocessed, err := q.Unprocessed(ctx)
	if err != nil {
		return nil, err
	}
	processed, err := q.Processed(ctx)
	if err != nil {
		return nil, err
	}

	merged := Reconcile(pad, unprocessed, Set(processed))
	if err := q.SetUnprocessed(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// PopNext removes and returns the most recently queued barcode.
func (q *Queue) PopNext(ctx context.Context) (string, bool, error) {
	unprocessed, err := q.Unprocessed(ctx)
	if err != nil {
		return "", false, err
	}
	if len(unprocessed) == 0 {
		return "", false, nil
	}

	last := unprocessed[len(unprocessed)-1]
	if err := q.SetUnprocessed(ctx, unprocessed[:len(unprocessed)-1]); err != nil {
		return "", false, err
	}
	return last, true, nil
}

// MarkProcessed adds barcode to the processed set. It returns false, and
// changes nothing, if the barcode was already processed this session.
// A barcode still waiting in the unprocessed queue is taken out of it.
func (q *Queue) MarkProcessed(ctx context.Context, barcode string) (bool, error) {
	processed, err := q.Processed(ctx)
	if err != nil {
		return false, err
	}
	for _, b := range processed {
		if b == barcode {
			return false, nil
		}
	}

	unprocessed, err := q.Unprocessed(ctx)
	if err != nil {
		return false, err
	}
	if rest := without(unprocessed, barcode); len(rest) != len(unprocessed) {
		if err := q.setList(ctx, keyUnprocessed, rest); err != nil {
			return false, err
		}
	}
	if err := q.SetProcessed(ctx, append(processed, barcode)); err != nil {
		return false, err
	}
	return true, nil
}

// Unmark takes barcodes back out of the processed set and returns them to
// the newest end of the unprocessed queue, in order. It undoes
// MarkProcessed for items that never reached the page.
func (q *Queue) Unmark(ctx context.Context, barcodes []string) error {
	if len(barcodes) == 0 {
		return nil
	}
	processed, err := q.Processed(ctx)
	if err != nil {
		return err
	}
	unprocessed, err := q.Unprocessed(ctx)
	if err != nil {
		return err
	}

	undo := Set(barcodes)
	kept := make([]string, 0, len(processed))
	for _, b := range processed {
		if _, ok := undo[b]; !ok {
			kept = append(kept, b)
		}
	}
	queued := Set(unprocessed)
	for _, b := range barcodes {
		if _, ok := queued[b]; ok {
			continue
		}
		queued[b] = struct{}{}
		unprocessed = append(unprocessed, b)
	}

	if err := q.setList(ctx, keyProcessed, kept); err != nil {
		return err
	}
	return q.SetUnprocessed(ctx, unprocessed)
}

// Remove drops barcode from the unprocessed queue without processing it.
func (q *Queue) Remove(ctx context.Context, barcode string) error {
	unprocessed, err := q.Unprocessed(ctx)
	if err != nil {
		return err
	}
	return q.SetUnprocessed(ctx, without(unprocessed, barcode))
}

// Promote moves barcode from the unprocessed queue to the processed set,
// for items the librarian handled by hand.
func (q *Queue) Promote(ctx context.Context, barcode string) error {
	_, err := q.MarkProcessed(ctx, barcode)
	return err
}

// Reset clears both lists and persists mode.
func (q *Queue) Reset(ctx context.Context, mode string) error {
	if err := q.SetMode(ctx, mode); err != nil {
		return err
	}
	if err := q.setList(ctx, keyUnprocessed, nil); err != nil {
		return err
	}
	if err := q.setList(ctx, keyProcessed, nil); err != nil {
		return err
	}
	q.changed(ctx)
	return nil
}

// View returns the current queue contents.
func (q *Queue) View(ctx context.Context) (View, error) {
	mode, err := q.Mode(ctx)
	if err != nil {
		return View{}, err
	}
	unprocessed, err := q.Unprocessed(ctx)
	if err != nil {
		return View{}, err
	}
	processed, err := q.Processed(ctx)
	if err != nil {
		return View{}, err
	}

	recent := make([]string, len(processed))
	for i, b := range processed {
		recent[len(processed)-1-i] = b
	}
	return View{Mode: mode, Unprocessed: unprocessed, Processed: recent}, nil
}

func (q *Queue) list(ctx context.Context, key string) ([]string, error) {
	raw, ok, err := q.store.Get(ctx, q.prefix+key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok || raw == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (q *Queue) setList(ctx context.Context, key string, barcodes []string) error {
	if barcodes == nil {
		barcodes = []string{}
	}
	data, err := json.Marshal(barcodes)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := q.store.Set(ctx, q.prefix+key, string(data)); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (q *Queue) changed(ctx context.Context) {
	if q.onChange == nil {
		return
	}
	v, err := q.View(ctx)
	if err != nil {
		return
	}
	q.onChange(v)
}

func without(list []string, barcode string) []string {
	out := make([]string, 0, len(list))
	for _, b := range list {
		if b != barcode {
			out = append(out, b)
		}
	}
	return out
}
