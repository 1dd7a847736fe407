// Package action maps the host page the librarian is looking at to a
// circulation mode, and each mode to how scanned tags are handed over.
package action

import (
	"context"
	"fmt"
	"strings"

	"circrfid/queue"
)

// Mode is a circulation workflow.
type Mode string

const (
	None                  Mode = ""
	Checkout              Mode = "checkout"
	Checkin               Mode = "checkin"
	Renew                 Mode = "renew"
	BatchCheckout         Mode = "batch_checkout"
	ListAddItems          Mode = "list_add_items"
	BatchItemModification Mode = "batch_item_modification"
	Inventory             Mode = "inventory"
	QuickSpineLabel       Mode = "quick_spine_label"
	Transfer              Mode = "transfer"
	Search                Mode = "search"
)

// Page describes the host page as reported by the host bridge.
type Page struct {
	URL string `json:"url"`
	// Markers lists the selectors present on the page, e.g. "#barcodelist",
	// "h1:Batch check out" for an h1 with that text.
	Markers []string `json:"markers"`
	// Fields holds the current value of the page's input fields by selector.
	Fields map[string]string `json:"fields"`
}

// Has reports whether marker is present.
func (p Page) Has(marker string) bool {
	for _, m := range p.Markers {
		if m == marker {
			return true
		}
	}
	return false
}

// HasField reports whether the page has the input field.
func (p Page) HasField(field string) bool {
	if _, ok := p.Fields[field]; ok {
		return true
	}
	return p.Has(field)
}

type rule struct {
	path   string
	marker string
	mode   Mode
}

// Order matters: batch checkout lives on the checkout page.
var rules = []rule{
	{"circulation.pl", "h1:Batch check out", BatchCheckout},
	{"circulation.pl", "", Checkout},
	{"returns.pl", "", Checkin},
	{"circ/renew.pl", "", Renew},
	{"virtualshelves/shelves.pl", "", ListAddItems},
	{"batchMod.pl", "", BatchItemModification},
	{"inventory.pl", "#barcodelist", Inventory},
	{"spinelabel-home.pl", "", QuickSpineLabel},
	{"branchtransfers.pl", "", Transfer},
}

// Detect returns the mode for page, or None.
func Detect(page Page) Mode {
	for _, r := range rules {
		if !strings.Contains(page.URL, r.path) {
			continue
		}
		if r.marker != "" && !page.Has(r.marker) {
			continue
		}
		return r.mode
	}
	return None
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	switch m {
	case None, Checkout, Checkin, Renew, BatchCheckout, ListAddItems,
		BatchItemModification, Inventory, QuickSpineLabel, Transfer, Search:
		return m, nil
	}
	return None, fmt.Errorf("unknown mode %q", s)
}

// Context tracks the mode across page loads and resets the queue whenever
// it changes.
type Context struct {
	q *queue.Queue
}

func NewContext(q *queue.Queue) *Context {
	return &Context{q: q}
}

// Evaluate detects the page mode. If it differs from the mode of the
// previous page, the queue is reset and changed is true.
func (c *Context) Evaluate(ctx context.Context, page Page) (mode Mode, changed bool, err error) {
	mode = Detect(page)
	prev, err := c.q.Mode(ctx)
	if err != nil {
		return mode, false, err
	}
	if Mode(prev) == mode {
		return mode, false, nil
	}
	if err := c.q.Reset(ctx, string(mode)); err != nil {
		return mode, false, fmt.Errorf("reset for %s: %w", mode, err)
	}
	return mode, true, nil
}

// Switch forces a reset into mode.
func (c *Context) Switch(ctx context.Context, mode Mode) error {
	return c.q.Reset(ctx, string(mode))
}

// Clear empties the queue and forgets the mode.
func (c *Context) Clear(ctx context.Context) error {
	return c.q.Reset(ctx, string(None))
}
