// Package queue holds the per-session barcode queue: an ordered stack of
// barcodes waiting to be handed to the host, and the set of barcodes
// already handed over.
package queue

// Reconcile merges a fresh pad read into the unprocessed queue.
//
// The result keeps unprocessed in its existing order, appends pad barcodes
// not already queued in the order the reader reported them, then drops
// everything in processed. A barcode never appears twice.
func Reconcile(pad, unprocessed []string, processed map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(unprocessed)+len(pad))
	out := make([]string, 0, len(unprocessed)+len(pad))

	add := func(b string) {
		if b == "" {
			return
		}
		if _, dup := seen[b]; dup {
			return
		}
		seen[b] = struct{}{}
		if _, done := processed[b]; done {
			return
		}
		out = append(out, b)
	}

	for _, b := range unprocessed {
		add(b)
	}
	for _, b := range pad {
		add(b)
	}
	return out
}

// Set builds a membership set from a list of barcodes.
func Set(barcodes []string) map[string]struct{} {
	s := make(map[string]struct{}, len(barcodes))
	for _, b := range barcodes {
		s[b] = struct{}{}
	}
	return s
}
