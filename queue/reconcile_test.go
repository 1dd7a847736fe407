package queue

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		pad         []string
		unprocessed []string
		processed   []string
		want        []string
	}{
		{"empty", nil, nil, nil, []string{}},
		{"fresh pad", []string{"A", "B"}, nil, nil, []string{"A", "B"}},
		{"appends after queue", []string{"C", "A"}, []string{"A", "B"}, nil, []string{"A", "B", "C"}},
		{"drops processed", []string{"A", "B", "C"}, nil, []string{"B"}, []string{"A", "C"}},
		{"processed queue entry dropped", nil, []string{"A", "B"}, []string{"A"}, []string{"B"}},
		{"pad duplicates collapse", []string{"A", "A", "B"}, nil, nil, []string{"A", "B"}},
		{"empty barcodes ignored", []string{"", "A"}, []string{""}, nil, []string{"A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.pad, tt.unprocessed, Set(tt.processed))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconcileProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pick := func(n int) []string {
		out := make([]string, rng.Intn(n))
		for i := range out {
			out[i] = fmt.Sprintf("B%d", rng.Intn(12))
		}
		return out
	}

	for i := 0; i < 500; i++ {
		pad, unprocessed, processedList := pick(8), dedupe(pick(8)), pick(6)
		processed := Set(processedList)

		got := Reconcile(pad, unprocessed, processed)

		seen := map[string]bool{}
		for _, b := range got {
			assert.False(t, seen[b], "duplicate %s in %v", b, got)
			seen[b] = true
			_, done := processed[b]
			assert.False(t, done, "processed %s re-queued", b)
		}
		for _, b := range append(append([]string{}, unprocessed...), pad...) {
			if _, done := processed[b]; !done {
				assert.True(t, seen[b], "%s missing from %v", b, got)
			}
		}

		again := Reconcile(pad, got, processed)
		assert.Equal(t, got, again, "reconcile must be idempotent for a stable pad")
	}
}

func TestReconcileFavoursNewestForPop(t *testing.T) {
	got := Reconcile([]string{"X", "Y"}, []string{"A"}, nil)
	assert.Equal(t, "Y", got[len(got)-1])
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, b := range in {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}
