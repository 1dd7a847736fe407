package indicator

import "circrfid/queue"

// Multi combines multiple Indicator implementations.
type Multi struct {
	indicators []Indicator
}

func NewMulti(indicators ...Indicator) *Multi {
	return &Multi{indicators: indicators}
}

func (m *Multi) each(fn func(Indicator)) {
	for _, ind := range m.indicators {
		fn(ind)
	}
}

func (m *Multi) Idle()       { m.each(Indicator.Idle) }
func (m *Multi) Waiting()    { m.each(Indicator.Waiting) }
func (m *Multi) Delivered()  { m.each(Indicator.Delivered) }
func (m *Multi) Attention()  { m.each(Indicator.Attention) }
func (m *Multi) ReaderLost() { m.each(Indicator.ReaderLost) }
func (m *Multi) Shutdown()   { m.each(Indicator.Shutdown) }

// ShowQueue passes v to every indicator that displays the queue.
func (m *Multi) ShowQueue(v queue.View) {
	for _, ind := range m.indicators {
		if d, ok := ind.(QueueDisplay); ok {
			d.ShowQueue(v)
		}
	}
}

// Release releases every indicator and returns the last error.
func (m *Multi) Release() error {
	var lastErr error
	for _, ind := range m.indicators {
		if err := ind.Release(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
