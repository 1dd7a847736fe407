package indicator

// Noop implements Indicator but does nothing.
// Used when no indicators are configured.
type Noop struct{}

func (Noop) Idle()          {}
func (Noop) Waiting()       {}
func (Noop) Delivered()     {}
func (Noop) Attention()     {}
func (Noop) ReaderLost()    {}
func (Noop) Shutdown()      {}
func (Noop) Release() error { return nil }
