package reader

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Select initializes and probes candidates in order and returns the first
// one that answers. Candidates that fail are closed. The choice is made once;
// there is no re-selection if the chosen pad later goes away.
func Select(ctx context.Context, candidates []Vendor, timeout time.Duration, log *zap.Logger) (Vendor, error) {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	for _, v := range candidates {
		l := log.With(zap.String("vendor", v.Name()))
		if err := v.Init(); err != nil {
			l.Warn("reader init failed", zap.Error(err))
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, timeout)
		alive, err := v.Probe(pctx)
		cancel()

		switch {
		case err != nil:
			l.Warn("reader probe failed", zap.Error(err))
		case !alive:
			l.Info("reader not alive")
		default:
			l.Info("reader selected")
			return v, nil
		}
		if err := v.Close(); err != nil {
			l.Debug("close rejected reader", zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, ErrNoReaderFound
}
