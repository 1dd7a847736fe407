//go:build !screen

package display

import "go.uber.org/zap"

// Screen is a stub when screen support is not compiled in.
type Screen struct{}

// Open always fails without the "screen" build tag.
func Open(cfg Config, log *zap.Logger) (*Screen, error) {
	return nil, ErrNotCompiled
}

func (s *Screen) Show(Frame)   {}
func (s *Screen) Clear()       {}
func (s *Screen) Close() error { return nil }
