package display

import "errors"

// ErrNotCompiled is returned by Open in builds without the "screen" tag.
var ErrNotCompiled = errors.New("screen support not compiled in (build with -tags=screen)")
