// Package eventpipe reads host signals as text commands from a named pipe,
// for page-side helpers that cannot speak MQTT and for testing at the desk.
package eventpipe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"circrfid/action"
	"circrfid/host"
)

// Config holds configuration for the event pipe.
type Config struct {
	Path string `yaml:"path"` // Path to named pipe (e.g., "/tmp/circrfid-events")
}

// Handler is called for every signal read from the pipe.
type Handler func(host.Signal)

// EventPipe listens for signals on a named pipe.
type EventPipe struct {
	path    string
	file    *os.File
	handler Handler
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates the pipe. Returns nil if path is empty.
//
// The pipe is held open read-write, so the reader never sees end-of-file
// between writers and Close can interrupt a blocked read.
func New(cfg Config, handler Handler, log *zap.Logger) (*EventPipe, error) {
	if cfg.Path == "" {
		return nil, nil
	}

	os.Remove(cfg.Path)
	if err := syscall.Mkfifo(cfg.Path, 0666); err != nil {
		return nil, fmt.Errorf("create named pipe %s: %w", cfg.Path, err)
	}
	file, err := os.OpenFile(cfg.Path, os.O_RDWR, 0)
	if err != nil {
		os.Remove(cfg.Path)
		return nil, fmt.Errorf("open named pipe %s: %w", cfg.Path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &EventPipe{
		path:    cfg.Path,
		file:    file,
		handler: handler,
		log:     log.Named("eventpipe"),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}, nil
}

// Start reads commands until Close. Run it as a goroutine.
func (ep *EventPipe) Start() {
	defer close(ep.done)
	ep.log.Info("event pipe listening", zap.String("path", ep.path))

	scanner := bufio.NewScanner(ep.file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sig, err := parseLine(line)
		if err != nil {
			ep.log.Warn("event pipe parse", zap.String("line", line), zap.Error(err))
			continue
		}
		if ep.handler != nil {
			ep.handler(sig)
		}
	}
	if err := scanner.Err(); err != nil && ep.ctx.Err() == nil {
		ep.log.Warn("event pipe read", zap.Error(err))
	}
}

// Done is closed once Start has returned.
func (ep *EventPipe) Done() <-chan struct{} { return ep.done }

// Close stops the listener and removes the pipe.
func (ep *EventPipe) Close() error {
	ep.cancel()
	ep.file.Close()
	return os.Remove(ep.path)
}

// parseLine parses a command line into a Signal.
// Command format:
//
//	page <url> [marker|...]    - Page loaded; markers are present selectors,
//	                             separated by "|" since selectors may hold spaces
//	field <selector> <value>   - Field value changed
//	continue | dismiss | reset - Librarian actions
//	hidden | visible           - Tab visibility
//	switch <mode> [field]      - Top bar tab selected
//	remove <barcode>           - Drop barcode from the queue
//	processed <barcode>        - Mark barcode as processed
func parseLine(line string) (host.Signal, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return host.Signal{}, fmt.Errorf("empty command")
	}

	cmd := strings.ToLower(parts[0])
	var sig host.Signal

	switch cmd {
	case "page":
		if len(parts) < 2 {
			return host.Signal{}, fmt.Errorf("page requires url")
		}
		sig = host.Signal{Type: host.SignalPage, Page: &action.Page{URL: parts[1], Markers: markers(line, parts[0], parts[1])}}

	case "field":
		if len(parts) < 2 {
			return host.Signal{}, fmt.Errorf("field requires <selector> [value]")
		}
		value := ""
		if len(parts) > 2 {
			value = strings.Join(parts[2:], " ")
		}
		sig = host.Signal{Type: host.SignalField, Field: parts[1], Value: value}

	case "continue", "dismiss", "reset", "hidden", "visible":
		sig = host.Signal{Type: host.SignalType(cmd)}

	case "switch":
		if len(parts) < 2 {
			return host.Signal{}, fmt.Errorf("switch requires mode")
		}
		sig = host.Signal{Type: host.SignalSwitch, Mode: parts[1]}
		if len(parts) > 2 {
			sig.Field = parts[2]
		}

	case "remove", "processed":
		if len(parts) < 2 {
			return host.Signal{}, fmt.Errorf("%s requires barcode", cmd)
		}
		sig = host.Signal{Type: host.SignalType(cmd), Barcode: parts[1]}

	default:
		return host.Signal{}, fmt.Errorf("unknown command: %s", cmd)
	}

	if err := sig.Validate(); err != nil {
		return host.Signal{}, err
	}
	return sig, nil
}

// markers splits what follows the url on a page line into selectors.
func markers(line, cmd, url string) []string {
	rest := strings.TrimSpace(line)
	rest = strings.TrimSpace(rest[len(cmd):])
	rest = strings.TrimPrefix(rest, url)
	var out []string
	for _, m := range strings.Split(rest, "|") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}
