package reader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kenshaw/evdev"
	"go.uber.org/zap"
)

// Keyboard is a keyboard-wedge pad: it types each barcode followed by Enter.
type Keyboard struct {
	cfg      KeyboardConfig
	interval time.Duration
	log      *zap.Logger

	once    sync.Once
	initErr error
	device  *evdev.Evdev
	window  *presence
	cancel  context.CancelFunc
}

func NewKeyboard(cfg KeyboardConfig, interval time.Duration, log *zap.Logger) *Keyboard {
	return &Keyboard{cfg: cfg, interval: interval, log: log.Named("keyboard"), window: newPresence(cfg.PresenceTTL)}
}

func (k *Keyboard) Name() string                { return "keyboard" }
func (k *Keyboard) PollInterval() time.Duration { return k.interval }

// Init opens the input device and starts collecting lines.
func (k *Keyboard) Init() error {
	k.once.Do(func() {
		if k.cfg.Device == "" {
			k.initErr = fmt.Errorf("keyboard reader: no device configured")
			return
		}
		dev, err := evdev.OpenFile(k.cfg.Device)
		if err != nil {
			k.initErr = fmt.Errorf("open evdev %s: %w", k.cfg.Device, err)
			return
		}
		k.device = dev
		k.log.Info("opened keyboard device",
			zap.String("name", dev.Name()),
			zap.String("vendor", fmt.Sprintf("0x%04x", dev.ID().Vendor)),
			zap.String("product", fmt.Sprintf("0x%04x", dev.ID().Product)))

		ctx, cancel := context.WithCancel(context.Background())
		k.cancel = cancel
		go k.readLoop(ctx)
	})
	return k.initErr
}

func (k *Keyboard) Probe(ctx context.Context) (bool, error) {
	if err := k.Init(); err != nil {
		return false, err
	}
	return true, nil
}

func (k *Keyboard) ReadTags(ctx context.Context) (Snapshot, error) {
	if k.device == nil {
		return Snapshot{}, fmt.Errorf("%w: keyboard device not open", ErrUnreachable)
	}
	return k.window.snapshot(), nil
}

func (k *Keyboard) SetSecurity(ctx context.Context, barcode string, secure bool) error {
	return fmt.Errorf("%w: %w", ErrSecurityToggle, ErrUnsupported)
}

func (k *Keyboard) readLoop(ctx context.Context) {
	ch := k.device.Poll(ctx)
	var line lineBuffer
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if event == nil {
				k.log.Warn("keyboard device closed")
				return
			}
			if _, ok := event.Type.(evdev.KeyType); !ok || event.Value != 1 {
				continue
			}
			if event.Type == evdev.KeyEnter {
				if b := line.flush(); b != "" {
					k.window.add(b)
				}
				continue
			}
			line.add(evdev.KeyType(event.Code).String())
		}
	}
}

// lineBuffer accumulates key names into a barcode.
type lineBuffer struct {
	sb strings.Builder
}

func (l *lineBuffer) add(key string) {
	// Only single-character key names are part of a barcode.
	if len(key) == 1 {
		l.sb.WriteString(key)
	}
}

func (l *lineBuffer) flush() string {
	s := l.sb.String()
	l.sb.Reset()
	return s
}

func (k *Keyboard) Close() error {
	if k.device == nil {
		return nil
	}
	k.cancel()
	return k.device.Close()
}
