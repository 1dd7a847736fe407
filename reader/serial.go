package reader

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

// Serial is a pad on a serial line speaking the 9-byte frame protocol
// [0x02][0x09][data...][checksum][0x03]. Each frame carries one tag number;
// the pad snapshot is every tag seen within the presence window.
type Serial struct {
	cfg      SerialConfig
	interval time.Duration
	log      *zap.Logger

	once    sync.Once
	initErr error
	port    *serial.Port
	window  *presence
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSerial(cfg SerialConfig, interval time.Duration, log *zap.Logger) *Serial {
	return &Serial{cfg: cfg, interval: interval, log: log.Named("serial"), window: newPresence(cfg.PresenceTTL)}
}

func (s *Serial) Name() string                { return "serial" }
func (s *Serial) PollInterval() time.Duration { return s.interval }

// Init opens the port and starts the frame reader.
func (s *Serial) Init() error {
	s.once.Do(func() {
		if s.cfg.Device == "" {
			s.initErr = fmt.Errorf("serial reader: no device configured")
			return
		}
		baud := s.cfg.Baud
		if baud == 0 {
			baud = 115200
		}
		port, err := serial.OpenPort(&serial.Config{Name: s.cfg.Device, Baud: baud, ReadTimeout: time.Second})
		if err != nil {
			s.initErr = fmt.Errorf("open serial %s: %w", s.cfg.Device, err)
			return
		}
		s.port = port

		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.readLoop(ctx)
	})
	return s.initErr
}

func (s *Serial) Probe(ctx context.Context) (bool, error) {
	if err := s.Init(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Serial) ReadTags(ctx context.Context) (Snapshot, error) {
	if s.port == nil {
		return Snapshot{}, fmt.Errorf("%w: serial port not open", ErrUnreachable)
	}
	return s.window.snapshot(), nil
}

func (s *Serial) SetSecurity(ctx context.Context, barcode string, secure bool) error {
	return fmt.Errorf("%w: %w", ErrSecurityToggle, ErrUnsupported)
}

func (s *Serial) readLoop(ctx context.Context) {
	defer close(s.done)
	buf := make([]byte, 9)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := s.port.Read(buf)
		if err != nil || n != len(buf) {
			// Timeouts and partial frames are normal between tags.
			time.Sleep(100 * time.Millisecond)
			continue
		}
		tag, ok := decodeFrame(buf)
		if !ok {
			s.log.Debug("dropped bad frame", zap.Binary("frame", buf))
			continue
		}
		s.window.add(strconv.FormatUint(tag, 10))
	}
}

// decodeFrame validates one frame and returns its tag number.
func decodeFrame(buf []byte) (uint64, bool) {
	if len(buf) != 9 {
		return 0, false
	}
	if !bytes.Equal(buf[0:2], []byte{0x02, 0x09}) || buf[8] != 0x03 {
		return 0, false
	}

	data := buf[1:7]
	xor := data[0]
	for _, b := range data[1:] {
		xor ^= b
	}
	if xor != buf[7] {
		return 0, false
	}
	return uint64(data[2])<<24 | uint64(data[3])<<16 | uint64(data[4])<<8 | uint64(data[5]), true
}

func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	s.cancel()
	err := s.port.Close()
	<-s.done
	return err
}
