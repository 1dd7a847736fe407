package host

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"circrfid/queue"
)

// Publisher is the part of the MQTT client the bridge needs.
type Publisher interface {
	Publish(topic string, payload string) error
}

func CommandTopic(clientID string) string { return "circrfid/host/" + clientID + "/command" }
func SignalTopic(clientID string) string  { return "circrfid/host/" + clientID + "/signal" }
func QueueTopic(clientID string) string   { return "circrfid/status/" + clientID + "/queue" }
func PingTopic(clientID string) string    { return "circrfid/status/" + clientID + "/ping" }

// Command is the JSON payload sent to the page.
type Command struct {
	Op      string `json:"op"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Control string `json:"control,omitempty"`
	Message string `json:"message,omitempty"`
}

// MQTT is a Host that publishes commands for a page-side script and turns
// its messages back into Signals.
type MQTT struct {
	pub      Publisher
	clientID string
	log      *zap.Logger
	signals  chan Signal
}

func NewMQTT(pub Publisher, clientID string, log *zap.Logger) *MQTT {
	return &MQTT{
		pub:      pub,
		clientID: clientID,
		log:      log.Named("host"),
		signals:  make(chan Signal, 16),
	}
}

// Signals delivers decoded signals from the page.
func (m *MQTT) Signals() <-chan Signal { return m.signals }

// HandleMessage is the MQTT message callback. Only the signal topic is
// accepted; malformed payloads are logged and dropped.
func (m *MQTT) HandleMessage(topic string, payload []byte) {
	if topic != SignalTopic(m.clientID) {
		return
	}
	s, err := DecodeSignal(payload)
	if err != nil {
		m.log.Warn("bad signal", zap.Error(err), zap.ByteString("payload", payload))
		return
	}
	m.signals <- s
}

func (m *MQTT) SetField(ctx context.Context, field, value string) error {
	return m.send(Command{Op: "set_field", Field: field, Value: value})
}

func (m *MQTT) Submit(ctx context.Context, field, control string) error {
	return m.send(Command{Op: "submit", Field: field, Control: control})
}

func (m *MQTT) Alert(ctx context.Context, msg string) error {
	return m.send(Command{Op: "alert", Message: msg})
}

func (m *MQTT) PromptContinue(ctx context.Context) error {
	return m.send(Command{Op: "prompt_continue", Message: "Continue processing RFID tags"})
}

func (m *MQTT) ShowQueue(ctx context.Context, view queue.View) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode queue view: %w", err)
	}
	if err := m.pub.Publish(QueueTopic(m.clientID), string(data)); err != nil {
		return fmt.Errorf("show queue: %w", err)
	}
	return nil
}

func (m *MQTT) send(cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.Op, err)
	}
	m.log.Debug("host command", zap.String("op", cmd.Op), zap.String("field", cmd.Field))
	if err := m.pub.Publish(CommandTopic(m.clientID), string(data)); err != nil {
		return fmt.Errorf("%s: %w", cmd.Op, err)
	}
	return nil
}
