package host

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"circrfid/queue"
)

type published struct {
	topic   string
	payload string
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic, payload string) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic, payload})
	return nil
}

func TestDecodeSignal(t *testing.T) {
	s, err := DecodeSignal([]byte(`{"type":"page","page":{"url":"/circ/returns.pl","markers":["#barcode"],"fields":{"#barcode":""}}}`))
	require.NoError(t, err)
	assert.Equal(t, SignalPage, s.Type)
	require.NotNil(t, s.Page)
	assert.Equal(t, "/circ/returns.pl", s.Page.URL)
	assert.True(t, s.Page.HasField("#barcode"))

	s, err = DecodeSignal([]byte(`{"type":"switch","mode":"search","field":"#q"}`))
	require.NoError(t, err)
	assert.Equal(t, "search", s.Mode)

	bad := []string{
		`{"type":"page"}`,
		`{"type":"switch","mode":"nope"}`,
		`{"type":"remove"}`,
		`{"type":"field"}`,
		`{"type":"explode"}`,
		`not json`,
	}
	for _, b := range bad {
		_, err := DecodeSignal([]byte(b))
		assert.Error(t, err, b)
	}
}

func TestMQTTCommands(t *testing.T) {
	pub := &fakePublisher{}
	h := NewMQTT(pub, "desk1", zap.NewNop())
	ctx := context.Background()

	require.NoError(t, h.SetField(ctx, "#barcodelist", "A\r\nB\r\n"))
	require.NoError(t, h.Submit(ctx, "#barcodelist", ""))
	require.NoError(t, h.Alert(ctx, "hello"))
	require.NoError(t, h.PromptContinue(ctx))
	require.NoError(t, h.ShowQueue(ctx, queue.View{Mode: "checkin", Unprocessed: []string{"A"}, Processed: []string{}}))

	require.Len(t, pub.msgs, 5)
	for _, m := range pub.msgs[:4] {
		assert.Equal(t, "circrfid/host/desk1/command", m.topic)
	}

	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(pub.msgs[0].payload), &cmd))
	assert.Equal(t, Command{Op: "set_field", Field: "#barcodelist", Value: "A\r\nB\r\n"}, cmd)

	assert.Equal(t, "circrfid/status/desk1/queue", pub.msgs[4].topic)
	assert.JSONEq(t, `{"mode":"checkin","unprocessed":["A"],"processed":[]}`, pub.msgs[4].payload)
}

func TestMQTTCommandsOffline(t *testing.T) {
	offline := errors.New("broker unreachable")
	h := NewMQTT(&fakePublisher{err: offline}, "desk1", zap.NewNop())
	ctx := context.Background()

	assert.ErrorIs(t, h.SetField(ctx, "#barcode", "A"), offline)
	assert.ErrorIs(t, h.Submit(ctx, "#barcode", ""), offline)
	assert.ErrorIs(t, h.Alert(ctx, "hello"), offline)
	assert.ErrorIs(t, h.ShowQueue(ctx, queue.View{}), offline)
}

func TestMQTTHandleMessage(t *testing.T) {
	h := NewMQTT(&fakePublisher{}, "desk1", zap.NewNop())

	h.HandleMessage("circrfid/host/other/signal", []byte(`{"type":"continue"}`))
	h.HandleMessage(SignalTopic("desk1"), []byte(`garbage`))
	h.HandleMessage(SignalTopic("desk1"), []byte(`{"type":"processed","barcode":"A"}`))

	require.Len(t, h.signals, 1)
	s := <-h.Signals()
	assert.Equal(t, Signal{Type: SignalProcessed, Barcode: "A"}, s)
}
