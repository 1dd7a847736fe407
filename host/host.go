// Package host is the bridge to the circulation page the librarian is
// working in. The daemon never touches the page directly: it sends
// commands through a Host and receives Signals describing what happened.
package host

import (
	"context"
	"encoding/json"
	"fmt"

	"circrfid/action"
	"circrfid/queue"
)

// Host performs page actions on behalf of the workflow.
type Host interface {
	// SetField replaces the value of the input matching field.
	SetField(ctx context.Context, field, value string) error
	// Submit submits the form containing field, or clicks control if set.
	Submit(ctx context.Context, field, control string) error
	Alert(ctx context.Context, msg string) error
	// PromptContinue offers the librarian a "Continue processing RFID tags"
	// button which answers with a SignalContinue.
	PromptContinue(ctx context.Context) error
	ShowQueue(ctx context.Context, view queue.View) error
}

// SignalType names something the host page reported.
type SignalType string

const (
	SignalPage      SignalType = "page"
	SignalField     SignalType = "field"
	SignalContinue  SignalType = "continue"
	SignalDismiss   SignalType = "dismiss"
	SignalReset     SignalType = "reset"
	SignalHidden    SignalType = "hidden"
	SignalVisible   SignalType = "visible"
	SignalSwitch    SignalType = "switch"
	SignalRemove    SignalType = "remove"
	SignalProcessed SignalType = "processed"
)

// Signal is one event from the host page.
type Signal struct {
	Type SignalType `json:"type"`
	// Page is set for SignalPage.
	Page *action.Page `json:"page,omitempty"`
	// Mode is set for SignalSwitch.
	Mode string `json:"mode,omitempty"`
	// Field is the optional field override for SignalSwitch, or the field
	// that changed for SignalField.
	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`
	// Barcode is set for SignalRemove and SignalProcessed.
	Barcode string `json:"barcode,omitempty"`
}

// Validate checks that the signal carries what its type needs.
func (s Signal) Validate() error {
	switch s.Type {
	case SignalPage:
		if s.Page == nil {
			return fmt.Errorf("page signal without page")
		}
	case SignalField:
		if s.Field == "" {
			return fmt.Errorf("field signal without field")
		}
	case SignalSwitch:
		if _, err := action.ParseMode(s.Mode); err != nil {
			return err
		}
	case SignalRemove, SignalProcessed:
		if s.Barcode == "" {
			return fmt.Errorf("%s signal without barcode", s.Type)
		}
	case SignalContinue, SignalDismiss, SignalReset, SignalHidden, SignalVisible:
	default:
		return fmt.Errorf("unknown signal type %q", s.Type)
	}
	return nil
}

// DecodeSignal parses and validates a JSON signal.
func DecodeSignal(data []byte) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(data, &s); err != nil {
		return Signal{}, fmt.Errorf("decode signal: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}
