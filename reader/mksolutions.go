package reader

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const DefaultMKSolutionsURL = "http://127.0.0.1:4039/mkStaffStationAPI"

// MKSolutions talks to the MK Solutions staff station XML API.
type MKSolutions struct {
	base     string
	interval time.Duration
	client   *http.Client
}

type mkItems struct {
	Items []struct {
		Barcode  string `xml:"barcode"`
		IsSecure string `xml:"is_secure"`
	} `xml:"item"`
}

type mkSecurity struct {
	XMLName  xml.Name `xml:"rfid"`
	Barcode  string   `xml:"barcode"`
	IsSecure bool     `xml:"is_secure"`
}

// NewMKSolutions creates the vendor. An empty base uses DefaultMKSolutionsURL.
func NewMKSolutions(base string, interval, timeout time.Duration) *MKSolutions {
	if base == "" {
		base = DefaultMKSolutionsURL
	}
	return &MKSolutions{
		base:     strings.TrimRight(base, "/"),
		interval: interval,
		client:   &http.Client{Timeout: timeout},
	}
}

func (m *MKSolutions) Name() string                { return "mksolutions" }
func (m *MKSolutions) Init() error                 { return nil }
func (m *MKSolutions) PollInterval() time.Duration { return m.interval }
func (m *MKSolutions) Close() error                { return nil }

// Probe fetches the item list; any well-formed XML answer means alive.
func (m *MKSolutions) Probe(ctx context.Context) (bool, error) {
	body, err := get(ctx, m.client, m.base+"/getItems")
	if err != nil {
		return false, err
	}
	var items mkItems
	if err := xml.Unmarshal(body, &items); err != nil {
		return false, fmt.Errorf("decode getItems: %w", err)
	}
	return true, nil
}

func (m *MKSolutions) ReadTags(ctx context.Context) (Snapshot, error) {
	body, err := get(ctx, m.client, m.base+"/getItems")
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	var items mkItems
	if err := xml.Unmarshal(body, &items); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decode getItems: %v", ErrUnreachable, err)
	}

	snap := Snapshot{Items: make([]Tag, 0, len(items.Items))}
	for _, it := range items.Items {
		snap.Items = append(snap.Items, Tag{
			Barcode:  strings.TrimSpace(it.Barcode),
			Security: strings.EqualFold(strings.TrimSpace(it.IsSecure), "true"),
		})
	}
	return snap, nil
}

func (m *MKSolutions) SetSecurity(ctx context.Context, barcode string, secure bool) error {
	payload, err := xml.Marshal(mkSecurity{Barcode: barcode, IsSecure: secure})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSecurityToggle, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, m.base+"/setSecurity", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSecurityToggle, err)
	}
	req.Header.Set("Content-Type", "text/xml")
	if _, err := do(m.client, req); err != nil {
		return fmt.Errorf("%w: %s=%s: %v", ErrSecurityToggle, barcode, strconv.FormatBool(secure), err)
	}
	return nil
}
