package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultCircItPort = "9201"
	// circItNonAdminPort is the URL ACL reservation CircIt listens on when
	// it runs without administrator rights.
	circItNonAdminPort = "80/Temporary_Listen_Addresses"
)

// CircIt talks to the Tech Logic CircIt JSON service.
type CircIt struct {
	cfg      CircItConfig
	interval time.Duration
	client   *http.Client

	once sync.Once
	base string
}

type circItAlive struct {
	Status     bool `json:"status"`
	StatusCode int  `json:"statuscode"`
}

type circItItems struct {
	Status bool  `json:"status"`
	Items  []Tag `json:"items"`
}

func NewCircIt(cfg CircItConfig, interval, timeout time.Duration) *CircIt {
	return &CircIt{cfg: cfg, interval: interval, client: &http.Client{Timeout: timeout}}
}

func (c *CircIt) Name() string                { return "circit" }
func (c *CircIt) PollInterval() time.Duration { return c.interval }
func (c *CircIt) Close() error                { return nil }

// Init fixes the base URL. Later calls keep the first result.
func (c *CircIt) Init() error {
	c.once.Do(func() {
		port := c.cfg.Port
		switch {
		case c.cfg.NonAdministrative:
			port = circItNonAdminPort
		case port == "":
			port = DefaultCircItPort
		}
		c.base = "http://localhost:" + port
	})
	return nil
}

// BaseURL returns the endpoint computed by Init.
func (c *CircIt) BaseURL() string {
	c.Init()
	return c.base
}

func (c *CircIt) Probe(ctx context.Context) (bool, error) {
	body, err := get(ctx, c.client, c.BaseURL()+"/alive")
	if err != nil {
		return false, err
	}
	var alive circItAlive
	if err := json.Unmarshal(body, &alive); err != nil {
		return false, fmt.Errorf("decode alive: %w", err)
	}
	return alive.Status && alive.StatusCode == 0, nil
}

func (c *CircIt) ReadTags(ctx context.Context) (Snapshot, error) {
	body, err := get(ctx, c.client, c.BaseURL()+"/getitems")
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	var items circItItems
	if err := json.Unmarshal(body, &items); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decode getitems: %v", ErrUnreachable, err)
	}
	if !items.Status {
		return Snapshot{}, fmt.Errorf("%w: getitems reported failure", ErrUnreachable)
	}
	if items.Items == nil {
		items.Items = []Tag{}
	}
	return Snapshot{Items: items.Items}, nil
}

func (c *CircIt) SetSecurity(ctx context.Context, barcode string, secure bool) error {
	u := c.BaseURL() + "/setsecurity/" + url.PathEscape(barcode) + "/" + strconv.FormatBool(secure)
	if _, err := get(ctx, c.client, u); err != nil {
		return fmt.Errorf("%w: %v", ErrSecurityToggle, err)
	}
	return nil
}
