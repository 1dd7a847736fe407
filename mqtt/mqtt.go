// Package mqtt wraps the paho client for the host bridge and status
// topics. With no broker configured the client is disabled: subscribing is
// a no-op and publishing fails with ErrDisabled.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// ErrDisabled is returned by Publish when no broker is configured.
	ErrDisabled = errors.New("mqtt disabled")
	// ErrNotConnected is returned by Publish while the broker is unreachable.
	ErrNotConnected = errors.New("mqtt not connected")
	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("mqtt publish timed out")
)

const (
	defaultPublishTimeout = 5 * time.Second
	defaultQoS            = 1
)

// Config holds MQTT connection settings.
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`

	// QoS for published messages. Zero selects at-least-once.
	QoS            byte          `yaml:"qos"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// Handlers holds callbacks for connection and message events.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func()
	OnMessage    func(topic string, payload []byte)
}

// Broker returns the broker URL for cfg, or "" when MQTT is disabled.
func (cfg Config) Broker() string {
	if cfg.Host == "" {
		return ""
	}
	scheme, port := "tcp", 1883
	if cfg.secure() {
		scheme, port = "ssl", 8883
	}
	if cfg.Port != 0 {
		port = cfg.Port
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, port)
}

func (cfg Config) secure() bool {
	return cfg.CACert != "" || cfg.ClientCert != ""
}

// Client is the station's connection to the broker.
type Client struct {
	client   paho.Client
	log      *zap.Logger
	handlers Handlers
	qos      byte
	timeout  time.Duration
}

// New builds a client. It does not connect.
func New(cfg Config, clientID string, handlers Handlers, log *zap.Logger) (*Client, error) {
	c := &Client{
		log:      log.Named("mqtt"),
		handlers: handlers,
		qos:      cfg.QoS,
		timeout:  cfg.PublishTimeout,
	}
	if c.qos == 0 {
		c.qos = defaultQoS
	}
	if c.timeout <= 0 {
		c.timeout = defaultPublishTimeout
	}

	broker := cfg.Broker()
	if broker == "" {
		c.log.Info("mqtt disabled, no host configured")
		return c, nil
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.Warn("connection lost", zap.Error(err))
			if c.handlers.OnDisconnect != nil {
				c.handlers.OnDisconnect()
			}
		}).
		SetOnConnectHandler(func(paho.Client) {
			c.log.Info("connected", zap.String("broker", broker))
			if c.handlers.OnConnect != nil {
				c.handlers.OnConnect()
			}
		}).
		SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
			if c.handlers.OnMessage != nil {
				c.handlers.OnMessage(msg.Topic(), msg.Payload())
			}
		})

	if cfg.secure() {
		tlsConfig, err := loadTLS(cfg)
		if err != nil {
			return nil, fmt.Errorf("mqtt tls: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	paho.ERROR = zap.NewStdLog(c.log.Named("paho"))
	paho.CRITICAL = paho.ERROR
	if warn, err := zap.NewStdLogAt(c.log.Named("paho"), zapcore.WarnLevel); err == nil {
		paho.WARN = warn
	}

	c.client = paho.NewClient(opts)
	return c, nil
}

func loadTLS(cfg Config) (*tls.Config, error) {
	out := &tls.Config{}
	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CACert)
		}
		out.RootCAs = pool
	}
	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, err
		}
		out.Certificates = []tls.Certificate{cert}
	}
	return out, nil
}

// IsEnabled reports whether a broker is configured.
func (c *Client) IsEnabled() bool { return c.client != nil }

// Connect starts connecting. A disabled client runs OnConnect at once so
// local state is still announced.
func (c *Client) Connect() error {
	if c.client == nil {
		if c.handlers.OnConnect != nil {
			c.handlers.OnConnect()
		}
		return nil
	}
	tok := c.client.Connect()
	tok.Wait()
	return tok.Error()
}

func (c *Client) Disconnect() {
	if c.client != nil {
		c.client.Disconnect(250)
	}
}

// Subscribe subscribes to topic. It is a no-op when disabled.
func (c *Client) Subscribe(topic string) error {
	if c.client == nil {
		return nil
	}
	return c.wait(c.client.Subscribe(topic, c.qos, nil), "subscribe "+topic)
}

// Publish sends payload and waits for the broker to take it. It fails
// rather than queueing when the broker is not reachable, so callers know
// the message was not delivered.
func (c *Client) Publish(topic, payload string) error {
	if c.client == nil {
		return ErrDisabled
	}
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("publish %s: %w", topic, ErrNotConnected)
	}
	return c.wait(c.client.Publish(topic, c.qos, false, payload), "publish "+topic)
}

func (c *Client) wait(tok paho.Token, what string) error {
	if !tok.WaitTimeout(c.timeout) {
		return fmt.Errorf("%s: %w", what, ErrTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
