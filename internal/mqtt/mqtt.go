package mqtt

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"thermbridge/internal/idgen"
)

const connectTimeout = 10 * time.Second

// Publisher is the minimal broker surface the state publisher needs. It
// enables unit testing without a live broker.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool) error
	Close()
}

// Client wraps a paho connection.
type Client struct {
	cli    mqtt.Client
	logger *slog.Logger
}

var _ Publisher = (*Client)(nil)

// Connect dials the broker. brokerURL accepts mqtt://, tcp://, ssl://,
// ws:// and wss:// schemes, with credentials embedded in the URL.
func Connect(brokerURL, clientID string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing broker url: %w", err)
	}

	server := u.Host
	switch u.Scheme {
	case "mqtt", "tcp":
		server = "tcp://" + server
	case "ssl", "tls":
		server = "ssl://" + server
	case "ws", "wss":
		server = u.Scheme + "://" + server + u.Path
	default:
		return nil, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}

	// A fixed client id would kick the previous connection off the broker
	// when two instances run against one config.
	if clientID == "" {
		clientID = "thermbridge-" + idgen.New()[:8]
	}

	log := logger.With("component", "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(server)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.OnConnect = func(c mqtt.Client) {
		log.Info("Broker connected", "broker", u.Host)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Error("Broker connection lost", "error", err)
	}
	if u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}
	if u.Scheme == "ssl" || u.Scheme == "tls" || u.Scheme == "wss" {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	cli := mqtt.NewClient(opts)
	if t := cli.Connect(); t.Wait() && t.Error() != nil {
		return nil, fmt.Errorf("connecting to broker: %w", t.Error())
	}

	return &Client{cli: cli, logger: log}, nil
}

// Publish sends a message at QoS 0.
func (c *Client) Publish(topic string, payload []byte, retain bool) error {
	t := c.cli.Publish(topic, 0, retain, payload)
	if t.Wait() && t.Error() != nil {
		return t.Error()
	}
	return nil
}

// Close flushes in-flight messages and disconnects.
func (c *Client) Close() {
	c.cli.Disconnect(250)
}
