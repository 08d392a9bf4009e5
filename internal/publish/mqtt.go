// Package publish forwards pen events and session state to an MQTT broker.
package publish

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// ClientAPI is the broker surface the publisher needs.
type ClientAPI interface {
	PublishWith(topic string, payload []byte, retain bool) error
	Close()
}

// ClientOptions configure Dial.
type ClientOptions struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// Will is published retained by the broker if the client drops without Close.
	WillTopic   string
	WillPayload []byte

	Logger *slog.Logger
}

// Client is a paho-backed ClientAPI.
type Client struct {
	cli     mqtt.Client
	timeout time.Duration
}

var _ ClientAPI = (*Client)(nil)

// Dial connects to the broker. Accepted schemes are mqtt, tcp, ssl, tls, ws and wss.
func Dial(o ClientOptions) (*Client, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(o.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("mqtt: invalid broker url: %w", err)
	}

	opts := mqtt.NewClientOptions()
	server := u.Host
	switch u.Scheme {
	case "mqtt", "tcp":
		server = "tcp://" + server
	case "ssl", "tls":
		server = "ssl://" + server
	case "ws", "wss":
		server = u.Scheme + "://" + server + u.Path
	default:
		return nil, fmt.Errorf("mqtt: unsupported scheme %q", u.Scheme)
	}
	opts.AddBroker(server)

	clientID := o.ClientID
	if clientID == "" {
		clientID = "spenremote-" + uuid.NewString()[:8]
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(mqtt.Client) { logger.Info("mqtt connected", "broker", u.Host) }
	opts.OnConnectionLost = func(_ mqtt.Client, err error) { logger.Error("mqtt connection lost", "error", err) }

	username, password := o.Username, o.Password
	if u.User != nil && username == "" {
		username = u.User.Username()
		password, _ = u.User.Password()
	}
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}
	if u.Scheme == "ssl" || u.Scheme == "tls" || u.Scheme == "wss" {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if o.WillTopic != "" {
		opts.SetBinaryWill(o.WillTopic, o.WillPayload, 1, true)
	}

	cli := mqtt.NewClient(opts)
	if t := cli.Connect(); t.Wait() && t.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", u.Host, t.Error())
	}
	return &Client{cli: cli, timeout: 5 * time.Second}, nil
}

// PublishWith publishes at QoS 0 and waits for the send to complete.
func (c *Client) PublishWith(topic string, payload []byte, retain bool) error {
	t := c.cli.Publish(topic, 0, retain, payload)
	if !t.WaitTimeout(c.timeout) {
		return fmt.Errorf("mqtt: publish %s timed out", topic)
	}
	return t.Error()
}

// Close disconnects, allowing in-flight messages a short grace period.
func (c *Client) Close() {
	c.cli.Disconnect(250)
}
