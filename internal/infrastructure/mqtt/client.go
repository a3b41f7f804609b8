package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/surplusheater/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	keepAlive      = 60 * time.Second

	// disconnectQuiesce is in milliseconds, as paho expects.
	disconnectQuiesce = 500
)

// Status values on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusMessage is the retained document on the status topic.
type StatusMessage struct {
	Status    string    `json:"status"`
	Site      string    `json:"site"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client publishes the regulator's status, state and events for one site.
// It never subscribes.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	topics Topics
	id     string
	qos    byte

	mu           sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
}

// Connect connects to the broker and announces the site as online.
//
// The broker is told to publish an offline status (LWT) should the process
// vanish without Close. Reconnects are automatic and re-announce online.
func Connect(cfg config.MQTTConfig, topics Topics) (*Client, error) {
	c := &Client{
		topics: topics,
		id:     cfg.Broker.ClientID,
		qos:    byte(cfg.QoS), // #nosec G115 -- validated to 0..2 by config
	}

	opts := c.clientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: %s: no answer after %v", ErrConnectionFailed, brokerURL(cfg), connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(cfg), err)
	}
	return c, nil
}

// clientOptions builds the paho options, LWT included.
func (c *Client) clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg)).
		SetClientID(c.id).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetBinaryWill(c.topics.Status(), c.statusPayload(StatusOffline, "unexpected_disconnect"), 1, true)
	return opts
}

func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

func (c *Client) statusPayload(status, reason string) []byte {
	payload, _ := json.Marshal(StatusMessage{ // plain struct, cannot fail
		Status:    status,
		Site:      c.topics.Site,
		ClientID:  c.id,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	return payload
}

func (c *Client) handleConnect() {
	c.client.Publish(c.topics.Status(), c.qos, true, c.statusPayload(StatusOnline, ""))

	c.mu.RLock()
	callback := c.onConnect
	c.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// PublishState replaces the retained state document of the site.
func (c *Client) PublishState(payload []byte) error {
	return c.publish(c.topics.State(), payload, true)
}

// PublishEvent publishes a non-retained transition event of the given kind.
func (c *Client) PublishEvent(kind string, payload []byte) error {
	return c.publish(c.topics.Event(kind), payload, false)
}

func (c *Client) publish(topic string, payload []byte, retained bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("%w: %s", ErrNotConnected, topic)
	}

	token := c.client.Publish(topic, c.qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %s: no acknowledgement after %v", ErrPublishFailed, topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// Close announces a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(c.topics.Status(), c.qos, true, c.statusPayload(StatusOffline, "shutdown"))
		token.WaitTimeout(publishTimeout)
	}
	c.client.Disconnect(disconnectQuiesce)
	return nil
}

// IsConnected reports whether the broker connection is currently up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// Topics returns the topic builder of the client's site.
func (c *Client) Topics() Topics {
	return c.topics
}

// SetOnConnect sets a callback run after the initial connect and every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}
