package hass

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/evcc-io/evcc/util"
)

const (
	qos     = 1
	timeout = 10 * time.Second

	online  = "online"
	offline = "offline"
)

// Handler receives messages of a subscription
type Handler func(topic string, payload []byte)

// ClientAPI is the broker surface the publisher needs
type ClientAPI interface {
	Publish(topic string, payload []byte, retain bool) error
	Subscribe(topic string, h Handler) error
	Unsubscribe(topic string) error
}

// Client is a paho client that announces itself on a status topic. The broker
// publishes the offline status when the connection is lost.
type Client struct {
	log *util.Logger
	cli paho.Client
}

// NewClient connects to broker. Credentials are taken from the broker url.
// onConnect runs after every (re)connect.
func NewClient(log *util.Logger, broker, clientID, statusTopic string, onConnect func()) (*Client, error) {
	u, err := url.Parse(broker)
	if err != nil {
		return nil, fmt.Errorf("invalid broker: %w", err)
	}

	server := u.Host
	switch u.Scheme {
	case "mqtt", "tcp":
		server = "tcp://" + server
	case "ssl", "tls", "mqtts":
		server = "ssl://" + server
	case "ws", "wss":
		server = u.Scheme + "://" + server + u.Path
	default:
		return nil, fmt.Errorf("invalid broker scheme: %s", u.Scheme)
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(server)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)
	opts.SetConnectTimeout(timeout)
	opts.SetWill(statusTopic, offline, qos, true)

	if u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}

	opts.SetOnConnectHandler(func(paho.Client) {
		log.INFO.Printf("connected to %s", server)
		if onConnect != nil {
			go onConnect()
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.ERROR.Printf("connection lost: %v", err)
	})

	c := &Client{
		log: log,
		cli: paho.NewClient(opts),
	}

	if err := c.wait(c.cli.Connect()); err != nil {
		return nil, fmt.Errorf("connect %s: %w", server, err)
	}

	return c, nil
}

func (c *Client) wait(t paho.Token) error {
	if !t.WaitTimeout(timeout) {
		return errors.New("timeout")
	}
	return t.Error()
}

func (c *Client) Publish(topic string, payload []byte, retain bool) error {
	c.log.TRACE.Printf("send %s: '%s'", topic, payload)
	return c.wait(c.cli.Publish(topic, qos, retain, payload))
}

func (c *Client) Subscribe(topic string, h Handler) error {
	err := c.wait(c.cli.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		c.log.TRACE.Printf("recv %s: '%s'", msg.Topic(), msg.Payload())
		h(msg.Topic(), msg.Payload())
	}))
	if err == nil {
		c.log.DEBUG.Printf("subscribed %s", topic)
	}
	return err
}

func (c *Client) Unsubscribe(topic string) error {
	return c.wait(c.cli.Unsubscribe(topic))
}

// Close disconnects after in-flight messages were delivered
func (c *Client) Close() {
	c.cli.Disconnect(uint(timeout / time.Millisecond))
}
