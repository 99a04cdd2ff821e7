package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-accounts"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange   = "accounts.notifications"
	DefaultRoutingKey = "email.send"
)

// Channel is the subset of *amqp.Channel used to publish
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// ChannelOpener opens a fresh channel after a failure
type ChannelOpener func() (Channel, error)

// AMQPNotifier publishes notifications to a durable topic exchange for an
// email worker to deliver.
type AMQPNotifier struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	channel    Channel
	open       ChannelOpener
	exchange   string
	routingKey string
	declared   bool
	logger     accounts.Logger
	now        func() time.Time
}

var _ accounts.Notifier = (*AMQPNotifier)(nil)

type AMQPOption func(*AMQPNotifier)

func WithExchange(exchange, routingKey string) AMQPOption {
	return func(n *AMQPNotifier) {
		if exchange != "" {
			n.exchange = exchange
		}
		if routingKey != "" {
			n.routingKey = routingKey
		}
	}
}

func WithAMQPLogger(logger accounts.Logger) AMQPOption {
	return func(n *AMQPNotifier) {
		n.logger = logger
	}
}

func WithChannelOpener(open ChannelOpener) AMQPOption {
	return func(n *AMQPNotifier) {
		n.open = open
	}
}

// NewAMQPNotifier wraps an open channel
func NewAMQPNotifier(channel Channel, opts ...AMQPOption) *AMQPNotifier {
	n := &AMQPNotifier{
		channel:    channel,
		exchange:   DefaultExchange,
		routingKey: DefaultRoutingKey,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// DialAMQP connects to the broker and returns a notifier that reopens its
// channel on the same connection when a publish fails.
func DialAMQP(rawURL string, opts ...AMQPOption) (*AMQPNotifier, error) {
	cleanURL, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	opener := func() (Channel, error) {
		return conn.Channel()
	}

	n := NewAMQPNotifier(ch, append([]AMQPOption{WithChannelOpener(opener)}, opts...)...)
	n.conn = conn
	return n, nil
}

func (n *AMQPNotifier) Send(ctx context.Context, to, templateID string, variables map[string]any) error {
	body, err := json.Marshal(NewMessage(to, templateID, variables))
	if err != nil {
		return accounts.NewDeliveryError(err, to)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.publish(ctx, body); err != nil {
		n.log("publish failed, reopening channel", "exchange", n.exchange, "error", err)
		if n.open == nil {
			return accounts.NewDeliveryError(err, to)
		}

		ch, chErr := n.open()
		if chErr != nil {
			return accounts.NewDeliveryError(chErr, to)
		}
		if n.channel != nil {
			_ = n.channel.Close()
		}
		n.channel = ch
		n.declared = false

		if err := n.publish(ctx, body); err != nil {
			return accounts.NewDeliveryError(err, to)
		}
	}

	return nil
}

func (n *AMQPNotifier) publish(ctx context.Context, body []byte) error {
	if n.channel == nil {
		return errors.New("amqp channel is not open")
	}

	if !n.declared {
		if err := n.channel.ExchangeDeclare(n.exchange, "topic", true, false, false, false, nil); err != nil {
			return err
		}
		n.declared = true
	}

	return n.channel.PublishWithContext(ctx, n.exchange, n.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.now(),
		Body:         body,
	})
}

// Close closes the channel and the connection, if owned
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var err error
	if n.channel != nil {
		err = n.channel.Close()
		n.channel = nil
	}
	if n.conn != nil {
		if cerr := n.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
		n.conn = nil
	}
	return err
}

func (n *AMQPNotifier) log(msg string, args ...any) {
	if n.logger != nil {
		n.logger.Warn(msg, args...)
	}
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
