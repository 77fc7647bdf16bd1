// Package notify forwards escalations to RabbitMQ so operators outside the
// process are told about work that needs a human.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"goldtier/pkg/protocol"
)

// DefaultExchange receives escalation messages.
const DefaultExchange = "goldtier.escalations"

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Config controls the publisher.
type Config struct {
	Exchange       string
	Buffer         int           // default 256
	PublishTimeout time.Duration // default 5s
	Logger         *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Exchange == "" {
		c.Exchange = DefaultExchange
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Publisher is a Recorder that publishes item_escalated events as JSON
// protocol.Escalation messages. Other events are ignored. Publishing happens
// on a background goroutine; a full buffer drops the message.
type Publisher struct {
	cfg  Config
	ch   Channel
	conn io.Closer

	mu     sync.RWMutex
	closed bool
	queue  chan protocol.Escalation
	done   chan struct{}

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// Dial connects to url, declares the durable fanout exchange and returns a
// running publisher that owns the connection.
func Dial(url string, cfg Config) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := New(ch, cfg)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// New declares the exchange on ch and starts publishing.
func New(ch Channel, cfg Config) (*Publisher, error) {
	cfg = cfg.withDefaults()
	if err := ch.ExchangeDeclare(cfg.Exchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	p := &Publisher{
		cfg:   cfg,
		ch:    ch,
		queue: make(chan protocol.Escalation, cfg.Buffer),
		done:  make(chan struct{}),
	}
	go p.loop()
	return p, nil
}

// Record queues the escalation carried by an item_escalated event.
func (p *Publisher) Record(ev protocol.Event) {
	if ev.Kind != protocol.EventItemEscalated || ev.Escalation == nil {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return
	}
	select {
	case p.queue <- *ev.Escalation:
	default:
		p.dropped.Add(1)
	}
}

// Published, Dropped and Failed report delivery counters.
func (p *Publisher) Published() int64 { return p.published.Load() }
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }
func (p *Publisher) Failed() int64 { return p.failed.Load() }

// Close flushes queued escalations and closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (p *Publisher) loop() {
	defer close(p.done)
	for esc := range p.queue {
		if err := p.publish(esc); err != nil {
			p.failed.Add(1)
			p.cfg.Logger.Error("publish escalation", "item", esc.ItemID, "type", esc.Type, "error", err)
			continue
		}
		p.published.Add(1)
	}
}

func (p *Publisher) publish(esc protocol.Escalation) error {
	body, err := json.Marshal(esc)
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
	defer cancel()
	return p.ch.PublishWithContext(ctx,
		p.cfg.Exchange,   // exchange
		string(esc.Role), // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    esc.At,
			Type:         string(esc.Type),
			MessageId:    esc.ItemID,
			Body:         body,
		})
}
