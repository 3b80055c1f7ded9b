package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/cinema-seat-coordinator/internal/model"
    "github.com/iliyamo/cinema-seat-coordinator/internal/reservation"
)

var _ reservation.EventSink = (*Publisher)(nil)

type outbound struct {
    queue string
    body  []byte
}

// Publisher is a reservation.EventSink that forwards events to RabbitMQ
// from a background worker.  Enqueueing never blocks: when the buffer is
// full the event is dropped and logged.
type Publisher struct {
    url    string
    logger *log.Logger
    out    chan outbound
    now    func() time.Time

    // send delivers one message; it is replaced in tests.
    send func(ctx context.Context, queue string, body []byte) error

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel

    stateMu sync.RWMutex
    closed  bool
    wg      sync.WaitGroup
}

// NewPublisher returns a publisher for the broker at url.  Call Start to
// run the worker and Close to drain it.
func NewPublisher(url string, buffer int, logger *log.Logger) *Publisher {
    if buffer <= 0 {
        buffer = 256
    }
    if logger == nil {
        logger = log.New("publisher")
    }
    p := &Publisher{url: url, logger: logger, out: make(chan outbound, buffer), now: time.Now}
    p.send = p.publishAMQP
    return p
}

// Start runs the delivery worker until Close is called.
func (p *Publisher) Start() {
    p.wg.Add(1)
    go func() {
        defer p.wg.Done()
        for msg := range p.out {
            ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
            if err := p.send(ctx, msg.queue, msg.body); err != nil {
                p.logger.Warnf("publish to %s failed: %v", msg.queue, err)
            }
            cancel()
        }
    }()
}

// Close stops accepting events, delivers what is buffered and closes the
// broker connection.
func (p *Publisher) Close() {
    p.stateMu.Lock()
    if !p.closed {
        p.closed = true
        close(p.out)
    }
    p.stateMu.Unlock()
    p.wg.Wait()
    p.mu.Lock()
    p.resetLocked()
    p.mu.Unlock()
}

func (p *Publisher) HoldExpired(_ context.Context, h model.Hold) {
    p.enqueue(QueueHoldExpired, holdExpiredEvent(h))
}

func (p *Publisher) BookingConfirmed(_ context.Context, b model.Booking) {
    p.enqueue(QueueBookingConfirmed, bookingEvent(b, p.now()))
}

func (p *Publisher) BookingCancelled(_ context.Context, b model.Booking) {
    p.enqueue(QueueBookingCancelled, bookingEvent(b, p.now()))
}

func (p *Publisher) enqueue(queue string, event any) {
    body, err := json.Marshal(event)
    if err != nil {
        p.logger.Errorf("marshal %s event: %v", queue, err)
        return
    }
    p.stateMu.RLock()
    defer p.stateMu.RUnlock()
    if p.closed {
        p.logger.Warnf("publisher closed, dropping %s event", queue)
        return
    }
    select {
    case p.out <- outbound{queue: queue, body: body}:
    default:
        p.logger.Warnf("event buffer full, dropping %s event", queue)
    }
}

// publishAMQP sends one persistent message through a lazily opened
// channel.  Any failure drops the connection so the next message redials.
func (p *Publisher) publishAMQP(ctx context.Context, queue string, body []byte) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.ch == nil || p.ch.IsClosed() {
        if err := p.connectLocked(); err != nil {
            return err
        }
    }
    err := p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    p.now().UTC(),
        Body:         body,
    })
    if err != nil {
        p.resetLocked()
        return err
    }
    return nil
}

func (p *Publisher) connectLocked() error {
    p.resetLocked()
    conn, err := amqp.Dial(p.url)
    if err != nil {
        return fmt.Errorf("dial broker: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return fmt.Errorf("open channel: %w", err)
    }
    if err := declareQueues(ch); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return err
    }
    p.conn, p.ch = conn, ch
    return nil
}

func (p *Publisher) resetLocked() {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}

// declareQueues makes sure every event queue exists.  Declaring is
// idempotent; queues are durable so messages survive broker restarts.
func declareQueues(ch *amqp.Channel) error {
    for _, q := range Queues {
        if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
            return fmt.Errorf("declare %s: %w", q, err)
        }
    }
    return nil
}
