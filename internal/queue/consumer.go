package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"
)

// BookingLogFile is the file the consumer appends to inside its log dir.
const BookingLogFile = "booking.log"

// Consumer listens on the event queues and appends one line per event to
// <logDir>/booking.log.
type Consumer struct {
    url    string
    logDir string
    logger *log.Logger
    mu     sync.Mutex // serialises appends
}

// NewConsumer returns a consumer for the broker at url.
func NewConsumer(url, logDir string, logger *log.Logger) *Consumer {
    if logDir == "" {
        logDir = "logs"
    }
    if logger == nil {
        logger = log.New("booking-consumer")
    }
    return &Consumer{url: url, logDir: logDir, logger: logger}
}

// Run connects to RabbitMQ, declares the event queues and consumes them
// until ctx is cancelled.  Lost connections are redialled with exponential
// backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.logger.Warnf("failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.logger.Warnf("consume loop ended: %v; reconnecting", err)
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

type delivery struct {
    queue string
    amqp.Delivery
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.logger.Warnf("set QoS failed: %v", err)
    }
    if err := declareQueues(ch); err != nil {
        return err
    }

    merged := make(chan delivery)
    var wg sync.WaitGroup
    for _, q := range Queues {
        msgs, err := ch.Consume(q, "", false, false, false, false, nil)
        if err != nil {
            return fmt.Errorf("consume %s: %w", q, err)
        }
        wg.Add(1)
        go func(q string, msgs <-chan amqp.Delivery) {
            defer wg.Done()
            for d := range msgs {
                select {
                case merged <- delivery{queue: q, Delivery: d}:
                case <-ctx.Done():
                    return
                }
            }
        }(q, msgs)
    }
    go func() {
        wg.Wait()
        close(merged)
    }()

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-merged:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.handleMessage(d.queue, d.Body); err != nil {
                c.logger.Errorf("handle %s message failed: %v", d.queue, err)
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (c *Consumer) handleMessage(queue string, body []byte) error {
    var line string
    switch queue {
    case QueueHoldExpired:
        var ev HoldExpiredEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        line = fmt.Sprintf("[%s] Hold expired | hold_id=%s | user_id=%d | showtime_id=%d | seats=%s\n",
            ev.ExpiresAt.UTC().Format(time.RFC3339), ev.HoldID, ev.UserID, ev.ShowtimeID, seatList(ev.SeatIDs))
    case QueueBookingConfirmed, QueueBookingCancelled:
        var ev BookingEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        verb := "confirmed"
        if queue == QueueBookingCancelled {
            verb = "cancelled"
        }
        line = fmt.Sprintf("[%s] Booking %s | booking_id=%d | hold_id=%s | user_id=%d | showtime_id=%d | total=%d cents | payment=%s | seats=%s\n",
            ev.OccurredAt.UTC().Format(time.RFC3339), verb, ev.BookingID, ev.HoldID, ev.UserID, ev.ShowtimeID,
            ev.TotalAmountCents, ev.PaymentStatus, seatList(ev.SeatIDs))
    default:
        return fmt.Errorf("unknown queue %q", queue)
    }
    return c.appendLine(line)
}

func (c *Consumer) appendLine(line string) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    if err := os.MkdirAll(c.logDir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", c.logDir, err)
    }
    f, err := os.OpenFile(filepath.Join(c.logDir, BookingLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func seatList(ids []uint64) string {
    parts := make([]string, len(ids))
    for i, id := range ids {
        parts[i] = strconv.FormatUint(id, 10)
    }
    return "[" + strings.Join(parts, ",") + "]"
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-t.C:
        return true
    case <-ctx.Done():
        return false
    }
}
