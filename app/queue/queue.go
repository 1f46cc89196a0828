package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultMaxReceives is how often a message is delivered before it is
	// dropped.
	DefaultMaxReceives = 3
	maxRedeliveryDelay = 30 * time.Second
)

// Task is the unit of work carried by a fetch message.
type Task struct {
	FeedID  string `json:"feed_id"`
	FeedURL string `json:"feed_url"`
}

// Message is one delivery of a task. Consumers must either Ack after
// successful processing or Nack to request redelivery; a message nacked
// more than the receive limit is dropped.
type Message struct {
	Body         []byte
	ReceiveCount int
}

// Task decodes the message body.
func (m *Message) Task() (Task, error) {
	var task Task
	if err := json.Unmarshal(m.Body, &task); err != nil {
		return Task{}, fmt.Errorf("failed to decode task message: %w", err)
	}
	return task, nil
}

// Queue delivers fetch tasks at least once. Publishing is fire-and-forget;
// delivery tracking lives with the consumer through Ack and Nack.
type Queue struct {
	messages    chan *Message
	maxReceives int
	ctx         context.Context
	cancel      context.CancelFunc
}

func New(size int) *Queue {
	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		messages:    make(chan *Message, size),
		maxReceives: DefaultMaxReceives,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Publish enqueues one task. Returns an error when the queue is full or
// closed; the caller decides whether that matters.
func (q *Queue) Publish(task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task message: %w", err)
	}

	select {
	case q.messages <- &Message{Body: body}:
		return nil
	case <-q.ctx.Done():
		return q.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Receive blocks until a message is available or the context ends.
func (q *Queue) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg := <-q.messages:
		msg.ReceiveCount++
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.ctx.Done():
		return nil, q.ctx.Err()
	}
}

// Ack marks a delivery as fully processed. With in-process delivery the
// message already left the channel, so acknowledgment needs no bookkeeping;
// the method exists so consumers state their intent explicitly and the
// processing contract matches an external broker's.
func (q *Queue) Ack(msg *Message) {}

// Nack schedules a redelivery with capped exponential backoff. Messages
// that exhaust their receive budget are dropped with an error log.
func (q *Queue) Nack(msg *Message) {
	if msg.ReceiveCount >= q.maxReceives {
		slog.Error("Dropping task after maximum receives", "receive_count", msg.ReceiveCount, "body", string(msg.Body))
		return
	}

	delay := min(time.Duration(1<<uint(msg.ReceiveCount-1))*time.Second, maxRedeliveryDelay)

	go func() {
		select {
		case <-time.After(delay):
		case <-q.ctx.Done():
			return
		}

		select {
		case q.messages <- msg:
		case <-q.ctx.Done():
		default:
			slog.Error("Failed to redeliver task, queue is full", "body", string(msg.Body))
		}
	}()
}

// Close stops delivery. Pending redeliveries are abandoned.
func (q *Queue) Close() {
	q.cancel()
}
