package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	JobSubmittedKind string = "transcriber.events.job.submitted"
	JobCompletedKind string = "transcriber.events.job.completed"
	JobFailedKind    string = "transcriber.events.job.failed"
	defaultTopic     string = "transcriber.events"
	eventSource      string = "transcriber.api"
	closeTimeout            = 5 * time.Second
)

var ErrProducerClosed = errors.New("event producer is closed")

// Writer is the interface to be implemented by the underlying writer.
type Writer interface {
	Write(ctx context.Context, topic string, e cloudevents.Event) error
	Close(ctx context.Context) error
}

// EventProducer is a wrapper around a Writer with the buffer.
// Callers never wait for the writer, pending events are kept in the buffer.
type EventProducer struct {
	buffer *buffer
	notify chan struct{}
	doneCh chan struct{}
	runCh  chan struct{}
	closed atomic.Bool
	writer Writer
	topic  string
}

func NewEventProducer(w Writer, opts ...ProducerOptions) *EventProducer {
	ep := &EventProducer{
		buffer: newBuffer(),
		notify: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
		runCh:  make(chan struct{}),
		writer: w,
		topic:  defaultTopic,
	}

	for _, o := range opts {
		o(ep)
	}

	go ep.run()
	return ep
}

func (ep *EventProducer) Write(ctx context.Context, kind string, body io.Reader) error {
	if ep.closed.Load() {
		return ErrProducerClosed
	}

	d, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	ep.buffer.PushBack(&message{
		Kind: kind,
		Data: d,
	})

	select {
	case ep.notify <- struct{}{}:
	default:
	}

	return nil
}

// WriteJobEvent queues a job lifecycle event.
func (ep *EventProducer) WriteJobEvent(ctx context.Context, kind string, event JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return ep.Write(ctx, kind, bytes.NewReader(data))
}

// Close flushes the pending events and closes the writer.
func (ep *EventProducer) Close() error {
	if ep.closed.Swap(true) {
		return nil
	}

	close(ep.doneCh)
	<-ep.runCh

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := ep.writer.Close(closeCtx); err != nil {
		zap.S().Named("event_producer").Errorf("event producer closed with error: %s", err)
		return err
	}

	zap.S().Named("event_producer").Info("event producer closed")
	return nil
}

func (ep *EventProducer) run() {
	defer close(ep.runCh)

	for {
		msg := ep.buffer.Pop()
		if msg != nil {
			ep.send(msg)
			continue
		}

		select {
		case <-ep.notify:
		case <-ep.doneCh:
			for msg := ep.buffer.Pop(); msg != nil; msg = ep.buffer.Pop() {
				ep.send(msg)
			}
			return
		}
	}
}

func (ep *EventProducer) send(msg *message) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(eventSource)
	e.SetType(msg.Kind)
	e.SetTime(time.Now().UTC())
	_ = e.SetData(*cloudevents.StringOfApplicationJSON(), msg.Data)

	if err := ep.writer.Write(context.TODO(), ep.topic, e); err != nil {
		zap.S().Named("event_producer").Errorw("failed to send message", "error", err, "type", e.Type(), "id", e.ID())
	}
}
