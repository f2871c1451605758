package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/glog"
	kafka "github.com/segmentio/kafka-go"
)

const kafkaWriteTimeout = 10 * time.Second

// IKafkaWriter is the part of kafka.Writer the feed uses.
type IKafkaWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Event is the appended-message record consumed by the admin analytics
// aggregator. It carries no message body, only shape and ordering facts.
type Event struct {
	ThreadID    int64  `json:"thread_id"`
	Seq         int32  `json:"seq"`
	SenderID    int64  `json:"sender_id"`
	ContentKind string `json:"content_kind"` // text, attachment, text+attachment
	CreateTime  int64  `json:"create_time"`  // unix seconds
}

// Feed publishes appended-message events to kafka, best effort. A nil Feed
// is valid and publishes nothing, so wiring stays unconditional.
type Feed struct {
	w IKafkaWriter
}

// New builds a feed writing to the given brokers and topic.
func New(brokers []string, topic string) *Feed {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
		Dialer: &kafka.Dialer{
			Timeout:   kafkaWriteTimeout,
			DualStack: true,
		},
	})
	return &Feed{w: w}
}

// NewWithWriter wires a custom writer, used by tests.
func NewWithWriter(w IKafkaWriter) *Feed {
	return &Feed{w: w}
}

// Publish emits one event. Failures are logged and swallowed: the append
// already committed and must not fail because analytics lags.
func (f *Feed) Publish(ctx context.Context, ev Event) {
	if f == nil || f.w == nil {
		return
	}

	value, err := json.Marshal(&ev)
	if err != nil {
		glog.Errorf("feed: marshal event err: %v", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", ev.ThreadID)),
		Value: value,
	}
	if err := f.w.WriteMessages(ctx, msg); err != nil {
		glog.Errorf("feed: write event thread=%d seq=%d err: %v", ev.ThreadID, ev.Seq, err)
	}
}

func (f *Feed) Close() {
	if f == nil || f.w == nil {
		return
	}
	if err := f.w.Close(); err != nil {
		glog.Errorf("feed: close err: %v", err)
	}
}
