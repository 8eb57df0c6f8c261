package kafka

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Writer publishes outbox messages. Messages carry their own topic and are
// hashed by key, so every event of one order keeps its relative order.
type Writer struct {
	*kafka.Writer
}

func NewWriter(log *slog.Logger, brokers []string) *Writer {
	return &Writer{
		Writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				log.Error("kafka writer", "detail", fmt.Sprintf(msg, args...))
			}),
		},
	}
}

// Published reports how many messages the writer has delivered since the
// previous call.
func (w *Writer) Published() int64 {
	return w.Stats().Messages
}
