// Package nats implements the message queue port using NATS JetStream.
// Messages that fail schema validation or exhaust their retries are
// moved to a per-subject dead letter queue ("{subject}.dlq").
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/TriggerGate/internal/logger"
	"github.com/Strob0t/TriggerGate/internal/port/messagequeue"
)

const streamName = "TRIGGERGATE"

const (
	headerDeliveryID = "Delivery-Id"
	headerRetryCount = "Retry-Count"
	maxRetries       = 3
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream
// stream covering the dispatch subjects exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{messagequeue.SubjectDispatch + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// Publish sends a message to the given subject. The delivery ID from
// the context, if any, travels as a header so consumers can correlate
// their logs with the originating webhook.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	if id := logger.DeliveryID(ctx); id != "" {
		msg.Header.Set(headerDeliveryID, id)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
// Payloads failing schema validation go straight to the DLQ; handler
// failures are retried up to maxRetries before the same happens.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := messagequeue.Validate(msg.Subject(), msg.Data()); err != nil {
			slog.Warn("invalid payload, moving to DLQ", "subject", msg.Subject(), "error", err)
			q.moveToDLQ(msg)
			return
		}

		mctx := context.Background()
		if id := msg.Headers().Get(headerDeliveryID); id != "" {
			mctx = logger.WithDeliveryID(mctx, id)
		}

		if err := handler(mctx, msg.Subject(), msg.Data()); err != nil {
			retries := retryCount(msg)
			if retries >= maxRetries {
				slog.Error("retries exhausted, moving to DLQ",
					"subject", msg.Subject(), "retries", retries, "error", err)
				q.moveToDLQ(msg)
				return
			}
			slog.Error("message handler failed", "subject", msg.Subject(), "retry", retries, "error", err)
			if nakErr := msg.NakWithDelay(time.Second << retries); nakErr != nil {
				slog.Error("nats nak failed", "error", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// moveToDLQ republishes the message on "{subject}.dlq" and acks the
// original so it stops redelivering.
func (q *Queue) moveToDLQ(msg jetstream.Msg) {
	dlq := &nats.Msg{
		Subject: msg.Subject() + ".dlq",
		Data:    msg.Data(),
		Header:  nats.Header(msg.Headers()),
	}
	if _, err := q.js.PublishMsg(context.Background(), dlq); err != nil {
		slog.Error("nats DLQ publish failed", "subject", dlq.Subject, "error", err)
		// Leave unacked so the message redelivers rather than vanishing.
		return
	}
	if err := msg.Ack(); err != nil {
		slog.Error("nats ack after DLQ failed", "error", err)
	}
}

// retryCount reads the Retry-Count header, falling back to the
// JetStream delivery count when absent.
func retryCount(msg jetstream.Msg) int {
	if v := msg.Headers().Get(headerRetryCount); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if meta, err := msg.Metadata(); err == nil {
		return int(meta.NumDelivered) - 1
	}
	return 0
}

// KeyValue returns (creating if needed) a JetStream KV bucket with the
// given TTL, used as a durable fallback for delivery de-duplication.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats keyvalue %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain processes pending messages and closes the connection.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection immediately.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc != nil && q.nc.IsConnected()
}
