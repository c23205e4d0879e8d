// Package events carries session lifecycle events between the state machine
// and its subscribers over an in-process watermill pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// TopicSessionCompleted receives one event each time a session generation
// reaches the complete phase.
const TopicSessionCompleted = "session.completed"

// SessionCompleted announces a finished session generation.
type SessionCompleted struct {
	SessionID  string    `json:"session_id"`
	Generation int       `json:"generation"`
	SubjectID  int64     `json:"subject_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Bus publishes and dispatches session events.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewBus creates an in-process bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		}, watermill.NewSlogLogger(logger)),
		logger: logger,
	}
}

// PublishSessionCompleted publishes ev and returns once every handler has
// processed it. Events published before any handler subscribed are dropped.
func (b *Bus) PublishSessionCompleted(ev SessionCompleted) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("session_id", ev.SessionID)
	msg.Metadata.Set("generation", fmt.Sprint(ev.Generation))

	if err := b.pubsub.Publish(TopicSessionCompleted, msg); err != nil {
		b.logger.Error("publish session event failed", "session_id", ev.SessionID, "error", err)
		return fmt.Errorf("publish session event: %w", err)
	}
	b.logger.Debug("published session event", "session_id", ev.SessionID, "generation", ev.Generation)
	return nil
}

// HandleSessionCompleted runs fn for every completed-session event until ctx
// ends or the bus closes. Handler errors are logged; the event is not
// redelivered.
func (b *Bus) HandleSessionCompleted(ctx context.Context, fn func(context.Context, SessionCompleted) error) error {
	msgs, err := b.pubsub.Subscribe(ctx, TopicSessionCompleted)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicSessionCompleted, err)
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range msgs {
			var ev SessionCompleted
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.logger.Error("malformed session event", "message_id", msg.UUID, "error", err)
				msg.Ack()
				continue
			}
			if err := fn(msg.Context(), ev); err != nil {
				b.logger.Error("session event handler failed",
					"session_id", ev.SessionID, "generation", ev.Generation, "error", err)
			}
			msg.Ack()
		}
	}()
	return nil
}

// Close stops delivery and waits for running handlers.
func (b *Bus) Close() error {
	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}
