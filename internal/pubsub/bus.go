// Package pubsub announces form events over Redis pub/sub and keeps a replayable copy in
// Redis Streams.
package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventSubmissionCreated is published after a submission is stored
const EventSubmissionCreated = "submission.created"

type Bus struct {
	rdb     *redis.Client
	log     *zap.Logger
	streams *Streams
}

func New(rdb *redis.Client, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		rdb:     rdb,
		log:     log,
		streams: NewStreams(rdb, log),
	}
}

// Streams returns the replay store behind the bus
func (b *Bus) Streams() *Streams {
	return b.streams
}

// FormChannel is the channel carrying events of one form
func FormChannel(formID string) string {
	return "form:" + formID
}

// PublishSubmission announces a stored submission on the form's channel
func (b *Bus) PublishSubmission(ctx context.Context, formID, submissionID string, extra map[string]interface{}) error {
	event := map[string]interface{}{
		"type":          EventSubmissionCreated,
		"form_id":       formID,
		"submission_id": submissionID,
	}
	for k, v := range extra {
		event[k] = v
	}
	return b.Publish(ctx, FormChannel(formID), event)
}

// Publish publishes an event to a channel
func (b *Bus) Publish(ctx context.Context, channel string, event map[string]interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		b.log.Error("Failed to publish event", zap.String("channel", channel), zap.Error(err))
		return err
	}

	// The stream copy is best effort; live subscribers already have the event
	seq, err := b.streams.PublishEvent(ctx, channel, event)
	if err != nil {
		b.log.Warn("Failed to publish to stream", zap.String("channel", channel), zap.Error(err))
	}

	b.log.Debug("Published event", zap.String("channel", channel), zap.Int64("seq", seq), zap.ByteString("event", data))
	return nil
}

// Subscribe listens on a channel until the returned pubsub is closed
func (b *Bus) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return b.rdb.Subscribe(ctx, channel)
}
